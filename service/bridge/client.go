package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Client speaks JSON-RPC 2.0 to the native host over a single stream.
// Responses are matched to calls by id; id-less messages with a method are
// native events and go to the EventEmitter. Listeners run on the read loop
// and must not block on Call.
type Client struct {
	conn   net.Conn
	events *EventEmitter
	logger *slog.Logger
	tracer trace.Tracer

	writeMu sync.Mutex
	enc     *json.Encoder

	nextID  atomic.Int64
	pending *xsync.Map[int64, chan *message]

	done      chan struct{}
	closeOnce sync.Once
	err       error
}

func Dial(ctx context.Context, socketPath string, events *EventEmitter, logger *slog.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to native bridge at %s: %w", socketPath, err)
	}
	return NewClient(conn, events, logger), nil
}

func NewClient(conn net.Conn, events *EventEmitter, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if events == nil {
		events = NewEventEmitter(logger)
	}

	c := &Client{
		conn:    conn,
		events:  events,
		logger:  logger,
		tracer:  otel.Tracer("pushbridge/bridge"),
		enc:     json.NewEncoder(conn),
		pending: xsync.NewMap[int64, chan *message](),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) Events() *EventEmitter {
	return c.events
}

func (c *Client) Call(ctx context.Context, method string, args ...any) (any, error) {
	ctx, span := c.startSpan(ctx, "call", method)
	defer span.End()

	id := c.nextID.Add(1)
	ch := make(chan *message, 1)
	c.pending.Store(id, ch)

	if err := c.write(ctx, newRequest(&id, method, args)); err != nil {
		c.pending.Delete(id)
		recordError(span, err)
		return nil, err
	}

	select {
	case resp := <-ch:
		return c.result(span, resp)
	case <-ctx.Done():
		c.pending.Delete(id)
		recordError(span, ctx.Err())
		return nil, ctx.Err()
	case <-c.done:
		select {
		case resp := <-ch:
			return c.result(span, resp)
		default:
		}
		c.pending.Delete(id)
		recordError(span, c.err)
		return nil, c.err
	}
}

func (c *Client) Notify(ctx context.Context, method string, args ...any) error {
	ctx, span := c.startSpan(ctx, "notify", method)
	defer span.End()

	if err := c.write(ctx, newRequest(nil, method, args)); err != nil {
		recordError(span, err)
		return err
	}
	return nil
}

func (c *Client) Close() error {
	c.shutdown(ErrClosed)
	return nil
}

func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Connected() bool {
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

func (c *Client) result(span trace.Span, resp *message) (any, error) {
	if resp.Error != nil {
		recordError(span, resp.Error)
		return nil, resp.Error
	}
	v, err := decodeResult(resp.Result)
	if err != nil {
		recordError(span, err)
		return nil, err
	}
	return v, nil
}

func (c *Client) write(ctx context.Context, req request) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return c.err
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{}) //nolint:errcheck
	}

	if err := c.enc.Encode(req); err != nil {
		// A failed write may leave part of a frame on the stream, so nothing
		// written after it can be parsed by native.
		c.logger.Error("Native bridge write failed, closing", "method", req.Method, "error", err)
		c.shutdown(fmt.Errorf("%w: write failed: %v", ErrClosed, err))
		if errors.Is(err, os.ErrDeadlineExceeded) {
			err = context.DeadlineExceeded
		}
		return fmt.Errorf("failed to send %s to native bridge: %w", req.Method, err)
	}
	return nil
}

func (c *Client) readLoop() {
	dec := json.NewDecoder(c.conn)
	for {
		var msg message
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
				c.shutdown(ErrClosed)
			} else {
				c.logger.Error("Native bridge stream failed", "error", err)
				c.shutdown(fmt.Errorf("%w: %v", ErrClosed, err))
			}
			return
		}
		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *message) {
	switch {
	case msg.ID == nil && msg.Method != "":
		payload, err := decodeEventPayload(msg.Params)
		if err != nil {
			c.logger.Warn("Dropping malformed native event", "event", msg.Method, "error", err)
			return
		}
		c.logger.Debug("Native event", "event", msg.Method)
		c.events.Emit(msg.Method, payload)
	case msg.ID != nil && msg.Method == "":
		ch, ok := c.pending.LoadAndDelete(*msg.ID)
		if !ok {
			c.logger.Warn("Response for unknown native call", "id", *msg.ID)
			return
		}
		ch <- msg
	case msg.ID == nil && msg.Error != nil:
		// Native could not tie the error to a request, so the stream is no
		// longer trusted and every pending call fails with it.
		c.logger.Error("Native bridge reported an error without an id", "error", msg.Error)
		c.shutdown(fmt.Errorf("%w: %w", ErrClosed, msg.Error))
	default:
		c.logger.Warn("Ignoring unsupported native message", "method", msg.Method)
	}
}

func (c *Client) shutdown(err error) {
	c.closeOnce.Do(func() {
		c.err = err
		close(c.done)
		_ = c.conn.Close()
	})
}

func (c *Client) startSpan(ctx context.Context, kind, method string) (context.Context, trace.Span) {
	return c.tracer.Start(ctx, "bridge."+kind+" "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("rpc.system", "jsonrpc"),
			attribute.String("rpc.method", method),
		),
	)
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
