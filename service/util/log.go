package util

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
)

// ConsoleHandler writes one line per record: time, level, message, then
// key=value attributes. Colors are only used on terminals.
type ConsoleHandler struct {
	mu       *sync.Mutex
	w        io.Writer
	level    slog.Leveler
	color    bool
	group    string
	preAttrs []slog.Attr
}

func NewConsoleHandler(w io.Writer, opts *slog.HandlerOptions) *ConsoleHandler {
	var level slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		level = opts.Level
	}

	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd())
	}

	return &ConsoleHandler{
		mu:    &sync.Mutex{},
		w:     w,
		level: level,
		color: color,
	}
}

func (h *ConsoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *ConsoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newH := *h
	newH.preAttrs = append([]slog.Attr{}, h.preAttrs...)
	for _, a := range attrs {
		newH.preAttrs = append(newH.preAttrs, h.qualify(a))
	}
	return &newH
}

func (h *ConsoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	newH := *h
	newH.group = h.qualifyKey(name)
	return &newH
}

func (h *ConsoleHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	timestamp := r.Time.Format("15:04:05")
	if h.color {
		_, _ = fmt.Fprintf(h.w, "%s%s%s [%s%s%s] %s", //nolint:errcheck
			colorGray, timestamp, colorReset,
			levelColor(r.Level), r.Level.String(), colorReset,
			r.Message)
	} else {
		_, _ = fmt.Fprintf(h.w, "%s [%s] %s", timestamp, r.Level.String(), r.Message) //nolint:errcheck
	}

	for _, a := range h.preAttrs {
		_, _ = fmt.Fprintf(h.w, " %s=%v", a.Key, a.Value) //nolint:errcheck
	}

	r.Attrs(func(a slog.Attr) bool {
		a = h.qualify(a)
		_, _ = fmt.Fprintf(h.w, " %s=%v", a.Key, a.Value) //nolint:errcheck
		return true
	})

	_, err := fmt.Fprintln(h.w)
	return err
}

func (h *ConsoleHandler) qualify(a slog.Attr) slog.Attr {
	a.Key = h.qualifyKey(a.Key)
	return a
}

func (h *ConsoleHandler) qualifyKey(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}

func levelColor(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return colorRed
	case level >= slog.LevelWarn:
		return colorYellow
	case level >= slog.LevelInfo:
		return colorBlue
	default:
		return colorGray
	}
}

func NewLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	return slog.New(NewConsoleHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}

// LogError logs msg with err and returns err wrapped with the same message.
func LogError(logger *slog.Logger, msg string, err error, attrs ...any) error {
	allAttrs := append([]any{"error", err}, attrs...)
	logger.Error(msg, allAttrs...)
	return fmt.Errorf("%s: %w", msg, err)
}
