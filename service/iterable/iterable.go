// Package iterable is the typed facade over the native messaging SDK. It
// converts between Go values and the untyped dictionaries that cross the
// bridge, forwards each operation to the native host, and turns native
// callbacks into delegate invocations.
package iterable

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pushbridge/service/bridge"

	"github.com/spf13/cast"
)

// ackTimeout bounds the setUrlHandled reply, which is sent from the bridge
// read loop.
const ackTimeout = 5 * time.Second

type Client struct {
	module bridge.Module
	events bridge.Emitter
	logger *slog.Logger

	mu        sync.Mutex
	listeners []bridge.Subscription
}

func New(module bridge.Module, events bridge.Emitter, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		module: module,
		events: events,
		logger: logger,
	}
}

// Initialize registers a listener for each delegate set on cfg and then
// forwards the key and configuration to native. Calling it again replaces
// the listeners of the previous call.
func (c *Client) Initialize(ctx context.Context, apiKey string, cfg *Config) error {
	if cfg == nil {
		cfg = NewConfig()
	}
	c.logger.Debug("initialize", "apiKey", maskKey(apiKey))

	c.mu.Lock()
	c.removeListenersLocked()
	if cfg.URLDelegate != nil {
		c.listeners = append(c.listeners,
			c.events.AddListener(bridge.EventHandleURLCalled, c.urlListener(cfg.URLDelegate)))
	}
	if cfg.CustomActionDelegate != nil {
		c.listeners = append(c.listeners,
			c.events.AddListener(bridge.EventHandleCustomActionCalled, c.customActionListener(cfg.CustomActionDelegate)))
	}
	c.mu.Unlock()

	return c.module.Notify(ctx, bridge.MethodInitializeWithAPIKey, apiKey, cfg.ToDict())
}

// Close drops the event listeners registered by Initialize.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeListenersLocked()
}

func (c *Client) removeListenersLocked() {
	for _, l := range c.listeners {
		l.Remove()
	}
	c.listeners = nil
}

func (c *Client) urlListener(delegate URLDelegate) bridge.Listener {
	return func(payload map[string]any) {
		url := cast.ToString(payload["url"])
		actionCtx := ActionContextFromDict(nestedDict(payload, "context"))

		handled := delegate(url, actionCtx)

		ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
		defer cancel()
		if err := c.module.Notify(ctx, bridge.MethodSetURLHandled, handled); err != nil {
			c.logger.Error("Failed to report URL result to native", "url", url, "error", err)
		}
	}
}

// The custom action result is not acknowledged; native does not wait for one.
func (c *Client) customActionListener(delegate CustomActionDelegate) bridge.Listener {
	return func(payload map[string]any) {
		action := ActionFromDict(nestedDict(payload, "action"))
		actionCtx := ActionContextFromDict(nestedDict(payload, "context"))
		delegate(action, actionCtx)
	}
}

func (c *Client) SetEmail(ctx context.Context, email string) error {
	c.logger.Debug("setEmail", "email", email)
	return c.module.Notify(ctx, bridge.MethodSetEmail, email)
}

// GetEmail returns an empty string when no email is set.
func (c *Client) GetEmail(ctx context.Context) (string, error) {
	c.logger.Debug("getEmail")
	return c.callString(ctx, bridge.MethodGetEmail)
}

func (c *Client) SetUserID(ctx context.Context, userID string) error {
	c.logger.Debug("setUserId", "userId", userID)
	return c.module.Notify(ctx, bridge.MethodSetUserID, userID)
}

func (c *Client) GetUserID(ctx context.Context) (string, error) {
	c.logger.Debug("getUserId")
	return c.callString(ctx, bridge.MethodGetUserID)
}

func (c *Client) DisableDeviceForCurrentUser(ctx context.Context) error {
	c.logger.Debug("disableDeviceForCurrentUser")
	return c.module.Notify(ctx, bridge.MethodDisableDeviceForCurrentUser)
}

func (c *Client) DisableDeviceForAllUsers(ctx context.Context) error {
	c.logger.Debug("disableDeviceForAllUsers")
	return c.module.Notify(ctx, bridge.MethodDisableDeviceForAllUsers)
}

// GetLastPushPayload returns nil when native has no payload.
func (c *Client) GetLastPushPayload(ctx context.Context) (map[string]any, error) {
	c.logger.Debug("getLastPushPayload")
	v, err := c.module.Call(ctx, bridge.MethodGetLastPushPayload)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	payload, err := cast.ToStringMapE(v)
	if err != nil {
		return nil, fmt.Errorf("unexpected push payload from native: %w", err)
	}
	return payload, nil
}

// GetAttributionInfo returns nil, nil when native has no attribution info.
func (c *Client) GetAttributionInfo(ctx context.Context) (*AttributionInfo, error) {
	c.logger.Debug("getAttributionInfo")
	v, err := c.module.Call(ctx, bridge.MethodGetAttributionInfo)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	dict, err := cast.ToStringMapE(v)
	if err != nil {
		return nil, fmt.Errorf("unexpected attribution info from native: %w", err)
	}
	return AttributionInfoFromDict(dict), nil
}

// SetAttributionInfo with nil clears the stored attribution.
func (c *Client) SetAttributionInfo(ctx context.Context, info *AttributionInfo) error {
	c.logger.Debug("setAttributionInfo")
	var dict any
	if info != nil {
		dict = info.ToDict()
	}
	return c.module.Notify(ctx, bridge.MethodSetAttributionInfo, dict)
}

func (c *Client) TrackPushOpenWithPayload(ctx context.Context, payload, dataFields map[string]any) error {
	c.logger.Debug("trackPushOpenWithPayload")
	return c.module.Notify(ctx, bridge.MethodTrackPushOpenWithPayload, payload, dataFields)
}

func (c *Client) TrackPushOpenWithCampaignID(ctx context.Context, campaignID, templateID int64, messageID *string, appAlreadyRunning bool, dataFields map[string]any) error {
	c.logger.Debug("trackPushOpenWithCampaignId", "campaignId", campaignID, "templateId", templateID)
	return c.module.Notify(ctx, bridge.MethodTrackPushOpenWithCampaignID,
		campaignID, templateID, messageID, appAlreadyRunning, dataFields)
}

// TrackPurchase forwards items as given; nothing is validated here.
func (c *Client) TrackPurchase(ctx context.Context, total float64, items []CommerceItem, dataFields map[string]any) error {
	c.logger.Debug("trackPurchase", "total", total, "items", len(items))
	return c.module.Notify(ctx, bridge.MethodTrackPurchaseWithTotal, total, commerceItemDicts(items), dataFields)
}

// GetInAppMessages is best-effort: a native failure is logged and yields no
// messages instead of an error.
func (c *Client) GetInAppMessages(ctx context.Context) []InAppMessage {
	c.logger.Debug("getInAppMessages")
	v, err := c.module.Call(ctx, bridge.MethodGetInAppMessages)
	if err != nil {
		c.logger.Error("Failed to get in-app messages", "error", err)
		return nil
	}
	if v == nil {
		return nil
	}

	list, err := cast.ToSliceE(v)
	if err != nil {
		c.logger.Error("Unexpected in-app messages from native", "type", fmt.Sprintf("%T", v))
		return nil
	}

	messages := make([]InAppMessage, 0, len(list))
	for _, item := range list {
		messages = append(messages, InAppMessageFromDict(cast.ToStringMap(item)))
	}
	c.logger.Debug("Fetched in-app messages", "count", len(messages))
	return messages
}

func (c *Client) callString(ctx context.Context, method string) (string, error) {
	v, err := c.module.Call(ctx, method)
	if err != nil {
		return "", err
	}
	return cast.ToString(v), nil
}

func maskKey(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
