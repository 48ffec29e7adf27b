// Package bridge connects the facade to the native host: a JSON-RPC 2.0
// stream carrying calls out and events back in.
package bridge

import "context"

// Module is the native side of the bridge. Call waits for a single result,
// Notify fires a command and returns once it has been written.
type Module interface {
	Call(ctx context.Context, method string, args ...any) (any, error)
	Notify(ctx context.Context, method string, args ...any) error
}

// Emitter delivers native events to registered listeners.
type Emitter interface {
	AddListener(event string, fn Listener) Subscription
}

type Listener func(payload map[string]any)

type Subscription interface {
	Remove()
}

const (
	MethodInitializeWithAPIKey        = "initializeWithApiKey"
	MethodSetEmail                    = "setEmail"
	MethodGetEmail                    = "getEmail"
	MethodSetUserID                   = "setUserId"
	MethodGetUserID                   = "getUserId"
	MethodDisableDeviceForCurrentUser = "disableDeviceForCurrentUser"
	MethodDisableDeviceForAllUsers    = "disableDeviceForAllUsers"
	MethodGetLastPushPayload          = "getLastPushPayload"
	MethodGetAttributionInfo          = "getAttributionInfo"
	MethodSetAttributionInfo          = "setAttributionInfo"
	MethodTrackPushOpenWithPayload    = "trackPushOpenWithPayload"
	MethodTrackPushOpenWithCampaignID = "trackPushOpenWithCampaignId"
	MethodTrackPurchaseWithTotal      = "trackPurchaseWithTotal"
	MethodGetInAppMessages            = "getInAppMessages"
	MethodSetURLHandled               = "setUrlHandled"
)

const (
	EventHandleURLCalled          = "handleUrlCalled"
	EventHandleCustomActionCalled = "handleCustomActionCalled"
)
