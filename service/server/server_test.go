package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pushbridge/service/activity"
	"pushbridge/service/bridge"
	"pushbridge/service/bridge/bridgetest"
	"pushbridge/service/config"
	"pushbridge/service/delivery"
	"pushbridge/service/iterable"
	"pushbridge/service/storage"
	"pushbridge/service/subscription"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

const testAPIKey = "test-key"

type stubBridge struct{ connected bool }

func (b stubBridge) Connected() bool { return b.connected }

type nopSender struct{}

func (nopSender) Send(context.Context, *subscription.Subscription, delivery.Notification) error {
	return nil
}

type testEnv struct {
	server   *Server
	module   *bridgetest.Module
	activity *activity.Store
	subs     *subscription.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)

	db, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	feed := activity.NewFeed(logger)
	activityStore, err := activity.NewStore(db, feed)
	if err != nil {
		t.Fatalf("activity.NewStore() error = %v", err)
	}
	subStore, err := subscription.NewStore(db, nil, logger)
	if err != nil {
		t.Fatalf("subscription.NewStore() error = %v", err)
	}

	publisher := delivery.NewPublisher(subStore, logger)
	publisher.RegisterSender(subscription.ChannelWebPush, nopSender{})
	publisher.RegisterSender(subscription.ChannelTelegram, nopSender{})

	module := bridgetest.NewModule()
	sdk := iterable.New(module, bridge.NewEventEmitter(logger), logger)

	cfg := &config.Config{APIKey: testAPIKey}
	s := New(cfg, Deps{
		SDK:           sdk,
		Bridge:        stubBridge{connected: true},
		Activity:      activityStore,
		Feed:          feed,
		Subscriptions: subStore,
		Publisher:     publisher,
		Version:       "1.2.3",
	}, logger)

	return &testEnv{server: s, module: module, activity: activityStore, subs: subStore}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp healthResponse
	decodeBody(t, rec, &resp)
	if resp.Version != "1.2.3" || !resp.Bridge.Connected || len(resp.Channels) != 2 {
		t.Errorf("health = %+v", resp)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong bearer", "Bearer nope"},
		{"malformed", "Token " + testAPIKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/identity/email", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			env.server.Handler().ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
	if calls := env.module.Calls(); len(calls) != 0 {
		t.Errorf("native called without auth: %+v", calls)
	}
}

func TestIdentity(t *testing.T) {
	env := newTestEnv(t)
	env.module.SetResult(bridge.MethodGetEmail, "user@example.com")
	env.module.SetResult(bridge.MethodGetUserID, "u-1")

	rec := env.do(t, http.MethodGet, "/api/v1/identity/email", "")
	var email emailRequest
	decodeBody(t, rec, &email)
	if rec.Code != http.StatusOK || email.Email != "user@example.com" {
		t.Errorf("GET email = %d %+v", rec.Code, email)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/identity/user-id", "")
	var userID userIDRequest
	decodeBody(t, rec, &userID)
	if rec.Code != http.StatusOK || userID.UserID != "u-1" {
		t.Errorf("GET user-id = %d %+v", rec.Code, userID)
	}

	if rec := env.do(t, http.MethodPut, "/api/v1/identity/email", `{"email":"new@example.com"}`); rec.Code != http.StatusNoContent {
		t.Errorf("PUT email = %d", rec.Code)
	}
	calls := env.module.CallsTo(bridge.MethodSetEmail)
	if len(calls) != 1 || calls[0].Args[0] != "new@example.com" {
		t.Errorf("setEmail calls = %+v", calls)
	}

	if rec := env.do(t, http.MethodPut, "/api/v1/identity/user-id", `{"userId":""}`); rec.Code != http.StatusBadRequest {
		t.Errorf("PUT empty user-id = %d, want 400", rec.Code)
	}
	if rec := env.do(t, http.MethodPut, "/api/v1/identity/email", `{`); rec.Code != http.StatusBadRequest {
		t.Errorf("PUT malformed email = %d, want 400", rec.Code)
	}
}

func TestBridgeErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"remote error", &bridge.RemoteError{Code: -32000, Message: "not initialized"}, http.StatusBadGateway},
		{"bridge closed", bridge.ErrClosed, http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.module.SetError(bridge.MethodGetEmail, tt.err)
			if rec := env.do(t, http.MethodGet, "/api/v1/identity/email", ""); rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestDisableDevice(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, http.MethodPost, "/api/v1/device/disable", ""); rec.Code != http.StatusNoContent {
		t.Errorf("disable current = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/device/disable", `{"allUsers":true}`); rec.Code != http.StatusNoContent {
		t.Errorf("disable all = %d", rec.Code)
	}

	if n := len(env.module.CallsTo(bridge.MethodDisableDeviceForCurrentUser)); n != 1 {
		t.Errorf("disableDeviceForCurrentUser calls = %d", n)
	}
	if n := len(env.module.CallsTo(bridge.MethodDisableDeviceForAllUsers)); n != 1 {
		t.Errorf("disableDeviceForAllUsers calls = %d", n)
	}
}

func TestLastPushPayload(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/push/last", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"payload":null`) {
		t.Errorf("GET push/last with none = %d %s", rec.Code, rec.Body.String())
	}

	env.module.SetResult(bridge.MethodGetLastPushPayload, map[string]any{"itbl": map[string]any{"campaignId": 1}})
	rec = env.do(t, http.MethodGet, "/api/v1/push/last", "")
	var resp pushPayloadResponse
	decodeBody(t, rec, &resp)
	if _, ok := resp.Payload["itbl"]; !ok {
		t.Errorf("payload = %+v", resp.Payload)
	}
}

func TestAttribution(t *testing.T) {
	env := newTestEnv(t)

	if rec := env.do(t, http.MethodGet, "/api/v1/attribution", ""); rec.Code != http.StatusNotFound {
		t.Errorf("GET attribution with none = %d, want 404", rec.Code)
	}

	env.module.SetResult(bridge.MethodGetAttributionInfo, map[string]any{"campaignId": 1234, "templateId": 5678, "messageId": "m1"})
	rec := env.do(t, http.MethodGet, "/api/v1/attribution", "")
	var info iterable.AttributionInfo
	decodeBody(t, rec, &info)
	if info != (iterable.AttributionInfo{CampaignID: 1234, TemplateID: 5678, MessageID: "m1"}) {
		t.Errorf("attribution = %+v", info)
	}

	if rec := env.do(t, http.MethodPut, "/api/v1/attribution", `{"campaignId":1,"templateId":2,"messageId":"x"}`); rec.Code != http.StatusNoContent {
		t.Errorf("PUT attribution = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/v1/attribution", ""); rec.Code != http.StatusNoContent {
		t.Errorf("DELETE attribution = %d", rec.Code)
	}

	calls := env.module.CallsTo(bridge.MethodSetAttributionInfo)
	if len(calls) != 2 {
		t.Fatalf("setAttributionInfo calls = %d, want 2", len(calls))
	}
	dict, ok := calls[0].Args[0].(map[string]any)
	if !ok || dict["campaignId"] != int64(1) || dict["messageId"] != "x" {
		t.Errorf("set args = %#v", calls[0].Args)
	}
	if calls[1].Args[0] != nil {
		t.Errorf("clear args = %#v, want nil", calls[1].Args)
	}
}

func TestTracking(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		path   string
		body   string
		want   int
		method string
	}{
		{"payload", "/api/v1/track/push-open/payload", `{"payload":{"itbl":{}},"dataFields":{"k":"v"}}`, http.StatusAccepted, bridge.MethodTrackPushOpenWithPayload},
		{"payload missing", "/api/v1/track/push-open/payload", `{}`, http.StatusBadRequest, ""},
		{"campaign", "/api/v1/track/push-open/campaign", `{"campaignId":1,"templateId":2,"appAlreadyRunning":true}`, http.StatusAccepted, bridge.MethodTrackPushOpenWithCampaignID},
		{"campaign missing ids", "/api/v1/track/push-open/campaign", `{"campaignId":1}`, http.StatusBadRequest, ""},
		{"purchase", "/api/v1/track/purchase", `{"total":9.5,"items":[{"id":"sku","name":"Shoe","price":9.5,"quantity":1}]}`, http.StatusAccepted, bridge.MethodTrackPurchaseWithTotal},
		{"purchase missing total", "/api/v1/track/purchase", `{"items":[]}`, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := 0
			if tt.method != "" {
				before = len(env.module.CallsTo(tt.method))
			}
			if rec := env.do(t, http.MethodPost, tt.path, tt.body); rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			if tt.method != "" && len(env.module.CallsTo(tt.method)) != before+1 {
				t.Errorf("%s not forwarded", tt.method)
			}
		})
	}

	calls := env.module.CallsTo(bridge.MethodTrackPushOpenWithCampaignID)
	if len(calls) != 1 {
		t.Fatalf("campaign calls = %d", len(calls))
	}
	args := calls[0].Args
	if args[0] != int64(1) || args[1] != int64(2) || args[2] != (*string)(nil) || args[3] != true {
		t.Errorf("campaign args = %#v", args)
	}
}

func TestInAppMessages(t *testing.T) {
	env := newTestEnv(t)
	env.module.SetError(bridge.MethodGetInAppMessages, &bridge.RemoteError{Code: 1, Message: "boom"})

	rec := env.do(t, http.MethodGet, "/api/v1/inapp", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"messages":[]`) {
		t.Errorf("GET inapp with error = %d %s", rec.Code, rec.Body.String())
	}

	env.module.SetError(bridge.MethodGetInAppMessages, nil)
	env.module.SetResult(bridge.MethodGetInAppMessages, []any{
		map[string]any{"messageId": "a", "campaignId": 7},
	})
	rec = env.do(t, http.MethodGet, "/api/v1/inapp", "")
	var resp inAppResponse
	decodeBody(t, rec, &resp)
	if len(resp.Messages) != 1 || resp.Messages[0].MessageID != "a" || resp.Messages[0].CampaignID != 7 {
		t.Errorf("messages = %+v", resp.Messages)
	}
}

func TestActivity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for _, u := range []string{"myapp://a", "myapp://b"} {
		if _, err := env.activity.Add(ctx, activity.Record{Kind: activity.KindURL, URL: u, Source: "push"}); err != nil {
			t.Fatal(err)
		}
	}

	rec := env.do(t, http.MethodGet, "/api/v1/activity?limit=1", "")
	var resp activityResponse
	decodeBody(t, rec, &resp)
	if rec.Code != http.StatusOK || len(resp.Activity) != 1 || resp.Activity[0].URL != "myapp://b" {
		t.Errorf("activity = %d %+v", rec.Code, resp.Activity)
	}

	if rec := env.do(t, http.MethodGet, "/api/v1/activity?limit=x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/activity/"+resp.Activity[0].ID, "")
	var one activity.Record
	decodeBody(t, rec, &one)
	if rec.Code != http.StatusOK || one.URL != "myapp://b" {
		t.Errorf("get activity = %d %+v", rec.Code, one)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/activity/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing activity = %d, want 404", rec.Code)
	}
}

func TestSubscriptions(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/subscriptions/telegram", `{"topic":"url","chatId":"-100"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create telegram = %d %s", rec.Code, rec.Body.String())
	}
	var created createdResponse
	decodeBody(t, rec, &created)

	rec = env.do(t, http.MethodPost, "/api/v1/subscriptions/webpush", `{"topic":"addToCart","pushEndpoint":"https://hooks.example/x"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create webpush = %d %s", rec.Code, rec.Body.String())
	}

	if rec := env.do(t, http.MethodPost, "/api/v1/subscriptions/telegram", `{"topic":"url","chatId":"abc"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad chat id = %d, want 400", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/subscriptions/webpush", `{"topic":"url","pushEndpoint":"ftp://x"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad endpoint = %d, want 400", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/subscriptions", "")
	var list subscriptionsResponse
	decodeBody(t, rec, &list)
	if len(list.Subscriptions) != 2 {
		t.Errorf("list = %+v", list.Subscriptions)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/subscriptions?topic=url", "")
	decodeBody(t, rec, &list)
	if len(list.Subscriptions) != 1 || list.Subscriptions[0].ID != created.ID {
		t.Errorf("list by topic = %+v", list.Subscriptions)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/subscriptions/"+created.ID, "")
	var one subscription.Subscription
	decodeBody(t, rec, &one)
	if rec.Code != http.StatusOK || one.Channel != subscription.ChannelTelegram || one.Telegram == nil || one.Telegram.ChatID != "-100" {
		t.Errorf("get subscription = %d %+v", rec.Code, one)
	}

	if rec := env.do(t, http.MethodDelete, "/api/v1/subscriptions/"+created.ID, ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/v1/subscriptions/"+created.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/api/v1/subscriptions/"+created.ID, ""); rec.Code != http.StatusNotFound {
		t.Errorf("get deleted = %d, want 404", rec.Code)
	}
}

func TestDeleteChannelSubscriptions(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{`{"topic":"url","chatId":"1"}`, `{"topic":"addToCart","chatId":"2"}`} {
		if rec := env.do(t, http.MethodPost, "/api/v1/subscriptions/telegram", body); rec.Code != http.StatusCreated {
			t.Fatalf("create telegram = %d %s", rec.Code, rec.Body.String())
		}
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/subscriptions/webpush", `{"topic":"url","pushEndpoint":"https://hooks.example/x"}`); rec.Code != http.StatusCreated {
		t.Fatalf("create webpush = %d", rec.Code)
	}

	if rec := env.do(t, http.MethodDelete, "/api/v1/subscriptions?channel=signal", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown channel = %d, want 400", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/v1/subscriptions", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("missing channel = %d, want 400", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/v1/subscriptions?channel=telegram", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete channel = %d", rec.Code)
	}

	rec := env.do(t, http.MethodGet, "/api/v1/subscriptions", "")
	var list subscriptionsResponse
	decodeBody(t, rec, &list)
	if len(list.Subscriptions) != 1 || list.Subscriptions[0].Channel != subscription.ChannelWebPush {
		t.Errorf("remaining = %+v", list.Subscriptions)
	}
}

func TestActivityStream(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.server.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/activity/stream"

	if _, resp, err := websocket.DefaultDialer.Dial(url, nil); err == nil {
		t.Fatal("dial without auth succeeded")
	} else if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("dial without auth = %v, %v", resp, err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+testAPIKey)
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(5 * time.Second)
	for env.server.feed.Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("watcher never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	added, err := env.activity.Add(context.Background(), activity.Record{Kind: activity.KindCustomAction, ActionType: "addToCart", Source: "inApp", Handled: true})
	if err != nil {
		t.Fatal(err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var got activity.Record
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if got.ID != added.ID || got.ActionType != "addToCart" {
		t.Errorf("streamed %+v, want %+v", got, added)
	}
}

func TestRateLimit(t *testing.T) {
	handler := rateLimitMiddleware(2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	send := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("203.0.113.7:4000"); code != http.StatusNoContent {
			t.Fatalf("request %d = %d", i+1, code)
		}
	}
	if code := send("203.0.113.7:4000"); code != http.StatusTooManyRequests {
		t.Errorf("third request = %d, want 429", code)
	}
	for i := 0; i < 5; i++ {
		if code := send("127.0.0.1:4000"); code != http.StatusNoContent {
			t.Errorf("loopback request %d = %d, want 204", i+1, code)
		}
	}
}

func TestRateLimit_ForwardedLoopbackNotExempt(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := peerAddrMiddleware(middleware.RealIP(rateLimitMiddleware(2)(ok)))

	send := func(remote, realIP string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		if realIP != "" {
			req.Header.Set("X-Real-IP", realIP)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("203.0.113.9:4000", "127.0.0.1"); code != http.StatusNoContent {
			t.Fatalf("request %d = %d", i+1, code)
		}
	}
	if code := send("203.0.113.9:4000", "127.0.0.1"); code != http.StatusTooManyRequests {
		t.Errorf("spoofed loopback request = %d, want 429", code)
	}

	for i := 0; i < 5; i++ {
		if code := send("127.0.0.1:4000", ""); code != http.StatusNoContent {
			t.Errorf("loopback request %d = %d, want 204", i+1, code)
		}
	}
}
