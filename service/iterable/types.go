package iterable

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

type PushServicePlatform int

const (
	PushPlatformSandbox PushServicePlatform = iota
	PushPlatformProduction
	PushPlatformAuto
)

func (p PushServicePlatform) String() string {
	switch p {
	case PushPlatformSandbox:
		return "sandbox"
	case PushPlatformProduction:
		return "production"
	case PushPlatformAuto:
		return "auto"
	default:
		return fmt.Sprintf("PushServicePlatform(%d)", int(p))
	}
}

func ParsePushPlatform(s string) (PushServicePlatform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sandbox":
		return PushPlatformSandbox, nil
	case "production":
		return PushPlatformProduction, nil
	case "", "auto":
		return PushPlatformAuto, nil
	default:
		return PushPlatformAuto, fmt.Errorf("unknown push platform %q", s)
	}
}

type ActionSource int

const (
	ActionSourcePush ActionSource = iota
	ActionSourceUniversalLink
	ActionSourceInApp
)

func (s ActionSource) String() string {
	switch s {
	case ActionSourcePush:
		return "push"
	case ActionSourceUniversalLink:
		return "universalLink"
	case ActionSourceInApp:
		return "inApp"
	default:
		return fmt.Sprintf("ActionSource(%d)", int(s))
	}
}

// URLDelegate decides whether the app handled a URL opened from a push,
// link or in-app message. The result is reported back to native.
type URLDelegate func(url string, ctx ActionContext) bool

// CustomActionDelegate runs a custom action. Native does not receive the
// result.
type CustomActionDelegate func(action Action, ctx ActionContext) bool

type Config struct {
	PushIntegrationName        *string
	SandboxPushIntegrationName *string
	PushPlatform               PushServicePlatform
	AutoPushRegistration       bool
	CheckForDeferredDeeplink   bool
	InAppDisplayInterval       float64

	URLDelegate          URLDelegate
	CustomActionDelegate CustomActionDelegate
}

func NewConfig() *Config {
	return &Config{
		PushPlatform:             PushPlatformAuto,
		AutoPushRegistration:     true,
		CheckForDeferredDeeplink: false,
		InAppDisplayInterval:     30.0,
	}
}

// ToDict is the wire form sent with initializeWithApiKey. Delegates are
// reported by presence only.
func (c *Config) ToDict() map[string]any {
	dict := map[string]any{
		"pushPlatform":                int(c.PushPlatform),
		"autoPushRegistration":        c.AutoPushRegistration,
		"checkForDeferredDeeplink":    c.CheckForDeferredDeeplink,
		"inAppDisplayInterval":        c.InAppDisplayInterval,
		"urlDelegatePresent":          c.URLDelegate != nil,
		"customActionDelegatePresent": c.CustomActionDelegate != nil,
	}
	if c.PushIntegrationName != nil {
		dict["pushIntegrationName"] = *c.PushIntegrationName
	}
	if c.SandboxPushIntegrationName != nil {
		dict["sandboxPushIntegrationName"] = *c.SandboxPushIntegrationName
	}
	return dict
}

type Action struct {
	Type      string  `json:"type"`
	Data      *string `json:"data,omitempty"`
	UserInput *string `json:"userInput,omitempty"`
}

func ActionFromDict(dict map[string]any) Action {
	return Action{
		Type:      cast.ToString(dict["type"]),
		Data:      optionalString(dict, "data"),
		UserInput: optionalString(dict, "userInput"),
	}
}

type ActionContext struct {
	Action Action       `json:"action"`
	Source ActionSource `json:"source"`
}

func ActionContextFromDict(dict map[string]any) ActionContext {
	return ActionContext{
		Action: ActionFromDict(nestedDict(dict, "action")),
		Source: ActionSource(cast.ToInt(dict["actionSource"])),
	}
}

type AttributionInfo struct {
	CampaignID int64  `json:"campaignId"`
	TemplateID int64  `json:"templateId"`
	MessageID  string `json:"messageId"`
}

func AttributionInfoFromDict(dict map[string]any) *AttributionInfo {
	return &AttributionInfo{
		CampaignID: cast.ToInt64(dict["campaignId"]),
		TemplateID: cast.ToInt64(dict["templateId"]),
		MessageID:  cast.ToString(dict["messageId"]),
	}
}

func (a *AttributionInfo) ToDict() map[string]any {
	return map[string]any{
		"campaignId": a.CampaignID,
		"templateId": a.TemplateID,
		"messageId":  a.MessageID,
	}
}

type CommerceItem struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

func (i CommerceItem) ToDict() map[string]any {
	return map[string]any{
		"id":       i.ID,
		"name":     i.Name,
		"price":    i.Price,
		"quantity": i.Quantity,
	}
}

type InAppMessage struct {
	MessageID     string         `json:"messageId"`
	CampaignID    int64          `json:"campaignId"`
	TriggerType   string         `json:"triggerType,omitempty"`
	Priority      float64        `json:"priorityLevel,omitempty"`
	SaveToInbox   bool           `json:"saveToInbox"`
	Read          bool           `json:"read"`
	CustomPayload map[string]any `json:"customPayload,omitempty"`
}

func InAppMessageFromDict(dict map[string]any) InAppMessage {
	msg := InAppMessage{
		MessageID:   cast.ToString(dict["messageId"]),
		CampaignID:  cast.ToInt64(dict["campaignId"]),
		TriggerType: cast.ToString(nestedDict(dict, "trigger")["type"]),
		Priority:    cast.ToFloat64(dict["priorityLevel"]),
		SaveToInbox: cast.ToBool(dict["saveToInbox"]),
		Read:        cast.ToBool(dict["read"]),
	}
	if payload, ok := dict["customPayload"]; ok && payload != nil {
		msg.CustomPayload = cast.ToStringMap(payload)
	}
	return msg
}

func optionalString(dict map[string]any, key string) *string {
	v, ok := dict[key]
	if !ok || v == nil {
		return nil
	}
	s := cast.ToString(v)
	return &s
}

func nestedDict(dict map[string]any, key string) map[string]any {
	v, ok := dict[key]
	if !ok || v == nil {
		return map[string]any{}
	}
	return cast.ToStringMap(v)
}

func commerceItemDicts(items []CommerceItem) []any {
	dicts := make([]any, 0, len(items))
	for _, item := range items {
		dicts = append(dicts, item.ToDict())
	}
	return dicts
}
