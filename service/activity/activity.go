package activity

import "time"

type Kind string

const (
	KindURL          Kind = "url"
	KindCustomAction Kind = "customAction"
)

// Record is one native callback delivered to the gateway's delegates.
type Record struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	URL        string    `json:"url,omitempty"`
	ActionType string    `json:"actionType,omitempty"`
	ActionData string    `json:"actionData,omitempty"`
	UserInput  string    `json:"userInput,omitempty"`
	Source     string    `json:"source"`
	Handled    bool      `json:"handled"`
	CreatedAt  time.Time `json:"createdAt"`
}
