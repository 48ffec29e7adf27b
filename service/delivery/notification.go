package delivery

// Notification is what a subscriber receives for one native callback.
// URL is the link the user opened, when there is one.
type Notification struct {
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
	Tag     string `json:"tag,omitempty"`
	URL     string `json:"url,omitempty"`
}
