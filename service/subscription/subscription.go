package subscription

type WebPushSubscription struct {
	Endpoint        string `json:"endpoint"`
	P256dh          string `json:"p256dh,omitempty"`
	Auth            string `json:"auth,omitempty"`
	VapidPrivateKey string `json:"-"`
}

func (w *WebPushSubscription) HasEncryption() bool {
	return w.P256dh != "" && w.Auth != "" && w.VapidPrivateKey != ""
}

type TelegramSubscription struct {
	ChatID string `json:"chatId"`
}

// Subscription routes notifications for one topic to one channel target.
// Topics are "url" for handled URLs or a custom action type.
type Subscription struct {
	ID       string                `json:"id"`
	Topic    string                `json:"topic"`
	Channel  Channel               `json:"channel"`
	WebPush  *WebPushSubscription  `json:"webPush,omitempty"`
	Telegram *TelegramSubscription `json:"telegram,omitempty"`
}
