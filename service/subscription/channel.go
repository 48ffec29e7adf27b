package subscription

import "fmt"

type Channel string

const (
	ChannelWebPush  Channel = "webpush"
	ChannelTelegram Channel = "telegram"
)

func (c Channel) String() string {
	return string(c)
}

func (c Channel) Label() string {
	switch c {
	case ChannelWebPush:
		return "WebPush"
	case ChannelTelegram:
		return "Telegram"
	default:
		return string(c)
	}
}

func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelWebPush, ChannelTelegram:
		return Channel(s), nil
	default:
		return "", fmt.Errorf("unknown channel %q", s)
	}
}
