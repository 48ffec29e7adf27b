package webpush

import (
	"crypto/ecdh"
	"crypto/elliptic"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/url"
	"strings"

	"pushbridge/service/subscription"
)

// Request is the body accepted when an operator registers a push target.
type Request struct {
	Topic           string `json:"topic"`
	PushEndpoint    string `json:"pushEndpoint"`
	P256dh          string `json:"p256dh,omitempty"`
	Auth            string `json:"auth,omitempty"`
	VapidPrivateKey string `json:"vapidPrivateKey,omitempty"`
}

// NewSubscription validates req and returns a subscription with its keys
// normalized to unpadded base64url. Encryption keys are all or nothing.
func NewSubscription(req Request) (*subscription.Subscription, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	keyCount := 0
	for _, k := range []string{req.P256dh, req.Auth, req.VapidPrivateKey} {
		if strings.TrimSpace(k) != "" {
			keyCount++
		}
	}
	if keyCount != 0 && keyCount != 3 {
		return nil, fmt.Errorf("p256dh, auth and vapidPrivateKey must be provided together")
	}
	encrypted := keyCount == 3

	if err := validatePushEndpoint(req.PushEndpoint, encrypted); err != nil {
		return nil, err
	}

	wp := &subscription.WebPushSubscription{Endpoint: strings.TrimSpace(req.PushEndpoint)}
	if encrypted {
		var err error
		if wp.P256dh, err = normalizeP256DH(req.P256dh); err != nil {
			return nil, err
		}
		if wp.Auth, err = normalizeAuthSecret(req.Auth); err != nil {
			return nil, err
		}
		if wp.VapidPrivateKey, err = normalizeVAPIDPrivateKey(req.VapidPrivateKey); err != nil {
			return nil, err
		}
	}

	return &subscription.Subscription{
		Topic:   topic,
		Channel: subscription.ChannelWebPush,
		WebPush: wp,
	}, nil
}

func validatePushEndpoint(raw string, requireHTTPS bool) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u == nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid pushEndpoint URL")
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("pushEndpoint must use http or https")
	}

	if requireHTTPS && u.Scheme != "https" {
		return fmt.Errorf("encrypted webpush endpoint must use https")
	}

	return nil
}

// normalizeKey decodes a padded or unpadded base64url key, runs check on the
// raw bytes and re-encodes it unpadded.
func normalizeKey(name, raw string, check func([]byte) error) (string, error) {
	decoded, err := decodeBase64URL(raw)
	if err != nil {
		return "", fmt.Errorf("invalid %s encoding", name)
	}
	if err := check(decoded); err != nil {
		return "", fmt.Errorf("invalid %s: %w", name, err)
	}
	return base64.RawURLEncoding.EncodeToString(decoded), nil
}

func normalizeVAPIDPrivateKey(raw string) (string, error) {
	return normalizeKey("VAPID private key", raw, func(b []byte) error {
		if len(b) != 32 {
			return fmt.Errorf("expected 32 bytes, got %d", len(b))
		}
		d := new(big.Int).SetBytes(b)
		if d.Sign() <= 0 || d.Cmp(elliptic.P256().Params().N) >= 0 {
			return fmt.Errorf("scalar out of range")
		}
		return nil
	})
}

// vapidPublicKey derives the uncompressed application server key that
// pairs with a normalized VAPID private key.
func vapidPublicKey(privateKey string) (string, error) {
	decoded, err := decodeBase64URL(privateKey)
	if err != nil {
		return "", fmt.Errorf("invalid VAPID private key encoding")
	}

	key, err := ecdh.P256().NewPrivateKey(decoded)
	if err != nil {
		return "", fmt.Errorf("invalid VAPID private key: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()), nil
}

func normalizeP256DH(raw string) (string, error) {
	return normalizeKey("p256dh", raw, func(b []byte) error {
		if len(b) != 65 || b[0] != 0x04 {
			return fmt.Errorf("expected an uncompressed P-256 point")
		}
		if _, err := ecdh.P256().NewPublicKey(b); err != nil {
			return fmt.Errorf("point not on curve")
		}
		return nil
	})
}

func normalizeAuthSecret(raw string) (string, error) {
	return normalizeKey("auth", raw, func(b []byte) error {
		if len(b) != 16 {
			return fmt.Errorf("expected 16 bytes, got %d", len(b))
		}
		return nil
	})
}

func decodeBase64URL(raw string) ([]byte, error) {
	key := strings.TrimSpace(raw)
	if decoded, err := base64.RawURLEncoding.DecodeString(key); err == nil {
		return decoded, nil
	}
	return base64.URLEncoding.DecodeString(key)
}
