package subscription

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Sealer encrypts VAPID private keys at rest.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(sealed string) (string, error)
}

type Store struct {
	DB     *sql.DB
	sealer Sealer
	logger *slog.Logger
}

// NewStore keeps VAPID keys in plaintext when sealer is nil.
func NewStore(db *sql.DB, sealer Sealer, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store := &Store{DB: db, sealer: sealer, logger: logger}
	if err := store.createTables(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS subscriptions (
			id TEXT PRIMARY KEY DEFAULT (lower(hex(randomblob(16)))),
			topic TEXT NOT NULL,
			channel TEXT NOT NULL,
			telegramChatId TEXT,
			pushEndpoint TEXT,
			p256dh TEXT,
			auth TEXT,
			vapidPrivateKey TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_subscriptions_topic ON subscriptions(topic)`,
	}

	for _, query := range queries {
		if _, err := s.DB.Exec(query); err != nil {
			return fmt.Errorf("failed to create subscription tables: %w", err)
		}
	}
	return nil
}

const selectColumns = `SELECT id, topic, channel, telegramChatId, pushEndpoint, p256dh, auth, vapidPrivateKey FROM subscriptions`

// AddSubscription stores sub and returns its generated id.
func (s *Store) AddSubscription(ctx context.Context, sub Subscription) (string, error) {
	var telegramChatID, pushEndpoint, p256dh, auth, vapidPrivateKey *string

	if sub.Telegram != nil {
		telegramChatID = &sub.Telegram.ChatID
	}
	if sub.WebPush != nil {
		pushEndpoint = &sub.WebPush.Endpoint
		p256dh = optional(sub.WebPush.P256dh)
		auth = optional(sub.WebPush.Auth)
		vapidPrivateKey = optional(sub.WebPush.VapidPrivateKey)
	}

	if vapidPrivateKey != nil && s.sealer != nil {
		sealed, err := s.sealer.Seal(*vapidPrivateKey)
		if err != nil {
			return "", fmt.Errorf("failed to seal VAPID key: %w", err)
		}
		vapidPrivateKey = &sealed
	}

	var id string
	err := s.DB.QueryRowContext(ctx, `
		INSERT INTO subscriptions (topic, channel, telegramChatId, pushEndpoint, p256dh, auth, vapidPrivateKey)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id
	`, sub.Topic, sub.Channel, telegramChatID, pushEndpoint, p256dh, auth, vapidPrivateKey).Scan(&id)

	return id, err
}

func (s *Store) GetSubscriptions(ctx context.Context, topic string) ([]Subscription, error) {
	rows, err := s.DB.QueryContext(ctx, selectColumns+` WHERE topic = ? ORDER BY rowid`, topic)
	if err != nil {
		return nil, err
	}
	return s.collect(rows)
}

func (s *Store) ListAll(ctx context.Context) ([]Subscription, error) {
	rows, err := s.DB.QueryContext(ctx, selectColumns+` ORDER BY topic, rowid`)
	if err != nil {
		return nil, err
	}
	return s.collect(rows)
}

func (s *Store) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	sub, err := s.scanSubscription(s.DB.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// DeleteSubscription reports whether a subscription was removed.
func (s *Store) DeleteSubscription(ctx context.Context, id string) (bool, error) {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) DeleteSubscriptionsByChannel(ctx context.Context, channel Channel) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM subscriptions WHERE channel = ?`, channel)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) collect(rows *sql.Rows) ([]Subscription, error) {
	defer rows.Close()

	subscriptions := make([]Subscription, 0)
	for rows.Next() {
		sub, err := s.scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subscriptions = append(subscriptions, *sub)
	}
	return subscriptions, rows.Err()
}

func (s *Store) scanSubscription(row scanner) (*Subscription, error) {
	var sub Subscription
	var telegramChatID, pushEndpoint, p256dh, auth, vapidPrivateKey sql.NullString

	if err := row.Scan(&sub.ID, &sub.Topic, &sub.Channel, &telegramChatID, &pushEndpoint, &p256dh, &auth, &vapidPrivateKey); err != nil {
		return nil, err
	}

	if telegramChatID.Valid {
		sub.Telegram = &TelegramSubscription{ChatID: telegramChatID.String}
	}
	if pushEndpoint.Valid {
		sub.WebPush = &WebPushSubscription{
			Endpoint:        pushEndpoint.String,
			P256dh:          p256dh.String,
			Auth:            auth.String,
			VapidPrivateKey: s.openKey(sub.ID, vapidPrivateKey.String),
		}
	}
	return &sub, nil
}

// openKey leaves the key empty when it cannot be opened so the sender
// reports the subscription as needing re-registration.
func (s *Store) openKey(id, sealed string) string {
	if sealed == "" || s.sealer == nil {
		return sealed
	}
	key, err := s.sealer.Open(sealed)
	if err != nil {
		s.logger.Warn("Failed to open VAPID key, subscription needs re-registration", "subscriptionID", id, "error", err)
		return ""
	}
	return key
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
