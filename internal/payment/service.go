// Package payment sells tiers as one-time purchases. Checkout creates a
// pending payment and hands its reference to the processor; the processor's
// signed webhook settles it and adjusts the buyer's tier.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"careershift/internal/db"
	"careershift/internal/metrics"
)

var (
	ErrInvalidTier           = errors.New("tier is not purchasable")
	ErrAlreadyEntitled       = errors.New("already at or above this tier")
	ErrUserNotFound          = errors.New("user not found")
	ErrInvalidSignature      = errors.New("invalid signature")
	ErrInvalidPayload        = errors.New("invalid payload")
	ErrAmountMismatch        = errors.New("amount or currency does not match the payment")
	ErrNotFound              = errors.New("payment not found")
	ErrEventIgnored          = errors.New("event ignored")
	ErrEventAlreadyProcessed = errors.New("event already processed")
)

// Event types sent by the processor.
const (
	EventSucceeded = "payment.succeeded"
	EventFailed    = "payment.failed"
	EventRefunded  = "payment.refunded"
)

// Event is the webhook body.
type Event struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Reference   string `json:"reference"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

type Config struct {
	WebhookSecret string
	CheckoutURL   string
	Currency      string
	// Prices maps each purchasable tier to its price in cents.
	Prices map[db.Tier]int64
}

// Checkout is what the client needs to send the buyer to the processor.
type Checkout struct {
	Reference   string  `json:"reference"`
	Tier        db.Tier `json:"tier"`
	AmountCents int64   `json:"amountCents"`
	Currency    string  `json:"currency"`
	URL         string  `json:"url"`
}

type Service struct {
	db  *gorm.DB
	cfg Config
	now func() time.Time
}

func NewService(conn *gorm.DB, cfg Config) *Service {
	cfg.Currency = strings.ToLower(cfg.Currency)
	return &Service{
		db:  conn,
		cfg: cfg,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Currency is the lower-case ISO code every price is charged in.
func (s *Service) Currency() string {
	return s.cfg.Currency
}

// Price returns the price of tier and whether it can be bought.
func (s *Service) Price(tier db.Tier) (int64, bool) {
	cents, ok := s.cfg.Prices[tier]
	return cents, ok && tier != db.TierFree && cents > 0
}

func (s *Service) Checkout(ctx context.Context, userID uint, tier db.Tier) (*Checkout, error) {
	amount, ok := s.Price(tier)
	if !ok {
		return nil, ErrInvalidTier
	}

	var user db.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user.Tier.Rank() >= tier.Rank() {
		return nil, ErrAlreadyEntitled
	}

	p := &db.Payment{
		UserID:      userID,
		Reference:   uuid.NewString(),
		Tier:        tier,
		AmountCents: amount,
		Currency:    s.cfg.Currency,
		Status:      db.PaymentPending,
		Metadata:    datatypes.JSONMap{"from_tier": string(user.Tier)},
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	link, err := s.checkoutLink(p)
	if err != nil {
		return nil, err
	}
	return &Checkout{
		Reference:   p.Reference,
		Tier:        tier,
		AmountCents: amount,
		Currency:    p.Currency,
		URL:         link,
	}, nil
}

func (s *Service) checkoutLink(p *db.Payment) (string, error) {
	u, err := url.Parse(s.cfg.CheckoutURL)
	if err != nil {
		return "", fmt.Errorf("parse checkout url: %w", err)
	}
	q := u.Query()
	q.Set("reference", p.Reference)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// List returns the user's payments, newest first.
func (s *Service) List(ctx context.Context, userID uint) ([]db.Payment, error) {
	var out []db.Payment
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&out).Error
	return out, err
}

// HandleWebhook verifies and applies one processor event. Redelivered
// events return ErrEventAlreadyProcessed and unknown types ErrEventIgnored;
// both should be acknowledged to the processor.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if err := Verify(s.cfg.WebhookSecret, payload, signature); err != nil {
		metrics.PaymentEvents.WithLabelValues("unknown", "invalid_signature").Inc()
		return err
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil || ev.ID == "" || ev.Reference == "" {
		metrics.PaymentEvents.WithLabelValues("unknown", "invalid_payload").Inc()
		return ErrInvalidPayload
	}

	err := s.apply(ctx, ev, payload)
	metrics.PaymentEvents.WithLabelValues(eventTypeLabel(ev.Type), outcome(err)).Inc()
	if err != nil && !errors.Is(err, ErrEventAlreadyProcessed) && !errors.Is(err, ErrEventIgnored) {
		zap.L().Warn("payment webhook rejected",
			zap.String("event_id", ev.ID), zap.String("type", ev.Type),
			zap.String("reference", ev.Reference), zap.Error(err))
	}
	return err
}

func (s *Service) apply(ctx context.Context, ev Event, payload []byte) error {
	switch ev.Type {
	case EventSucceeded, EventFailed, EventRefunded:
	default:
		return ErrEventIgnored
	}

	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		record := db.PaymentEvent{
			EventID:    ev.ID,
			Type:       ev.Type,
			Reference:  ev.Reference,
			ReceivedAt: now,
			Payload:    datatypes.JSON(payload),
		}
		if err := tx.Create(&record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrEventAlreadyProcessed
			}
			return fmt.Errorf("record payment event: %w", err)
		}

		var p db.Payment
		if err := tx.Where("reference = ?", ev.Reference).First(&p).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		switch ev.Type {
		case EventSucceeded:
			return s.succeed(tx, &p, ev, now)
		case EventFailed:
			if p.Status != db.PaymentPending {
				return nil
			}
			return tx.Model(&p).Update("status", db.PaymentFailed).Error
		default:
			return s.refund(tx, &p, now)
		}
	})
}

func (s *Service) succeed(tx *gorm.DB, p *db.Payment, ev Event, now time.Time) error {
	if p.Status == db.PaymentSucceeded {
		return nil
	}
	if p.Status == db.PaymentRefunded {
		return ErrEventIgnored
	}
	if ev.AmountCents != p.AmountCents || !strings.EqualFold(ev.Currency, p.Currency) {
		return ErrAmountMismatch
	}
	if err := tx.Model(p).Updates(map[string]any{"status": db.PaymentSucceeded, "paid_at": now}).Error; err != nil {
		return err
	}

	var user db.User
	if err := tx.First(&user, p.UserID).Error; err != nil {
		return fmt.Errorf("load buyer: %w", err)
	}
	if user.Tier.Rank() >= p.Tier.Rank() {
		return nil
	}
	zap.L().Info("tier upgraded",
		zap.Uint("user_id", user.ID), zap.String("from", string(user.Tier)), zap.String("to", string(p.Tier)))
	return tx.Model(&user).Update("tier", p.Tier).Error
}

// refund recomputes the buyer's tier from the purchases that still stand.
func (s *Service) refund(tx *gorm.DB, p *db.Payment, now time.Time) error {
	if p.Status != db.PaymentSucceeded {
		return nil
	}
	if err := tx.Model(p).Updates(map[string]any{"status": db.PaymentRefunded, "refunded_at": now}).Error; err != nil {
		return err
	}

	var standing []db.Payment
	if err := tx.Where("user_id = ? AND status = ?", p.UserID, db.PaymentSucceeded).Find(&standing).Error; err != nil {
		return err
	}
	tier := db.TierFree
	for _, sp := range standing {
		if sp.Tier.Rank() > tier.Rank() {
			tier = sp.Tier
		}
	}
	zap.L().Info("tier recomputed after refund", zap.Uint("user_id", p.UserID), zap.String("tier", string(tier)))
	return tx.Model(&db.User{}).Where("id = ?", p.UserID).Update("tier", tier).Error
}

func eventTypeLabel(t string) string {
	switch t {
	case EventSucceeded, EventFailed, EventRefunded:
		return t
	}
	return "other"
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, ErrEventAlreadyProcessed):
		return "duplicate"
	case errors.Is(err, ErrEventIgnored):
		return "ignored"
	case errors.Is(err, ErrAmountMismatch):
		return "amount_mismatch"
	case errors.Is(err, ErrNotFound):
		return "unknown_reference"
	}
	return "error"
}
