package payment_test

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"careershift/internal/db"
	"careershift/internal/db/dbtest"
	"careershift/internal/payment"
)

const secret = "whsec_test"

func newService(t *testing.T) (*payment.Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.New(t)
	svc := payment.NewService(conn, payment.Config{
		WebhookSecret: secret,
		CheckoutURL:   "https://pay.example.com/checkout?src=app",
		Currency:      "USD",
		Prices: map[db.Tier]int64{
			db.TierProfessional: 2900,
			db.TierPremium:      7900,
		},
	})
	return svc, conn
}

func deliver(t *testing.T, svc *payment.Service, ev payment.Event) error {
	t.Helper()
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	return svc.HandleWebhook(context.Background(), body, payment.Sign(secret, body))
}

func tierOf(t *testing.T, conn *gorm.DB, id uint) db.Tier {
	t.Helper()
	var u db.User
	require.NoError(t, conn.First(&u, id).Error)
	return u.Tier
}

func TestVerify(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	sig := payment.Sign(secret, body)

	assert.NoError(t, payment.Verify(secret, body, sig))
	assert.NoError(t, payment.Verify(secret, body, "sha256="+sig))
	assert.ErrorIs(t, payment.Verify(secret, []byte(`{"id":"evt_2"}`), sig), payment.ErrInvalidSignature)
	assert.ErrorIs(t, payment.Verify("other", body, sig), payment.ErrInvalidSignature)
	assert.ErrorIs(t, payment.Verify(secret, body, "not-hex"), payment.ErrInvalidSignature)
	assert.ErrorIs(t, payment.Verify("", body, sig), payment.ErrInvalidSignature)
}

func TestCheckout(t *testing.T) {
	svc, conn := newService(t)
	user := dbtest.CreateUser(t, conn, "buyer@example.com", db.TierFree)

	co, err := svc.Checkout(context.Background(), user.ID, db.TierPremium)
	require.NoError(t, err)
	assert.Equal(t, int64(7900), co.AmountCents)
	assert.Equal(t, "usd", co.Currency)
	assert.Len(t, co.Reference, 36)

	u, err := url.Parse(co.URL)
	require.NoError(t, err)
	assert.Equal(t, co.Reference, u.Query().Get("reference"))
	assert.Equal(t, "app", u.Query().Get("src"))

	payments, err := svc.List(context.Background(), user.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, db.PaymentPending, payments[0].Status)
	assert.Equal(t, "FREE", payments[0].Metadata["from_tier"])
}

func TestCheckoutRejects(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	premium := dbtest.CreateUser(t, conn, "premium@example.com", db.TierPremium)
	pro := dbtest.CreateUser(t, conn, "pro@example.com", db.TierProfessional)

	_, err := svc.Checkout(ctx, pro.ID, db.TierFree)
	assert.ErrorIs(t, err, payment.ErrInvalidTier)

	_, err = svc.Checkout(ctx, pro.ID, db.TierProfessional)
	assert.ErrorIs(t, err, payment.ErrAlreadyEntitled)

	_, err = svc.Checkout(ctx, premium.ID, db.TierProfessional)
	assert.ErrorIs(t, err, payment.ErrAlreadyEntitled)

	_, err = svc.Checkout(ctx, 4242, db.TierPremium)
	assert.ErrorIs(t, err, payment.ErrUserNotFound)

	_, err = svc.Checkout(ctx, pro.ID, db.TierPremium)
	assert.NoError(t, err)
}

func TestWebhookSucceededUpgradesTier(t *testing.T) {
	svc, conn := newService(t)
	user := dbtest.CreateUser(t, conn, "buyer@example.com", db.TierFree)
	co, err := svc.Checkout(context.Background(), user.ID, db.TierProfessional)
	require.NoError(t, err)

	ev := payment.Event{ID: "evt_1", Type: payment.EventSucceeded, Reference: co.Reference, AmountCents: 2900, Currency: "USD"}
	require.NoError(t, deliver(t, svc, ev))
	assert.Equal(t, db.TierProfessional, tierOf(t, conn, user.ID))

	payments, err := svc.List(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, db.PaymentSucceeded, payments[0].Status)
	assert.NotNil(t, payments[0].PaidAt)

	// Redelivery is acknowledged without applying twice.
	assert.ErrorIs(t, deliver(t, svc, ev), payment.ErrEventAlreadyProcessed)

	var events int64
	require.NoError(t, conn.Model(&db.PaymentEvent{}).Count(&events).Error)
	assert.EqualValues(t, 1, events)
}

func TestWebhookRejectsBadEvents(t *testing.T) {
	svc, conn := newService(t)
	user := dbtest.CreateUser(t, conn, "buyer@example.com", db.TierFree)
	co, err := svc.Checkout(context.Background(), user.ID, db.TierPremium)
	require.NoError(t, err)

	body := []byte(`{"id":"evt_x","type":"payment.succeeded","reference":"` + co.Reference + `","amount_cents":7900,"currency":"usd"}`)
	assert.ErrorIs(t, svc.HandleWebhook(context.Background(), body, "deadbeef"), payment.ErrInvalidSignature)

	bad := []byte(`{"type":`)
	assert.ErrorIs(t, svc.HandleWebhook(context.Background(), bad, payment.Sign(secret, bad)), payment.ErrInvalidPayload)

	err = deliver(t, svc, payment.Event{ID: "evt_2", Type: payment.EventSucceeded, Reference: co.Reference, AmountCents: 100, Currency: "usd"})
	assert.ErrorIs(t, err, payment.ErrAmountMismatch)
	assert.Equal(t, db.TierFree, tierOf(t, conn, user.ID))

	err = deliver(t, svc, payment.Event{ID: "evt_3", Type: payment.EventSucceeded, Reference: "nope", AmountCents: 7900, Currency: "usd"})
	assert.ErrorIs(t, err, payment.ErrNotFound)

	err = deliver(t, svc, payment.Event{ID: "evt_4", Type: "customer.created", Reference: co.Reference})
	assert.ErrorIs(t, err, payment.ErrEventIgnored)

	// A rejected event is not recorded, so a corrected retry is applied.
	var events int64
	require.NoError(t, conn.Model(&db.PaymentEvent{}).Count(&events).Error)
	assert.Zero(t, events)

	require.NoError(t, deliver(t, svc, payment.Event{ID: "evt_2", Type: payment.EventSucceeded, Reference: co.Reference, AmountCents: 7900, Currency: "usd"}))
	assert.Equal(t, db.TierPremium, tierOf(t, conn, user.ID))
}

func TestWebhookFailedLeavesTier(t *testing.T) {
	svc, conn := newService(t)
	user := dbtest.CreateUser(t, conn, "buyer@example.com", db.TierFree)
	co, err := svc.Checkout(context.Background(), user.ID, db.TierPremium)
	require.NoError(t, err)

	require.NoError(t, deliver(t, svc, payment.Event{ID: "evt_f", Type: payment.EventFailed, Reference: co.Reference}))
	assert.Equal(t, db.TierFree, tierOf(t, conn, user.ID))

	payments, err := svc.List(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, db.PaymentFailed, payments[0].Status)
}

func TestWebhookRefundRecomputesTier(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	user := dbtest.CreateUser(t, conn, "buyer@example.com", db.TierFree)

	pro, err := svc.Checkout(ctx, user.ID, db.TierProfessional)
	require.NoError(t, err)
	require.NoError(t, deliver(t, svc, payment.Event{ID: "evt_1", Type: payment.EventSucceeded, Reference: pro.Reference, AmountCents: 2900, Currency: "usd"}))

	premium, err := svc.Checkout(ctx, user.ID, db.TierPremium)
	require.NoError(t, err)
	require.NoError(t, deliver(t, svc, payment.Event{ID: "evt_2", Type: payment.EventSucceeded, Reference: premium.Reference, AmountCents: 7900, Currency: "usd"}))
	require.Equal(t, db.TierPremium, tierOf(t, conn, user.ID))

	require.NoError(t, deliver(t, svc, payment.Event{ID: "evt_3", Type: payment.EventRefunded, Reference: premium.Reference}))
	assert.Equal(t, db.TierProfessional, tierOf(t, conn, user.ID))

	require.NoError(t, deliver(t, svc, payment.Event{ID: "evt_4", Type: payment.EventRefunded, Reference: pro.Reference}))
	assert.Equal(t, db.TierFree, tierOf(t, conn, user.ID))
}
