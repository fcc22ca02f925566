package revision_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"careershift/internal/db"
	"careershift/internal/db/dbtest"
	"careershift/internal/revision"
)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func setup(t *testing.T) (*revision.Service, *gorm.DB, *clock) {
	t.Helper()
	conn := dbtest.New(t)
	c := &clock{now: time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)}
	svc := revision.NewService(revision.NewGormStore(conn), revision.NewGormTiers(conn), revision.WithClock(c.Now))
	return svc, conn, c
}

func file(t *testing.T, svc *revision.Service, userID uint) *db.RevisionRequest {
	t.Helper()
	req, err := svc.Create(context.Background(), revision.CreateParams{
		UserID:        userID,
		OriginalInput: map[string]any{"targetRole": "Data Engineer"},
		Reason:        "The plan skips cloud certifications entirely.",
	})
	require.NoError(t, err)
	return req
}

func stored(t *testing.T, conn *gorm.DB, id string) db.RevisionRequest {
	t.Helper()
	var r db.RevisionRequest
	require.NoError(t, conn.Where("id = ?", id).First(&r).Error)
	return r
}

func TestCheckEligibility(t *testing.T) {
	svc, conn, _ := setup(t)
	ctx := context.Background()
	free := dbtest.CreateUser(t, conn, "free@example.com", db.TierFree)
	pro := dbtest.CreateUser(t, conn, "pro@example.com", db.TierProfessional)
	premium := dbtest.CreateUser(t, conn, "premium@example.com", db.TierPremium)

	tests := []struct {
		name   string
		userID uint
		reason error
	}{
		{"unknown user", 9999, revision.ErrUserNotFound},
		{"free tier", free.ID, revision.ErrPremiumOnly},
		{"professional tier", pro.ID, revision.ErrPremiumOnly},
		{"premium tier", premium.ID, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			elig, err := svc.CheckEligibility(ctx, tt.userID)
			require.NoError(t, err)
			assert.Equal(t, tt.reason == nil, elig.Eligible)
			assert.ErrorIs(t, elig.Reason, tt.reason)
		})
	}
}

func TestCreate(t *testing.T) {
	svc, conn, c := setup(t)
	user := dbtest.CreateUser(t, conn, "premium@example.com", db.TierPremium)

	req := file(t, svc, user.ID)
	assert.Len(t, req.ID, 36)
	assert.Equal(t, db.RevisionPending, req.Status)
	assert.True(t, req.RequestedAt.Equal(c.now))
	assert.True(t, req.ExpiresAt.Equal(time.Date(2026, 4, 15, 10, 0, 0, 0, time.UTC)))
	assert.Nil(t, req.RespondedAt)

	row := stored(t, conn, req.ID)
	assert.Equal(t, user.ID, row.UserID)
	assert.Equal(t, "The plan skips cloud certifications entirely.", row.Reason)
	var input map[string]any
	require.NoError(t, json.Unmarshal(row.OriginalInput, &input))
	assert.Equal(t, "Data Engineer", input["targetRole"])
	require.NotNil(t, row.ActiveSlot)
	assert.Equal(t, user.ID, *row.ActiveSlot)
}

func TestCreateValidatesReason(t *testing.T) {
	svc, conn, _ := setup(t)
	user := dbtest.CreateUser(t, conn, "premium@example.com", db.TierPremium)
	ctx := context.Background()

	_, err := svc.Create(ctx, revision.CreateParams{UserID: user.ID, Reason: "   "})
	assert.ErrorIs(t, err, revision.ErrReasonRequired)

	_, err = svc.Create(ctx, revision.CreateParams{UserID: user.ID, Reason: "  too short "})
	assert.ErrorIs(t, err, revision.ErrReasonTooShort)
}

func TestCreateRequiresPremium(t *testing.T) {
	svc, conn, _ := setup(t)
	user := dbtest.CreateUser(t, conn, "pro@example.com", db.TierProfessional)

	_, err := svc.Create(context.Background(), revision.CreateParams{UserID: user.ID, Reason: "Please redo the second phase."})
	assert.ErrorIs(t, err, revision.ErrPremiumOnly)
	assert.True(t, revision.IsIneligible(err))
}

func TestOneActiveRequestPerUser(t *testing.T) {
	svc, conn, _ := setup(t)
	ctx := context.Background()
	user := dbtest.CreateUser(t, conn, "premium@example.com", db.TierPremium)
	other := dbtest.CreateUser(t, conn, "other@example.com", db.TierPremium)

	first := file(t, svc, user.ID)
	_, err := svc.Create(ctx, revision.CreateParams{UserID: user.ID, Reason: "A second request for the same user."})
	assert.ErrorIs(t, err, revision.ErrActiveRequest)

	elig, err := svc.CheckEligibility(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, elig.Eligible)
	assert.ErrorIs(t, elig.Reason, revision.ErrActiveRequest)

	// Approval keeps the slot taken.
	_, err = svc.Respond(ctx, first.ID, revision.ActionApprove, "Will regenerate this week.")
	require.NoError(t, err)
	_, err = svc.Create(ctx, revision.CreateParams{UserID: user.ID, Reason: "A second request for the same user."})
	assert.ErrorIs(t, err, revision.ErrActiveRequest)

	// Other users are unaffected.
	file(t, svc, other.ID)
}

func TestStoreEnforcesSingleActiveSlot(t *testing.T) {
	conn := dbtest.New(t)
	store := revision.NewGormStore(conn)
	user := dbtest.CreateUser(t, conn, "premium@example.com", db.TierPremium)
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)

	newReq := func(id string) *db.RevisionRequest {
		slot := user.ID
		return &db.RevisionRequest{
			ID: id, UserID: user.ID, Reason: "concurrent create", Status: db.RevisionPending,
			RequestedAt: now, ExpiresAt: now.AddDate(0, 3, 0), ActiveSlot: &slot,
		}
	}

	require.NoError(t, store.Create(context.Background(), newReq("00000000-0000-0000-0000-000000000001"), now))
	err := store.Create(context.Background(), newReq("00000000-0000-0000-0000-000000000002"), now)
	assert.ErrorIs(t, err, revision.ErrActiveRequest)
}

func TestRejectFreesSlot(t *testing.T) {
	svc, conn, _ := setup(t)
	ctx := context.Background()
	user := dbtest.CreateUser(t, conn, "premium@example.com", db.TierPremium)

	first := file(t, svc, user.ID)
	got, err := svc.Respond(ctx, first.ID, revision.ActionReject, "The roadmap already covers this.")
	require.NoError(t, err)
	assert.Equal(t, db.RevisionRejected, got.Status)
	assert.Equal(t, "The roadmap already covers this.", got.AdminResponse)
	require.NotNil(t, got.RespondedAt)

	row := stored(t, conn, first.ID)
	assert.Nil(t, row.ActiveSlot)
	assert.Equal(t, db.RevisionRejected, row.Status)

	file(t, svc, user.ID)
}

func TestRespondGuards(t *testing.T) {
	svc, conn, c := setup(t)
	ctx := context.Background()
	user := dbtest.CreateUser(t, conn, "premium@example.com", db.TierPremium)
	req := file(t, svc, user.ID)

	_, err := svc.Respond(ctx, req.ID, revision.ActionApprove, "  ")
	assert.ErrorIs(t, err, revision.ErrResponseRequired)

	_, err = svc.Respond(ctx, req.ID, revision.Action("escalate"), "ok")
	assert.ErrorIs(t, err, revision.ErrInvalidAction)

	_, err = svc.Respond(ctx, "missing", revision.ActionApprove, "ok")
	assert.ErrorIs(t, err, revision.ErrNotFound)

	approved, err := svc.Respond(ctx, req.ID, revision.ActionApprove, "Approved.")
	require.NoError(t, err)
	firstResponse := *approved.RespondedAt

	// Repeating the same action is a no-op.
	c.Advance(time.Hour)
	again, err := svc.Respond(ctx, req.ID, revision.ActionApprove, "Approved twice.")
	require.NoError(t, err)
	assert.Equal(t, "Approved.", again.AdminResponse)
	assert.True(t, again.RespondedAt.Equal(firstResponse))

	_, err = svc.Respond(ctx, req.ID, revision.ActionReject, "Changed my mind.")
	assert.ErrorIs(t, err, revision.ErrNotPending)
}

func TestRespondRefusesExpiredRequest(t *testing.T) {
	svc, conn, c := setup(t)
	user := dbtest.CreateUser(t, conn, "premium@example.com", db.TierPremium)
	req := file(t, svc, user.ID)

	c.Advance(100 * 24 * time.Hour)
	_, err := svc.Respond(context.Background(), req.ID, revision.ActionApprove, "Too late.")
	assert.ErrorIs(t, err, revision.ErrExpired)
}

func TestExpiryIsDerivedOnRead(t *testing.T) {
	svc, conn, c := setup(t)
	ctx := context.Background()
	user := dbtest.CreateUser(t, conn, "premium@example.com", db.TierPremium)
	first := file(t, svc, user.ID)

	views, err := svc.ListForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.False(t, views[0].IsExpired)

	c.Advance(91 * 24 * time.Hour)

	views, err = svc.ListForUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].IsExpired)
	assert.Equal(t, db.RevisionPending, views[0].Status, "stored status is untouched until the sweep")

	elig, err := svc.CheckEligibility(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, elig.Eligible)

	// Filing again retires the stale row in the same transaction.
	second := file(t, svc, user.ID)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, db.RevisionExpired, stored(t, conn, first.ID).Status)
}

func TestCompletedNeverExpires(t *testing.T) {
	svc, conn, c := setup(t)
	ctx := context.Background()
	user := dbtest.CreateUser(t, conn, "premium@example.com", db.TierPremium)
	req := file(t, svc, user.ID)

	_, err := svc.Respond(ctx, req.ID, revision.ActionApprove, "On it.")
	require.NoError(t, err)
	require.NoError(t, svc.Complete(ctx, req.ID))

	c.Advance(200 * 24 * time.Hour)
	n, err := svc.MarkExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	view, err := svc.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, db.RevisionCompleted, view.Status)
	assert.False(t, view.IsExpired)
	assert.Nil(t, stored(t, conn, req.ID).ActiveSlot)

	assert.ErrorIs(t, svc.Complete(ctx, "missing"), revision.ErrNotFound)
}

func TestMarkExpired(t *testing.T) {
	svc, conn, c := setup(t)
	ctx := context.Background()
	a := dbtest.CreateUser(t, conn, "a@example.com", db.TierPremium)
	b := dbtest.CreateUser(t, conn, "b@example.com", db.TierPremium)
	d := dbtest.CreateUser(t, conn, "d@example.com", db.TierPremium)

	pending := file(t, svc, a.ID)
	approved := file(t, svc, b.ID)
	_, err := svc.Respond(ctx, approved.ID, revision.ActionApprove, "Approved.")
	require.NoError(t, err)

	c.Advance(60 * 24 * time.Hour)
	fresh := file(t, svc, d.ID)

	c.Advance(40 * 24 * time.Hour)
	n, err := svc.MarkExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	assert.Equal(t, db.RevisionExpired, stored(t, conn, pending.ID).Status)
	assert.Equal(t, db.RevisionExpired, stored(t, conn, approved.ID).Status)
	assert.Nil(t, stored(t, conn, approved.ID).ActiveSlot)
	assert.Equal(t, db.RevisionPending, stored(t, conn, fresh.ID).Status)

	n, err = svc.MarkExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListPendingOldestFirst(t *testing.T) {
	svc, conn, c := setup(t)
	ctx := context.Background()
	a := dbtest.CreateUser(t, conn, "a@example.com", db.TierPremium)
	b := dbtest.CreateUser(t, conn, "b@example.com", db.TierPremium)
	x := dbtest.CreateUser(t, conn, "x@example.com", db.TierPremium)

	first := file(t, svc, a.ID)
	c.Advance(time.Minute)
	second := file(t, svc, b.ID)
	c.Advance(time.Minute)
	rejected := file(t, svc, x.ID)
	_, err := svc.Respond(ctx, rejected.ID, revision.ActionReject, "No.")
	require.NoError(t, err)

	pending, err := svc.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)

	all, err := svc.ListAll(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, rejected.ID, all[0].ID)

	onlyRejected, err := svc.ListAll(ctx, db.RevisionRejected)
	require.NoError(t, err)
	require.Len(t, onlyRejected, 1)
}

func TestUserOwns(t *testing.T) {
	svc, conn, _ := setup(t)
	ctx := context.Background()
	owner := dbtest.CreateUser(t, conn, "owner@example.com", db.TierPremium)
	other := dbtest.CreateUser(t, conn, "other@example.com", db.TierPremium)
	req := file(t, svc, owner.ID)

	assert.True(t, svc.UserOwns(ctx, owner.ID, req.ID))
	assert.False(t, svc.UserOwns(ctx, other.ID, req.ID))
	assert.False(t, svc.UserOwns(ctx, owner.ID, "does-not-exist"))
}

func TestParseAction(t *testing.T) {
	a, ok := revision.ParseAction(" Approve ")
	assert.True(t, ok)
	assert.Equal(t, revision.ActionApprove, a)

	_, ok = revision.ParseAction("delete")
	assert.False(t, ok)
}

func TestIsExpired(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	tests := []struct {
		status  db.RevisionStatus
		expires time.Time
		want    bool
	}{
		{db.RevisionPending, past, true},
		{db.RevisionApproved, past, true},
		{db.RevisionRejected, past, true},
		{db.RevisionExpired, past, true},
		{db.RevisionCompleted, past, false},
		{db.RevisionPending, future, false},
		{db.RevisionPending, now, false},
	}
	for _, tt := range tests {
		req := &db.RevisionRequest{Status: tt.status, ExpiresAt: tt.expires}
		assert.Equal(t, tt.want, revision.IsExpired(req, now), "%s expiring %s", tt.status, tt.expires)
	}
}
