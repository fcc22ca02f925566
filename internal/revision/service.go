// Package revision manages premium users' requests to have a roadmap redone.
//
// A request moves PENDING -> APPROVED -> COMPLETED, or PENDING -> REJECTED
// when an admin declines it. PENDING and APPROVED requests stop counting as
// active three months after they were filed; they read as expired from then
// on and the sweep eventually persists EXPIRED. A user holds at most one
// active request at a time.
package revision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"careershift/internal/db"
	"careershift/internal/metrics"
)

const (
	// ValidityMonths is how long a request stays active after it was filed.
	ValidityMonths = 3
	// MinReasonLength counts runes after trimming.
	MinReasonLength = 10
)

// Eligibility says whether a user may file a new request. Reason is one of
// ErrUserNotFound, ErrPremiumOnly or ErrActiveRequest when Eligible is false.
type Eligibility struct {
	Eligible bool
	Reason   error
}

// View is a request as shown to callers, with expiry derived at read time.
type View struct {
	db.RevisionRequest
	IsExpired bool `json:"isExpired"`
}

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

func ParseAction(s string) (Action, bool) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionApprove, ActionReject:
		return a, true
	}
	return "", false
}

func (a Action) target() (db.RevisionStatus, bool) {
	switch a {
	case ActionApprove:
		return db.RevisionApproved, true
	case ActionReject:
		return db.RevisionRejected, true
	}
	return "", false
}

// CreateParams are the inputs of Create. OriginalInput is serialized as JSON
// and stored untouched.
type CreateParams struct {
	UserID        uint
	RoadmapID     *uint
	OriginalInput any
	Reason        string
}

type Service struct {
	store Store
	tiers TierLookup
	now   func() time.Time
}

type Option func(*Service)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func NewService(store Store, tiers TierLookup, opts ...Option) *Service {
	s := &Service{
		store: store,
		tiers: tiers,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckEligibility only returns an error for lookup failures; ineligibility
// is reported in the result.
func (s *Service) CheckEligibility(ctx context.Context, userID uint) (Eligibility, error) {
	tier, err := s.tiers.UserTier(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return Eligibility{Reason: ErrUserNotFound}, nil
	}
	if err != nil {
		return Eligibility{}, fmt.Errorf("look up tier: %w", err)
	}
	if tier != db.TierPremium {
		return Eligibility{Reason: ErrPremiumOnly}, nil
	}

	active, err := s.store.Find(ctx, Filter{
		UserID:       userID,
		Statuses:     activeStatuses,
		ExpiresAfter: s.now(),
	})
	if err != nil {
		return Eligibility{}, fmt.Errorf("find active requests: %w", err)
	}
	if len(active) > 0 {
		return Eligibility{Reason: ErrActiveRequest}, nil
	}
	return Eligibility{Eligible: true}, nil
}

// Create files a PENDING request. Ineligible users get the eligibility
// reason back as the error.
func (s *Service) Create(ctx context.Context, p CreateParams) (*db.RevisionRequest, error) {
	reason := strings.TrimSpace(p.Reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	if utf8.RuneCountInString(reason) < MinReasonLength {
		return nil, ErrReasonTooShort
	}

	elig, err := s.CheckEligibility(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if !elig.Eligible {
		return nil, elig.Reason
	}

	snapshot, err := json.Marshal(p.OriginalInput)
	if err != nil {
		return nil, fmt.Errorf("encode original input: %w", err)
	}

	now := s.now()
	slot := p.UserID
	req := &db.RevisionRequest{
		ID:            uuid.NewString(),
		UserID:        p.UserID,
		RoadmapID:     p.RoadmapID,
		OriginalInput: datatypes.JSON(snapshot),
		Reason:        reason,
		Status:        db.RevisionPending,
		RequestedAt:   now,
		ExpiresAt:     now.AddDate(0, ValidityMonths, 0),
		ActiveSlot:    &slot,
	}
	if err := s.store.Create(ctx, req, now); err != nil {
		if errors.Is(err, ErrActiveRequest) {
			return nil, err
		}
		return nil, fmt.Errorf("create revision request: %w", err)
	}
	metrics.RevisionTransitions.WithLabelValues(string(db.RevisionPending)).Inc()
	return req, nil
}

// Respond approves or rejects a PENDING request. Repeating the action that
// already applied returns the request unchanged.
func (s *Service) Respond(ctx context.Context, id string, action Action, response string) (*db.RevisionRequest, error) {
	target, ok := action.target()
	if !ok {
		return nil, ErrInvalidAction
	}
	response = strings.TrimSpace(response)
	if response == "" {
		return nil, ErrResponseRequired
	}

	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status == target {
		return req, nil
	}
	if req.Status != db.RevisionPending {
		return nil, ErrNotPending
	}
	now := s.now()
	if !req.ExpiresAt.After(now) {
		return nil, ErrExpired
	}

	updated, err := s.store.Update(ctx, id, []db.RevisionStatus{db.RevisionPending}, Changes{
		Status:        target,
		RespondedAt:   &now,
		AdminResponse: &response,
	})
	if err != nil {
		return nil, fmt.Errorf("update revision request: %w", err)
	}
	if !updated {
		// Another admin got there first.
		return nil, ErrNotPending
	}

	req.Status = target
	req.RespondedAt = &now
	req.AdminResponse = response
	if !target.Active() {
		req.ActiveSlot = nil
	}
	metrics.RevisionTransitions.WithLabelValues(string(target)).Inc()
	return req, nil
}

// Complete marks a request COMPLETED regardless of its current status.
func (s *Service) Complete(ctx context.Context, id string) error {
	updated, err := s.store.Update(ctx, id, nil, Changes{Status: db.RevisionCompleted})
	if err != nil {
		return fmt.Errorf("complete revision request: %w", err)
	}
	if !updated {
		return ErrNotFound
	}
	metrics.RevisionTransitions.WithLabelValues(string(db.RevisionCompleted)).Inc()
	return nil
}

// MarkExpired persists EXPIRED for every active request past its expiry and
// returns how many changed.
func (s *Service) MarkExpired(ctx context.Context) (int64, error) {
	n, err := s.store.ExpireBefore(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("expire revision requests: %w", err)
	}
	if n > 0 {
		metrics.RevisionTransitions.WithLabelValues(string(db.RevisionExpired)).Add(float64(n))
	}
	return n, nil
}

// ListForUser returns the user's requests, newest first.
func (s *Service) ListForUser(ctx context.Context, userID uint) ([]View, error) {
	reqs, err := s.store.Find(ctx, Filter{UserID: userID})
	if err != nil {
		return nil, err
	}
	return s.views(reqs), nil
}

// ListPending returns PENDING requests, oldest first, for the admin queue.
func (s *Service) ListPending(ctx context.Context) ([]View, error) {
	reqs, err := s.store.Find(ctx, Filter{Statuses: []db.RevisionStatus{db.RevisionPending}, Oldest: true})
	if err != nil {
		return nil, err
	}
	return s.views(reqs), nil
}

// ListAll returns every request, newest first, optionally narrowed to one
// stored status.
func (s *Service) ListAll(ctx context.Context, status db.RevisionStatus) ([]View, error) {
	f := Filter{}
	if status != "" {
		f.Statuses = []db.RevisionStatus{status}
	}
	reqs, err := s.store.Find(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.views(reqs), nil
}

// Get returns one request with its derived expiry.
func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	v := s.view(*req)
	return &v, nil
}

// UserOwns reports whether the request exists and belongs to userID. Lookup
// failures read as not owned.
func (s *Service) UserOwns(ctx context.Context, userID uint, id string) bool {
	req, err := s.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			zap.L().Warn("revision ownership lookup failed", zap.String("id", id), zap.Error(err))
		}
		return false
	}
	return req.UserID == userID
}

// IsExpired applies the read-time rule that holds whether or not the sweep
// has run. COMPLETED work is never reported expired.
func IsExpired(req *db.RevisionRequest, now time.Time) bool {
	return req.Status != db.RevisionCompleted && req.ExpiresAt.Before(now)
}

func (s *Service) view(req db.RevisionRequest) View {
	return View{RevisionRequest: req, IsExpired: IsExpired(&req, s.now())}
}

func (s *Service) views(reqs []db.RevisionRequest) []View {
	out := make([]View, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, s.view(r))
	}
	return out
}
