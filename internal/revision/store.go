package revision

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"careershift/internal/db"
)

// Filter narrows Find. Zero fields match everything.
type Filter struct {
	UserID       uint
	Statuses     []db.RevisionStatus
	ExpiresAfter time.Time
	// Oldest returns the earliest requests first; the default is newest first.
	Oldest bool
}

// Changes is the set of columns a transition writes.
type Changes struct {
	Status        db.RevisionStatus
	RespondedAt   *time.Time
	AdminResponse *string
}

// Store persists revision requests.
type Store interface {
	Get(ctx context.Context, id string) (*db.RevisionRequest, error)
	Find(ctx context.Context, f Filter) ([]db.RevisionRequest, error)

	// Create inserts req, first expiring the owner's requests that are
	// still marked active but ended at or before now. It returns
	// ErrActiveRequest when the owner already holds an active request.
	Create(ctx context.Context, req *db.RevisionRequest, now time.Time) error

	// Update applies ch to the request with id when its status is one of
	// from (any status when from is empty), and reports whether a row
	// changed.
	Update(ctx context.Context, id string, from []db.RevisionStatus, ch Changes) (bool, error)

	// ExpireBefore moves every PENDING or APPROVED request whose expiry is
	// before now to EXPIRED.
	ExpireBefore(ctx context.Context, now time.Time) (int64, error)
}

// TierLookup reads a user's current tier.
type TierLookup interface {
	// UserTier returns ErrUserNotFound for unknown users.
	UserTier(ctx context.Context, userID uint) (db.Tier, error)
}

var activeStatuses = []db.RevisionStatus{db.RevisionPending, db.RevisionApproved}

// GormStore is the GORM-backed Store.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(conn *gorm.DB) *GormStore {
	return &GormStore{db: conn}
}

func (s *GormStore) Get(ctx context.Context, id string) (*db.RevisionRequest, error) {
	var req db.RevisionRequest
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

func (s *GormStore) Find(ctx context.Context, f Filter) ([]db.RevisionRequest, error) {
	q := s.db.WithContext(ctx).Model(&db.RevisionRequest{})
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN ?", f.Statuses)
	}
	if !f.ExpiresAfter.IsZero() {
		q = q.Where("expires_at > ?", f.ExpiresAfter)
	}
	if f.Oldest {
		q = q.Order("requested_at asc")
	} else {
		q = q.Order("requested_at desc")
	}

	var out []db.RevisionRequest
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GormStore) Create(ctx context.Context, req *db.RevisionRequest, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&db.RevisionRequest{}).
			Where("active_slot = ? AND expires_at <= ?", req.UserID, now).
			Updates(map[string]any{"status": db.RevisionExpired, "active_slot": nil}).Error; err != nil {
			return err
		}
		if err := tx.Create(req).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrActiveRequest
			}
			return err
		}
		return nil
	})
}

func (s *GormStore) Update(ctx context.Context, id string, from []db.RevisionStatus, ch Changes) (bool, error) {
	updates := map[string]any{"status": ch.Status}
	if !ch.Status.Active() {
		updates["active_slot"] = nil
	}
	if ch.RespondedAt != nil {
		updates["responded_at"] = *ch.RespondedAt
	}
	if ch.AdminResponse != nil {
		updates["admin_response"] = *ch.AdminResponse
	}

	q := s.db.WithContext(ctx).Model(&db.RevisionRequest{}).Where("id = ?", id)
	if len(from) > 0 {
		q = q.Where("status IN ?", from)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) ExpireBefore(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Model(&db.RevisionRequest{}).
		Where("status IN ? AND expires_at < ?", activeStatuses, now).
		Updates(map[string]any{"status": db.RevisionExpired, "active_slot": nil})
	return res.RowsAffected, res.Error
}

// GormTiers reads tiers from the users table.
type GormTiers struct {
	db *gorm.DB
}

func NewGormTiers(conn *gorm.DB) *GormTiers {
	return &GormTiers{db: conn}
}

func (t *GormTiers) UserTier(ctx context.Context, userID uint) (db.Tier, error) {
	var user db.User
	if err := t.db.WithContext(ctx).Select("id", "tier").First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return user.Tier, nil
}
