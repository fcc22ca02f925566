package db

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RateLimitStore keeps fixed-window counters in the rate_limit_entries
// table so every instance behind a load balancer sees the same counts.
type RateLimitStore struct {
	db *gorm.DB
}

func NewRateLimitStore(db *gorm.DB) *RateLimitStore {
	return &RateLimitStore{db: db}
}

// Increment bumps the live window for identifier, or starts a new one with
// count 1 when none is live at now. The bump is a single INSERT ... ON
// CONFLICT statement, so concurrent callers on different instances serialize
// on the row. The read-back runs in the same transaction while the row lock
// is held, so each caller sees its own count.
func (s *RateLimitStore) Increment(ctx context.Context, identifier string, window time.Duration, now time.Time) (int, time.Time, error) {
	fresh := RateLimitEntry{Identifier: identifier, Count: 1, ResetAt: now.Add(window), UpdatedAt: now}

	const live = "rate_limit_entries.reset_at > ?"
	var entry RateLimitEntry
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "identifier"}},
			DoUpdates: clause.Assignments(map[string]any{
				"count":      gorm.Expr("CASE WHEN "+live+" THEN rate_limit_entries.count + 1 ELSE 1 END", now),
				"reset_at":   gorm.Expr("CASE WHEN "+live+" THEN rate_limit_entries.reset_at ELSE ? END", now, fresh.ResetAt),
				"updated_at": now,
			}),
		}).Create(&fresh).Error; err != nil {
			return err
		}
		return tx.Where("identifier = ?", identifier).First(&entry).Error
	})
	if err != nil {
		return 0, time.Time{}, err
	}
	return entry.Count, entry.ResetAt, nil
}

// Prune deletes counters whose window ended before the cutoff.
func (s *RateLimitStore) Prune(ctx context.Context, before time.Time) (int, error) {
	res := s.db.WithContext(ctx).Where("reset_at < ?", before).Delete(&RateLimitEntry{})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}
