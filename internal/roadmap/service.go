// Package roadmap generates career transition plans with a language model and
// keeps the ones signed-in users generate.
package roadmap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"careershift/internal/db"
	"careershift/internal/metrics"
)

var (
	ErrNotFound = errors.New("roadmap not found")
	// ErrUnavailable is returned by Generate when no generator is configured.
	ErrUnavailable = errors.New("roadmap generation is not configured")
)

type Service struct {
	db  *gorm.DB
	gen Generator
}

// NewService accepts a nil gen; stored roadmaps stay readable and Generate
// returns ErrUnavailable.
func NewService(conn *gorm.DB, gen Generator) *Service {
	return &Service{db: conn, gen: gen}
}

// Generate validates in, asks the model for a roadmap sized to the caller's
// tier and saves it. A nil user is an anonymous caller: the roadmap is built
// at FREE and returned without being saved (its ID is zero).
func (s *Service) Generate(ctx context.Context, user *db.User, in Input) (*db.Roadmap, error) {
	if s.gen == nil {
		return nil, ErrUnavailable
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	tier := db.TierFree
	if user != nil && user.Tier.Valid() {
		tier = user.Tier
	}

	start := time.Now()
	content, err := s.gen.Generate(ctx, BuildPrompt(in, tier))
	metrics.RoadmapGenerationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrEmptyResponse) {
			outcome = "empty"
		}
		metrics.RoadmapGenerations.WithLabelValues(string(tier), outcome).Inc()
		return nil, err
	}
	metrics.RoadmapGenerations.WithLabelValues(string(tier), "ok").Inc()

	snapshot, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode roadmap input: %w", err)
	}
	rm := &db.Roadmap{
		CreatedAt:   time.Now().UTC(),
		Title:       in.Title(),
		CurrentRole: in.CurrentRole,
		TargetRole:  in.TargetRole,
		Tier:        tier,
		Model:       s.gen.Model(),
		Input:       datatypes.JSON(snapshot),
		Content:     content,
	}
	if user == nil {
		return rm, nil
	}

	rm.UserID = user.ID
	if err := s.db.WithContext(ctx).Create(rm).Error; err != nil {
		return nil, fmt.Errorf("save roadmap: %w", err)
	}
	zap.L().Info("roadmap generated",
		zap.Uint("user_id", user.ID), zap.Uint("roadmap_id", rm.ID), zap.String("tier", string(tier)))
	return rm, nil
}

// List returns the user's roadmaps, newest first. Content is omitted.
func (s *Service) List(ctx context.Context, userID uint) ([]db.Roadmap, error) {
	var out []db.Roadmap
	err := s.db.WithContext(ctx).
		Omit("content").
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

// CanGenerate reports whether a generator is configured.
func (s *Service) CanGenerate() bool {
	return s.gen != nil
}

// Get returns ErrNotFound for roadmaps that do not exist or that belong to
// someone else.
func (s *Service) Get(ctx context.Context, userID, id uint) (*db.Roadmap, error) {
	var rm db.Roadmap
	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&rm).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rm, nil
}

func (s *Service) Delete(ctx context.Context, userID, id uint) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&db.Roadmap{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DecodeInput reads a stored input snapshot back.
func DecodeInput(raw datatypes.JSON) (Input, error) {
	var in Input
	if len(raw) == 0 {
		return in, nil
	}
	err := json.Unmarshal(raw, &in)
	return in, err
}
