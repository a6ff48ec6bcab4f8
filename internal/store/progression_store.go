package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"starchart/internal/models"
	"starchart/internal/validation"
)

// BadgeThresholds are the positive-event counts for badge levels 1, 2 and 3
var BadgeThresholds = []int{5, 15, 30}

// ProgressionSnapshot is the published state of a ProgressionStore
type ProgressionSnapshot struct {
	Version uint64
	Badges  []models.SkillBadge
	Moments []models.SpecialMoment
}

// ProgressionStore owns skill badges and special moments
type ProgressionStore struct {
	*Publisher[ProgressionSnapshot]

	mu        sync.Mutex
	repo      ProgressionRepository
	behaviors BehaviorLookup
	now       func() time.Time
}

// NewProgressionStore creates an empty store. Call LoadData to populate it.
func NewProgressionStore(repo ProgressionRepository, behaviors BehaviorLookup, now func() time.Time) *ProgressionStore {
	return &ProgressionStore{
		Publisher: NewPublisher(ProgressionSnapshot{}),
		repo:      repo,
		behaviors: behaviors,
		now:       clock(now),
	}
}

// LoadData reloads badges and moments and publishes once
func (s *ProgressionStore) LoadData(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *ProgressionStore) load(ctx context.Context) error {
	_, span := startSpan(ctx, "ProgressionStore.LoadData")
	defer span.End()

	badges, err := s.repo.SkillBadges()
	if err != nil {
		return fail(span, fmt.Errorf("failed to load badges: %w", err))
	}
	moments, err := s.repo.SpecialMoments()
	if err != nil {
		return fail(span, fmt.Errorf("failed to load special moments: %w", err))
	}
	s.publish(func(v uint64) ProgressionSnapshot {
		return ProgressionSnapshot{Version: v, Badges: badges, Moments: moments}
	})
	return nil
}

// BadgeLevel returns the level a positive-event count has earned, 0 for none
func BadgeLevel(count int) int {
	level := 0
	for i, threshold := range BadgeThresholds {
		if count >= threshold {
			level = i + 1
		}
	}
	return level
}

// EvaluateBadges awards any badge levels the child's ledger now supports.
// Badges are never revoked, so a shrinking ledger awards nothing.
func (s *ProgressionStore) EvaluateBadges(ctx context.Context, childID string) ([]models.SkillBadge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	var order []string
	for _, e := range s.behaviors.EventsForChild(childID) {
		bt, ok := s.behaviors.Type(e.BehaviorTypeID)
		if !ok || !bt.Category.IsPositive() || e.PointsApplied <= 0 {
			continue
		}
		if counts[bt.ID] == 0 {
			order = append(order, bt.ID)
		}
		counts[bt.ID]++
	}

	var awarded []models.SkillBadge
	now := s.now()
	for _, typeID := range order {
		held := 0
		if b, ok := s.Badge(childID, typeID); ok {
			held = b.Level
		}
		for level := held + 1; level <= BadgeLevel(counts[typeID]); level++ {
			badge := models.SkillBadge{
				ID:            models.NewID(),
				ChildID:       childID,
				Type:          typeID,
				Level:         level,
				BehaviorCount: counts[typeID],
				EarnedDate:    now,
			}
			if err := s.repo.AddSkillBadge(badge); err != nil {
				err = fmt.Errorf("failed to award badge: %w", err)
				if len(awarded) > 0 {
					err = errors.Join(err, s.load(ctx))
				}
				return awarded, err
			}
			awarded = append(awarded, badge)
		}
	}

	if len(awarded) == 0 {
		return nil, nil
	}
	return awarded, s.load(ctx)
}

// Badges returns every badge level the child has earned
func (s *ProgressionStore) Badges(childID string) []models.SkillBadge {
	var out []models.SkillBadge
	for _, b := range s.Snapshot().Badges {
		if b.ChildID == childID {
			out = append(out, b)
		}
	}
	return out
}

// Badge returns the child's highest badge for a behavior type
func (s *ProgressionStore) Badge(childID, typeID string) (models.SkillBadge, bool) {
	var best models.SkillBadge
	found := false
	for _, b := range s.Snapshot().Badges {
		if b.ChildID == childID && b.Type == typeID && (!found || b.Level > best.Level) {
			best, found = b, true
		}
	}
	return best, found
}

// AddSpecialMoment captions one behavior event
func (s *ProgressionStore) AddSpecialMoment(ctx context.Context, eventID, childID, caption string) (models.SpecialMoment, error) {
	caption = strings.TrimSpace(caption)
	if err := validation.ValidateCaption(caption); err != nil {
		return models.SpecialMoment{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.Moment(eventID); ok {
		return models.SpecialMoment{}, validation.ValidationError{Field: "eventId", Message: "event already has a special moment"}
	}
	m := models.SpecialMoment{
		ID:        models.NewID(),
		EventID:   eventID,
		ChildID:   childID,
		Caption:   caption,
		CreatedAt: s.now(),
	}
	if err := s.repo.AddSpecialMoment(m); err != nil {
		return models.SpecialMoment{}, fmt.Errorf("failed to add special moment: %w", err)
	}
	return m, s.load(ctx)
}

// UpdateCaption replaces a special moment's caption
func (s *ProgressionStore) UpdateCaption(ctx context.Context, id, caption string) error {
	caption = strings.TrimSpace(caption)
	if err := validation.ValidateCaption(caption); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.momentByID(id)
	if !ok {
		return ignoreMissing("ProgressionStore", "update caption", id)
	}
	m.Caption = caption
	if err := s.repo.UpdateSpecialMoment(m); err != nil {
		return fmt.Errorf("failed to update special moment: %w", err)
	}
	return s.load(ctx)
}

// DeleteSpecialMoment removes a special moment
func (s *ProgressionStore) DeleteSpecialMoment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.momentByID(id); !ok {
		return ignoreMissing("ProgressionStore", "delete special moment", id)
	}
	if err := s.repo.DeleteSpecialMoment(id); err != nil {
		return fmt.Errorf("failed to delete special moment: %w", err)
	}
	return s.load(ctx)
}

func (s *ProgressionStore) momentByID(id string) (models.SpecialMoment, bool) {
	for _, m := range s.Snapshot().Moments {
		if m.ID == id {
			return m, true
		}
	}
	return models.SpecialMoment{}, false
}

// Moment returns the special moment attached to an event
func (s *ProgressionStore) Moment(eventID string) (models.SpecialMoment, bool) {
	for _, m := range s.Snapshot().Moments {
		if m.EventID == eventID {
			return m, true
		}
	}
	return models.SpecialMoment{}, false
}

// Moments returns a child's special moments, oldest first
func (s *ProgressionStore) Moments(childID string) []models.SpecialMoment {
	var out []models.SpecialMoment
	for _, m := range s.Snapshot().Moments {
		if m.ChildID == childID {
			out = append(out, m)
		}
	}
	return out
}
