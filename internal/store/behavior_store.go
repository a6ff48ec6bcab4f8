package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"starchart/internal/models"
	"starchart/internal/validation"
)

// BehaviorSnapshot is the published state of a BehaviorStore
type BehaviorSnapshot struct {
	Version uint64
	Types   []models.BehaviorType
	// Events are ordered oldest first
	Events  []models.BehaviorEvent
	Streaks []models.BehaviorStreak
}

// BehaviorStore owns behavior types, the event ledger and streaks
type BehaviorStore struct {
	*Publisher[BehaviorSnapshot]

	mu   sync.Mutex
	repo BehaviorRepository
	now  func() time.Time
}

// NewBehaviorStore creates an empty store. Call LoadData to populate it.
func NewBehaviorStore(repo BehaviorRepository, now func() time.Time) *BehaviorStore {
	return &BehaviorStore{
		Publisher: NewPublisher(BehaviorSnapshot{}),
		repo:      repo,
		now:       clock(now),
	}
}

// LoadData reloads types, events and streaks and publishes once
func (s *BehaviorStore) LoadData(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *BehaviorStore) load(ctx context.Context) error {
	_, span := startSpan(ctx, "BehaviorStore.LoadData")
	defer span.End()

	types, err := s.repo.BehaviorTypes()
	if err != nil {
		return fail(span, fmt.Errorf("failed to load behavior types: %w", err))
	}
	events, err := s.repo.BehaviorEvents()
	if err != nil {
		return fail(span, fmt.Errorf("failed to load behavior events: %w", err))
	}
	streaks, err := s.repo.BehaviorStreaks()
	if err != nil {
		return fail(span, fmt.Errorf("failed to load streaks: %w", err))
	}
	sortEvents(events)

	s.publish(func(v uint64) BehaviorSnapshot {
		return BehaviorSnapshot{Version: v, Types: types, Events: events, Streaks: streaks}
	})
	return nil
}

func sortEvents(events []models.BehaviorEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		return events[i].ID < events[j].ID
	})
}

// AddBehaviorType creates an active behavior type
func (s *BehaviorStore) AddBehaviorType(ctx context.Context, bt models.BehaviorType) (models.BehaviorType, error) {
	if err := validation.ValidateBehaviorType(bt); err != nil {
		return models.BehaviorType{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if bt.ID == "" {
		bt.ID = models.NewID()
	}
	bt.IsActive = true
	bt.CreatedAt = s.now()
	if err := s.repo.AddBehaviorType(bt); err != nil {
		return models.BehaviorType{}, fmt.Errorf("failed to add behavior type: %w", err)
	}
	return bt, s.load(ctx)
}

// UpdateBehaviorType replaces a behavior type
func (s *BehaviorStore) UpdateBehaviorType(ctx context.Context, bt models.BehaviorType) error {
	if err := validation.ValidateBehaviorType(bt); err != nil {
		return err
	}
	return s.modifyType(ctx, "update behavior type", bt.ID, func(t *models.BehaviorType) {
		created := t.CreatedAt
		*t = bt
		t.CreatedAt = created
	})
}

// DeactivateBehaviorType hides a type from logging while keeping its history
func (s *BehaviorStore) DeactivateBehaviorType(ctx context.Context, id string) error {
	return s.modifyType(ctx, "deactivate behavior type", id, func(t *models.BehaviorType) {
		t.IsActive = false
	})
}

func (s *BehaviorStore) modifyType(ctx context.Context, op, id string, fn func(*models.BehaviorType)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bt, ok := s.Type(id)
	if !ok {
		return ignoreMissing("BehaviorStore", op, id)
	}
	fn(&bt)
	bt.ID = id
	if err := s.repo.UpdateBehaviorType(bt); err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return s.load(ctx)
}

// DeleteBehaviorType removes a behavior type. Logged events keep their type id.
func (s *BehaviorStore) DeleteBehaviorType(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.Type(id); !ok {
		return ignoreMissing("BehaviorStore", "delete behavior type", id)
	}
	if err := s.repo.DeleteBehaviorType(id); err != nil {
		return fmt.Errorf("failed to delete behavior type: %w", err)
	}
	return s.load(ctx)
}

// SeedDefaultBehaviors adds DefaultBehaviors when the household has no types yet.
// It returns how many were added.
func (s *BehaviorStore) SeedDefaultBehaviors(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.Snapshot().Types) > 0 {
		return 0, nil
	}

	now := s.now()
	for i, bt := range DefaultBehaviors {
		bt.ID = models.NewID()
		bt.IsActive = true
		// keep seed order stable when sorted by creation time
		bt.CreatedAt = now.Add(time.Duration(i) * time.Millisecond)
		if err := s.repo.AddBehaviorType(bt); err != nil {
			err = fmt.Errorf("failed to seed behavior %q: %w", bt.Name, err)
			if i > 0 {
				err = errors.Join(err, s.load(ctx))
			}
			return i, err
		}
	}
	return len(DefaultBehaviors), s.load(ctx)
}

// AddEvent appends an event to the ledger. A zero timestamp means now.
// Events of a positive type also advance the streak; the event and the
// streak are published together.
func (s *BehaviorStore) AddEvent(ctx context.Context, event models.BehaviorEvent) (models.BehaviorEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bt, ok := s.Type(event.BehaviorTypeID)
	if !ok {
		return models.BehaviorEvent{}, validation.ValidationError{Field: "behaviorTypeId", Message: "unknown behavior type"}
	}
	if event.ID == "" {
		event.ID = models.NewID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	if err := s.repo.AddBehaviorEvent(event); err != nil {
		return models.BehaviorEvent{}, fmt.Errorf("failed to add behavior event: %w", err)
	}
	if bt.Category.IsPositive() {
		if err := s.refreshStreaks(event.ChildID, bt.ID); err != nil {
			return event, errors.Join(err, s.load(ctx))
		}
	}
	return event, s.load(ctx)
}

// UpdateEvent replaces a ledger entry. This is an administrative correction.
// Streaks of both the old and the new behavior type are recomputed before
// the single reload.
func (s *BehaviorStore) UpdateEvent(ctx context.Context, event models.BehaviorEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.Event(event.ID)
	if !ok {
		return ignoreMissing("BehaviorStore", "update event", event.ID)
	}
	if err := s.repo.UpdateBehaviorEvent(event); err != nil {
		return fmt.Errorf("failed to update behavior event: %w", err)
	}
	if err := s.refreshStreaks(old.ChildID, old.BehaviorTypeID, event.BehaviorTypeID); err != nil {
		return errors.Join(err, s.load(ctx))
	}
	return s.load(ctx)
}

// DeleteEvent removes a ledger entry and recomputes its streak
func (s *BehaviorStore) DeleteEvent(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	event, ok := s.Event(id)
	if !ok {
		return ignoreMissing("BehaviorStore", "delete event", id)
	}
	if err := s.repo.DeleteBehaviorEvent(id); err != nil {
		return fmt.Errorf("failed to delete behavior event: %w", err)
	}
	if err := s.refreshStreaks(event.ChildID, event.BehaviorTypeID); err != nil {
		return errors.Join(err, s.load(ctx))
	}
	return s.load(ctx)
}

// refreshStreaks recomputes streaks in the repository without publishing.
// Callers hold s.mu and reload afterwards.
func (s *BehaviorStore) refreshStreaks(childID string, typeIDs ...string) error {
	seen := make(map[string]bool)
	for _, id := range typeIDs {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		if err := s.repo.UpdateStreak(childID, id); err != nil {
			return fmt.Errorf("failed to update streak: %w", err)
		}
	}
	return nil
}

// UpdateStreak asks the repository to recompute one streak and reloads only
// the streak collection
func (s *BehaviorStore) UpdateStreak(ctx context.Context, childID, behaviorTypeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, span := startSpan(ctx, "BehaviorStore.UpdateStreak")
	defer span.End()

	if err := s.repo.UpdateStreak(childID, behaviorTypeID); err != nil {
		return fail(span, fmt.Errorf("failed to update streak: %w", err))
	}
	streaks, err := s.repo.BehaviorStreaks()
	if err != nil {
		return fail(span, fmt.Errorf("failed to load streaks: %w", err))
	}

	prev := s.Snapshot()
	s.publish(func(v uint64) BehaviorSnapshot {
		return BehaviorSnapshot{Version: v, Types: prev.Types, Events: prev.Events, Streaks: streaks}
	})
	return nil
}

// Type looks up a behavior type by id
func (s *BehaviorStore) Type(id string) (models.BehaviorType, bool) {
	for _, t := range s.Snapshot().Types {
		if t.ID == id {
			return t, true
		}
	}
	return models.BehaviorType{}, false
}

// Types returns every behavior type
func (s *BehaviorStore) Types() []models.BehaviorType {
	return s.Snapshot().Types
}

// ActiveTypes returns the types available for logging
func (s *BehaviorStore) ActiveTypes() []models.BehaviorType {
	var out []models.BehaviorType
	for _, t := range s.Snapshot().Types {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out
}

// SuggestedTypes returns the active types whose suggested age range fits age
func (s *BehaviorStore) SuggestedTypes(age int) []models.BehaviorType {
	var out []models.BehaviorType
	for _, t := range s.ActiveTypes() {
		if t.SuggestedAgeRange.Contains(age) {
			out = append(out, t)
		}
	}
	return out
}

// ActiveBehaviorIDs returns the ids of every active type
func (s *BehaviorStore) ActiveBehaviorIDs() []string {
	var ids []string
	for _, t := range s.ActiveTypes() {
		ids = append(ids, t.ID)
	}
	return ids
}

// Events returns the full ledger, oldest first
func (s *BehaviorStore) Events() []models.BehaviorEvent {
	return s.Snapshot().Events
}

// EventsForChild returns one child's events, oldest first
func (s *BehaviorStore) EventsForChild(childID string) []models.BehaviorEvent {
	var out []models.BehaviorEvent
	for _, e := range s.Snapshot().Events {
		if e.ChildID == childID {
			out = append(out, e)
		}
	}
	return out
}

// EventsOnDay returns a child's events on the calendar day containing day,
// in day's location
func (s *BehaviorStore) EventsOnDay(childID string, day time.Time) []models.BehaviorEvent {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.AddDate(0, 0, 1)

	var out []models.BehaviorEvent
	for _, e := range s.EventsForChild(childID) {
		if !e.Timestamp.Before(start) && e.Timestamp.Before(end) {
			out = append(out, e)
		}
	}
	return out
}

// Event looks up a ledger entry by id
func (s *BehaviorStore) Event(id string) (models.BehaviorEvent, bool) {
	for _, e := range s.Snapshot().Events {
		if e.ID == id {
			return e, true
		}
	}
	return models.BehaviorEvent{}, false
}

// Streak returns the streak for a child and behavior type
func (s *BehaviorStore) Streak(childID, behaviorTypeID string) (models.BehaviorStreak, bool) {
	for _, st := range s.Snapshot().Streaks {
		if st.ChildID == childID && st.BehaviorTypeID == behaviorTypeID {
			return st, true
		}
	}
	return models.BehaviorStreak{}, false
}

// StreaksForChild returns every streak a child holds
func (s *BehaviorStore) StreaksForChild(childID string) []models.BehaviorStreak {
	var out []models.BehaviorStreak
	for _, st := range s.Snapshot().Streaks {
		if st.ChildID == childID {
			out = append(out, st)
		}
	}
	return out
}
