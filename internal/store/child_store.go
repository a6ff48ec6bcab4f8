package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"starchart/internal/models"
	"starchart/internal/palette"
	"starchart/internal/validation"
)

// ChildSnapshot is the published state of a ChildStore
type ChildSnapshot struct {
	Version  uint64
	Children []models.Child
}

// ChildStore owns the household's child profiles
type ChildStore struct {
	*Publisher[ChildSnapshot]

	mu   sync.Mutex
	repo ChildRepository
	now  func() time.Time
}

// NewChildStore creates an empty store. Call LoadData to populate it.
func NewChildStore(repo ChildRepository, now func() time.Time) *ChildStore {
	return &ChildStore{
		Publisher: NewPublisher(ChildSnapshot{}),
		repo:      repo,
		now:       clock(now),
	}
}

// LoadData reloads every child from the repository and publishes once
func (s *ChildStore) LoadData(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *ChildStore) load(ctx context.Context) error {
	_, span := startSpan(ctx, "ChildStore.LoadData")
	defer span.End()

	children, err := s.repo.Children()
	if err != nil {
		return fail(span, fmt.Errorf("failed to load children: %w", err))
	}
	s.publish(func(v uint64) ChildSnapshot {
		return ChildSnapshot{Version: v, Children: children}
	})
	return nil
}

// AddChild creates a child profile. A missing color tag is picked from the palette.
func (s *ChildStore) AddChild(ctx context.Context, child models.Child) (models.Child, error) {
	child.Name = strings.TrimSpace(child.Name)
	if err := validation.ValidateChild(child); err != nil {
		return models.Child{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if child.ColorTag == "" {
		var used []string
		for _, c := range s.Snapshot().Children {
			used = append(used, c.ColorTag)
		}
		tag, err := palette.PickColorTag(used)
		if err != nil {
			return models.Child{}, fmt.Errorf("failed to pick color: %w", err)
		}
		child.ColorTag = tag
	}
	if child.ID == "" {
		child.ID = models.NewID()
	}
	child.CreatedAt = s.now()

	if err := s.repo.AddChild(child); err != nil {
		return models.Child{}, fmt.Errorf("failed to add child: %w", err)
	}
	return child, s.load(ctx)
}

// UpdateChild replaces a child's profile. The creation time is kept.
func (s *ChildStore) UpdateChild(ctx context.Context, child models.Child) error {
	if err := validation.ValidateChild(child); err != nil {
		return err
	}
	return s.modify(ctx, "update child", child.ID, func(c *models.Child) {
		created := c.CreatedAt
		*c = child
		c.CreatedAt = created
	})
}

// ArchiveChild removes a child from active use without deleting history
func (s *ChildStore) ArchiveChild(ctx context.Context, id string) error {
	return s.modify(ctx, "archive child", id, func(c *models.Child) {
		c.IsArchived = true
	})
}

// UnarchiveChild returns an archived child to active use
func (s *ChildStore) UnarchiveChild(ctx context.Context, id string) error {
	return s.modify(ctx, "unarchive child", id, func(c *models.Child) {
		c.IsArchived = false
	})
}

// DeleteChild permanently removes a child's profile
func (s *ChildStore) DeleteChild(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.Child(id); !ok {
		return ignoreMissing("ChildStore", "delete child", id)
	}
	if err := s.repo.DeleteChild(id); err != nil {
		return fmt.Errorf("failed to delete child: %w", err)
	}
	return s.load(ctx)
}

// AdjustPoints adds delta to a child's running point total
func (s *ChildStore) AdjustPoints(ctx context.Context, id string, delta int) error {
	if delta == 0 {
		return nil
	}
	return s.modify(ctx, "adjust points", id, func(c *models.Child) {
		c.TotalPoints += delta
	})
}

// RecordAllowancePayout records money paid out against monetized points
func (s *ChildStore) RecordAllowancePayout(ctx context.Context, id string, amount int) error {
	if amount <= 0 {
		return validation.ValidationError{Field: "amount", Message: "payout must be greater than zero"}
	}
	return s.modify(ctx, "record payout", id, func(c *models.Child) {
		c.AllowancePaidOut += amount
	})
}

// AddSignature appends an agreement signature to the child's record
func (s *ChildStore) AddSignature(ctx context.Context, id string, sig models.Signature) error {
	return s.modify(ctx, "add signature", id, func(c *models.Child) {
		c.Signatures = append(append([]models.Signature(nil), c.Signatures...), sig)
	})
}

// modify applies fn to a copy of the stored child and writes it back
func (s *ChildStore) modify(ctx context.Context, op, id string, fn func(*models.Child)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	child, ok := s.Child(id)
	if !ok {
		return ignoreMissing("ChildStore", op, id)
	}
	fn(&child)
	child.ID = id

	if err := s.repo.UpdateChild(child); err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	return s.load(ctx)
}

// Child looks up a child by id
func (s *ChildStore) Child(id string) (models.Child, bool) {
	for _, c := range s.Snapshot().Children {
		if c.ID == id {
			return c, true
		}
	}
	return models.Child{}, false
}

// Children returns every child, archived included
func (s *ChildStore) Children() []models.Child {
	return s.Snapshot().Children
}

// ActiveChildren returns the children not archived, sorted by name
func (s *ChildStore) ActiveChildren() []models.Child {
	var out []models.Child
	for _, c := range s.Snapshot().Children {
		if !c.IsArchived {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}
