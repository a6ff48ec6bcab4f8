package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"starchart/internal/agreement"
	"starchart/internal/models"
)

// AgreementSnapshot is the published state of an AgreementStore
type AgreementSnapshot struct {
	Version  uint64
	Versions []models.AgreementVersion
}

// AgreementStore owns agreement versions. Versions are never deleted.
type AgreementStore struct {
	*Publisher[AgreementSnapshot]

	mu        sync.Mutex
	repo      AgreementRepository
	rewards   ActiveRewardSource
	behaviors ActiveBehaviorSource
	now       func() time.Time
}

// NewAgreementStore creates an empty store. Call LoadData to populate it.
func NewAgreementStore(repo AgreementRepository, rewards ActiveRewardSource, behaviors ActiveBehaviorSource, now func() time.Time) *AgreementStore {
	return &AgreementStore{
		Publisher: NewPublisher(AgreementSnapshot{}),
		repo:      repo,
		rewards:   rewards,
		behaviors: behaviors,
		now:       clock(now),
	}
}

// LoadData reloads every version and publishes once
func (s *AgreementStore) LoadData(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *AgreementStore) load(ctx context.Context) error {
	_, span := startSpan(ctx, "AgreementStore.LoadData")
	defer span.End()

	versions, err := s.repo.AgreementVersions()
	if err != nil {
		return fail(span, fmt.Errorf("failed to load agreement versions: %w", err))
	}
	s.publish(func(v uint64) AgreementSnapshot {
		return AgreementSnapshot{Version: v, Versions: versions}
	})
	return nil
}

// CreateVersion starts a new unsigned version for the child and retires the
// current one
func (s *AgreementStore) CreateVersion(ctx context.Context, childID string) (models.AgreementVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.createVersion(childID)
	if err != nil {
		return models.AgreementVersion{}, err
	}
	return v, s.load(ctx)
}

func (s *AgreementStore) createVersion(childID string) (models.AgreementVersion, error) {
	v, demoted := agreement.NewVersion(s.Snapshot().Versions, childID, models.NewID(), s.now())
	for _, d := range demoted {
		if err := s.repo.UpdateAgreementVersion(d); err != nil {
			return models.AgreementVersion{}, fmt.Errorf("failed to retire agreement version: %w", err)
		}
	}
	if err := s.repo.AddAgreementVersion(v); err != nil {
		return models.AgreementVersion{}, fmt.Errorf("failed to add agreement version: %w", err)
	}
	return v, nil
}

// SignAsChild records the child's signature on the current version
func (s *AgreementStore) SignAsChild(ctx context.Context, childID string) (models.AgreementVersion, bool, error) {
	return s.sign(ctx, childID, models.SignerChild)
}

// SignAsParent records a parent's signature on the current version
func (s *AgreementStore) SignAsParent(ctx context.Context, childID string) (models.AgreementVersion, bool, error) {
	return s.sign(ctx, childID, models.SignerParent)
}

// sign signs the current version, starting a new one when there is none or
// the current one is already complete. completed reports whether this
// signature made the version fully signed.
func (s *AgreementStore) sign(ctx context.Context, childID string, role models.SignerRole) (signed models.AgreementVersion, completed bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := agreement.Current(s.Snapshot().Versions, childID)
	if !ok || current.IsFullySigned() {
		current, err = s.createVersion(childID)
		if err != nil {
			return models.AgreementVersion{}, false, err
		}
	}

	signed, completed = agreement.Sign(current, role, s.now(),
		s.rewards.ActiveRewardIDs(childID), s.behaviors.ActiveBehaviorIDs())
	if err := s.repo.UpdateAgreementVersion(signed); err != nil {
		return models.AgreementVersion{}, false, fmt.Errorf("failed to sign agreement: %w", err)
	}
	return signed, completed, s.load(ctx)
}

// Current returns the child's current version
func (s *AgreementStore) Current(childID string) (models.AgreementVersion, bool) {
	return agreement.Current(s.Snapshot().Versions, childID)
}

// Versions returns the child's full history, newest first
func (s *AgreementStore) Versions(childID string) []models.AgreementVersion {
	return agreement.History(s.Snapshot().Versions, childID)
}

// CoverageStatus reports whether the child's signed agreement covers their goals
func (s *AgreementStore) CoverageStatus(childID string) models.CoverageStatus {
	return agreement.Status(s.Snapshot().Versions, childID, s.rewards.ActiveRewardIDs(childID))
}

// IsRewardCovered reports whether the signed agreement includes the goal
func (s *AgreementStore) IsRewardCovered(childID, rewardID string) bool {
	return agreement.IsCovered(s.Snapshot().Versions, childID, rewardID)
}

// UncoveredRewards returns the child's active goals the signed agreement misses
func (s *AgreementStore) UncoveredRewards(childID string) []string {
	return agreement.Uncovered(s.Snapshot().Versions, childID, s.rewards.ActiveRewardIDs(childID))
}
