package store

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"starchart/internal/models"
	"starchart/internal/rewards"
	"starchart/internal/validation"
)

// RewardSnapshot is the published state of a RewardStore
type RewardSnapshot struct {
	Version uint64
	Rewards []models.Reward
	History []models.RewardHistoryEvent
}

// RewardStore owns goals and their history. Primary selection, earned totals
// and queue order are always derived through the rewards engine.
type RewardStore struct {
	*Publisher[RewardSnapshot]

	mu     sync.Mutex
	repo   RewardRepository
	events EventSource
	engine *rewards.Engine
}

// NewRewardStore creates an empty store. Call LoadData to populate it.
func NewRewardStore(repo RewardRepository, events EventSource, engine *rewards.Engine) *RewardStore {
	return &RewardStore{
		Publisher: NewPublisher(RewardSnapshot{}),
		repo:      repo,
		events:    events,
		engine:    engine,
	}
}

// LoadData reloads rewards and history and publishes once
func (s *RewardStore) LoadData(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *RewardStore) load(ctx context.Context) error {
	_, span := startSpan(ctx, "RewardStore.LoadData")
	defer span.End()

	rs, err := s.repo.Rewards()
	if err != nil {
		return fail(span, fmt.Errorf("failed to load rewards: %w", err))
	}
	history, err := s.repo.RewardHistoryEvents()
	if err != nil {
		return fail(span, fmt.Errorf("failed to load reward history: %w", err))
	}
	s.publish(func(v uint64) RewardSnapshot {
		return RewardSnapshot{Version: v, Rewards: rs, History: history}
	})
	return nil
}

// AddReward queues a new goal behind the child's existing ones. A child's
// first active goal becomes primary and starts counting immediately.
func (s *RewardStore) AddReward(ctx context.Context, reward models.Reward) (models.Reward, error) {
	reward.Name = strings.TrimSpace(reward.Name)
	reward.CreatedDate = s.engine.Now()
	if err := validation.ValidateReward(reward); err != nil {
		return models.Reward{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.Snapshot().Rewards
	if reward.ID == "" {
		reward.ID = models.NewID()
	}
	reward.Priority = s.engine.NextPriority(current, reward.ChildID)
	reward.StartDate = nil
	if reward.Priority == 0 {
		start := reward.CreatedDate
		reward.StartDate = &start
	}
	reward.IsRedeemed = false
	reward.RedeemedDate = nil
	reward.FrozenEarnedPoints = nil
	reward.ExpiredDate = nil

	if err := s.repo.AddReward(reward); err != nil {
		return models.Reward{}, fmt.Errorf("failed to add reward: %w", err)
	}
	if reward.Priority == 0 {
		s.appendHistory(models.HistoryStarted, reward, 0, 0)
	}

	all := append(append([]models.Reward(nil), current...), reward)
	if changed := s.engine.Normalize(all, reward.ChildID); len(changed) > 0 {
		if err := s.repo.UpdateRewards(changed); err != nil {
			return models.Reward{}, fmt.Errorf("failed to normalize priorities: %w", err)
		}
	}
	return reward, s.load(ctx)
}

// UpdateReward edits a goal's name, target and deadline. Queue position and
// lifecycle fields are owned by the store and cannot be changed here.
func (s *RewardStore) UpdateReward(ctx context.Context, reward models.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.Reward(reward.ID)
	if !ok {
		return ignoreMissing("RewardStore", "update reward", reward.ID)
	}
	updated := existing
	updated.Name = strings.TrimSpace(reward.Name)
	updated.TargetPoints = reward.TargetPoints
	updated.DueDate = reward.DueDate
	if err := validation.ValidateReward(updated); err != nil {
		return err
	}

	if err := s.repo.UpdateReward(updated); err != nil {
		return fmt.Errorf("failed to update reward: %w", err)
	}
	return s.load(ctx)
}

// DeleteReward removes a goal. Deleting the primary promotes the next one.
func (s *RewardStore) DeleteReward(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plan, ok := s.engine.PlanRemoval(s.Snapshot().Rewards, id)
	if !ok {
		return ignoreMissing("RewardStore", "delete reward", id)
	}
	if err := s.repo.DeleteReward(id); err != nil {
		return fmt.Errorf("failed to delete reward: %w", err)
	}
	if err := s.apply(plan); err != nil {
		return err
	}
	s.recordPlan("", plan)
	return s.load(ctx)
}

// Redeem freezes a goal's earned total, marks it redeemed and promotes the
// next queued goal. It returns false when nothing changed.
func (s *RewardStore) Redeem(ctx context.Context, id string) (rewards.Plan, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.Reward(id); !ok {
		return rewards.Plan{}, false, ignoreMissing("RewardStore", "redeem", id)
	}
	plan, ok := s.engine.PlanRedemption(s.Snapshot().Rewards, s.events.Events(), id)
	if !ok {
		log.Printf("RewardStore: redeem ignored, reward %s already redeemed", id)
		return rewards.Plan{}, false, nil
	}

	if err := s.apply(plan); err != nil {
		return rewards.Plan{}, false, err
	}
	s.recordPlan(models.HistoryRedeemed, plan)
	return plan, true, s.load(ctx)
}

// ExpireOverdue flags goals whose deadline passed, freezing their totals
func (s *RewardStore) ExpireOverdue(ctx context.Context) ([]rewards.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plans := s.engine.PlanExpiry(s.Snapshot().Rewards, s.events.Events())
	if len(plans) == 0 {
		return nil, nil
	}
	for _, plan := range plans {
		if err := s.apply(plan); err != nil {
			return nil, err
		}
		s.recordPlan(models.HistoryExpired, plan)
	}
	return plans, s.load(ctx)
}

// MakePrimary moves a goal to the front of its child's queue
func (s *RewardStore) MakePrimary(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.Reward(id); !ok {
		return ignoreMissing("RewardStore", "make primary", id)
	}
	plan, ok := s.engine.PlanMakePrimary(s.Snapshot().Rewards, id)
	if !ok {
		log.Printf("RewardStore: make primary ignored, reward %s is not active", id)
		return nil
	}
	if len(plan.Updates) == 0 {
		return nil
	}
	if err := s.apply(plan); err != nil {
		return err
	}
	s.recordPlan("", plan)
	return s.load(ctx)
}

// RecordCrossing appends a milestone entry to the history and reloads only
// the history collection
func (s *RewardStore) RecordCrossing(ctx context.Context, reward models.Reward, progress rewards.Progress, crossing rewards.Crossing) error {
	if crossing.Kind == rewards.CrossingNone {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, span := startSpan(ctx, "RewardStore.RecordCrossing")
	defer span.End()

	event := s.historyEvent(models.HistoryMilestone, reward, progress.Earned, crossing.Percent)
	if err := s.repo.AddRewardHistoryEvent(event); err != nil {
		return fail(span, fmt.Errorf("failed to record milestone: %w", err))
	}
	history, err := s.repo.RewardHistoryEvents()
	if err != nil {
		return fail(span, fmt.Errorf("failed to load reward history: %w", err))
	}

	prev := s.Snapshot()
	s.publish(func(v uint64) RewardSnapshot {
		return RewardSnapshot{Version: v, Rewards: prev.Rewards, History: history}
	})
	return nil
}

// apply writes a plan's rows in one batch
func (s *RewardStore) apply(plan rewards.Plan) error {
	if len(plan.Updates) == 0 {
		return nil
	}
	if err := s.repo.UpdateRewards(plan.Updates); err != nil {
		return fmt.Errorf("failed to update rewards: %w", err)
	}
	return nil
}

// recordPlan writes the history for an applied plan: the target's own
// transition, if any, followed by the promotion it caused
func (s *RewardStore) recordPlan(kind models.RewardHistoryKind, plan rewards.Plan) {
	if kind != "" {
		earned := 0
		if plan.Target.FrozenEarnedPoints != nil {
			earned = *plan.Target.FrozenEarnedPoints
		}
		s.appendHistory(kind, plan.Target, earned, 0)
	}
	if plan.Promoted != nil {
		s.appendHistory(models.HistoryStarted, *plan.Promoted, 0, 0)
	}
}

func (s *RewardStore) historyEvent(kind models.RewardHistoryKind, reward models.Reward, earned, milestone int) models.RewardHistoryEvent {
	return models.RewardHistoryEvent{
		ID:           models.NewID(),
		ChildID:      reward.ChildID,
		RewardID:     reward.ID,
		RewardName:   reward.Name,
		Kind:         kind,
		Milestone:    milestone,
		EarnedPoints: earned,
		TargetPoints: reward.TargetPoints,
		Timestamp:    s.engine.Now(),
	}
}

// appendHistory records an audit entry. History is best effort: a failed
// write is logged and the goal change it describes still stands.
func (s *RewardStore) appendHistory(kind models.RewardHistoryKind, reward models.Reward, earned, milestone int) {
	if err := s.repo.AddRewardHistoryEvent(s.historyEvent(kind, reward, earned, milestone)); err != nil {
		log.Printf("RewardStore: failed to record %s for reward %s: %v", kind, reward.ID, err)
	}
}

// Reward looks up a goal by id
func (s *RewardStore) Reward(id string) (models.Reward, bool) {
	for _, r := range s.Snapshot().Rewards {
		if r.ID == id {
			return r, true
		}
	}
	return models.Reward{}, false
}

// Rewards returns all of a child's goals: active ones in queue order, then
// finished ones newest first
func (s *RewardStore) Rewards(childID string) []models.Reward {
	all := s.Snapshot().Rewards
	out := s.engine.Active(all, childID)

	var done []models.Reward
	now := s.engine.Now()
	for _, r := range all {
		if r.ChildID == childID && !r.IsActive(now) {
			done = append(done, r)
		}
	}
	sort.SliceStable(done, func(i, j int) bool {
		return done[i].CreatedDate.After(done[j].CreatedDate)
	})
	return append(out, done...)
}

// Primary returns the child's primary goal
func (s *RewardStore) Primary(childID string) (models.Reward, bool) {
	return s.engine.Primary(s.Snapshot().Rewards, childID)
}

// Queue returns the goals waiting behind the primary
func (s *RewardStore) Queue(childID string) []models.Reward {
	return s.engine.Queue(s.Snapshot().Rewards, childID)
}

// ActiveRewardIDs returns the ids of the child's active goals
func (s *RewardStore) ActiveRewardIDs(childID string) []string {
	var ids []string
	for _, r := range s.engine.Active(s.Snapshot().Rewards, childID) {
		ids = append(ids, r.ID)
	}
	return ids
}

// Earned returns the points counted toward a goal
func (s *RewardStore) Earned(id string) (int, bool) {
	p, ok := s.Progress(id)
	return p.Earned, ok
}

// Progress measures a goal against its target
func (s *RewardStore) Progress(id string) (rewards.Progress, bool) {
	r, ok := s.Reward(id)
	if !ok {
		return rewards.Progress{}, false
	}
	return s.engine.Progress(r, s.Snapshot().Rewards, s.events.Events()), true
}

// History returns a child's goal history, oldest first
func (s *RewardStore) History(childID string) []models.RewardHistoryEvent {
	var out []models.RewardHistoryEvent
	for _, h := range s.Snapshot().History {
		if h.ChildID == childID {
			out = append(out, h)
		}
	}
	return out
}
