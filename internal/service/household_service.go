package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"starchart/internal/celebration"
	"starchart/internal/models"
	"starchart/internal/projection"
	"starchart/internal/repository"
	"starchart/internal/rewards"
	"starchart/internal/security"
	"starchart/internal/store"
	"starchart/internal/validation"
)

var (
	ErrChildNotFound    = errors.New("child not found")
	ErrChildArchived    = errors.New("child is archived")
	ErrBehaviorNotFound = errors.New("behavior type not found")
	ErrBehaviorInactive = errors.New("behavior type is inactive")
	ErrEventNotFound    = errors.New("behavior event not found")
	ErrRewardNotFound   = errors.New("goal not found")
	ErrGoalNotReached   = errors.New("goal has not reached its target")
	ErrNothingOwed      = errors.New("no allowance is owed")
)

// HouseholdService composes the stores into the operations a parent performs.
// Each operation runs its store mutations in order; a failure part way leaves
// the earlier steps applied.
type HouseholdService struct {
	Children     *store.ChildStore
	Behaviors    *store.BehaviorStore
	Rewards      *store.RewardStore
	Agreements   *store.AgreementStore
	Progression  *store.ProgressionStore
	Celebrations *store.CelebrationStore

	engine      *rewards.Engine
	coordinator *celebration.Coordinator
	guard       *security.PINGuard
	now         func() time.Time
}

// NewHouseholdService builds every store over repo. Celebrations go to the
// in-app CelebrationStore first, then to the extra sinks. Call LoadData before use.
func NewHouseholdService(repo repository.Repository, now func() time.Time, guard *security.PINGuard, sinks ...celebration.Sink) *HouseholdService {
	if now == nil {
		now = time.Now
	}
	engine := rewards.NewEngine(now)
	behaviors := store.NewBehaviorStore(repo, now)
	rewardStore := store.NewRewardStore(repo, behaviors, engine)
	celebrations := store.NewCelebrationStore()

	return &HouseholdService{
		Children:     store.NewChildStore(repo, now),
		Behaviors:    behaviors,
		Rewards:      rewardStore,
		Agreements:   store.NewAgreementStore(repo, rewardStore, behaviors, now),
		Progression:  store.NewProgressionStore(repo, behaviors, now),
		Celebrations: celebrations,
		engine:       engine,
		coordinator:  celebration.NewCoordinator(now, append([]celebration.Sink{celebrations}, sinks...)...),
		guard:        guard,
		now:          now,
	}
}

// LoadData loads every store concurrently, then expires overdue goals
func (s *HouseholdService) LoadData(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, load := range []func(context.Context) error{
		s.Children.LoadData,
		s.Behaviors.LoadData,
		s.Rewards.LoadData,
		s.Agreements.LoadData,
		s.Progression.LoadData,
	} {
		g.Go(func() error { return load(gctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return s.expireOverdue(ctx)
}

// expireOverdue records goals whose deadline passed so the next goal is
// promoted before any further points are counted
func (s *HouseholdService) expireOverdue(ctx context.Context) error {
	plans, err := s.Rewards.ExpireOverdue(ctx)
	if err != nil {
		return fmt.Errorf("failed to expire overdue goals: %w", err)
	}
	for _, plan := range plans {
		log.Printf("Goal %q expired with %d of %d points", plan.Target.Name, frozen(plan.Target), plan.Target.TargetPoints)
	}
	return nil
}

// Sources exposes the stores to dashboard projections
func (s *HouseholdService) Sources() projection.Sources {
	return projection.Sources{
		Children:    s.Children,
		Behaviors:   s.Behaviors,
		Rewards:     s.Rewards,
		Agreements:  s.Agreements,
		Progression: s.Progression,
		Engine:      s.engine,
	}
}

func frozen(r models.Reward) int {
	if r.FrozenEarnedPoints == nil {
		return 0
	}
	return *r.FrozenEarnedPoints
}

func (s *HouseholdService) activeChild(id string) (models.Child, error) {
	child, ok := s.Children.Child(id)
	if !ok {
		return models.Child{}, ErrChildNotFound
	}
	if child.IsArchived {
		return models.Child{}, ErrChildArchived
	}
	return child, nil
}

// progressByReward captures the progress of every active goal of a child
func (s *HouseholdService) progressByReward(childID string) map[string]rewards.Progress {
	out := make(map[string]rewards.Progress)
	for _, r := range s.Rewards.Rewards(childID) {
		if !r.IsActive(s.now()) {
			continue
		}
		if p, ok := s.Rewards.Progress(r.ID); ok {
			out[r.ID] = p
		}
	}
	return out
}

// celebrate compares progress against before, records each crossing in the
// goal history and delivers celebrations
func (s *HouseholdService) celebrate(ctx context.Context, childID string, before map[string]rewards.Progress) []celebration.Signal {
	child, ok := s.Children.Child(childID)
	if !ok {
		return nil
	}

	var signals []celebration.Signal
	for _, r := range s.Rewards.Rewards(childID) {
		prev, tracked := before[r.ID]
		if !tracked {
			continue
		}
		after, ok := s.Rewards.Progress(r.ID)
		if !ok {
			continue
		}
		crossing := rewards.Transition(prev, after)
		if crossing.Kind == rewards.CrossingNone {
			continue
		}
		if err := s.Rewards.RecordCrossing(ctx, r, after, crossing); err != nil {
			log.Printf("Failed to record %s for goal %s: %v", crossing.Kind, r.ID, err)
		}
		signals = append(signals, s.coordinator.Deliver(ctx, celebration.Evaluation{
			Child:  child,
			Reward: r,
			Before: prev,
			After:  after,
		})...)
	}
	return signals
}

// checkAttribution rejects an explicit goal that is unknown, finished or
// belongs to another child
func (s *HouseholdService) checkAttribution(childID string, rewardID *string) error {
	if rewardID == nil || *rewardID == "" {
		return nil
	}
	r, ok := s.Rewards.Reward(*rewardID)
	if !ok || r.ChildID != childID || !r.IsActive(s.now()) {
		return ErrRewardNotFound
	}
	return nil
}

func sameAttribution(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// LogRequest describes a behavior to record
type LogRequest struct {
	ChildID        string
	BehaviorTypeID string
	// Points overrides the behavior type's default when set
	Points   *int
	RewardID *string
	Note     string
	// Timestamp defaults to now
	Timestamp time.Time
}

// LogResult reports everything a logged behavior changed
type LogResult struct {
	Event   models.BehaviorEvent
	Signals []celebration.Signal
	Badges  []models.SkillBadge
	Streak  *models.BehaviorStreak
}

// LogBehavior records an event and applies its consequences: the child's
// total, the streak, goal progress and milestones, badges and celebrations.
func (s *HouseholdService) LogBehavior(ctx context.Context, req LogRequest) (LogResult, error) {
	child, err := s.activeChild(req.ChildID)
	if err != nil {
		return LogResult{}, err
	}
	if err := s.expireOverdue(ctx); err != nil {
		return LogResult{}, err
	}
	bt, ok := s.Behaviors.Type(req.BehaviorTypeID)
	if !ok {
		return LogResult{}, ErrBehaviorNotFound
	}
	if !bt.IsActive {
		return LogResult{}, ErrBehaviorInactive
	}
	if err := s.checkAttribution(child.ID, req.RewardID); err != nil {
		return LogResult{}, err
	}

	points := bt.DefaultPoints
	if req.Points != nil {
		points = *req.Points
	}

	before := s.progressByReward(child.ID)
	event, err := s.Behaviors.AddEvent(ctx, models.BehaviorEvent{
		ChildID:        child.ID,
		BehaviorTypeID: bt.ID,
		Timestamp:      req.Timestamp,
		PointsApplied:  points,
		RewardID:       req.RewardID,
		Note:           req.Note,
	})
	if err != nil {
		return LogResult{}, fmt.Errorf("failed to log behavior: %w", err)
	}

	result := LogResult{Event: event}
	if err := s.Children.AdjustPoints(ctx, child.ID, points); err != nil {
		return result, fmt.Errorf("failed to update points: %w", err)
	}
	if bt.Category.IsPositive() {
		if st, ok := s.Behaviors.Streak(child.ID, bt.ID); ok {
			result.Streak = &st
		}
	}

	result.Signals = s.celebrate(ctx, child.ID, before)

	badges, err := s.Progression.EvaluateBadges(ctx, child.ID)
	if err != nil {
		return result, fmt.Errorf("failed to evaluate badges: %w", err)
	}
	result.Badges = badges
	return result, nil
}

// EditEvent changes an event's points, note or attribution and reconciles
// the child's total and streaks
func (s *HouseholdService) EditEvent(ctx context.Context, updated models.BehaviorEvent) ([]celebration.Signal, error) {
	old, ok := s.Behaviors.Event(updated.ID)
	if !ok {
		return nil, ErrEventNotFound
	}
	updated.ChildID = old.ChildID
	if updated.Timestamp.IsZero() {
		updated.Timestamp = old.Timestamp
	}
	if _, ok := s.Behaviors.Type(updated.BehaviorTypeID); !ok {
		return nil, ErrBehaviorNotFound
	}
	if err := s.expireOverdue(ctx); err != nil {
		return nil, err
	}
	if !sameAttribution(old.RewardID, updated.RewardID) {
		if err := s.checkAttribution(old.ChildID, updated.RewardID); err != nil {
			return nil, err
		}
	}

	before := s.progressByReward(old.ChildID)
	if err := s.Behaviors.UpdateEvent(ctx, updated); err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}
	if delta := updated.PointsApplied - old.PointsApplied; delta != 0 {
		if err := s.Children.AdjustPoints(ctx, old.ChildID, delta); err != nil {
			return nil, fmt.Errorf("failed to update points: %w", err)
		}
	}
	return s.celebrate(ctx, old.ChildID, before), nil
}

// DeleteEvent removes an event, its special moment and its points.
// Frozen goal totals are unaffected.
func (s *HouseholdService) DeleteEvent(ctx context.Context, id string) error {
	event, ok := s.Behaviors.Event(id)
	if !ok {
		return ErrEventNotFound
	}
	if err := s.expireOverdue(ctx); err != nil {
		return err
	}
	if moment, ok := s.Progression.Moment(id); ok {
		if err := s.Progression.DeleteSpecialMoment(ctx, moment.ID); err != nil {
			return fmt.Errorf("failed to delete special moment: %w", err)
		}
	}
	if err := s.Behaviors.DeleteEvent(ctx, id); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if err := s.Children.AdjustPoints(ctx, event.ChildID, -event.PointsApplied); err != nil {
		return fmt.Errorf("failed to update points: %w", err)
	}
	return nil
}

// AddGoal queues a new goal for a child. The first active goal becomes primary.
func (s *HouseholdService) AddGoal(ctx context.Context, childID, name string, target int, due *time.Time) (models.Reward, error) {
	if _, err := s.activeChild(childID); err != nil {
		return models.Reward{}, err
	}
	if err := s.expireOverdue(ctx); err != nil {
		return models.Reward{}, err
	}
	return s.Rewards.AddReward(ctx, models.Reward{
		ChildID:      childID,
		Name:         name,
		TargetPoints: target,
		DueDate:      due,
	})
}

// RedeemResult reports a redemption
type RedeemResult struct {
	Reward   models.Reward
	Promoted *models.Reward
	Signals  []celebration.Signal
}

// RedeemGoal freezes and redeems a goal, promoting the next one. Unless
// force is set the goal must have reached its target.
func (s *HouseholdService) RedeemGoal(ctx context.Context, rewardID string, force bool) (RedeemResult, error) {
	if err := s.expireOverdue(ctx); err != nil {
		return RedeemResult{}, err
	}
	reward, ok := s.Rewards.Reward(rewardID)
	if !ok || !reward.IsActive(s.now()) {
		return RedeemResult{}, ErrRewardNotFound
	}
	before, _ := s.Rewards.Progress(rewardID)
	if !force && !before.IsComplete() {
		return RedeemResult{}, fmt.Errorf("%w: %d of %d points", ErrGoalNotReached, before.Earned, before.Target)
	}

	plan, ok, err := s.Rewards.Redeem(ctx, rewardID)
	if err != nil {
		return RedeemResult{}, fmt.Errorf("failed to redeem goal: %w", err)
	}
	if !ok {
		return RedeemResult{}, ErrRewardNotFound
	}

	result := RedeemResult{Reward: plan.Target, Promoted: plan.Promoted}
	after, _ := s.Rewards.Progress(rewardID)
	if child, ok := s.Children.Child(reward.ChildID); ok {
		result.Signals = s.coordinator.Deliver(ctx, celebration.Evaluation{
			Child:    child,
			Reward:   plan.Target,
			Before:   before,
			After:    after,
			Redeemed: true,
		})
	}
	return result, nil
}

// SignAgreement signs the child's current agreement for role. Parent
// signatures need the parent PIN when one is configured.
func (s *HouseholdService) SignAgreement(ctx context.Context, childID string, role models.SignerRole, pin string) (models.AgreementVersion, bool, error) {
	if _, err := s.activeChild(childID); err != nil {
		return models.AgreementVersion{}, false, err
	}

	var (
		version   models.AgreementVersion
		completed bool
		err       error
	)
	switch role {
	case models.SignerChild:
		version, completed, err = s.Agreements.SignAsChild(ctx, childID)
	case models.SignerParent:
		if err := s.guard.Authorize(pin); err != nil {
			return models.AgreementVersion{}, false, err
		}
		version, completed, err = s.Agreements.SignAsParent(ctx, childID)
	default:
		return models.AgreementVersion{}, false, validation.ValidationError{Field: "role", Message: "role must be child or parent"}
	}
	if err != nil {
		return models.AgreementVersion{}, false, fmt.Errorf("failed to sign agreement: %w", err)
	}

	sig := models.Signature{Role: role, VersionID: version.ID, SignedAt: s.now()}
	if err := s.Children.AddSignature(ctx, childID, sig); err != nil {
		return version, completed, fmt.Errorf("failed to record signature: %w", err)
	}
	return version, completed, nil
}

// MonetizedEarned sums the positive points a child earned on monetized behaviors
func (s *HouseholdService) MonetizedEarned(childID string) int {
	total := 0
	for _, e := range s.Behaviors.EventsForChild(childID) {
		bt, ok := s.Behaviors.Type(e.BehaviorTypeID)
		if ok && bt.IsMonetized && e.PointsApplied > 0 {
			total += e.PointsApplied
		}
	}
	return total
}

// AllowanceOwed returns monetized points not yet paid out
func (s *HouseholdService) AllowanceOwed(childID string) (int, error) {
	child, ok := s.Children.Child(childID)
	if !ok {
		return 0, ErrChildNotFound
	}
	return child.AllowanceOwed(s.MonetizedEarned(childID)), nil
}

// PayAllowance pays out everything owed and returns the amount
func (s *HouseholdService) PayAllowance(ctx context.Context, childID, pin string) (int, error) {
	if err := s.guard.Authorize(pin); err != nil {
		return 0, err
	}
	owed, err := s.AllowanceOwed(childID)
	if err != nil {
		return 0, err
	}
	if owed == 0 {
		return 0, ErrNothingOwed
	}
	if err := s.Children.RecordAllowancePayout(ctx, childID, owed); err != nil {
		return 0, fmt.Errorf("failed to record payout: %w", err)
	}
	log.Printf("Paid allowance of %d to child %s", owed, childID)
	return owed, nil
}

// AddMoment captions a logged event as a special moment
func (s *HouseholdService) AddMoment(ctx context.Context, eventID, caption string) (models.SpecialMoment, error) {
	event, ok := s.Behaviors.Event(eventID)
	if !ok {
		return models.SpecialMoment{}, ErrEventNotFound
	}
	return s.Progression.AddSpecialMoment(ctx, eventID, event.ChildID, caption)
}

// Dashboard computes a child's dashboard from the current snapshots
func (s *HouseholdService) Dashboard(childID string) (projection.ChildDashboardState, error) {
	state := projection.ChildDashboardNow(s.Sources(), childID)
	if !state.Found {
		return state, ErrChildNotFound
	}
	return state, nil
}

// Overview computes the family overview from the current snapshots
func (s *HouseholdService) Overview() projection.FamilyOverviewState {
	return projection.FamilyOverviewNow(s.Sources())
}
