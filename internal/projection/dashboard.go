package projection

import (
	"context"
	"sort"
	"strings"
	"time"

	"starchart/internal/agreement"
	"starchart/internal/models"
	"starchart/internal/rewards"
	"starchart/internal/store"
)

// Sources are the stores and engine a projection reads
type Sources struct {
	Children    *store.ChildStore
	Behaviors   *store.BehaviorStore
	Rewards     *store.RewardStore
	Agreements  *store.AgreementStore
	Progression *store.ProgressionStore
	Engine      *rewards.Engine
}

// inputs is one consistent capture of every store snapshot
type inputs struct {
	children    store.ChildSnapshot
	behaviors   store.BehaviorSnapshot
	rewards     store.RewardSnapshot
	agreements  store.AgreementSnapshot
	progression store.ProgressionSnapshot
	now         time.Time
}

// inputKey identifies a capture. The day is part of it so "today" rolls over.
type inputKey struct {
	children, behaviors, rewards, agreements, progression uint64
	day                                                   string
}

func (s Sources) capture() inputs {
	return inputs{
		children:    s.Children.Snapshot(),
		behaviors:   s.Behaviors.Snapshot(),
		rewards:     s.Rewards.Snapshot(),
		agreements:  s.Agreements.Snapshot(),
		progression: s.Progression.Snapshot(),
		now:         s.Engine.Now(),
	}
}

func (in inputs) key() inputKey {
	return inputKey{
		children:    in.children.Version,
		behaviors:   in.behaviors.Version,
		rewards:     in.rewards.Version,
		agreements:  in.agreements.Version,
		progression: in.progression.Version,
		day:         in.now.Format("2006-01-02"),
	}
}

// watch subscribes trigger to every source store and returns the combined cancel
func (s Sources) watch(trigger func()) func() {
	cancels := []func(){
		s.Children.Subscribe(func(store.ChildSnapshot) { trigger() }),
		s.Behaviors.Subscribe(func(store.BehaviorSnapshot) { trigger() }),
		s.Rewards.Subscribe(func(store.RewardSnapshot) { trigger() }),
		s.Agreements.Subscribe(func(store.AgreementSnapshot) { trigger() }),
		s.Progression.Subscribe(func(store.ProgressionSnapshot) { trigger() }),
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

// GoalProgress is one active goal as shown on a dashboard
type GoalProgress struct {
	Reward   models.Reward
	Progress rewards.Progress
	Covered  bool
}

// ChildDashboardState is everything a child's dashboard displays
type ChildDashboardState struct {
	Child         models.Child
	Found         bool
	TodayPoints   int
	PositiveToday int
	NegativeToday int
	Primary       *GoalProgress
	Queue         []GoalProgress
	Agreement     models.CoverageStatus
	BadgeCount    int
	BestStreak    int
	ComputedAt    time.Time
}

func computeChild(engine *rewards.Engine, in inputs, childID string) ChildDashboardState {
	state := ChildDashboardState{ComputedAt: in.now, Agreement: models.NeverSigned}
	for _, c := range in.children.Children {
		if c.ID == childID {
			state.Child, state.Found = c, true
			break
		}
	}
	if !state.Found {
		return state
	}

	categories := make(map[string]models.BehaviorCategory, len(in.behaviors.Types))
	for _, bt := range in.behaviors.Types {
		categories[bt.ID] = bt.Category
	}
	year, month, day := in.now.Date()
	var events []models.BehaviorEvent
	for _, e := range in.behaviors.Events {
		if e.ChildID != childID {
			continue
		}
		events = append(events, e)
		y, m, d := e.Timestamp.In(in.now.Location()).Date()
		if y != year || m != month || d != day {
			continue
		}
		state.TodayPoints += e.PointsApplied
		category, known := categories[e.BehaviorTypeID]
		switch {
		case known && category.IsPositive(), !known && e.PointsApplied > 0:
			state.PositiveToday++
		case known && category == models.CategoryNegative, !known && e.PointsApplied < 0:
			state.NegativeToday++
		}
	}

	active := engine.Active(in.rewards.Rewards, childID)
	activeIDs := make([]string, 0, len(active))
	for _, r := range active {
		activeIDs = append(activeIDs, r.ID)
	}
	for i, r := range active {
		goal := GoalProgress{
			Reward:   r,
			Progress: engine.Progress(r, in.rewards.Rewards, events),
			Covered:  agreement.IsCovered(in.agreements.Versions, childID, r.ID),
		}
		if i == 0 {
			state.Primary = &goal
			continue
		}
		state.Queue = append(state.Queue, goal)
	}
	state.Agreement = agreement.Status(in.agreements.Versions, childID, activeIDs)

	for _, b := range in.progression.Badges {
		if b.ChildID == childID {
			state.BadgeCount++
		}
	}
	for _, st := range in.behaviors.Streaks {
		if st.ChildID == childID && st.CurrentStreak > state.BestStreak {
			state.BestStreak = st.CurrentStreak
		}
	}
	return state
}

// ChildDashboard keeps one child's dashboard state current
type ChildDashboard struct {
	*Pipeline[inputs, inputKey, ChildDashboardState]
	unwatch func()
}

// NewChildDashboard wires a dashboard projection to every store it reads.
// Call Start to begin computing and Close to detach it.
func NewChildDashboard(src Sources, childID string, dispatcher Dispatcher, debounce time.Duration, publish func(ChildDashboardState)) *ChildDashboard {
	p := New(Config[inputs, inputKey, ChildDashboardState]{
		Capture:    src.capture,
		Key:        inputs.key,
		Compute:    func(in inputs) ChildDashboardState { return computeChild(src.Engine, in, childID) },
		Publish:    publish,
		Dispatcher: dispatcher,
		Debounce:   debounce,
	})
	return &ChildDashboard{Pipeline: p, unwatch: src.watch(p.Trigger)}
}

// Start runs the worker and schedules the first computation
func (d *ChildDashboard) Start(ctx context.Context) {
	d.Pipeline.Start(ctx)
	d.Trigger()
}

// Close unsubscribes from the stores and stops the worker
func (d *ChildDashboard) Close() {
	d.unwatch()
	d.Stop()
}

// ChildSummary is one row of the family overview
type ChildSummary struct {
	ChildID        string
	Name           string
	ColorTag       string
	TotalPoints    int
	TodayPoints    int
	PrimaryGoal    string
	PrimaryPercent int
	Agreement      models.CoverageStatus
}

// FamilyOverviewState summarizes every active child
type FamilyOverviewState struct {
	Children    []ChildSummary
	FamilyTotal int
	ComputedAt  time.Time
}

func computeFamily(engine *rewards.Engine, in inputs) FamilyOverviewState {
	state := FamilyOverviewState{ComputedAt: in.now}
	for _, c := range in.children.Children {
		if c.IsArchived {
			continue
		}
		dash := computeChild(engine, in, c.ID)
		row := ChildSummary{
			ChildID:     c.ID,
			Name:        c.Name,
			ColorTag:    c.ColorTag,
			TotalPoints: c.TotalPoints,
			TodayPoints: dash.TodayPoints,
			Agreement:   dash.Agreement,
		}
		if dash.Primary != nil {
			row.PrimaryGoal = dash.Primary.Reward.Name
			row.PrimaryPercent = dash.Primary.Progress.Percent()
		}
		state.Children = append(state.Children, row)
		state.FamilyTotal += c.TotalPoints
	}
	sort.SliceStable(state.Children, func(i, j int) bool {
		return strings.ToLower(state.Children[i].Name) < strings.ToLower(state.Children[j].Name)
	})
	return state
}

// FamilyOverview keeps the household summary current
type FamilyOverview struct {
	*Pipeline[inputs, inputKey, FamilyOverviewState]
	unwatch func()
}

// NewFamilyOverview wires an overview projection to every store it reads
func NewFamilyOverview(src Sources, dispatcher Dispatcher, debounce time.Duration, publish func(FamilyOverviewState)) *FamilyOverview {
	p := New(Config[inputs, inputKey, FamilyOverviewState]{
		Capture:    src.capture,
		Key:        inputs.key,
		Compute:    func(in inputs) FamilyOverviewState { return computeFamily(src.Engine, in) },
		Publish:    publish,
		Dispatcher: dispatcher,
		Debounce:   debounce,
	})
	return &FamilyOverview{Pipeline: p, unwatch: src.watch(p.Trigger)}
}

// Start runs the worker and schedules the first computation
func (o *FamilyOverview) Start(ctx context.Context) {
	o.Pipeline.Start(ctx)
	o.Trigger()
}

// Close unsubscribes from the stores and stops the worker
func (o *FamilyOverview) Close() {
	o.unwatch()
	o.Stop()
}

// ChildDashboardNow computes a dashboard synchronously from the current snapshots
func ChildDashboardNow(src Sources, childID string) ChildDashboardState {
	return computeChild(src.Engine, src.capture(), childID)
}

// FamilyOverviewNow computes the overview synchronously from the current snapshots
func FamilyOverviewNow(src Sources) FamilyOverviewState {
	return computeFamily(src.Engine, src.capture())
}
