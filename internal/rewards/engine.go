// Package rewards implements goal accounting for a child's reward queue:
// primary selection, windowed earned points, milestone crossings and
// redemption/expiry plans that keep a single primary per child.
package rewards

import (
	"sort"
	"time"

	"starchart/internal/models"
)

// Milestones are the progress percentages that raise a milestone signal.
// Reaching 100 raises goal-reached instead.
var Milestones = []int{25, 50, 75}

// GoalPercent is the goal-reached threshold
const GoalPercent = 100

// Engine evaluates reward rules against a rewards collection and the event ledger.
// It holds no state besides its clock; every answer is derived by query.
type Engine struct {
	now func() time.Time
}

// NewEngine creates an engine. A nil clock uses time.Now.
func NewEngine(now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{now: now}
}

// Now returns the engine's current time
func (e *Engine) Now() time.Time {
	return e.now()
}

// less orders rewards by priority, then creation time, then id
func less(a, b models.Reward) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.CreatedDate.Equal(b.CreatedDate) {
		return a.CreatedDate.Before(b.CreatedDate)
	}
	return a.ID < b.ID
}

// activeAt returns the child's non-redeemed, non-expired rewards in selection order
func activeAt(rewards []models.Reward, childID string, at time.Time) []models.Reward {
	var active []models.Reward
	for _, r := range rewards {
		if r.ChildID == childID && r.IsActive(at) {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return less(active[i], active[j]) })
	return active
}

// Active returns the child's active rewards in selection order, primary first
func (e *Engine) Active(rewards []models.Reward, childID string) []models.Reward {
	return activeAt(rewards, childID, e.now())
}

// Primary selects the child's primary reward. Stored priorities are not trusted
// to be unique; the lowest one wins and ties fall back to creation order.
func (e *Engine) Primary(rewards []models.Reward, childID string) (models.Reward, bool) {
	active := e.Active(rewards, childID)
	if len(active) == 0 {
		return models.Reward{}, false
	}
	return active[0], true
}

// Queue returns the child's active rewards waiting behind the primary
func (e *Engine) Queue(rewards []models.Reward, childID string) []models.Reward {
	active := e.Active(rewards, childID)
	if len(active) <= 1 {
		return nil
	}
	return active[1:]
}

// NextPriority is the priority a newly added reward takes: the back of the queue
func (e *Engine) NextPriority(rewards []models.Reward, childID string) int {
	return len(e.Active(rewards, childID))
}

// Earned returns the points counted toward reward. Frozen rewards report
// their captured total.
func (e *Engine) Earned(reward models.Reward, rewards []models.Reward, events []models.BehaviorEvent) int {
	if reward.FrozenEarnedPoints != nil {
		return *reward.FrozenEarnedPoints
	}
	now := e.now()
	active := activeAt(rewards, reward.ChildID, now)
	isPrimary := len(active) > 0 && active[0].ID == reward.ID
	return sumWindow(reward, windowStart(reward, rewards, isPrimary, now), isPrimary, events, nil)
}

// earnedAt computes the ledger total as it stood at the given instant,
// ignoring events logged after it
func earnedAt(reward models.Reward, rewards []models.Reward, events []models.BehaviorEvent, at time.Time) int {
	active := activeAt(rewards, reward.ChildID, at)
	isPrimary := len(active) > 0 && active[0].ID == reward.ID
	return sumWindow(reward, windowStart(reward, rewards, isPrimary, at), isPrimary, events, &at)
}

// windowStart is the earliest event time counted toward reward. A primary
// that moved up because the goals ahead of it passed their deadlines starts
// at the latest of those deadlines, even before the expiry is recorded.
func windowStart(reward models.Reward, rewards []models.Reward, isPrimary bool, at time.Time) time.Time {
	start := reward.WindowStart()
	if !isPrimary {
		return start
	}
	for _, r := range rewards {
		if !lapsed(r, at) || r.ID == reward.ID || r.ChildID != reward.ChildID || !less(r, reward) {
			continue
		}
		if r.DueDate.After(start) {
			start = *r.DueDate
		}
	}
	return start
}

// lapsed reports whether r passed its deadline without the expiry being recorded
func lapsed(r models.Reward, at time.Time) bool {
	return !r.IsRedeemed && r.ExpiredDate == nil && r.DueDate != nil && at.After(*r.DueDate)
}

func sumWindow(reward models.Reward, start time.Time, isPrimary bool, events []models.BehaviorEvent, until *time.Time) int {
	total := 0
	for _, ev := range events {
		if ev.ChildID != reward.ChildID || ev.PointsApplied <= 0 {
			continue
		}
		if ev.Timestamp.Before(start) {
			continue
		}
		if until != nil && ev.Timestamp.After(*until) {
			continue
		}
		if AttributionOf(ev).countsToward(reward.ID, isPrimary) {
			total += ev.PointsApplied
		}
	}
	return total
}

// Progress is a reward's earned points measured against its target
type Progress struct {
	RewardID string
	Earned   int
	Target   int
}

// Fraction returns earned/target, or 0 when the target is not positive
func (p Progress) Fraction() float64 {
	if p.Target <= 0 {
		return 0
	}
	return float64(p.Earned) / float64(p.Target)
}

// Percent returns the whole-number percentage, capped at 100
func (p Progress) Percent() int {
	pct := int(p.Fraction() * 100)
	if pct > 100 {
		return 100
	}
	return pct
}

// IsComplete reports whether the target has been reached
func (p Progress) IsComplete() bool {
	return p.Target > 0 && p.Earned >= p.Target
}

// Remaining returns the points still needed
func (p Progress) Remaining() int {
	if p.Target <= 0 || p.Earned >= p.Target {
		return 0
	}
	return p.Target - p.Earned
}

// Progress measures reward against its target
func (e *Engine) Progress(reward models.Reward, rewards []models.Reward, events []models.BehaviorEvent) Progress {
	return Progress{
		RewardID: reward.ID,
		Earned:   e.Earned(reward, rewards, events),
		Target:   reward.TargetPoints,
	}
}

// CrossingKind classifies a threshold crossing
type CrossingKind int

const (
	CrossingNone CrossingKind = iota
	CrossingMilestone
	CrossingGoalReached
)

func (k CrossingKind) String() string {
	switch k {
	case CrossingMilestone:
		return "milestone"
	case CrossingGoalReached:
		return "goalReached"
	default:
		return "none"
	}
}

// Crossing is the single threshold reported for one earned-points transition
type Crossing struct {
	Kind    CrossingKind
	Percent int
}

// crossed reports prev < pct% of target <= curr without rounding
func crossed(prev, curr, target, pct int) bool {
	threshold := pct * target
	return prev*100 < threshold && threshold <= curr*100
}

// DetectCrossing reports the highest threshold crossed going from prev to curr
// earned points. Crossing 100% yields goal-reached and never a milestone.
// Targets that are not positive never cross.
func DetectCrossing(prev, curr, target int) Crossing {
	if target <= 0 || curr <= prev {
		return Crossing{}
	}
	if crossed(prev, curr, target, GoalPercent) {
		return Crossing{Kind: CrossingGoalReached, Percent: GoalPercent}
	}
	for i := len(Milestones) - 1; i >= 0; i-- {
		if crossed(prev, curr, target, Milestones[i]) {
			return Crossing{Kind: CrossingMilestone, Percent: Milestones[i]}
		}
	}
	return Crossing{}
}

// Transition reports the crossing between two progress readings of one reward
func Transition(before, after Progress) Crossing {
	return DetectCrossing(before.Earned, after.Earned, after.Target)
}

// Normalize rewrites the child's active rewards to priorities 0..n-1 in
// selection order and returns only the rewards whose priority changed.
func (e *Engine) Normalize(rewards []models.Reward, childID string) []models.Reward {
	return normalize(e.Active(rewards, childID))
}

func normalize(ordered []models.Reward) []models.Reward {
	var changed []models.Reward
	for i, r := range ordered {
		if r.Priority != i {
			r.Priority = i
			changed = append(changed, r)
		}
	}
	return changed
}

// Plan is a set of reward rows to write back together
type Plan struct {
	// Target is the reward the operation was requested for, after the change
	Target models.Reward
	// Promoted is set when a queued reward became primary
	Promoted *models.Reward
	// Updates lists every reward row that changed, Target included
	Updates []models.Reward
}

// merge collects rows by id, later writes replacing earlier ones
func merge(rows ...models.Reward) []models.Reward {
	var out []models.Reward
	index := make(map[string]int)
	for _, r := range rows {
		if i, ok := index[r.ID]; ok {
			out[i] = r
			continue
		}
		index[r.ID] = len(out)
		out = append(out, r)
	}
	return out
}

// requeue normalizes the remaining active rewards after target leaves the
// active set. When target was primary, the new head is promoted and its window
// restarts at the given time so earlier events never count toward it. A head
// created after that time keeps its own start.
func requeue(remaining []models.Reward, wasPrimary bool, at time.Time) ([]models.Reward, *models.Reward) {
	changed := normalize(remaining)
	if !wasPrimary || len(remaining) == 0 {
		return changed, nil
	}
	head := remaining[0]
	if head.Priority == 0 && head.StartDate != nil && !head.StartDate.Before(at) {
		return changed, nil
	}
	start := at
	if head.CreatedDate.After(start) {
		start = head.CreatedDate
	}
	head.Priority = 0
	head.StartDate = &start
	changed = merge(append(changed, head)...)
	return changed, &head
}

func without(rewards []models.Reward, id string) []models.Reward {
	var out []models.Reward
	for _, r := range rewards {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}

// PlanRedemption freezes reward's earned total and marks it redeemed, then
// promotes the next queued reward when the redeemed one was primary.
// It returns false when the reward is unknown or already redeemed.
func (e *Engine) PlanRedemption(rewards []models.Reward, events []models.BehaviorEvent, rewardID string) (Plan, bool) {
	reward, ok := find(rewards, rewardID)
	if !ok || reward.IsRedeemed {
		return Plan{}, false
	}
	now := e.now()

	earned := e.Earned(reward, rewards, events)
	primary, hasPrimary := e.Primary(rewards, reward.ChildID)
	wasPrimary := hasPrimary && primary.ID == reward.ID

	reward.IsRedeemed = true
	reward.RedeemedDate = &now
	reward.FrozenEarnedPoints = &earned

	remaining := without(e.Active(rewards, reward.ChildID), reward.ID)
	changed, promoted := requeue(remaining, wasPrimary, now)

	return Plan{
		Target:   reward,
		Promoted: promoted,
		Updates:  merge(append([]models.Reward{reward}, changed...)...),
	}, true
}

// PlanRemoval requeues the child's rewards for rewardID leaving the active set
// without being redeemed, as when it is deleted
func (e *Engine) PlanRemoval(rewards []models.Reward, rewardID string) (Plan, bool) {
	reward, ok := find(rewards, rewardID)
	if !ok {
		return Plan{}, false
	}
	primary, hasPrimary := e.Primary(rewards, reward.ChildID)
	remaining := without(e.Active(rewards, reward.ChildID), reward.ID)
	changed, promoted := requeue(remaining, hasPrimary && primary.ID == reward.ID, e.now())
	return Plan{Target: reward, Promoted: promoted, Updates: changed}, true
}

// PlanExpiry flags every reward whose deadline has passed, freezing the total
// it had reached by its deadline. A lapsed primary hands over to the next goal
// as of its deadline. Plans are ordered by deadline and each one already
// accounts for the plans before it.
func (e *Engine) PlanExpiry(rewards []models.Reward, events []models.BehaviorEvent) []Plan {
	now := e.now()
	var due []models.Reward
	for _, r := range rewards {
		if lapsed(r, now) {
			due = append(due, r)
		}
	}
	sort.SliceStable(due, func(i, j int) bool {
		if !due[i].DueDate.Equal(*due[j].DueDate) {
			return due[i].DueDate.Before(*due[j].DueDate)
		}
		return less(due[i], due[j])
	})

	var plans []Plan
	working := append([]models.Reward(nil), rewards...)
	for _, r := range due {
		deadline := *r.DueDate
		current, _ := find(working, r.ID)

		earned := earnedAt(current, working, events, deadline)
		if current.FrozenEarnedPoints != nil {
			earned = *current.FrozenEarnedPoints
		}
		before := activeAt(working, current.ChildID, deadline)
		wasPrimary := len(before) > 0 && before[0].ID == current.ID

		current.ExpiredDate = &now
		current.FrozenEarnedPoints = &earned
		working = replace(working, current)

		remaining := without(activeAt(working, current.ChildID, deadline), current.ID)
		changed, promoted := requeue(remaining, wasPrimary, deadline)
		for _, c := range changed {
			working = replace(working, c)
		}

		plans = append(plans, Plan{
			Target:   current,
			Promoted: promoted,
			Updates:  merge(append([]models.Reward{current}, changed...)...),
		})
	}
	return plans
}

// PlanMakePrimary moves reward to the head of its child's queue. The rest keep
// their relative order. The new primary's window restarts now.
func (e *Engine) PlanMakePrimary(rewards []models.Reward, rewardID string) (Plan, bool) {
	reward, ok := find(rewards, rewardID)
	if !ok || !reward.IsActive(e.now()) {
		return Plan{}, false
	}
	active := e.Active(rewards, reward.ChildID)
	if len(active) > 0 && active[0].ID == reward.ID && reward.Priority == 0 {
		return Plan{Target: reward}, true
	}

	now := e.now()
	ordered := append([]models.Reward{reward}, without(active, reward.ID)...)
	changed := normalize(ordered)

	promoted := reward
	promoted.Priority = 0
	promoted.StartDate = &now
	changed = merge(append(changed, promoted)...)

	return Plan{Target: promoted, Promoted: &promoted, Updates: changed}, true
}

func find(rewards []models.Reward, id string) (models.Reward, bool) {
	for _, r := range rewards {
		if r.ID == id {
			return r, true
		}
	}
	return models.Reward{}, false
}

func replace(rewards []models.Reward, r models.Reward) []models.Reward {
	for i := range rewards {
		if rewards[i].ID == r.ID {
			rewards[i] = r
			return rewards
		}
	}
	return append(rewards, r)
}
