// Package celebration decides which celebrations to surface after points
// change or a goal is redeemed. The coordinator holds no state; it evaluates
// one transition at a time and hands signals to its sinks.
package celebration

import (
	"context"
	"fmt"
	"log"
	"time"

	"starchart/internal/models"
	"starchart/internal/rewards"
)

// Category groups mutually exclusive celebrations
type Category string

const (
	CategoryMilestone   Category = "milestone"
	CategoryGoalReached Category = "goalReached"
	CategoryCompletion  Category = "completion"
)

// Signal is one celebration to show or send
type Signal struct {
	Category   Category
	ChildID    string
	ChildName  string
	RewardID   string
	RewardName string
	Percent    int
	Earned     int
	Target     int
	Timestamp  time.Time
}

// Message renders the signal for notifications and the CLI
func (s Signal) Message() string {
	switch s.Category {
	case CategoryMilestone:
		return fmt.Sprintf("%s is %d%% of the way to %s!", s.ChildName, s.Percent, s.RewardName)
	case CategoryGoalReached:
		return fmt.Sprintf("%s reached %s with %d points!", s.ChildName, s.RewardName, s.Earned)
	case CategoryCompletion:
		return fmt.Sprintf("%s redeemed %s.", s.ChildName, s.RewardName)
	default:
		return ""
	}
}

// Sink receives celebration signals
type Sink interface {
	Present(ctx context.Context, signal Signal) error
}

// Evaluation describes one change to a reward's progress
type Evaluation struct {
	Child    models.Child
	Reward   models.Reward
	Before   rewards.Progress
	After    rewards.Progress
	Redeemed bool
}

// Coordinator applies the celebration rules and fans signals out to sinks
type Coordinator struct {
	sinks []Sink
	now   func() time.Time
}

// NewCoordinator creates a coordinator delivering to the given sinks in order
func NewCoordinator(now func() time.Time, sinks ...Sink) *Coordinator {
	if now == nil {
		now = time.Now
	}
	return &Coordinator{sinks: sinks, now: now}
}

// Evaluate returns the signals for a transition, at most one per category.
// Goal-reached replaces the milestone for the same transition.
func (c *Coordinator) Evaluate(ev Evaluation) []Signal {
	base := Signal{
		ChildID:    ev.Child.ID,
		ChildName:  ev.Child.Name,
		RewardID:   ev.Reward.ID,
		RewardName: ev.Reward.Name,
		Earned:     ev.After.Earned,
		Target:     ev.After.Target,
		Timestamp:  c.now(),
	}

	var signals []Signal
	switch crossing := rewards.Transition(ev.Before, ev.After); crossing.Kind {
	case rewards.CrossingGoalReached:
		s := base
		s.Category = CategoryGoalReached
		s.Percent = crossing.Percent
		signals = append(signals, s)
	case rewards.CrossingMilestone:
		s := base
		s.Category = CategoryMilestone
		s.Percent = crossing.Percent
		signals = append(signals, s)
	}

	if ev.Redeemed {
		s := base
		s.Category = CategoryCompletion
		s.Percent = ev.After.Percent()
		signals = append(signals, s)
	}
	return signals
}

// Deliver evaluates the transition and presents each signal to every sink.
// A failing sink is logged and does not stop the others.
func (c *Coordinator) Deliver(ctx context.Context, ev Evaluation) []Signal {
	signals := c.Evaluate(ev)
	for _, s := range signals {
		for _, sink := range c.sinks {
			if err := sink.Present(ctx, s); err != nil {
				log.Printf("celebration: sink failed for %s on reward %s: %v", s.Category, s.RewardID, err)
			}
		}
	}
	return signals
}
