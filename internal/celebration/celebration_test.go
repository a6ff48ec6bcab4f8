package celebration

import (
	"context"
	"errors"
	"testing"
	"time"

	"starchart/internal/models"
	"starchart/internal/rewards"
)

type recordingSink struct {
	signals []Signal
	err     error
}

func (s *recordingSink) Present(_ context.Context, signal Signal) error {
	s.signals = append(s.signals, signal)
	return s.err
}

func TestEvaluate(t *testing.T) {
	child := models.Child{ID: "c1", Name: "Ada"}
	reward := models.Reward{ID: "r1", Name: "Bike ride", TargetPoints: 10}

	tests := []struct {
		name     string
		before   int
		after    int
		redeemed bool
		want     []Category
	}{
		{name: "no crossing", before: 1, after: 2},
		{name: "milestone", before: 0, after: 3, want: []Category{CategoryMilestone}},
		{name: "goal reached replaces milestone", before: 7, after: 12, want: []Category{CategoryGoalReached}},
		{name: "redemption", before: 12, after: 12, redeemed: true, want: []Category{CategoryCompletion}},
	}

	c := NewCoordinator(func() time.Time { return time.Unix(0, 0) })
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Evaluate(Evaluation{
				Child:    child,
				Reward:   reward,
				Before:   rewards.Progress{RewardID: "r1", Earned: tt.before, Target: 10},
				After:    rewards.Progress{RewardID: "r1", Earned: tt.after, Target: 10},
				Redeemed: tt.redeemed,
			})
			if len(got) != len(tt.want) {
				t.Fatalf("Evaluate() = %+v, want categories %v", got, tt.want)
			}
			for i, cat := range tt.want {
				if got[i].Category != cat {
					t.Errorf("signal %d category = %s, want %s", i, got[i].Category, cat)
				}
			}
		})
	}
}

func TestDeliverContinuesPastFailingSink(t *testing.T) {
	failing := &recordingSink{err: errors.New("smtp down")}
	ok := &recordingSink{}
	c := NewCoordinator(nil, failing, ok)

	signals := c.Deliver(context.Background(), Evaluation{
		Child:  models.Child{ID: "c1", Name: "Ada"},
		Reward: models.Reward{ID: "r1", Name: "Bike ride"},
		Before: rewards.Progress{Earned: 7, Target: 10},
		After:  rewards.Progress{Earned: 12, Target: 10},
	})

	if len(signals) != 1 || len(failing.signals) != 1 || len(ok.signals) != 1 {
		t.Fatalf("signals=%d failing=%d ok=%d, want 1 each", len(signals), len(failing.signals), len(ok.signals))
	}
	if ok.signals[0].Percent != 100 {
		t.Errorf("Percent = %d, want 100", ok.signals[0].Percent)
	}
}

func TestSignalMessage(t *testing.T) {
	s := Signal{Category: CategoryMilestone, ChildName: "Ada", RewardName: "Bike ride", Percent: 50}
	if got, want := s.Message(), "Ada is 50% of the way to Bike ride!"; got != want {
		t.Errorf("Message() = %q, want %q", got, want)
	}
}
