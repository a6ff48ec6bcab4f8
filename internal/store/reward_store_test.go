package store

import (
	"context"
	"testing"
	"time"

	"starchart/internal/models"
	"starchart/internal/rewards"
)

func earned(t *testing.T, h *household, id string) int {
	t.Helper()
	got, ok := h.rewards.Earned(id)
	if !ok {
		t.Fatalf("Earned(%s) not found", id)
	}
	return got
}

func TestRewardStoreGoalQueueScenario(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()
	child := h.addChild(t, "Ada")
	bt := h.addType(t, "Helped", models.CategoryPositive, 1)

	r1 := h.addReward(t, child.ID, "Bike ride", 10)
	r2 := h.addReward(t, child.ID, "Movie night", 5)
	if r1.Priority != 0 || r2.Priority != 1 {
		t.Fatalf("priorities = %d, %d, want 0, 1", r1.Priority, r2.Priority)
	}

	var crossings []rewards.Crossing
	for _, pts := range []int{3, 4, 5} {
		before, _ := h.rewards.Progress(r1.ID)
		h.logEvent(t, child.ID, bt.ID, pts)
		after, _ := h.rewards.Progress(r1.ID)
		crossings = append(crossings, rewards.Transition(before, after))
	}

	if got := earned(t, h, r1.ID); got != 12 {
		t.Fatalf("earned(R1) = %d, want 12", got)
	}
	if got := earned(t, h, r2.ID); got != 0 {
		t.Errorf("earned(R2) = %d, want 0 while queued", got)
	}
	last := crossings[len(crossings)-1]
	if last.Kind != rewards.CrossingGoalReached {
		t.Errorf("third event crossing = %+v, want goal reached", last)
	}

	h.clock.Advance(time.Minute)
	redeemedAt := h.clock.Now()
	plan, ok, err := h.rewards.Redeem(ctx, r1.ID)
	if err != nil || !ok {
		t.Fatalf("Redeem() = %v, %v", ok, err)
	}
	if plan.Promoted == nil || plan.Promoted.ID != r2.ID {
		t.Fatalf("promoted = %+v, want R2", plan.Promoted)
	}

	gotR1, _ := h.rewards.Reward(r1.ID)
	if !gotR1.IsRedeemed || gotR1.FrozenEarnedPoints == nil || *gotR1.FrozenEarnedPoints != 12 {
		t.Errorf("R1 = %+v, want redeemed and frozen at 12", gotR1)
	}
	gotR2, _ := h.rewards.Reward(r2.ID)
	if gotR2.Priority != 0 || gotR2.StartDate == nil || !gotR2.StartDate.Equal(redeemedAt) {
		t.Errorf("R2 = %+v, want priority 0 starting %v", gotR2, redeemedAt)
	}
	if primary, _ := h.rewards.Primary(child.ID); primary.ID != r2.ID {
		t.Errorf("Primary() = %s, want R2", primary.ID)
	}

	h.logEvent(t, child.ID, bt.ID, 2)
	if got := earned(t, h, r2.ID); got != 2 {
		t.Errorf("earned(R2) = %d, want 2", got)
	}
	if got := earned(t, h, r1.ID); got != 12 {
		t.Errorf("earned(R1) = %d, want 12 after redemption", got)
	}

	kinds := map[models.RewardHistoryKind]int{}
	for _, e := range h.rewards.History(child.ID) {
		kinds[e.Kind]++
	}
	if kinds[models.HistoryRedeemed] != 1 || kinds[models.HistoryStarted] != 2 {
		t.Errorf("history kinds = %v, want 1 redeemed and 2 started", kinds)
	}
}

func TestRewardStoreFrozenTotalSurvivesLedgerEdits(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()
	child := h.addChild(t, "Ada")
	bt := h.addType(t, "Helped", models.CategoryPositive, 1)
	r := h.addReward(t, child.ID, "Bike ride", 10)

	first := h.logEvent(t, child.ID, bt.ID, 6)
	second := h.logEvent(t, child.ID, bt.ID, 5)

	if _, _, err := h.rewards.Redeem(ctx, r.ID); err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if err := h.behaviors.DeleteEvent(ctx, first.ID); err != nil {
		t.Fatalf("DeleteEvent: %v", err)
	}
	second.PointsApplied = 50
	if err := h.behaviors.UpdateEvent(ctx, second); err != nil {
		t.Fatalf("UpdateEvent: %v", err)
	}

	got, _ := h.rewards.Reward(r.ID)
	if *got.FrozenEarnedPoints != 11 || earned(t, h, r.ID) != 11 {
		t.Errorf("frozen = %d, earned = %d, want 11", *got.FrozenEarnedPoints, earned(t, h, r.ID))
	}

	if _, ok, err := h.rewards.Redeem(ctx, r.ID); ok || err != nil {
		t.Errorf("redeeming twice = %v, %v, want false, nil", ok, err)
	}
}

func TestRewardStoreExplicitAttribution(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()
	child := h.addChild(t, "Ada")
	bt := h.addType(t, "Helped", models.CategoryPositive, 1)
	r1 := h.addReward(t, child.ID, "Bike ride", 10)
	r2 := h.addReward(t, child.ID, "Movie night", 5)

	h.clock.Advance(time.Minute)
	if _, err := h.behaviors.AddEvent(ctx, models.BehaviorEvent{
		ChildID: child.ID, BehaviorTypeID: bt.ID, PointsApplied: 4,
		RewardID: rewards.Explicit(r2.ID).Pointer(),
	}); err != nil {
		t.Fatalf("AddEvent: %v", err)
	}
	h.logEvent(t, child.ID, bt.ID, 1)

	if got := earned(t, h, r1.ID); got != 1 {
		t.Errorf("earned(R1) = %d, want 1", got)
	}
	if got := earned(t, h, r2.ID); got != 4 {
		t.Errorf("earned(R2) = %d, want 4", got)
	}
}

func TestRewardStoreSinglePrimaryInvariant(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()
	child := h.addChild(t, "Ada")
	other := h.addChild(t, "Grace")

	var ids []string
	for _, name := range []string{"Bike ride", "Movie night", "Zoo trip", "Sleepover"} {
		ids = append(ids, h.addReward(t, child.ID, name, 5).ID)
	}
	h.addReward(t, other.ID, "Lego set", 20)

	assertSinglePrimary := func(step string) {
		t.Helper()
		for _, c := range []string{child.ID, other.ID} {
			n := 0
			for _, r := range h.rewards.Rewards(c) {
				if r.IsActive(h.clock.Now()) && r.Priority == 0 {
					n++
				}
			}
			if n > 1 {
				t.Errorf("%s: child %s has %d primaries", step, c, n)
			}
		}
	}

	assertSinglePrimary("add")
	if err := h.rewards.MakePrimary(ctx, ids[2]); err != nil {
		t.Fatalf("MakePrimary: %v", err)
	}
	assertSinglePrimary("make primary")
	if p, _ := h.rewards.Primary(child.ID); p.ID != ids[2] {
		t.Errorf("Primary() = %s, want %s", p.ID, ids[2])
	}

	if _, _, err := h.rewards.Redeem(ctx, ids[2]); err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	assertSinglePrimary("redeem")

	if err := h.rewards.DeleteReward(ctx, ids[0]); err != nil {
		t.Fatalf("DeleteReward: %v", err)
	}
	assertSinglePrimary("delete")

	queue := h.rewards.Queue(child.ID)
	if len(queue) != 1 || queue[0].Priority != 1 {
		t.Errorf("Queue() = %+v, want one goal at priority 1", queue)
	}
}

func TestRewardStoreRejectsNonPositiveTarget(t *testing.T) {
	h := newHousehold(t)
	child := h.addChild(t, "Ada")

	for _, target := range []int{0, -3} {
		if _, err := h.rewards.AddReward(context.Background(), models.Reward{ChildID: child.ID, Name: "Bike ride", TargetPoints: target}); err == nil {
			t.Errorf("AddReward(target %d) should fail", target)
		}
	}
	if len(h.rewards.Rewards(child.ID)) != 0 {
		t.Error("rejected rewards must not be stored")
	}
}

func TestRewardStoreExpireOverdue(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()
	child := h.addChild(t, "Ada")
	bt := h.addType(t, "Helped", models.CategoryPositive, 1)

	due := h.clock.Now().Add(time.Hour)
	r1, err := h.rewards.AddReward(ctx, models.Reward{ChildID: child.ID, Name: "Bike ride", TargetPoints: 10, DueDate: &due})
	if err != nil {
		t.Fatalf("AddReward: %v", err)
	}
	r2 := h.addReward(t, child.ID, "Movie night", 5)
	h.logEvent(t, child.ID, bt.ID, 4)

	if plans, err := h.rewards.ExpireOverdue(ctx); err != nil || len(plans) != 0 {
		t.Fatalf("ExpireOverdue() before deadline = %d plans, %v", len(plans), err)
	}

	h.clock.Advance(2 * time.Hour)
	plans, err := h.rewards.ExpireOverdue(ctx)
	if err != nil || len(plans) != 1 {
		t.Fatalf("ExpireOverdue() = %d plans, %v, want 1", len(plans), err)
	}

	got, _ := h.rewards.Reward(r1.ID)
	if got.ExpiredDate == nil || *got.FrozenEarnedPoints != 4 {
		t.Errorf("R1 = %+v, want expired with 4 frozen", got)
	}
	if p, _ := h.rewards.Primary(child.ID); p.ID != r2.ID {
		t.Errorf("Primary() = %s, want R2 after expiry", p.ID)
	}
}

func TestRewardStoreUpdateReward(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()
	child := h.addChild(t, "Ada")
	r := h.addReward(t, child.ID, "Bike ride", 10)

	edit := r
	edit.Name = "Long bike ride"
	edit.TargetPoints = 15
	edit.Priority = 9
	if err := h.rewards.UpdateReward(ctx, edit); err != nil {
		t.Fatalf("UpdateReward: %v", err)
	}
	got, _ := h.rewards.Reward(r.ID)
	if got.Name != "Long bike ride" || got.TargetPoints != 15 || got.Priority != 0 {
		t.Errorf("Reward() = %+v, want renamed, retargeted and still primary", got)
	}

	edit.TargetPoints = 0
	if err := h.rewards.UpdateReward(ctx, edit); err == nil {
		t.Error("UpdateReward with zero target should fail")
	}
	if err := h.rewards.UpdateReward(ctx, models.Reward{ID: "missing", Name: "Nothing", TargetPoints: 1}); err != nil {
		t.Errorf("UpdateReward(missing) = %v, want nil", err)
	}
}

func TestRewardStoreRecordCrossingReloadsHistoryOnly(t *testing.T) {
	h := newHousehold(t)
	child := h.addChild(t, "Ada")
	r := h.addReward(t, child.ID, "Bike ride", 10)

	before := h.rewards.Snapshot()
	n := countNotifications(h.rewards.Publisher)
	crossing := rewards.Crossing{Kind: rewards.CrossingMilestone, Percent: 50}
	if err := h.rewards.RecordCrossing(context.Background(), r, rewards.Progress{Earned: 5, Target: 10}, crossing); err != nil {
		t.Fatalf("RecordCrossing: %v", err)
	}
	if *n != 1 {
		t.Errorf("RecordCrossing notified %d times, want 1", *n)
	}

	after := h.rewards.Snapshot()
	if &after.Rewards[0] != &before.Rewards[0] {
		t.Error("rewards slice should be carried over")
	}
	last := after.History[len(after.History)-1]
	if last.Kind != models.HistoryMilestone || last.Milestone != 50 {
		t.Errorf("last history = %+v, want 50%% milestone", last)
	}
}
