package store

import (
	"context"
	"errors"
	"testing"

	"starchart/internal/models"
	"starchart/internal/repository"
)

func TestBadgeLevel(t *testing.T) {
	tests := []struct {
		count int
		want  int
	}{
		{count: 0, want: 0},
		{count: 4, want: 0},
		{count: 5, want: 1},
		{count: 14, want: 1},
		{count: 15, want: 2},
		{count: 30, want: 3},
		{count: 300, want: 3},
	}
	for _, tt := range tests {
		if got := BadgeLevel(tt.count); got != tt.want {
			t.Errorf("BadgeLevel(%d) = %d, want %d", tt.count, got, tt.want)
		}
	}
}

func TestProgressionStoreBadgesAreMonotonic(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()
	child := h.addChild(t, "Ada")
	helped := h.addType(t, "Helped", models.CategoryPositive, 1)
	hitting := h.addType(t, "Hitting", models.CategoryNegative, -2)

	var events []models.BehaviorEvent
	for i := 0; i < 15; i++ {
		events = append(events, h.logEvent(t, child.ID, helped.ID, 1))
		h.logEvent(t, child.ID, hitting.ID, -2)
	}

	awarded, err := h.progression.EvaluateBadges(ctx, child.ID)
	if err != nil {
		t.Fatalf("EvaluateBadges: %v", err)
	}
	if len(awarded) != 2 {
		t.Fatalf("awarded %d badges, want levels 1 and 2", len(awarded))
	}
	best, ok := h.progression.Badge(child.ID, helped.ID)
	if !ok || best.Level != 2 || best.BehaviorCount != 15 {
		t.Errorf("Badge() = %+v, want level 2 at 15", best)
	}
	if _, ok := h.progression.Badge(child.ID, hitting.ID); ok {
		t.Error("negative behaviors never earn badges")
	}

	for _, e := range events[:10] {
		if err := h.behaviors.DeleteEvent(ctx, e.ID); err != nil {
			t.Fatalf("DeleteEvent: %v", err)
		}
	}
	n := countNotifications(h.progression.Publisher)
	again, err := h.progression.EvaluateBadges(ctx, child.ID)
	if err != nil || len(again) != 0 {
		t.Errorf("re-evaluation = %d badges, %v, want none", len(again), err)
	}
	if *n != 0 {
		t.Errorf("no-op evaluation notified %d times", *n)
	}
	if best, _ := h.progression.Badge(child.ID, helped.ID); best.Level != 2 {
		t.Errorf("badge level dropped to %d", best.Level)
	}
}

func TestProgressionStoreSpecialMoments(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()
	child := h.addChild(t, "Ada")
	bt := h.addType(t, "Helped", models.CategoryPositive, 1)
	event := h.logEvent(t, child.ID, bt.ID, 1)

	m, err := h.progression.AddSpecialMoment(ctx, event.ID, child.ID, "Helped grandma bake")
	if err != nil {
		t.Fatalf("AddSpecialMoment: %v", err)
	}
	if _, err := h.progression.AddSpecialMoment(ctx, event.ID, child.ID, "Again"); err == nil {
		t.Error("second moment for one event should fail")
	}

	if err := h.progression.UpdateCaption(ctx, m.ID, "Baked bread with grandma"); err != nil {
		t.Fatalf("UpdateCaption: %v", err)
	}
	if got, _ := h.progression.Moment(event.ID); got.Caption != "Baked bread with grandma" {
		t.Errorf("Caption = %q", got.Caption)
	}
	if len(h.progression.Moments(child.ID)) != 1 {
		t.Error("Moments() should list the moment")
	}

	if err := h.progression.DeleteSpecialMoment(ctx, m.ID); err != nil {
		t.Fatalf("DeleteSpecialMoment: %v", err)
	}
	if _, ok := h.progression.Moment(event.ID); ok {
		t.Error("deleted moment should not resolve")
	}
	if err := h.progression.UpdateCaption(ctx, m.ID, "Gone"); err != nil {
		t.Errorf("UpdateCaption(deleted) = %v, want nil", err)
	}
}

// badgeQuota lets a fixed number of badge writes through, then fails
type badgeQuota struct {
	*repository.MemoryRepository
	left int
}

func (r *badgeQuota) AddSkillBadge(badge models.SkillBadge) error {
	if r.left == 0 {
		return errors.New("disk full")
	}
	r.left--
	return r.MemoryRepository.AddSkillBadge(badge)
}

func TestProgressionStoreEvaluateBadgesPartialFailure(t *testing.T) {
	h := newHousehold(t)
	ctx := context.Background()
	child := h.addChild(t, "Ada")
	helped := h.addType(t, "Helped", models.CategoryPositive, 1)
	for i := 0; i < 15; i++ {
		h.logEvent(t, child.ID, helped.ID, 1)
	}

	progression := NewProgressionStore(&badgeQuota{MemoryRepository: h.repo, left: 1}, h.behaviors, h.clock.Now)
	if err := progression.LoadData(ctx); err != nil {
		t.Fatalf("LoadData: %v", err)
	}

	awarded, err := progression.EvaluateBadges(ctx, child.ID)
	if err == nil {
		t.Fatal("EvaluateBadges should report the failed write")
	}
	if len(awarded) != 1 {
		t.Fatalf("awarded %d badges before the failure, want 1", len(awarded))
	}
	if best, ok := progression.Badge(child.ID, helped.ID); !ok || best.Level != 1 {
		t.Errorf("Badge() = %+v, %v, want the written level 1 published", best, ok)
	}
}
