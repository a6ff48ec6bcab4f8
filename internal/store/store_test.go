package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"starchart/internal/models"
	"starchart/internal/repository"
	"starchart/internal/rewards"
)

// testClock is a settable clock shared by every store in a household
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type household struct {
	repo         *repository.MemoryRepository
	clock        *testClock
	children     *ChildStore
	behaviors    *BehaviorStore
	rewards      *RewardStore
	agreements   *AgreementStore
	progression  *ProgressionStore
	celebrations *CelebrationStore
}

func newHousehold(t *testing.T) *household {
	t.Helper()

	clk := &testClock{t: time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)}
	repo := repository.NewMemory()
	repo.SetClock(clk.Now, time.UTC)

	h := &household{repo: repo, clock: clk}
	h.children = NewChildStore(repo, clk.Now)
	h.behaviors = NewBehaviorStore(repo, clk.Now)
	h.rewards = NewRewardStore(repo, h.behaviors, rewards.NewEngine(clk.Now))
	h.agreements = NewAgreementStore(repo, h.rewards, h.behaviors, clk.Now)
	h.progression = NewProgressionStore(repo, h.behaviors, clk.Now)
	h.celebrations = NewCelebrationStore()

	ctx := context.Background()
	for _, load := range []func(context.Context) error{
		h.children.LoadData, h.behaviors.LoadData, h.rewards.LoadData,
		h.agreements.LoadData, h.progression.LoadData,
	} {
		if err := load(ctx); err != nil {
			t.Fatalf("LoadData: %v", err)
		}
	}
	return h
}

func (h *household) addChild(t *testing.T, name string) models.Child {
	t.Helper()
	c, err := h.children.AddChild(context.Background(), models.Child{Name: name})
	if err != nil {
		t.Fatalf("AddChild: %v", err)
	}
	return c
}

func (h *household) addType(t *testing.T, name string, category models.BehaviorCategory, points int) models.BehaviorType {
	t.Helper()
	bt, err := h.behaviors.AddBehaviorType(context.Background(), models.BehaviorType{Name: name, Category: category, DefaultPoints: points})
	if err != nil {
		t.Fatalf("AddBehaviorType: %v", err)
	}
	return bt
}

func (h *household) addReward(t *testing.T, childID, name string, target int) models.Reward {
	t.Helper()
	r, err := h.rewards.AddReward(context.Background(), models.Reward{ChildID: childID, Name: name, TargetPoints: target})
	if err != nil {
		t.Fatalf("AddReward: %v", err)
	}
	return r
}

func (h *household) logEvent(t *testing.T, childID, typeID string, points int) models.BehaviorEvent {
	t.Helper()
	h.clock.Advance(time.Minute)
	e, err := h.behaviors.AddEvent(context.Background(), models.BehaviorEvent{ChildID: childID, BehaviorTypeID: typeID, PointsApplied: points})
	if err != nil {
		t.Fatalf("AddEvent: %v", err)
	}
	return e
}

// countNotifications subscribes to p and returns a pointer to the running count
func countNotifications[S any](p *Publisher[S]) *int {
	n := new(int)
	p.Subscribe(func(S) { *n++ })
	return n
}
