package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"starchart/internal/celebration"
	"starchart/internal/models"
	"starchart/internal/repository"
	"starchart/internal/security"
	"starchart/internal/store"
)

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

type recordingSink struct {
	signals []celebration.Signal
}

func (r *recordingSink) Present(_ context.Context, s celebration.Signal) error {
	r.signals = append(r.signals, s)
	return nil
}

type fixture struct {
	svc   *HouseholdService
	repo  *repository.MemoryRepository
	clock *testClock
	sink  *recordingSink
}

func newFixture(t *testing.T, guard *security.PINGuard) *fixture {
	t.Helper()
	clk := &testClock{t: time.Date(2026, 5, 20, 9, 0, 0, 0, time.UTC)}
	repo := repository.NewMemory()
	repo.SetClock(clk.Now, time.UTC)
	sink := &recordingSink{}

	svc := NewHouseholdService(repo, clk.Now, guard, sink)
	if err := svc.LoadData(context.Background()); err != nil {
		t.Fatalf("LoadData: %v", err)
	}
	return &fixture{svc: svc, repo: repo, clock: clk, sink: sink}
}

func (f *fixture) child(t *testing.T, name string) models.Child {
	t.Helper()
	c, err := f.svc.Children.AddChild(context.Background(), models.Child{Name: name})
	if err != nil {
		t.Fatalf("AddChild: %v", err)
	}
	return c
}

func (f *fixture) behavior(t *testing.T, name string, category models.BehaviorCategory, points int, monetized bool) models.BehaviorType {
	t.Helper()
	bt, err := f.svc.Behaviors.AddBehaviorType(context.Background(), models.BehaviorType{
		Name: name, Category: category, DefaultPoints: points, IsMonetized: monetized,
	})
	if err != nil {
		t.Fatalf("AddBehaviorType: %v", err)
	}
	return bt
}

func (f *fixture) log(t *testing.T, childID, typeID string) LogResult {
	t.Helper()
	f.clock.Advance(time.Minute)
	res, err := f.svc.LogBehavior(context.Background(), LogRequest{ChildID: childID, BehaviorTypeID: typeID})
	if err != nil {
		t.Fatalf("LogBehavior: %v", err)
	}
	return res
}

func TestLogBehaviorAppliesConsequences(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ada := f.child(t, "Ada")
	tidy := f.behavior(t, "Tidy room", models.CategoryPositive, 5, false)

	bike, err := f.svc.AddGoal(ctx, ada.ID, "Bike", 20, nil)
	if err != nil {
		t.Fatalf("AddGoal: %v", err)
	}

	res := f.log(t, ada.ID, tidy.ID)
	if len(res.Signals) != 1 || res.Signals[0].Category != celebration.CategoryMilestone || res.Signals[0].Percent != 25 {
		t.Fatalf("first log signals = %+v, want one 25%% milestone", res.Signals)
	}
	if res.Streak == nil || res.Streak.CurrentStreak != 1 {
		t.Errorf("Streak = %+v, want current 1", res.Streak)
	}
	if c, _ := f.svc.Children.Child(ada.ID); c.TotalPoints != 5 {
		t.Errorf("TotalPoints = %d, want 5", c.TotalPoints)
	}

	f.log(t, ada.ID, tidy.ID)
	f.log(t, ada.ID, tidy.ID)
	res = f.log(t, ada.ID, tidy.ID)
	if len(res.Signals) != 1 || res.Signals[0].Category != celebration.CategoryGoalReached {
		t.Fatalf("fourth log signals = %+v, want goal reached", res.Signals)
	}
	if s, ok := f.svc.Celebrations.Active(celebration.CategoryGoalReached); !ok || s.RewardID != bike.ID {
		t.Errorf("goal reached celebration not presented in app")
	}

	var milestones []int
	for _, h := range f.svc.Rewards.History(ada.ID) {
		if h.Kind == models.HistoryMilestone {
			milestones = append(milestones, h.Milestone)
		}
	}
	if len(milestones) != 4 {
		t.Errorf("milestone history = %v, want 25, 50, 75 and 100", milestones)
	}
	if len(f.sink.signals) != 4 {
		t.Errorf("sink received %d signals, want 4", len(f.sink.signals))
	}
}

func TestLogBehaviorRejects(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ada := f.child(t, "Ada")
	bo := f.child(t, "Bo")
	tidy := f.behavior(t, "Tidy room", models.CategoryPositive, 5, false)
	retired := f.behavior(t, "Old chore", models.CategoryPositive, 5, false)
	if err := f.svc.Behaviors.DeactivateBehaviorType(ctx, retired.ID); err != nil {
		t.Fatalf("DeactivateBehaviorType: %v", err)
	}
	bosGoal, err := f.svc.AddGoal(ctx, bo.ID, "Kite", 10, nil)
	if err != nil {
		t.Fatalf("AddGoal: %v", err)
	}
	gone := f.child(t, "Cy")
	if err := f.svc.Children.ArchiveChild(ctx, gone.ID); err != nil {
		t.Fatalf("ArchiveChild: %v", err)
	}

	tests := []struct {
		name string
		req  LogRequest
		want error
	}{
		{"unknown child", LogRequest{ChildID: "nope", BehaviorTypeID: tidy.ID}, ErrChildNotFound},
		{"archived child", LogRequest{ChildID: gone.ID, BehaviorTypeID: tidy.ID}, ErrChildArchived},
		{"unknown behavior", LogRequest{ChildID: ada.ID, BehaviorTypeID: "nope"}, ErrBehaviorNotFound},
		{"inactive behavior", LogRequest{ChildID: ada.ID, BehaviorTypeID: retired.ID}, ErrBehaviorInactive},
		{"another child's goal", LogRequest{ChildID: ada.ID, BehaviorTypeID: tidy.ID, RewardID: &bosGoal.ID}, ErrRewardNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.LogBehavior(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("LogBehavior() error = %v, want %v", err, tt.want)
			}
		})
	}
	if n := len(f.svc.Behaviors.Events()); n != 0 {
		t.Errorf("rejected logs wrote %d events", n)
	}
}

func TestRedeemGoal(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ada := f.child(t, "Ada")
	tidy := f.behavior(t, "Tidy room", models.CategoryPositive, 5, false)
	bike, _ := f.svc.AddGoal(ctx, ada.ID, "Bike", 10, nil)
	book, _ := f.svc.AddGoal(ctx, ada.ID, "Book", 10, nil)

	f.log(t, ada.ID, tidy.ID)
	if _, err := f.svc.RedeemGoal(ctx, bike.ID, false); !errors.Is(err, ErrGoalNotReached) {
		t.Fatalf("early RedeemGoal() error = %v, want ErrGoalNotReached", err)
	}
	e := f.log(t, ada.ID, tidy.ID).Event

	f.clock.Advance(time.Minute)
	res, err := f.svc.RedeemGoal(ctx, bike.ID, false)
	if err != nil {
		t.Fatalf("RedeemGoal() error = %v", err)
	}
	if res.Promoted == nil || res.Promoted.ID != book.ID {
		t.Errorf("Promoted = %+v, want Book", res.Promoted)
	}
	if len(res.Signals) != 1 || res.Signals[0].Category != celebration.CategoryCompletion {
		t.Errorf("Signals = %+v, want one completion", res.Signals)
	}

	if err := f.svc.DeleteEvent(ctx, e.ID); err != nil {
		t.Fatalf("DeleteEvent() error = %v", err)
	}
	if earned, _ := f.svc.Rewards.Earned(bike.ID); earned != 10 {
		t.Errorf("frozen earned after delete = %d, want 10", earned)
	}
	if earned, _ := f.svc.Rewards.Earned(book.ID); earned != 0 {
		t.Errorf("promoted goal earned = %d, want 0", earned)
	}
	if c, _ := f.svc.Children.Child(ada.ID); c.TotalPoints != 5 {
		t.Errorf("TotalPoints after delete = %d, want 5", c.TotalPoints)
	}

	if _, err := f.svc.RedeemGoal(ctx, bike.ID, true); !errors.Is(err, ErrRewardNotFound) {
		t.Errorf("second RedeemGoal() error = %v, want ErrRewardNotFound", err)
	}
}

func TestEditAndDeleteEvent(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ada := f.child(t, "Ada")
	tidy := f.behavior(t, "Tidy room", models.CategoryPositive, 5, false)
	e := f.log(t, ada.ID, tidy.ID).Event

	if _, err := f.svc.AddMoment(ctx, e.ID, "First tidy room without asking"); err != nil {
		t.Fatalf("AddMoment() error = %v", err)
	}

	e.PointsApplied = 8
	if _, err := f.svc.EditEvent(ctx, e); err != nil {
		t.Fatalf("EditEvent() error = %v", err)
	}
	if c, _ := f.svc.Children.Child(ada.ID); c.TotalPoints != 8 {
		t.Errorf("TotalPoints after edit = %d, want 8", c.TotalPoints)
	}

	if err := f.svc.DeleteEvent(ctx, e.ID); err != nil {
		t.Fatalf("DeleteEvent() error = %v", err)
	}
	if c, _ := f.svc.Children.Child(ada.ID); c.TotalPoints != 0 {
		t.Errorf("TotalPoints after delete = %d, want 0", c.TotalPoints)
	}
	if _, ok := f.svc.Progression.Moment(e.ID); ok {
		t.Error("special moment survived its event")
	}
	if st, ok := f.svc.Behaviors.Streak(ada.ID, tidy.ID); ok && st.CurrentStreak != 0 {
		t.Errorf("streak after delete = %d, want 0", st.CurrentStreak)
	}
	if err := f.svc.DeleteEvent(ctx, e.ID); !errors.Is(err, ErrEventNotFound) {
		t.Errorf("second DeleteEvent() error = %v, want ErrEventNotFound", err)
	}
}

func TestSignAgreement(t *testing.T) {
	hash, err := security.HashPIN("2468")
	if err != nil {
		t.Fatalf("HashPIN: %v", err)
	}
	f := newFixture(t, security.NewPINGuard(hash))
	ctx := context.Background()
	ada := f.child(t, "Ada")
	if _, err := f.svc.AddGoal(ctx, ada.ID, "Bike", 10, nil); err != nil {
		t.Fatalf("AddGoal: %v", err)
	}

	if _, completed, err := f.svc.SignAgreement(ctx, ada.ID, models.SignerChild, ""); err != nil || completed {
		t.Fatalf("child SignAgreement() = %v, %v; want pending", completed, err)
	}
	if _, _, err := f.svc.SignAgreement(ctx, ada.ID, models.SignerParent, "0000"); !errors.Is(err, security.ErrInvalidPIN) {
		t.Fatalf("parent SignAgreement(wrong PIN) error = %v, want ErrInvalidPIN", err)
	}
	v, completed, err := f.svc.SignAgreement(ctx, ada.ID, models.SignerParent, "2468")
	if err != nil || !completed {
		t.Fatalf("parent SignAgreement() = %v, %v; want completed", completed, err)
	}
	if !v.IsFullySigned() {
		t.Error("agreement should be fully signed")
	}
	if got := f.svc.Agreements.CoverageStatus(ada.ID); got != models.SignedCurrent {
		t.Errorf("CoverageStatus = %q, want %q", got, models.SignedCurrent)
	}

	c, _ := f.svc.Children.Child(ada.ID)
	if len(c.Signatures) != 2 || c.Signatures[1].Role != models.SignerParent || c.Signatures[1].VersionID != v.ID {
		t.Errorf("Signatures = %+v, want child then parent on %s", c.Signatures, v.ID)
	}

	if _, _, err := f.svc.SignAgreement(ctx, ada.ID, "guardian", ""); err == nil {
		t.Error("SignAgreement accepted an unknown role")
	}
}

func TestAllowance(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ada := f.child(t, "Ada")
	dishes := f.behavior(t, "Dishes", models.CategoryRoutinePositive, 3, true)
	reading := f.behavior(t, "Reading", models.CategoryPositive, 4, false)

	f.log(t, ada.ID, dishes.ID)
	f.log(t, ada.ID, dishes.ID)
	f.log(t, ada.ID, reading.ID)

	owed, err := f.svc.AllowanceOwed(ada.ID)
	if err != nil || owed != 6 {
		t.Fatalf("AllowanceOwed() = %d, %v; want 6", owed, err)
	}
	paid, err := f.svc.PayAllowance(ctx, ada.ID, "")
	if err != nil || paid != 6 {
		t.Fatalf("PayAllowance() = %d, %v; want 6", paid, err)
	}
	if _, err := f.svc.PayAllowance(ctx, ada.ID, ""); !errors.Is(err, ErrNothingOwed) {
		t.Errorf("second PayAllowance() error = %v, want ErrNothingOwed", err)
	}

	f.log(t, ada.ID, dishes.ID)
	if owed, _ := f.svc.AllowanceOwed(ada.ID); owed != 3 {
		t.Errorf("AllowanceOwed() after another chore = %d, want 3", owed)
	}
}

func TestDashboardAndOverview(t *testing.T) {
	f := newFixture(t, nil)
	ada := f.child(t, "Ada")
	tidy := f.behavior(t, "Tidy room", models.CategoryPositive, 5, false)
	f.log(t, ada.ID, tidy.ID)

	dash, err := f.svc.Dashboard(ada.ID)
	if err != nil {
		t.Fatalf("Dashboard() error = %v", err)
	}
	if dash.TodayPoints != 5 || dash.BestStreak != 1 {
		t.Errorf("dashboard = %+v, want 5 points and streak 1", dash)
	}
	if _, err := f.svc.Dashboard("nope"); !errors.Is(err, ErrChildNotFound) {
		t.Errorf("Dashboard(missing) error = %v, want ErrChildNotFound", err)
	}
	if got := f.svc.Overview(); got.FamilyTotal != 5 || len(got.Children) != 1 {
		t.Errorf("Overview() = %+v, want one child with 5 points", got)
	}
}

func (f *fixture) logPoints(t *testing.T, childID, typeID string, points int, rewardID *string) LogResult {
	t.Helper()
	f.clock.Advance(time.Minute)
	res, err := f.svc.LogBehavior(context.Background(), LogRequest{
		ChildID: childID, BehaviorTypeID: typeID, Points: &points, RewardID: rewardID,
	})
	if err != nil {
		t.Fatalf("LogBehavior: %v", err)
	}
	return res
}

func TestGoalPastDeadlineHandsOverAtDeadline(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ada := f.child(t, "Ada")
	helped := f.behavior(t, "Helped", models.CategoryPositive, 1, false)

	due := f.clock.Now().Add(time.Hour)
	trip, err := f.svc.AddGoal(ctx, ada.ID, "Zoo trip", 100, &due)
	if err != nil {
		t.Fatalf("AddGoal: %v", err)
	}
	book, err := f.svc.AddGoal(ctx, ada.ID, "Book", 10, nil)
	if err != nil {
		t.Fatalf("AddGoal: %v", err)
	}
	f.logPoints(t, ada.ID, helped.ID, 3, nil)
	f.logPoints(t, ada.ID, helped.ID, 4, nil)

	f.clock.Advance(2 * time.Hour)
	if p, _ := f.svc.Rewards.Progress(book.ID); p.Earned != 0 {
		t.Errorf("Book earned %d once the trip lapsed, want 0", p.Earned)
	}

	res := f.logPoints(t, ada.ID, helped.ID, 1, nil)
	if len(res.Signals) != 0 {
		t.Errorf("signals = %+v, want none for 1 of 10", res.Signals)
	}
	if p, _ := f.svc.Rewards.Progress(book.ID); p.Earned != 1 {
		t.Errorf("Book earned %d, want only the point logged after the deadline", p.Earned)
	}

	got, _ := f.svc.Rewards.Reward(trip.ID)
	if got.ExpiredDate == nil || got.FrozenEarnedPoints == nil || *got.FrozenEarnedPoints != 7 {
		t.Errorf("trip = %+v, want expired with 7 frozen", got)
	}
	promoted, _ := f.svc.Rewards.Reward(book.ID)
	if promoted.Priority != 0 || promoted.StartDate == nil || !promoted.StartDate.Equal(due) {
		t.Errorf("book = %+v, want primary starting at the trip's deadline", promoted)
	}
	if len(f.sink.signals) != 0 {
		t.Errorf("sink received %+v, want nothing", f.sink.signals)
	}
}

func TestLogBehaviorPublishesBehaviorsOnce(t *testing.T) {
	f := newFixture(t, nil)
	ada := f.child(t, "Ada")
	tidy := f.behavior(t, "Tidy room", models.CategoryPositive, 5, false)

	var snaps []store.BehaviorSnapshot
	cancel := f.svc.Behaviors.Subscribe(func(s store.BehaviorSnapshot) { snaps = append(snaps, s) })
	defer cancel()

	res := f.log(t, ada.ID, tidy.ID)
	if len(snaps) != 1 {
		t.Fatalf("BehaviorStore notified %d times for one log, want 1", len(snaps))
	}
	if len(snaps[0].Events) != 1 || len(snaps[0].Streaks) != 1 || snaps[0].Streaks[0].CurrentStreak != 1 {
		t.Errorf("published snapshot = %+v, want the event with its streak", snaps[0])
	}
	if res.Streak == nil || res.Streak.CurrentStreak != 1 {
		t.Errorf("Streak = %+v, want current 1", res.Streak)
	}
}

func TestEditEventChecksGoal(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	ada := f.child(t, "Ada")
	bo := f.child(t, "Bo")
	tidy := f.behavior(t, "Tidy room", models.CategoryPositive, 5, false)

	bike, err := f.svc.AddGoal(ctx, ada.ID, "Bike", 20, nil)
	if err != nil {
		t.Fatalf("AddGoal: %v", err)
	}
	book, err := f.svc.AddGoal(ctx, ada.ID, "Book", 10, nil)
	if err != nil {
		t.Fatalf("AddGoal: %v", err)
	}
	kite, err := f.svc.AddGoal(ctx, bo.ID, "Kite", 10, nil)
	if err != nil {
		t.Fatalf("AddGoal: %v", err)
	}

	e := f.logPoints(t, ada.ID, tidy.ID, 5, &book.ID).Event
	if _, err := f.svc.RedeemGoal(ctx, book.ID, true); err != nil {
		t.Fatalf("RedeemGoal: %v", err)
	}

	e.Note = "kept after redemption"
	if _, err := f.svc.EditEvent(ctx, e); err != nil {
		t.Errorf("EditEvent() keeping a finished goal = %v, want nil", err)
	}

	missing := "missing"
	tests := []struct {
		name     string
		rewardID *string
		wantErr  error
	}{
		{name: "unknown goal", rewardID: &missing, wantErr: ErrRewardNotFound},
		{name: "another child's goal", rewardID: &kite.ID, wantErr: ErrRewardNotFound},
		{name: "active goal", rewardID: &bike.ID},
		{name: "back to the primary", rewardID: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			edit, _ := f.svc.Behaviors.Event(e.ID)
			edit.RewardID = tt.rewardID
			_, err := f.svc.EditEvent(ctx, edit)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("EditEvent() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
