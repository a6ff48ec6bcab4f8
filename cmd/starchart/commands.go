package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"starchart/internal/models"
	"starchart/internal/projection"
	"starchart/internal/service"
)

type cli struct {
	svc      *service.HouseholdService
	out      io.Writer
	color    bool
	debounce time.Duration
}

type command func(ctx context.Context, args []string) error

func (c *cli) commands() map[string]command {
	return map[string]command{
		"add-child":      c.addChild,
		"children":       c.children,
		"archive-child":  c.archiveChild,
		"seed-behaviors": c.seedBehaviors,
		"add-behavior":   c.addBehavior,
		"behaviors":      c.behaviors,
		"log":            c.logBehavior,
		"events":         c.events,
		"edit-event":     c.editEvent,
		"delete-event":   c.deleteEvent,
		"moment":         c.moment,
		"add-goal":       c.addGoal,
		"goals":          c.goals,
		"primary":        c.primary,
		"redeem":         c.redeem,
		"sign":           c.sign,
		"status":         c.status,
		"payout":         c.payout,
		"dashboard":      c.dashboard,
		"watch":          c.watch,
	}
}

func (c *cli) run(ctx context.Context, name string, args []string) error {
	cmd, ok := c.commands()[name]
	if !ok {
		printUsage()
		return fmt.Errorf("unknown command")
	}
	return cmd(ctx, args)
}

func newFlags(name string) *flag.FlagSet {
	return flag.NewFlagSet(name, flag.ContinueOnError)
}

// findChild resolves a child by id or case-insensitive name
func (c *cli) findChild(ref string) (models.Child, error) {
	if ref == "" {
		return models.Child{}, errors.New("-child is required")
	}
	if child, ok := c.svc.Children.Child(ref); ok {
		return child, nil
	}
	for _, child := range c.svc.Children.Children() {
		if strings.EqualFold(child.Name, ref) {
			return child, nil
		}
	}
	return models.Child{}, fmt.Errorf("%w: %s", service.ErrChildNotFound, ref)
}

// findBehavior resolves a behavior type by id or case-insensitive name
func (c *cli) findBehavior(ref string) (models.BehaviorType, error) {
	if bt, ok := c.svc.Behaviors.Type(ref); ok {
		return bt, nil
	}
	for _, bt := range c.svc.Behaviors.Types() {
		if strings.EqualFold(bt.Name, ref) {
			return bt, nil
		}
	}
	return models.BehaviorType{}, fmt.Errorf("%w: %s", service.ErrBehaviorNotFound, ref)
}

// swatch renders a color tag as a block when writing to a terminal
func (c *cli) swatch(tag string) string {
	if !c.color || len(tag) != 7 {
		return tag
	}
	r, err1 := strconv.ParseUint(tag[1:3], 16, 8)
	g, err2 := strconv.ParseUint(tag[3:5], 16, 8)
	b, err3 := strconv.ParseUint(tag[5:7], 16, 8)
	if err1 != nil || err2 != nil || err3 != nil {
		return tag
	}
	return fmt.Sprintf("\x1b[38;2;%d;%d;%dm■\x1b[0m %s", r, g, b, tag)
}

func (c *cli) addChild(ctx context.Context, args []string) error {
	fs := newFlags("add-child")
	name := fs.String("name", "", "Child's name")
	age := fs.Int("age", -1, "Child's age in years")
	if err := fs.Parse(args); err != nil {
		return err
	}

	child := models.Child{Name: *name}
	if *age >= 0 {
		child.Age = age
	}
	added, err := c.svc.Children.AddChild(ctx, child)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Added %s (%s) %s\n", added.Name, added.ID, c.swatch(added.ColorTag))
	return nil
}

func (c *cli) children(_ context.Context, args []string) error {
	fs := newFlags("children")
	all := fs.Bool("all", false, "Include archived children")
	if err := fs.Parse(args); err != nil {
		return err
	}

	list := c.svc.Children.ActiveChildren()
	if *all {
		list = c.svc.Children.Children()
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tID\tCOLOR\tPOINTS\tSTATUS")
	for _, child := range list {
		status := "active"
		if child.IsArchived {
			status = "archived"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", child.Name, child.ID, c.swatch(child.ColorTag), child.TotalPoints, status)
	}
	return tw.Flush()
}

func (c *cli) archiveChild(ctx context.Context, args []string) error {
	fs := newFlags("archive-child")
	ref := fs.String("child", "", "Child name or id")
	undo := fs.Bool("undo", false, "Restore an archived child")
	if err := fs.Parse(args); err != nil {
		return err
	}
	child, err := c.findChild(*ref)
	if err != nil {
		return err
	}
	if *undo {
		return c.svc.Children.UnarchiveChild(ctx, child.ID)
	}
	return c.svc.Children.ArchiveChild(ctx, child.ID)
}

func (c *cli) seedBehaviors(ctx context.Context, _ []string) error {
	n, err := c.svc.Behaviors.SeedDefaultBehaviors(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Seeded %d behaviors\n", n)
	return nil
}

func (c *cli) addBehavior(ctx context.Context, args []string) error {
	fs := newFlags("add-behavior")
	name := fs.String("name", "", "Behavior name")
	category := fs.String("category", string(models.CategoryPositive), "positive, negative or routinePositive")
	points := fs.Int("points", 1, "Default points (negative for negative behaviors)")
	monetized := fs.Bool("monetized", false, "Counts toward allowance")
	if err := fs.Parse(args); err != nil {
		return err
	}

	bt, err := c.svc.Behaviors.AddBehaviorType(ctx, models.BehaviorType{
		Name:          *name,
		Category:      models.BehaviorCategory(*category),
		DefaultPoints: *points,
		IsMonetized:   *monetized,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Added behavior %s (%s)\n", bt.Name, bt.ID)
	return nil
}

func (c *cli) behaviors(_ context.Context, args []string) error {
	fs := newFlags("behaviors")
	age := fs.Int("age", -1, "Only show behaviors suggested for this age")
	if err := fs.Parse(args); err != nil {
		return err
	}

	list := c.svc.Behaviors.ActiveTypes()
	if *age >= 0 {
		list = c.svc.Behaviors.SuggestedTypes(*age)
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tID\tCATEGORY\tPOINTS\tALLOWANCE")
	for _, bt := range list {
		allowance := ""
		if bt.IsMonetized {
			allowance = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%+d\t%s\n", bt.Name, bt.ID, bt.Category, bt.DefaultPoints, allowance)
	}
	return tw.Flush()
}

// optionalInt tracks whether an int flag was set
type optionalInt struct {
	value int
	set   bool
}

func (o *optionalInt) String() string { return strconv.Itoa(o.value) }

func (o *optionalInt) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	o.value, o.set = v, true
	return nil
}

func (o *optionalInt) ptr() *int {
	if !o.set {
		return nil
	}
	return &o.value
}

func (c *cli) logBehavior(ctx context.Context, args []string) error {
	fs := newFlags("log")
	childRef := fs.String("child", "", "Child name or id")
	behaviorRef := fs.String("behavior", "", "Behavior name or id")
	goal := fs.String("goal", "", "Count toward this goal instead of the primary")
	note := fs.String("note", "", "Optional note")
	var points optionalInt
	fs.Var(&points, "points", "Override the behavior's default points")
	if err := fs.Parse(args); err != nil {
		return err
	}

	child, err := c.findChild(*childRef)
	if err != nil {
		return err
	}
	bt, err := c.findBehavior(*behaviorRef)
	if err != nil {
		return err
	}
	req := service.LogRequest{
		ChildID:        child.ID,
		BehaviorTypeID: bt.ID,
		Points:         points.ptr(),
		Note:           *note,
	}
	if *goal != "" {
		req.RewardID = goal
	}

	res, err := c.svc.LogBehavior(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Logged %s for %s: %+d points (event %s)\n", bt.Name, child.Name, res.Event.PointsApplied, res.Event.ID)
	if res.Streak != nil && res.Streak.CurrentStreak > 1 {
		fmt.Fprintf(c.out, "Streak: %d days\n", res.Streak.CurrentStreak)
	}
	for _, s := range res.Signals {
		fmt.Fprintf(c.out, "* %s\n", s.Message())
	}
	for _, b := range res.Badges {
		name := b.Type
		if bt, ok := c.svc.Behaviors.Type(b.Type); ok {
			name = bt.Name
		}
		fmt.Fprintf(c.out, "* New badge: %s level %d\n", name, b.Level)
	}
	return nil
}

func (c *cli) events(_ context.Context, args []string) error {
	fs := newFlags("events")
	childRef := fs.String("child", "", "Child name or id")
	limit := fs.Int("limit", 20, "Number of events to show")
	if err := fs.Parse(args); err != nil {
		return err
	}
	child, err := c.findChild(*childRef)
	if err != nil {
		return err
	}

	events := c.svc.Behaviors.EventsForChild(child.ID)
	if len(events) > *limit {
		events = events[len(events)-*limit:]
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tBEHAVIOR\tPOINTS\tID\tMOMENT")
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		name := e.BehaviorTypeID
		if bt, ok := c.svc.Behaviors.Type(e.BehaviorTypeID); ok {
			name = bt.Name
		}
		caption := ""
		if m, ok := c.svc.Progression.Moment(e.ID); ok {
			caption = m.Caption
		}
		fmt.Fprintf(tw, "%s\t%s\t%+d\t%s\t%s\n", humanize.Time(e.Timestamp), name, e.PointsApplied, e.ID, caption)
	}
	return tw.Flush()
}

func (c *cli) editEvent(ctx context.Context, args []string) error {
	fs := newFlags("edit-event")
	id := fs.String("event", "", "Event id")
	note := fs.String("note", "", "Replace the note")
	var points optionalInt
	fs.Var(&points, "points", "Replace the points")
	if err := fs.Parse(args); err != nil {
		return err
	}

	event, ok := c.svc.Behaviors.Event(*id)
	if !ok {
		return service.ErrEventNotFound
	}
	if points.set {
		event.PointsApplied = points.value
	}
	if *note != "" {
		event.Note = *note
	}
	signals, err := c.svc.EditEvent(ctx, event)
	if err != nil {
		return err
	}
	for _, s := range signals {
		fmt.Fprintf(c.out, "* %s\n", s.Message())
	}
	return nil
}

func (c *cli) deleteEvent(ctx context.Context, args []string) error {
	fs := newFlags("delete-event")
	id := fs.String("event", "", "Event id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	return c.svc.DeleteEvent(ctx, *id)
}

func (c *cli) moment(ctx context.Context, args []string) error {
	fs := newFlags("moment")
	id := fs.String("event", "", "Event id")
	caption := fs.String("caption", "", "Caption for the moment")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if existing, ok := c.svc.Progression.Moment(*id); ok {
		return c.svc.Progression.UpdateCaption(ctx, existing.ID, *caption)
	}
	_, err := c.svc.AddMoment(ctx, *id, *caption)
	return err
}

func (c *cli) addGoal(ctx context.Context, args []string) error {
	fs := newFlags("add-goal")
	childRef := fs.String("child", "", "Child name or id")
	name := fs.String("name", "", "Goal name")
	target := fs.Int("target", 0, "Points needed")
	dueFlag := fs.String("due", "", "Deadline (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	child, err := c.findChild(*childRef)
	if err != nil {
		return err
	}

	var due *time.Time
	if *dueFlag != "" {
		d, err := time.ParseInLocation("2006-01-02", *dueFlag, time.Local)
		if err != nil {
			return fmt.Errorf("invalid -due: %w", err)
		}
		end := d.AddDate(0, 0, 1).Add(-time.Second)
		due = &end
	}

	goal, err := c.svc.AddGoal(ctx, child.ID, *name, *target, due)
	if err != nil {
		return err
	}
	role := "queued"
	if goal.Priority == 0 {
		role = "primary"
	}
	fmt.Fprintf(c.out, "Added %s goal %s (%s) for %s\n", role, goal.Name, goal.ID, child.Name)
	return nil
}

func (c *cli) goals(_ context.Context, args []string) error {
	fs := newFlags("goals")
	childRef := fs.String("child", "", "Child name or id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	child, err := c.findChild(*childRef)
	if err != nil {
		return err
	}

	now := time.Now()
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GOAL\tID\tPROGRESS\tSTATE\tDUE\tAGREEMENT")
	for _, r := range c.svc.Rewards.Rewards(child.ID) {
		p, _ := c.svc.Rewards.Progress(r.ID)
		state := "queued"
		switch {
		case r.IsRedeemed:
			state = "redeemed"
		case r.IsExpired(now):
			state = "expired"
		case r.Priority == 0:
			state = "primary"
		}
		due := ""
		if r.DueDate != nil {
			due = humanize.Time(*r.DueDate)
		}
		covered := "not covered"
		if c.svc.Agreements.IsRewardCovered(child.ID, r.ID) {
			covered = "covered"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d/%d (%d%%)\t%s\t%s\t%s\n", r.Name, r.ID, p.Earned, p.Target, p.Percent(), state, due, covered)
	}
	return tw.Flush()
}

func (c *cli) primary(ctx context.Context, args []string) error {
	fs := newFlags("primary")
	id := fs.String("goal", "", "Goal id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, ok := c.svc.Rewards.Reward(*id); !ok {
		return service.ErrRewardNotFound
	}
	return c.svc.Rewards.MakePrimary(ctx, *id)
}

func (c *cli) redeem(ctx context.Context, args []string) error {
	fs := newFlags("redeem")
	id := fs.String("goal", "", "Goal id")
	force := fs.Bool("force", false, "Redeem before the target is reached")
	if err := fs.Parse(args); err != nil {
		return err
	}

	res, err := c.svc.RedeemGoal(ctx, *id, *force)
	if err != nil {
		return err
	}
	for _, s := range res.Signals {
		fmt.Fprintf(c.out, "* %s\n", s.Message())
	}
	if res.Promoted != nil {
		fmt.Fprintf(c.out, "Next goal: %s\n", res.Promoted.Name)
	}
	return nil
}

func (c *cli) sign(ctx context.Context, args []string) error {
	fs := newFlags("sign")
	childRef := fs.String("child", "", "Child name or id")
	role := fs.String("role", string(models.SignerChild), "child or parent")
	pin := fs.String("pin", "", "Parent PIN")
	if err := fs.Parse(args); err != nil {
		return err
	}
	child, err := c.findChild(*childRef)
	if err != nil {
		return err
	}

	v, completed, err := c.svc.SignAgreement(ctx, child.ID, models.SignerRole(*role), *pin)
	if err != nil {
		return err
	}
	if completed {
		fmt.Fprintf(c.out, "Agreement %s is fully signed and covers %d goals\n", v.ID, len(v.CoveredRewardIDs))
		return nil
	}
	fmt.Fprintf(c.out, "Signed agreement %s as %s; waiting for the other signature\n", v.ID, *role)
	return nil
}

func (c *cli) status(_ context.Context, args []string) error {
	fs := newFlags("status")
	childRef := fs.String("child", "", "Child name or id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	child, err := c.findChild(*childRef)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Agreement: %s\n", c.svc.Agreements.CoverageStatus(child.ID))
	for _, id := range c.svc.Agreements.UncoveredRewards(child.ID) {
		if r, ok := c.svc.Rewards.Reward(id); ok {
			fmt.Fprintf(c.out, "  not covered: %s\n", r.Name)
		}
	}
	for _, v := range c.svc.Agreements.Versions(child.ID) {
		fmt.Fprintf(c.out, "  version %s created %s, child signed %s, parent signed %s\n",
			v.ID, humanize.Time(v.CreatedAt), when(v.ChildSignedAt), when(v.ParentSignedAt))
	}
	owed, err := c.svc.AllowanceOwed(child.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Allowance owed: %d (paid so far: %d)\n", owed, child.AllowancePaidOut)
	return nil
}

func when(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return humanize.Time(*t)
}

func (c *cli) payout(ctx context.Context, args []string) error {
	fs := newFlags("payout")
	childRef := fs.String("child", "", "Child name or id")
	pin := fs.String("pin", "", "Parent PIN")
	if err := fs.Parse(args); err != nil {
		return err
	}
	child, err := c.findChild(*childRef)
	if err != nil {
		return err
	}
	paid, err := c.svc.PayAllowance(ctx, child.ID, *pin)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Paid %s %d\n", child.Name, paid)
	return nil
}

func (c *cli) dashboard(_ context.Context, args []string) error {
	fs := newFlags("dashboard")
	childRef := fs.String("child", "", "Child name or id (default: family overview)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *childRef == "" {
		c.printOverview(c.out, c.svc.Overview())
		return nil
	}
	child, err := c.findChild(*childRef)
	if err != nil {
		return err
	}
	state, err := c.svc.Dashboard(child.ID)
	if err != nil {
		return err
	}
	c.printDashboard(c.out, state)
	return nil
}

// watch keeps a dashboard projection running, reloading from storage on an
// interval so changes from other processes show up
func (c *cli) watch(ctx context.Context, args []string) error {
	fs := newFlags("watch")
	childRef := fs.String("child", "", "Child name or id (default: family overview)")
	every := fs.Duration("every", 5*time.Second, "Reload interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	queue := projection.NewMainQueue()
	defer queue.Close()

	var last string
	show := func(render func(io.Writer)) {
		var buf bytes.Buffer
		render(&buf)
		if buf.String() == last {
			return
		}
		last = buf.String()
		fmt.Fprintf(c.out, "--- %s\n%s", time.Now().Format(time.Kitchen), last)
	}

	if *childRef == "" {
		overview := projection.NewFamilyOverview(c.svc.Sources(), queue, c.debounce, func(s projection.FamilyOverviewState) {
			show(func(w io.Writer) { c.printOverview(w, s) })
		})
		overview.Start(ctx)
		defer overview.Close()
	} else {
		child, err := c.findChild(*childRef)
		if err != nil {
			return err
		}
		dash := projection.NewChildDashboard(c.svc.Sources(), child.ID, queue, c.debounce, func(s projection.ChildDashboardState) {
			show(func(w io.Writer) { c.printDashboard(w, s) })
		})
		dash.Start(ctx)
		defer dash.Close()
	}

	ticker := time.NewTicker(*every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := c.svc.LoadData(ctx); err != nil && ctx.Err() == nil {
				return err
			}
		}
	}
}

func (c *cli) printDashboard(w io.Writer, s projection.ChildDashboardState) {
	fmt.Fprintf(w, "%s %s: %d points\n", c.swatch(s.Child.ColorTag), s.Child.Name, s.Child.TotalPoints)
	fmt.Fprintf(w, "Today: %+d (%d good, %d not so good)\n", s.TodayPoints, s.PositiveToday, s.NegativeToday)
	if s.Primary != nil {
		p := s.Primary.Progress
		fmt.Fprintf(w, "Working toward: %s %d/%d (%d%%), %d to go\n", s.Primary.Reward.Name, p.Earned, p.Target, p.Percent(), p.Remaining())
	} else {
		fmt.Fprintln(w, "No active goal")
	}
	for _, g := range s.Queue {
		fmt.Fprintf(w, "  next: %s (%d points)\n", g.Reward.Name, g.Reward.TargetPoints)
	}
	fmt.Fprintf(w, "Agreement: %s  Badges: %d  Best streak: %d days\n", s.Agreement, s.BadgeCount, s.BestStreak)
}

func (c *cli) printOverview(w io.Writer, s projection.FamilyOverviewState) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHILD\tPOINTS\tTODAY\tGOAL\tAGREEMENT")
	for _, row := range s.Children {
		goal := "-"
		if row.PrimaryGoal != "" {
			goal = fmt.Sprintf("%s (%d%%)", row.PrimaryGoal, row.PrimaryPercent)
		}
		fmt.Fprintf(tw, "%s %s\t%d\t%+d\t%s\t%s\n", c.swatch(row.ColorTag), row.Name, row.TotalPoints, row.TodayPoints, goal, row.Agreement)
	}
	tw.Flush()
	fmt.Fprintf(w, "Family total: %d\n", s.FamilyTotal)
}
