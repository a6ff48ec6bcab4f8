package models

import "time"

// Reward is a point goal a child works toward.
// Priority 0 marks the primary goal; higher values queue behind it.
type Reward struct {
	ID                 string
	ChildID            string
	Name               string
	TargetPoints       int
	Priority           int
	CreatedDate        time.Time
	StartDate          *time.Time
	IsRedeemed         bool
	RedeemedDate       *time.Time
	FrozenEarnedPoints *int
	DueDate            *time.Time
	ExpiredDate        *time.Time
}

// WindowStart returns the earliest event time that counts toward the reward
func (r Reward) WindowStart() time.Time {
	if r.StartDate != nil {
		return *r.StartDate
	}
	return r.CreatedDate
}

// IsExpired reports whether the reward's deadline passed before redemption
func (r Reward) IsExpired(now time.Time) bool {
	if r.IsRedeemed {
		return false
	}
	if r.ExpiredDate != nil {
		return true
	}
	return r.DueDate != nil && now.After(*r.DueDate)
}

// IsActive reports whether the reward is neither redeemed nor expired
func (r Reward) IsActive(now time.Time) bool {
	return !r.IsRedeemed && !r.IsExpired(now)
}

// IsFrozen reports whether the earned total is a captured snapshot
func (r Reward) IsFrozen() bool {
	return r.FrozenEarnedPoints != nil
}

// RewardHistoryKind is a reward lifecycle transition
type RewardHistoryKind string

const (
	HistoryStarted   RewardHistoryKind = "started"
	HistoryMilestone RewardHistoryKind = "milestone"
	HistoryRedeemed  RewardHistoryKind = "redeemed"
	HistoryExpired   RewardHistoryKind = "expired"
)

// RewardHistoryEvent is an append-only audit record of a reward transition
type RewardHistoryEvent struct {
	ID           string
	ChildID      string
	RewardID     string
	RewardName   string
	Kind         RewardHistoryKind
	Milestone    int
	EarnedPoints int
	TargetPoints int
	Timestamp    time.Time
}
