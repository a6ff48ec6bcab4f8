package models

import "time"

// BehaviorCategory classifies a behavior type
type BehaviorCategory string

const (
	CategoryPositive        BehaviorCategory = "positive"
	CategoryNegative        BehaviorCategory = "negative"
	CategoryRoutinePositive BehaviorCategory = "routinePositive"
)

// Valid reports whether c is a known category
func (c BehaviorCategory) Valid() bool {
	switch c {
	case CategoryPositive, CategoryNegative, CategoryRoutinePositive:
		return true
	}
	return false
}

// IsPositive reports whether the category earns points
func (c BehaviorCategory) IsPositive() bool {
	return c == CategoryPositive || c == CategoryRoutinePositive
}

// AgeRange is an inclusive suggested age range. A zero Max means no upper bound.
type AgeRange struct {
	Min int
	Max int
}

// Contains reports whether age falls within the range
func (r AgeRange) Contains(age int) bool {
	if age < r.Min {
		return false
	}
	return r.Max == 0 || age <= r.Max
}

// BehaviorType is a kind of behavior that can be logged for a child
type BehaviorType struct {
	ID                string
	Name              string
	Category          BehaviorCategory
	DefaultPoints     int
	IsActive          bool
	IsMonetized       bool
	SuggestedAgeRange AgeRange
	CreatedAt         time.Time
}

// BehaviorEvent is an append-only ledger entry for a logged behavior
type BehaviorEvent struct {
	ID             string
	ChildID        string
	BehaviorTypeID string
	Timestamp      time.Time
	PointsApplied  int
	RewardID       *string
	Note           string
}

// BehaviorStreak tracks consecutive days a child completed a behavior
type BehaviorStreak struct {
	ID                string
	ChildID           string
	BehaviorTypeID    string
	CurrentStreak     int
	LongestStreak     int
	LastCompletedDate *time.Time
}
