package models

import "time"

// SkillBadge is awarded for repeated positive behavior. Badges are never revoked.
type SkillBadge struct {
	ID            string
	ChildID       string
	Type          string
	Level         int
	BehaviorCount int
	EarnedDate    time.Time
}

// SpecialMoment attaches a caption to a single behavior event
type SpecialMoment struct {
	ID        string
	EventID   string
	ChildID   string
	Caption   string
	CreatedAt time.Time
}
