// Package store holds the canonical in-memory state of the household. Each
// store owns a set of collections behind one snapshot, delegates every write
// to the repository and republishes from a full reload.
package store

import "starchart/internal/models"

// ChildRepository is the persistence a ChildStore needs
type ChildRepository interface {
	Children() ([]models.Child, error)
	AddChild(child models.Child) error
	UpdateChild(child models.Child) error
	DeleteChild(id string) error
}

// BehaviorRepository is the persistence a BehaviorStore needs
type BehaviorRepository interface {
	BehaviorTypes() ([]models.BehaviorType, error)
	AddBehaviorType(bt models.BehaviorType) error
	UpdateBehaviorType(bt models.BehaviorType) error
	DeleteBehaviorType(id string) error

	BehaviorEvents() ([]models.BehaviorEvent, error)
	AddBehaviorEvent(event models.BehaviorEvent) error
	UpdateBehaviorEvent(event models.BehaviorEvent) error
	DeleteBehaviorEvent(id string) error

	BehaviorStreaks() ([]models.BehaviorStreak, error)
	UpdateStreak(childID, behaviorTypeID string) error
}

// RewardRepository is the persistence a RewardStore needs
type RewardRepository interface {
	Rewards() ([]models.Reward, error)
	AddReward(reward models.Reward) error
	UpdateReward(reward models.Reward) error
	UpdateRewards(rewards []models.Reward) error
	DeleteReward(id string) error

	RewardHistoryEvents() ([]models.RewardHistoryEvent, error)
	AddRewardHistoryEvent(event models.RewardHistoryEvent) error
}

// AgreementRepository is the persistence an AgreementStore needs
type AgreementRepository interface {
	AgreementVersions() ([]models.AgreementVersion, error)
	AddAgreementVersion(version models.AgreementVersion) error
	UpdateAgreementVersion(version models.AgreementVersion) error
}

// ProgressionRepository is the persistence a ProgressionStore needs
type ProgressionRepository interface {
	SkillBadges() ([]models.SkillBadge, error)
	AddSkillBadge(badge models.SkillBadge) error

	SpecialMoments() ([]models.SpecialMoment, error)
	AddSpecialMoment(moment models.SpecialMoment) error
	UpdateSpecialMoment(moment models.SpecialMoment) error
	DeleteSpecialMoment(id string) error
}

// EventSource exposes the behavior ledger to stores that derive from it
type EventSource interface {
	Events() []models.BehaviorEvent
}

// ActiveRewardSource lists a child's active reward ids
type ActiveRewardSource interface {
	ActiveRewardIDs(childID string) []string
}

// ActiveBehaviorSource lists the household's active behavior type ids
type ActiveBehaviorSource interface {
	ActiveBehaviorIDs() []string
}

// BehaviorLookup resolves the ledger and behavior types for badge evaluation
type BehaviorLookup interface {
	EventsForChild(childID string) []models.BehaviorEvent
	Type(id string) (models.BehaviorType, bool)
}
