// Package repository implements the persistence contract behind the domain stores:
// synchronous full-collection reads plus per-entity writes.
package repository

import (
	"fmt"

	"starchart/internal/config"
	"starchart/internal/database"
	"starchart/internal/models"
)

// Repository is the full persistence contract. Stores depend on narrower
// interfaces of their own; this one is for the composition root and backups.
type Repository interface {
	Children() ([]models.Child, error)
	AddChild(child models.Child) error
	UpdateChild(child models.Child) error
	DeleteChild(id string) error

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

	Rewards() ([]models.Reward, error)
	AddReward(reward models.Reward) error
	UpdateReward(reward models.Reward) error
	UpdateRewards(rewards []models.Reward) error
	DeleteReward(id string) error

	RewardHistoryEvents() ([]models.RewardHistoryEvent, error)
	AddRewardHistoryEvent(event models.RewardHistoryEvent) error

	AgreementVersions() ([]models.AgreementVersion, error)
	AddAgreementVersion(version models.AgreementVersion) error
	UpdateAgreementVersion(version models.AgreementVersion) error

	SkillBadges() ([]models.SkillBadge, error)
	AddSkillBadge(badge models.SkillBadge) error

	SpecialMoments() ([]models.SpecialMoment, error)
	AddSpecialMoment(moment models.SpecialMoment) error
	UpdateSpecialMoment(moment models.SpecialMoment) error
	DeleteSpecialMoment(id string) error
}

// SQLRepository is the database-backed Repository
type SQLRepository struct {
	*ChildRepository
	*BehaviorRepository
	*RewardRepository
	*AgreementRepository
	*ProgressionRepository
}

var (
	_ Repository = (*SQLRepository)(nil)
	_ Repository = (*MemoryRepository)(nil)
)

// NewSQL creates a Repository over an initialized database
func NewSQL(db *database.DB) *SQLRepository {
	return &SQLRepository{
		ChildRepository:       NewChildRepository(db),
		BehaviorRepository:    NewBehaviorRepository(db),
		RewardRepository:      NewRewardRepository(db),
		AgreementRepository:   NewAgreementRepository(db),
		ProgressionRepository: NewProgressionRepository(db),
	}
}

// Open returns the Repository selected by cfg. SQL backends are migrated
// before use. The returned close function releases the connection.
func Open(cfg *config.Config) (Repository, func() error, error) {
	if cfg.UsesMemory() {
		return NewMemory(), func() error { return nil }, nil
	}

	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := db.RunMigrations(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return NewSQL(db), db.Close, nil
}
