package repository

import (
	"database/sql"
	"fmt"

	"starchart/internal/database"
	"starchart/internal/models"
)

// RewardRepository handles rewards and their lifecycle history
type RewardRepository struct {
	db *database.DB
}

// NewRewardRepository creates a new reward repository
func NewRewardRepository(db *database.DB) *RewardRepository {
	return &RewardRepository{db: db}
}

const rewardColumns = `id, child_id, name, target_points, priority, created_at, start_at, is_redeemed,
	redeemed_at, frozen_earned_points, due_at, expired_at`

// Rewards retrieves all rewards, redeemed and expired included
func (r *RewardRepository) Rewards() ([]models.Reward, error) {
	rows, err := r.db.Query("SELECT " + rewardColumns + " FROM rewards ORDER BY child_id ASC, priority ASC, created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query rewards: %w", err)
	}
	defer rows.Close()

	var rewards []models.Reward
	for rows.Next() {
		var (
			reward    models.Reward
			createdAt int64
			startAt   sql.NullInt64
			redeemed  sql.NullInt64
			frozen    sql.NullInt64
			dueAt     sql.NullInt64
			expiredAt sql.NullInt64
		)
		if err := rows.Scan(
			&reward.ID,
			&reward.ChildID,
			&reward.Name,
			&reward.TargetPoints,
			&reward.Priority,
			&createdAt,
			&startAt,
			&reward.IsRedeemed,
			&redeemed,
			&frozen,
			&dueAt,
			&expiredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reward: %w", err)
		}
		reward.CreatedDate = fromMillis(createdAt)
		reward.StartDate = timePtr(startAt)
		reward.RedeemedDate = timePtr(redeemed)
		reward.FrozenEarnedPoints = intPtr(frozen)
		reward.DueDate = timePtr(dueAt)
		reward.ExpiredDate = timePtr(expiredAt)
		rewards = append(rewards, reward)
	}

	return rewards, rows.Err()
}

// AddReward inserts a reward
func (r *RewardRepository) AddReward(reward models.Reward) error {
	query := "INSERT INTO rewards (" + rewardColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := r.db.Exec(query,
		reward.ID,
		reward.ChildID,
		reward.Name,
		reward.TargetPoints,
		reward.Priority,
		toMillis(reward.CreatedDate),
		nullMillis(reward.StartDate),
		reward.IsRedeemed,
		nullMillis(reward.RedeemedDate),
		nullInt(reward.FrozenEarnedPoints),
		nullMillis(reward.DueDate),
		nullMillis(reward.ExpiredDate),
	)
	if err != nil {
		return fmt.Errorf("failed to create reward: %w", err)
	}
	return nil
}

// UpdateReward overwrites a reward
func (r *RewardRepository) UpdateReward(reward models.Reward) error {
	return updateReward(r.db, reward)
}

// UpdateRewards overwrites several rewards in one transaction
func (r *RewardRepository) UpdateRewards(rewards []models.Reward) error {
	return r.db.WithTx(func(tx *database.Tx) error {
		for _, reward := range rewards {
			if err := updateReward(tx, reward); err != nil {
				return err
			}
		}
		return nil
	})
}

func updateReward(db database.DBTX, reward models.Reward) error {
	query := `
		UPDATE rewards
		SET name = ?, target_points = ?, priority = ?, start_at = ?, is_redeemed = ?,
		    redeemed_at = ?, frozen_earned_points = ?, due_at = ?, expired_at = ?
		WHERE id = ?
	`
	_, err := db.Exec(query,
		reward.Name,
		reward.TargetPoints,
		reward.Priority,
		nullMillis(reward.StartDate),
		reward.IsRedeemed,
		nullMillis(reward.RedeemedDate),
		nullInt(reward.FrozenEarnedPoints),
		nullMillis(reward.DueDate),
		nullMillis(reward.ExpiredDate),
		reward.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update reward: %w", err)
	}
	return nil
}

// DeleteReward deletes a reward
func (r *RewardRepository) DeleteReward(id string) error {
	if _, err := r.db.Exec("DELETE FROM rewards WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete reward: %w", err)
	}
	return nil
}

// RewardHistoryEvents retrieves the reward audit trail, oldest first
func (r *RewardRepository) RewardHistoryEvents() ([]models.RewardHistoryEvent, error) {
	query := `
		SELECT id, child_id, reward_id, reward_name, kind, milestone, earned_points, target_points, occurred_at
		FROM reward_history_events
		ORDER BY occurred_at ASC, id ASC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query reward history: %w", err)
	}
	defer rows.Close()

	var history []models.RewardHistoryEvent
	for rows.Next() {
		var (
			event      models.RewardHistoryEvent
			kind       string
			occurredAt int64
		)
		if err := rows.Scan(
			&event.ID,
			&event.ChildID,
			&event.RewardID,
			&event.RewardName,
			&kind,
			&event.Milestone,
			&event.EarnedPoints,
			&event.TargetPoints,
			&occurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reward history: %w", err)
		}
		event.Kind = models.RewardHistoryKind(kind)
		event.Timestamp = fromMillis(occurredAt)
		history = append(history, event)
	}

	return history, rows.Err()
}

// AddRewardHistoryEvent appends to the reward audit trail
func (r *RewardRepository) AddRewardHistoryEvent(event models.RewardHistoryEvent) error {
	query := `
		INSERT INTO reward_history_events
		(id, child_id, reward_id, reward_name, kind, milestone, earned_points, target_points, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query,
		event.ID,
		event.ChildID,
		event.RewardID,
		event.RewardName,
		string(event.Kind),
		event.Milestone,
		event.EarnedPoints,
		event.TargetPoints,
		toMillis(event.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("failed to record reward history: %w", err)
	}
	return nil
}
