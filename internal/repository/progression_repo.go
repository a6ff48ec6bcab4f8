package repository

import (
	"fmt"

	"starchart/internal/database"
	"starchart/internal/models"
)

// ProgressionRepository handles skill badges and special moments
type ProgressionRepository struct {
	db database.DBTX
}

// NewProgressionRepository creates a new progression repository
func NewProgressionRepository(db database.DBTX) *ProgressionRepository {
	return &ProgressionRepository{db: db}
}

// SkillBadges retrieves every awarded badge
func (r *ProgressionRepository) SkillBadges() ([]models.SkillBadge, error) {
	query := `
		SELECT id, child_id, badge_type, level, behavior_count, earned_at
		FROM skill_badges
		ORDER BY earned_at ASC, id ASC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query badges: %w", err)
	}
	defer rows.Close()

	var badges []models.SkillBadge
	for rows.Next() {
		var (
			badge    models.SkillBadge
			earnedAt int64
		)
		if err := rows.Scan(&badge.ID, &badge.ChildID, &badge.Type, &badge.Level, &badge.BehaviorCount, &earnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		badge.EarnedDate = fromMillis(earnedAt)
		badges = append(badges, badge)
	}

	return badges, rows.Err()
}

// AddSkillBadge records an awarded badge
func (r *ProgressionRepository) AddSkillBadge(badge models.SkillBadge) error {
	query := `
		INSERT INTO skill_badges (id, child_id, badge_type, level, behavior_count, earned_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.Exec(query, badge.ID, badge.ChildID, badge.Type, badge.Level, badge.BehaviorCount, toMillis(badge.EarnedDate))
	if err != nil {
		return fmt.Errorf("failed to award badge: %w", err)
	}
	return nil
}

// SpecialMoments retrieves every special moment
func (r *ProgressionRepository) SpecialMoments() ([]models.SpecialMoment, error) {
	query := `
		SELECT id, event_id, child_id, caption, created_at
		FROM special_moments
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query special moments: %w", err)
	}
	defer rows.Close()

	var moments []models.SpecialMoment
	for rows.Next() {
		var (
			moment    models.SpecialMoment
			createdAt int64
		)
		if err := rows.Scan(&moment.ID, &moment.EventID, &moment.ChildID, &moment.Caption, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan special moment: %w", err)
		}
		moment.CreatedAt = fromMillis(createdAt)
		moments = append(moments, moment)
	}

	return moments, rows.Err()
}

// AddSpecialMoment inserts a special moment
func (r *ProgressionRepository) AddSpecialMoment(moment models.SpecialMoment) error {
	query := "INSERT INTO special_moments (id, event_id, child_id, caption, created_at) VALUES (?, ?, ?, ?, ?)"
	_, err := r.db.Exec(query, moment.ID, moment.EventID, moment.ChildID, moment.Caption, toMillis(moment.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create special moment: %w", err)
	}
	return nil
}

// UpdateSpecialMoment updates a moment's caption
func (r *ProgressionRepository) UpdateSpecialMoment(moment models.SpecialMoment) error {
	if _, err := r.db.Exec("UPDATE special_moments SET caption = ? WHERE id = ?", moment.Caption, moment.ID); err != nil {
		return fmt.Errorf("failed to update special moment: %w", err)
	}
	return nil
}

// DeleteSpecialMoment deletes a special moment
func (r *ProgressionRepository) DeleteSpecialMoment(id string) error {
	if _, err := r.db.Exec("DELETE FROM special_moments WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete special moment: %w", err)
	}
	return nil
}
