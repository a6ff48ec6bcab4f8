package repository

import (
	"database/sql"
	"fmt"
	"time"

	"starchart/internal/database"
	"starchart/internal/models"
)

// BehaviorRepository handles behavior types, the event ledger and streaks
type BehaviorRepository struct {
	db  *database.DB
	now func() time.Time
	loc *time.Location
}

// NewBehaviorRepository creates a new behavior repository
func NewBehaviorRepository(db *database.DB) *BehaviorRepository {
	return &BehaviorRepository{db: db, now: time.Now, loc: time.Local}
}

const behaviorTypeColumns = "id, name, category, default_points, is_active, is_monetized, age_min, age_max, created_at"

// BehaviorTypes retrieves all behavior types
func (r *BehaviorRepository) BehaviorTypes() ([]models.BehaviorType, error) {
	rows, err := r.db.Query("SELECT " + behaviorTypeColumns + " FROM behavior_types ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query behavior types: %w", err)
	}
	defer rows.Close()

	var types []models.BehaviorType
	for rows.Next() {
		var (
			bt        models.BehaviorType
			category  string
			createdAt int64
		)
		if err := rows.Scan(
			&bt.ID,
			&bt.Name,
			&category,
			&bt.DefaultPoints,
			&bt.IsActive,
			&bt.IsMonetized,
			&bt.SuggestedAgeRange.Min,
			&bt.SuggestedAgeRange.Max,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan behavior type: %w", err)
		}
		bt.Category = models.BehaviorCategory(category)
		bt.CreatedAt = fromMillis(createdAt)
		types = append(types, bt)
	}

	return types, rows.Err()
}

// AddBehaviorType inserts a behavior type
func (r *BehaviorRepository) AddBehaviorType(bt models.BehaviorType) error {
	query := "INSERT INTO behavior_types (" + behaviorTypeColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err := r.db.Exec(query,
		bt.ID,
		bt.Name,
		string(bt.Category),
		bt.DefaultPoints,
		bt.IsActive,
		bt.IsMonetized,
		bt.SuggestedAgeRange.Min,
		bt.SuggestedAgeRange.Max,
		toMillis(bt.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create behavior type: %w", err)
	}
	return nil
}

// UpdateBehaviorType overwrites a behavior type
func (r *BehaviorRepository) UpdateBehaviorType(bt models.BehaviorType) error {
	query := `
		UPDATE behavior_types
		SET name = ?, category = ?, default_points = ?, is_active = ?, is_monetized = ?,
		    age_min = ?, age_max = ?
		WHERE id = ?
	`
	_, err := r.db.Exec(query,
		bt.Name,
		string(bt.Category),
		bt.DefaultPoints,
		bt.IsActive,
		bt.IsMonetized,
		bt.SuggestedAgeRange.Min,
		bt.SuggestedAgeRange.Max,
		bt.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update behavior type: %w", err)
	}
	return nil
}

// DeleteBehaviorType deletes a behavior type
func (r *BehaviorRepository) DeleteBehaviorType(id string) error {
	if _, err := r.db.Exec("DELETE FROM behavior_types WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete behavior type: %w", err)
	}
	return nil
}

const behaviorEventColumns = "id, child_id, behavior_type_id, occurred_at, points_applied, reward_id, note"

// BehaviorEvents retrieves the full event ledger, oldest first
func (r *BehaviorRepository) BehaviorEvents() ([]models.BehaviorEvent, error) {
	return queryEvents(r.db, "SELECT "+behaviorEventColumns+" FROM behavior_events ORDER BY occurred_at ASC, id ASC")
}

func queryEvents(db database.DBTX, query string, args ...interface{}) ([]models.BehaviorEvent, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query behavior events: %w", err)
	}
	defer rows.Close()

	var events []models.BehaviorEvent
	for rows.Next() {
		var (
			event      models.BehaviorEvent
			occurredAt int64
			rewardID   sql.NullString
		)
		if err := rows.Scan(
			&event.ID,
			&event.ChildID,
			&event.BehaviorTypeID,
			&occurredAt,
			&event.PointsApplied,
			&rewardID,
			&event.Note,
		); err != nil {
			return nil, fmt.Errorf("failed to scan behavior event: %w", err)
		}
		event.Timestamp = fromMillis(occurredAt)
		event.RewardID = stringPtr(rewardID)
		events = append(events, event)
	}

	return events, rows.Err()
}

// AddBehaviorEvent appends an event to the ledger
func (r *BehaviorRepository) AddBehaviorEvent(event models.BehaviorEvent) error {
	query := "INSERT INTO behavior_events (" + behaviorEventColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?)"
	_, err := r.db.Exec(query,
		event.ID,
		event.ChildID,
		event.BehaviorTypeID,
		toMillis(event.Timestamp),
		event.PointsApplied,
		nullString(event.RewardID),
		event.Note,
	)
	if err != nil {
		return fmt.Errorf("failed to create behavior event: %w", err)
	}
	return nil
}

// UpdateBehaviorEvent is the administrative edit of a ledger entry
func (r *BehaviorRepository) UpdateBehaviorEvent(event models.BehaviorEvent) error {
	query := `
		UPDATE behavior_events
		SET behavior_type_id = ?, occurred_at = ?, points_applied = ?, reward_id = ?, note = ?
		WHERE id = ?
	`
	_, err := r.db.Exec(query,
		event.BehaviorTypeID,
		toMillis(event.Timestamp),
		event.PointsApplied,
		nullString(event.RewardID),
		event.Note,
		event.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update behavior event: %w", err)
	}
	return nil
}

// DeleteBehaviorEvent is the administrative removal of a ledger entry
func (r *BehaviorRepository) DeleteBehaviorEvent(id string) error {
	if _, err := r.db.Exec("DELETE FROM behavior_events WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete behavior event: %w", err)
	}
	return nil
}

// BehaviorStreaks retrieves all streak rows
func (r *BehaviorRepository) BehaviorStreaks() ([]models.BehaviorStreak, error) {
	query := `
		SELECT id, child_id, behavior_type_id, current_streak, longest_streak, last_completed_at
		FROM behavior_streaks
		ORDER BY child_id ASC, behavior_type_id ASC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query streaks: %w", err)
	}
	defer rows.Close()

	var streaks []models.BehaviorStreak
	for rows.Next() {
		var (
			streak models.BehaviorStreak
			last   sql.NullInt64
		)
		if err := rows.Scan(
			&streak.ID,
			&streak.ChildID,
			&streak.BehaviorTypeID,
			&streak.CurrentStreak,
			&streak.LongestStreak,
			&last,
		); err != nil {
			return nil, fmt.Errorf("failed to scan streak: %w", err)
		}
		streak.LastCompletedDate = timePtr(last)
		streaks = append(streaks, streak)
	}

	return streaks, rows.Err()
}

var (
	streakKey     = []string{"child_id", "behavior_type_id"}
	streakColumns = []string{"id", "child_id", "behavior_type_id", "current_streak", "longest_streak", "last_completed_at"}
)

// UpdateStreak recalculates the streak for a child and behavior type from the
// ledger. The existing row is read only to carry the longest streak forward.
func (r *BehaviorRepository) UpdateStreak(childID, behaviorTypeID string) error {
	return r.db.WithTx(func(tx *database.Tx) error {
		existing := models.BehaviorStreak{ChildID: childID, BehaviorTypeID: behaviorTypeID}
		var last sql.NullInt64
		err := tx.QueryRow(`
			SELECT id, current_streak, longest_streak, last_completed_at
			FROM behavior_streaks
			WHERE child_id = ? AND behavior_type_id = ?
		`, childID, behaviorTypeID).Scan(&existing.ID, &existing.CurrentStreak, &existing.LongestStreak, &last)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to load streak: %w", err)
		}
		found := err == nil

		events, err := queryEvents(tx,
			"SELECT "+behaviorEventColumns+" FROM behavior_events WHERE child_id = ? AND behavior_type_id = ?",
			childID, behaviorTypeID)
		if err != nil {
			return err
		}

		streak := computeStreak(events, existing, r.now(), r.loc)
		if !found {
			streak.ID = models.NewID()
		}
		_, err = tx.Exec(tx.GetDialect().UpsertQuery("behavior_streaks", streakKey, streakColumns),
			streak.ID, childID, behaviorTypeID, streak.CurrentStreak, streak.LongestStreak, nullMillis(streak.LastCompletedDate))
		if err != nil {
			return fmt.Errorf("failed to save streak: %w", err)
		}
		return nil
	})
}
