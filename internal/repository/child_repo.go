package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"starchart/internal/database"
	"starchart/internal/models"
)

// ChildRepository handles database operations for children
type ChildRepository struct {
	db database.DBTX
}

// NewChildRepository creates a new child repository
func NewChildRepository(db database.DBTX) *ChildRepository {
	return &ChildRepository{db: db}
}

const childColumns = "id, name, color_tag, age, is_archived, total_points, allowance_paid_out, signatures, created_at"

// Children retrieves every child, archived included
func (r *ChildRepository) Children() ([]models.Child, error) {
	query := "SELECT " + childColumns + " FROM children ORDER BY created_at ASC, id ASC"
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query children: %w", err)
	}
	defer rows.Close()

	var children []models.Child
	for rows.Next() {
		var (
			child      models.Child
			age        sql.NullInt64
			signatures string
			createdAt  int64
		)
		if err := rows.Scan(
			&child.ID,
			&child.Name,
			&child.ColorTag,
			&age,
			&child.IsArchived,
			&child.TotalPoints,
			&child.AllowancePaidOut,
			&signatures,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan child: %w", err)
		}
		child.Age = intPtr(age)
		child.CreatedAt = fromMillis(createdAt)
		if signatures != "" {
			if err := json.Unmarshal([]byte(signatures), &child.Signatures); err != nil {
				return nil, fmt.Errorf("failed to decode signatures for child %s: %w", child.ID, err)
			}
		}
		children = append(children, child)
	}

	return children, rows.Err()
}

// AddChild inserts a new child profile
func (r *ChildRepository) AddChild(child models.Child) error {
	signatures, err := encodeSignatures(child.Signatures)
	if err != nil {
		return err
	}
	query := "INSERT INTO children (" + childColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"
	_, err = r.db.Exec(query,
		child.ID,
		child.Name,
		child.ColorTag,
		nullInt(child.Age),
		child.IsArchived,
		child.TotalPoints,
		child.AllowancePaidOut,
		signatures,
		toMillis(child.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create child: %w", err)
	}
	return nil
}

// UpdateChild overwrites a child's mutable fields
func (r *ChildRepository) UpdateChild(child models.Child) error {
	signatures, err := encodeSignatures(child.Signatures)
	if err != nil {
		return err
	}
	query := `
		UPDATE children
		SET name = ?, color_tag = ?, age = ?, is_archived = ?, total_points = ?,
		    allowance_paid_out = ?, signatures = ?
		WHERE id = ?
	`
	_, err = r.db.Exec(query,
		child.Name,
		child.ColorTag,
		nullInt(child.Age),
		child.IsArchived,
		child.TotalPoints,
		child.AllowancePaidOut,
		signatures,
		child.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update child: %w", err)
	}
	return nil
}

// DeleteChild deletes a child profile
func (r *ChildRepository) DeleteChild(id string) error {
	if _, err := r.db.Exec("DELETE FROM children WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete child: %w", err)
	}
	return nil
}

func encodeSignatures(signatures []models.Signature) (string, error) {
	if signatures == nil {
		signatures = []models.Signature{}
	}
	data, err := json.Marshal(signatures)
	if err != nil {
		return "", fmt.Errorf("failed to encode signatures: %w", err)
	}
	return string(data), nil
}
