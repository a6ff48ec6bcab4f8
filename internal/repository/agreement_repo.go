package repository

import (
	"database/sql"
	"fmt"

	"starchart/internal/database"
	"starchart/internal/models"
)

// AgreementRepository handles agreement versions. Versions are never deleted.
type AgreementRepository struct {
	db database.DBTX
}

// NewAgreementRepository creates a new agreement repository
func NewAgreementRepository(db database.DBTX) *AgreementRepository {
	return &AgreementRepository{db: db}
}

// AgreementVersions retrieves every agreement version, oldest first
func (r *AgreementRepository) AgreementVersions() ([]models.AgreementVersion, error) {
	query := `
		SELECT id, child_id, created_at, covered_reward_ids, covered_behavior_ids,
		       child_signed_at, parent_signed_at, is_current
		FROM agreement_versions
		ORDER BY child_id ASC, created_at ASC, id ASC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query agreement versions: %w", err)
	}
	defer rows.Close()

	var versions []models.AgreementVersion
	for rows.Next() {
		var (
			version      models.AgreementVersion
			createdAt    int64
			rewardIDs    string
			behaviorIDs  string
			childSigned  sql.NullInt64
			parentSigned sql.NullInt64
		)
		if err := rows.Scan(
			&version.ID,
			&version.ChildID,
			&createdAt,
			&rewardIDs,
			&behaviorIDs,
			&childSigned,
			&parentSigned,
			&version.IsCurrent,
		); err != nil {
			return nil, fmt.Errorf("failed to scan agreement version: %w", err)
		}
		version.CreatedAt = fromMillis(createdAt)
		version.ChildSignedAt = timePtr(childSigned)
		version.ParentSignedAt = timePtr(parentSigned)
		if version.CoveredRewardIDs, err = decodeIDs(rewardIDs); err != nil {
			return nil, fmt.Errorf("failed to decode covered rewards for %s: %w", version.ID, err)
		}
		if version.CoveredBehaviorIDs, err = decodeIDs(behaviorIDs); err != nil {
			return nil, fmt.Errorf("failed to decode covered behaviors for %s: %w", version.ID, err)
		}
		versions = append(versions, version)
	}

	return versions, rows.Err()
}

// AddAgreementVersion inserts a version
func (r *AgreementRepository) AddAgreementVersion(version models.AgreementVersion) error {
	rewardIDs, behaviorIDs, err := encodeCoverage(version)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO agreement_versions
		(id, child_id, created_at, covered_reward_ids, covered_behavior_ids, child_signed_at, parent_signed_at, is_current)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = r.db.Exec(query,
		version.ID,
		version.ChildID,
		toMillis(version.CreatedAt),
		rewardIDs,
		behaviorIDs,
		nullMillis(version.ChildSignedAt),
		nullMillis(version.ParentSignedAt),
		version.IsCurrent,
	)
	if err != nil {
		return fmt.Errorf("failed to create agreement version: %w", err)
	}
	return nil
}

// UpdateAgreementVersion overwrites signatures, coverage and the current flag
func (r *AgreementRepository) UpdateAgreementVersion(version models.AgreementVersion) error {
	rewardIDs, behaviorIDs, err := encodeCoverage(version)
	if err != nil {
		return err
	}
	query := `
		UPDATE agreement_versions
		SET covered_reward_ids = ?, covered_behavior_ids = ?, child_signed_at = ?, parent_signed_at = ?, is_current = ?
		WHERE id = ?
	`
	_, err = r.db.Exec(query,
		rewardIDs,
		behaviorIDs,
		nullMillis(version.ChildSignedAt),
		nullMillis(version.ParentSignedAt),
		version.IsCurrent,
		version.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update agreement version: %w", err)
	}
	return nil
}

func encodeCoverage(version models.AgreementVersion) (string, string, error) {
	rewardIDs, err := encodeIDs(version.CoveredRewardIDs)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode covered rewards: %w", err)
	}
	behaviorIDs, err := encodeIDs(version.CoveredBehaviorIDs)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode covered behaviors: %w", err)
	}
	return rewardIDs, behaviorIDs, nil
}
