package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"starchart/internal/models"
	"starchart/internal/repository"
)

// BackupVersion is the document version written by Export
const BackupVersion = "1.0"

// ErrUnsupportedBackup is returned for documents written by an unknown version
var ErrUnsupportedBackup = errors.New("unsupported backup version")

// BackupData represents the complete household backup structure.
// Streaks are derived from events and rebuilt on import.
type BackupData struct {
	Version        string                      `json:"version"`
	ExportedAt     time.Time                   `json:"exported_at"`
	Children       []models.Child              `json:"children"`
	BehaviorTypes  []models.BehaviorType       `json:"behavior_types"`
	BehaviorEvents []models.BehaviorEvent      `json:"behavior_events"`
	Rewards        []models.Reward             `json:"rewards"`
	RewardHistory  []models.RewardHistoryEvent `json:"reward_history"`
	Agreements     []models.AgreementVersion   `json:"agreement_versions"`
	SkillBadges    []models.SkillBadge         `json:"skill_badges"`
	SpecialMoments []models.SpecialMoment      `json:"special_moments"`
}

// ImportStats counts the records an import added
type ImportStats struct {
	Added   int
	Skipped int
}

// BackupService handles household backup and restore
type BackupService struct {
	repo repository.Repository
	now  func() time.Time
}

// NewBackupService creates a new backup service
func NewBackupService(repo repository.Repository, now func() time.Time) *BackupService {
	if now == nil {
		now = time.Now
	}
	return &BackupService{repo: repo, now: now}
}

// Snapshot reads every collection into a backup document
func (s *BackupService) Snapshot() (*BackupData, error) {
	backup := &BackupData{Version: BackupVersion, ExportedAt: s.now()}

	var err error
	if backup.Children, err = s.repo.Children(); err != nil {
		return nil, fmt.Errorf("failed to export children: %w", err)
	}
	if backup.BehaviorTypes, err = s.repo.BehaviorTypes(); err != nil {
		return nil, fmt.Errorf("failed to export behavior types: %w", err)
	}
	if backup.BehaviorEvents, err = s.repo.BehaviorEvents(); err != nil {
		return nil, fmt.Errorf("failed to export behavior events: %w", err)
	}
	if backup.Rewards, err = s.repo.Rewards(); err != nil {
		return nil, fmt.Errorf("failed to export goals: %w", err)
	}
	if backup.RewardHistory, err = s.repo.RewardHistoryEvents(); err != nil {
		return nil, fmt.Errorf("failed to export goal history: %w", err)
	}
	if backup.Agreements, err = s.repo.AgreementVersions(); err != nil {
		return nil, fmt.Errorf("failed to export agreements: %w", err)
	}
	if backup.SkillBadges, err = s.repo.SkillBadges(); err != nil {
		return nil, fmt.Errorf("failed to export badges: %w", err)
	}
	if backup.SpecialMoments, err = s.repo.SpecialMoments(); err != nil {
		return nil, fmt.Errorf("failed to export special moments: %w", err)
	}
	return backup, nil
}

// Export writes a complete backup to a file
func (s *BackupService) Export(outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	return s.ExportToWriter(file)
}

// ExportToWriter writes a complete backup as indented JSON
func (s *BackupService) ExportToWriter(w io.Writer) error {
	backup, err := s.Snapshot()
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(backup); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}

	log.Printf("Exported: %d children, %d behavior types, %d events, %d goals, %d agreement versions",
		len(backup.Children), len(backup.BehaviorTypes), len(backup.BehaviorEvents),
		len(backup.Rewards), len(backup.Agreements))
	return nil
}

// Import restores a backup file
func (s *BackupService) Import(inputPath string) (ImportStats, error) {
	file, err := os.Open(inputPath)
	if err != nil {
		return ImportStats{}, fmt.Errorf("failed to open input file: %w", err)
	}
	defer file.Close()

	return s.ImportFromReader(file)
}

// ImportFromReader merges a backup into the repository. Records whose id
// already exists are kept as they are.
func (s *BackupService) ImportFromReader(reader io.Reader) (ImportStats, error) {
	var backup BackupData
	if err := json.NewDecoder(reader).Decode(&backup); err != nil {
		return ImportStats{}, fmt.Errorf("failed to decode backup: %w", err)
	}
	if backup.Version != BackupVersion {
		return ImportStats{}, fmt.Errorf("%w: %q", ErrUnsupportedBackup, backup.Version)
	}
	log.Printf("Backup version: %s, exported at: %s", backup.Version, backup.ExportedAt)

	existing, err := s.Snapshot()
	if err != nil {
		return ImportStats{}, err
	}

	var stats ImportStats
	// in order of dependencies
	steps := []struct {
		name string
		run  func() (int, int, error)
	}{
		{"children", func() (int, int, error) {
			return importAll(backup.Children, existing.Children, func(c models.Child) string { return c.ID }, s.repo.AddChild)
		}},
		{"behavior types", func() (int, int, error) {
			return importAll(backup.BehaviorTypes, existing.BehaviorTypes, func(bt models.BehaviorType) string { return bt.ID }, s.repo.AddBehaviorType)
		}},
		{"behavior events", func() (int, int, error) {
			return importAll(backup.BehaviorEvents, existing.BehaviorEvents, func(e models.BehaviorEvent) string { return e.ID }, s.repo.AddBehaviorEvent)
		}},
		{"goals", func() (int, int, error) {
			return importAll(backup.Rewards, existing.Rewards, func(r models.Reward) string { return r.ID }, s.repo.AddReward)
		}},
		{"goal history", func() (int, int, error) {
			return importAll(backup.RewardHistory, existing.RewardHistory, func(h models.RewardHistoryEvent) string { return h.ID }, s.repo.AddRewardHistoryEvent)
		}},
		{"agreements", func() (int, int, error) {
			return importAll(backup.Agreements, existing.Agreements, func(v models.AgreementVersion) string { return v.ID }, s.repo.AddAgreementVersion)
		}},
		{"badges", func() (int, int, error) {
			return importAll(backup.SkillBadges, existing.SkillBadges, func(b models.SkillBadge) string { return b.ID }, s.repo.AddSkillBadge)
		}},
		{"special moments", func() (int, int, error) {
			return importAll(backup.SpecialMoments, existing.SpecialMoments, func(m models.SpecialMoment) string { return m.ID }, s.repo.AddSpecialMoment)
		}},
	}
	for _, step := range steps {
		added, skipped, err := step.run()
		stats.Added += added
		stats.Skipped += skipped
		if err != nil {
			return stats, fmt.Errorf("failed to import %s: %w", step.name, err)
		}
	}

	if err := s.rebuildStreaks(backup.BehaviorEvents); err != nil {
		return stats, err
	}

	log.Printf("Import completed: %d added, %d skipped", stats.Added, stats.Skipped)
	return stats, nil
}

func importAll[T any](items, existing []T, id func(T) string, add func(T) error) (added, skipped int, err error) {
	seen := make(map[string]bool, len(existing))
	for _, item := range existing {
		seen[id(item)] = true
	}
	for _, item := range items {
		if seen[id(item)] {
			skipped++
			continue
		}
		if err := add(item); err != nil {
			return added, skipped, fmt.Errorf("record %s: %w", id(item), err)
		}
		seen[id(item)] = true
		added++
	}
	return added, skipped, nil
}

func (s *BackupService) rebuildStreaks(events []models.BehaviorEvent) error {
	type pair struct{ child, behavior string }
	done := make(map[pair]bool)
	for _, e := range events {
		key := pair{e.ChildID, e.BehaviorTypeID}
		if done[key] {
			continue
		}
		done[key] = true
		if err := s.repo.UpdateStreak(e.ChildID, e.BehaviorTypeID); err != nil {
			return fmt.Errorf("failed to rebuild streaks: %w", err)
		}
	}
	return nil
}
