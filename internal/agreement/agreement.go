// Package agreement derives a child's agreement state from its version history.
// Versions are never deleted; each change produces a new row or an update of
// the current one.
package agreement

import (
	"sort"
	"time"

	"starchart/internal/models"
)

func newer(a, b models.AgreementVersion) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// History returns the child's versions, newest first
func History(versions []models.AgreementVersion, childID string) []models.AgreementVersion {
	var out []models.AgreementVersion
	for _, v := range versions {
		if v.ChildID == childID {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return newer(out[i], out[j]) })
	return out
}

// Current returns the child's current version. If more than one row is
// flagged current the newest wins.
func Current(versions []models.AgreementVersion, childID string) (models.AgreementVersion, bool) {
	for _, v := range History(versions, childID) {
		if v.IsCurrent {
			return v, true
		}
	}
	return models.AgreementVersion{}, false
}

// InForce returns the newest fully signed version. A freshly created version
// awaiting signatures does not replace the one the family last agreed to.
func InForce(versions []models.AgreementVersion, childID string) (models.AgreementVersion, bool) {
	for _, v := range History(versions, childID) {
		if v.IsFullySigned() {
			return v, true
		}
	}
	return models.AgreementVersion{}, false
}

// NewVersion builds a new current version for the child and returns every
// prior version that must be flagged not current
func NewVersion(versions []models.AgreementVersion, childID, id string, now time.Time) (models.AgreementVersion, []models.AgreementVersion) {
	var demoted []models.AgreementVersion
	for _, v := range versions {
		if v.ChildID == childID && v.IsCurrent {
			v.IsCurrent = false
			demoted = append(demoted, v)
		}
	}
	return models.AgreementVersion{
		ID:        id,
		ChildID:   childID,
		CreatedAt: now,
		IsCurrent: true,
	}, demoted
}

// Sign records a signature on v. Re-signing keeps the original time.
// When the signature completes the version, coverage is captured from the
// active ids passed in and completed is true.
func Sign(v models.AgreementVersion, role models.SignerRole, at time.Time, activeRewardIDs, activeBehaviorIDs []string) (signed models.AgreementVersion, completed bool) {
	wasSigned := v.IsFullySigned()
	ts := at
	switch role {
	case models.SignerChild:
		if v.ChildSignedAt == nil {
			v.ChildSignedAt = &ts
		}
	case models.SignerParent:
		if v.ParentSignedAt == nil {
			v.ParentSignedAt = &ts
		}
	default:
		return v, false
	}

	if !wasSigned && v.IsFullySigned() {
		v.CoveredRewardIDs = sortedCopy(activeRewardIDs)
		v.CoveredBehaviorIDs = sortedCopy(activeBehaviorIDs)
		return v, true
	}
	return v, false
}

func sortedCopy(ids []string) []string {
	out := append([]string{}, ids...)
	sort.Strings(out)
	return out
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// IsCovered reports whether the reward is part of the version in force
func IsCovered(versions []models.AgreementVersion, childID, rewardID string) bool {
	v, ok := InForce(versions, childID)
	return ok && contains(v.CoveredRewardIDs, rewardID)
}

// Uncovered returns the active reward ids the version in force does not cover
func Uncovered(versions []models.AgreementVersion, childID string, activeRewardIDs []string) []string {
	v, ok := InForce(versions, childID)
	var out []string
	for _, id := range activeRewardIDs {
		if !ok || !contains(v.CoveredRewardIDs, id) {
			out = append(out, id)
		}
	}
	return out
}

// Status classifies the child's agreement against their active rewards
func Status(versions []models.AgreementVersion, childID string, activeRewardIDs []string) models.CoverageStatus {
	if _, ok := InForce(versions, childID); !ok {
		return models.NeverSigned
	}
	if len(Uncovered(versions, childID, activeRewardIDs)) > 0 {
		return models.SignedOutOfDate
	}
	return models.SignedCurrent
}
