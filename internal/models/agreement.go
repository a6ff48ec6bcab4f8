package models

import "time"

// AgreementVersion is one signed (or pending) revision of a child's agreement
type AgreementVersion struct {
	ID                 string
	ChildID            string
	CreatedAt          time.Time
	CoveredRewardIDs   []string
	CoveredBehaviorIDs []string
	ChildSignedAt      *time.Time
	ParentSignedAt     *time.Time
	IsCurrent          bool
}

// IsFullySigned reports whether both the child and a parent signed
func (v AgreementVersion) IsFullySigned() bool {
	return v.ChildSignedAt != nil && v.ParentSignedAt != nil
}

// CoverageStatus summarizes how a child's agreement relates to their active goals
type CoverageStatus string

const (
	NeverSigned     CoverageStatus = "neverSigned"
	SignedOutOfDate CoverageStatus = "signedOutOfDate"
	SignedCurrent   CoverageStatus = "signedCurrent"
)
