package models

import "time"

// SignerRole identifies who signed an agreement version
type SignerRole string

const (
	SignerChild  SignerRole = "child"
	SignerParent SignerRole = "parent"
)

// Signature records a signature a child's agreement received
type Signature struct {
	Role      SignerRole `json:"role"`
	VersionID string     `json:"version_id"`
	SignedAt  time.Time  `json:"signed_at"`
}

// Child represents a child profile in the household.
// Children are archived rather than deleted when they leave active use.
type Child struct {
	ID               string
	Name             string
	ColorTag         string
	Age              *int
	IsArchived       bool
	TotalPoints      int
	AllowancePaidOut int
	Signatures       []Signature
	CreatedAt        time.Time
}

// AllowanceOwed returns monetized points not yet paid out
func (c Child) AllowanceOwed(monetizedEarned int) int {
	owed := monetizedEarned - c.AllowancePaidOut
	if owed < 0 {
		return 0
	}
	return owed
}
