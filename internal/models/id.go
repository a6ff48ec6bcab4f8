package models

import "github.com/google/uuid"

// NewID returns a fresh entity identifier
func NewID() string {
	return uuid.New().String()
}
