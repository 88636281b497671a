package app

import "github.com/google/uuid"

// generateID returns a random UUID string for new cases.
func generateID() string {
	return uuid.NewString()
}
