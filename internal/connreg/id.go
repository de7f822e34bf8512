package connreg

import "github.com/google/uuid"

// GenerateID generates a random ID with the given prefix.
func GenerateID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// NewConnectionID returns a fresh connection ID.
func NewConnectionID() string {
	return GenerateID("conn")
}
