package utils

import (
	"github.com/google/uuid"
)

// NewRandomID returns a new random (v4) uuid string.
func NewRandomID() string {
	return uuid.New().String()
}

// NewID returns a deterministic uuid for the given integer. Useful for tests.
func NewID(i int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte{byte(i >> 24), byte(i >> 16), byte(i >> 8), byte(i)}).String()
}

// IsValidID returns if the given string is a valid uuid.
func IsValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
