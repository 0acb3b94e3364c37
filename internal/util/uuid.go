package util

import (
	"strings"

	"github.com/google/uuid"
)

const accountNumberLength = 12

func GenerateUUID() string {
	return uuid.NewString()
}

// GenerateAccountNumber returns the first twelve hex digits of a random UUID.
// Collisions are possible and are resolved by the caller.
func GenerateAccountNumber() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:accountNumberLength]
}
