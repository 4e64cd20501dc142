// Package utils holds small cross-cutting helpers shared by every component.
package utils

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const idAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateNanoID returns a random opaque token of the given length.
func GenerateNanoID(length int) string {
	id, err := gonanoid.Generate(idAlphabet, length)
	if err != nil {
		panic(err)
	}
	return id
}

// GenerateNanoIDWithPrefix returns "<prefix>_<token>", the session-id shape
// used across the engine (e.g. "folderjob_42_a1b2c3"). Worker container
// names such as "inbox-worker-42-7" are built without a random token.
func GenerateNanoIDWithPrefix(prefix string, length int) string {
	return fmt.Sprintf("%s_%s", prefix, GenerateNanoID(length))
}
