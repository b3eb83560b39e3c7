// Package id provides unique identifier generation for transcription runs.
package id

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Generate creates a new unique run ID.
// Format: run-<timestamp>-<random>
// Example: run-1701432000-a1b2c3d4
func Generate() string {
	timestamp := time.Now().Unix()
	u, err := uuid.NewRandom()
	if err != nil {
		// Extremely unlikely, but fall back to timestamp-only ID.
		return fmt.Sprintf("run-%d", timestamp)
	}
	return fmt.Sprintf("run-%d-%s", timestamp, u.String()[:8])
}
