package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// DBFile is the recorder database file name inside the livegraph directory.
const DBFile = "recordings.db"

// GlobalPath returns the per-user livegraph directory.
// On Unix: ~/.livegraph
// On Windows: %USERPROFILE%\.livegraph
func GlobalPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".livegraph"), nil
}

// DefaultDBPath returns ~/.livegraph/recordings.db.
func DefaultDBPath() (string, error) {
	dir, err := GlobalPath()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DBFile), nil
}
