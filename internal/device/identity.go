package device

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// LoadOrCreateDeviceID returns the device's stable identifier, generating
// and persisting a new UUID on first start.
//
// The identifier survives container restarts as long as the path is on a
// mounted volume; an ephemeral path just means a fresh identity per
// deployment, which the fleet API tolerates.
func LoadOrCreateDeviceID(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(data))
		if _, parseErr := uuid.Parse(id); parseErr == nil {
			return id, nil
		}
		// Corrupt file, fall through and regenerate.
	}

	id := uuid.NewString()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create state directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(id+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("failed to persist device ID: %w", err)
	}

	return id, nil
}

// DefaultIDPath is where the device ID is stored unless overridden.
func DefaultIDPath() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".device-manager", "device_id")
	}
	return filepath.Join(os.TempDir(), "device-manager", "device_id")
}
