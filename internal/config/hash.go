package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// LockPath returns the sidecar lock file path for a config file.
func LockPath(configPath string) string {
	return configPath + ".lock"
}

// WriteLock records the config file's current hash in its sidecar lock file.
// Subsequent loads refuse a config whose hash no longer matches.
func WriteLock(configPath string) error {
	hash, err := ComputeBlake3Hash(configPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(LockPath(configPath), []byte(hash+"\n"), 0o644); err != nil {
		return fmt.Errorf("write lock file: %w", err)
	}
	return nil
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash. It is used
// to detect config tampering between a lock and a subsequent start.
func VerifyFileHash(filePath, expectedHash string) error {
	actualHash, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}

	if actualHash != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(filePath), expectedHash, actualHash)
	}

	return nil
}
