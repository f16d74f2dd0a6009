package common

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/0xPolygon/polygon-preconf/helper/hex"
)

var errNotPositive = errors.New("value must be positive")

// SetupDataDir sets up the data directory and the corresponding sub-directories
func SetupDataDir(dataDir string, paths []string) error {
	if err := CreateDirSafe(dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data dir: (%s): %w", dataDir, err)
	}

	for _, path := range paths {
		path := filepath.Join(dataDir, path)
		if err := CreateDirSafe(path, 0700); err != nil {
			return fmt.Errorf("failed to create path: (%s): %w", path, err)
		}
	}

	return nil
}

// DirectoryExists checks if the directory at the specified path exists
func DirectoryExists(directoryPath string) bool {
	// Grab the absolute filepath
	pathAbs, err := filepath.Abs(directoryPath)
	if err != nil {
		return false
	}

	// Check if the directory exists, and that it's actually a directory if there is a hit
	if fileInfo, statErr := os.Stat(pathAbs); os.IsNotExist(statErr) || (fileInfo != nil && !fileInfo.IsDir()) {
		return false
	}

	return true
}

// CreateDirSafe creates a file system directory if it doesn't exist
func CreateDirSafe(path string, perms os.FileMode) error {
	_, err := os.Stat(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(path, perms)
	}

	return nil
}

// EncodeUint64ToBytes encodes provided uint64 to big endian byte slice
func EncodeUint64ToBytes(value uint64) []byte {
	result := make([]byte, 8)
	binary.BigEndian.PutUint64(result, value)

	return result
}

// EncodeBytesToUint64 big endian byte slice to uint64
func EncodeBytesToUint64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

// ReadKeyMaterial returns the raw bytes of a hex encoded key which is given either
// inline (with or without 0x prefix) or as a path to a file holding it
func ReadKeyMaterial(value string) ([]byte, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("empty key material")
	}

	if _, err := os.Stat(value); err == nil {
		content, err := os.ReadFile(value)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file %s: %w", value, err)
		}

		value = strings.TrimSpace(string(content))
	}

	raw, err := hex.DecodeHex(value)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key material: %w", err)
	}

	if len(raw) != 32 {
		return nil, fmt.Errorf("invalid key length: expected 32 bytes, got %d", len(raw))
	}

	return raw, nil
}

// GetTerminationSignalCh returns a channel to emit signals by ctrl + c
func GetTerminationSignalCh() <-chan os.Signal {
	// wait for the user to quit with ctrl-c
	signalCh := make(chan os.Signal, 1)
	signal.Notify(
		signalCh,
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGHUP,
	)

	return signalCh
}

// ValidatePositive returns an error when the given named numeric option is zero
func ValidatePositive(name string, value uint64) error {
	if value == 0 {
		return fmt.Errorf("%w: %s must be greater than zero", errNotPositive, name)
	}

	return nil
}
