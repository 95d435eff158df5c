package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNetworkFilesystem is returned for paths on NFS, SMB and similar mounts.
// SQLite's WAL and the flock(2) writer lock are unreliable there.
var ErrNetworkFilesystem = errors.New("path is on a network filesystem")

var networkFilesystems = map[string]bool{
	"afpfs":  true,
	"cifs":   true,
	"nfs":    true,
	"smbfs":  true,
	"smb2":   true,
	"webdav": true,
}

// detectFilesystem is swapped out in tests.
var detectFilesystem = filesystemType

// CheckLocal returns the filesystem type holding path, or its nearest existing
// parent when path does not exist yet. A network mount yields
// ErrNetworkFilesystem alongside the detected type.
func CheckLocal(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is empty")
	}
	existing, err := nearestExistingPath(path)
	if err != nil {
		return "", err
	}
	fsType, err := detectFilesystem(existing)
	if err != nil {
		return "", fmt.Errorf("detect filesystem for %q: %w", existing, err)
	}
	if networkFilesystems[strings.ToLower(strings.TrimSpace(fsType))] {
		return fsType, fmt.Errorf("%w: %s is on %s; use a local state.path", ErrNetworkFilesystem, path, fsType)
	}
	return fsType, nil
}

func nearestExistingPath(path string) (string, error) {
	candidate, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	for {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", path)
		}
		candidate = parent
	}
}
