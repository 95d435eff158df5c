package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withDetector(t *testing.T, fn func(string) (string, error)) {
	t.Helper()
	prev := detectFilesystem
	detectFilesystem = fn
	t.Cleanup(func() { detectFilesystem = prev })
}

func TestCheckLocalWalksToExistingParent(t *testing.T) {
	dir := t.TempDir()
	var inspected string
	withDetector(t, func(p string) (string, error) {
		inspected = p
		return "ext4", nil
	})

	fsType, err := CheckLocal(filepath.Join(dir, "a", "b", "state.db"))
	require.NoError(t, err)
	assert.Equal(t, "ext4", fsType)
	abs, _ := filepath.Abs(dir)
	assert.Equal(t, abs, inspected)
}

func TestCheckLocalRejectsNetworkMounts(t *testing.T) {
	for _, fsType := range []string{"nfs", "CIFS", "smb2", " webdav "} {
		t.Run(fsType, func(t *testing.T) {
			withDetector(t, func(string) (string, error) { return fsType, nil })
			got, err := CheckLocal(filepath.Join(t.TempDir(), "state.db"))
			assert.ErrorIs(t, err, ErrNetworkFilesystem)
			assert.Equal(t, fsType, got)
		})
	}
}

func TestCheckLocalDetectorFailure(t *testing.T) {
	withDetector(t, func(string) (string, error) { return "", errors.New("unsupported") })
	_, err := CheckLocal(filepath.Join(t.TempDir(), "state.db"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNetworkFilesystem)
}

func TestOpenSQLiteRefusesNetworkFilesystem(t *testing.T) {
	withDetector(t, func(string) (string, error) { return "nfs", nil })
	_, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	assert.ErrorIs(t, err, ErrNetworkFilesystem)
}

func TestOpenSQLiteToleratesUnknownPlatform(t *testing.T) {
	withDetector(t, func(string) (string, error) { return "", errors.New("unsupported") })
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	_ = db.Close()
}
