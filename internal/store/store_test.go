package store

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "license.json"))
	require.NoError(t, err)
	return s
}

func TestNewEmptyPath(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}

func TestPutAndGetString(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Put(KeyLicenseKey, "LK-1234-ABCD"))

	value, ok, err := s.GetString(KeyLicenseKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "LK-1234-ABCD", value)
}

func TestGetMissingKey(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.GetString(KeyLicenseKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutStruct(t *testing.T) {
	type record struct {
		Status    string     `json:"status"`
		ExpiresAt *time.Time `json:"expires_at,omitempty"`
	}

	s := newTestStore(t)
	expires := time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(KeyLicenseStatus, record{Status: "active", ExpiresAt: &expires}))

	var got record
	ok, err := s.Get(KeyLicenseStatus, &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "active", got.Status)
	require.NotNil(t, got.ExpiresAt)
	assert.True(t, expires.Equal(*got.ExpiresAt))
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Put(KeyLicenseKey, "LK-1"))
	require.NoError(t, s.Put(KeyLicenseStatus, "active"))

	require.NoError(t, s.Delete(KeyLicenseKey, KeyLicenseStatus))

	_, ok, err := s.GetString(KeyLicenseKey)
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting absent keys is not an error.
	require.NoError(t, s.Delete(KeyLicenseKey))
}

func TestSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "license.json")

	s1, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s1.Put(KeyInstallID, "install-42"))

	s2, err := New(path)
	require.NoError(t, err)
	value, ok, err := s2.GetString(KeyInstallID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "install-42", value)
}

func TestCorruptFileIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "license.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	s, err := New(path)
	require.NoError(t, err)

	_, _, err = s.GetString(KeyLicenseKey)
	assert.Error(t, err)
}

func TestConcurrentWriters(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Put(KeyLicenseKey, "LK-concurrent")
			_, _, _ = s.GetString(KeyLicenseKey)
		}()
	}
	wg.Wait()

	value, ok, err := s.GetString(KeyLicenseKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "LK-concurrent", value)
}

func TestCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "license.json")
	s, err := New(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(KeyLicenseKey, "LK-1"))
	assert.FileExists(t, path)
}
