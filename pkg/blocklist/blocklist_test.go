package blocklist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_IsBlocked(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Load([]string{"10.1.2.3", " 192.168.0.0/16 ", "", "::1"}))
	assert.Equal(t, 3, m.Len())

	tests := []struct {
		addr string
		want bool
	}{
		{"10.1.2.3:5555", true},
		{"10.1.2.3", true},
		{"10.1.2.4:5555", false},
		{"192.168.44.1:6000", true},
		{"[::1]:6000", true},
		{"172.16.0.1:80", false},
		{"not-an-address", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, m.IsBlocked(tt.addr), tt.addr)
	}
}

func TestManager_LoadRejectsGarbage(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Load([]string{"10.0.0.1"}))

	assert.Error(t, m.Load([]string{"10.0.0.0/99"}))
	assert.Error(t, m.Load([]string{"example.com"}))

	// a failed load keeps the previous entries
	assert.True(t, m.IsBlocked("10.0.0.1:1"))
}

func TestManager_LoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"blocked_clients": ["203.0.113.0/24"]}`), 0o644))

	m := NewManager()
	require.NoError(t, m.LoadFromFile(path))
	assert.True(t, m.IsBlocked("203.0.113.9:4000"))

	assert.Error(t, m.LoadFromFile(filepath.Join(t.TempDir(), "missing.json")))
}
