package ratelimit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParsePolicies_FillsDefaults(t *testing.T) {
	set, err := ParsePolicies([]byte(`
default:
  max_requests: 30
routes:
  - method: get
    pattern: /
    max_requests: 100
  - method: POST
    pattern: /employees/
    max_requests: 20
    window: 30s
`))
	require.NoError(t, err)

	require.Equal(t, Policy{MaxRequests: 30, Window: time.Minute}, set.Default)
	require.Len(t, set.Routes, 2)
	require.Equal(t, Policy{Method: "GET", Pattern: "/", MaxRequests: 100, Window: time.Minute}, set.Routes[0])
	require.Equal(t, 30*time.Second, set.Routes[1].Window)
	require.Equal(t, "POST /employees/", set.Routes[1].Label())
}

func TestParsePolicies_EmptyDocumentUsesDefaultLimit(t *testing.T) {
	set, err := ParsePolicies([]byte(`routes: []`))
	require.NoError(t, err)
	require.Equal(t, DefaultMaxRequests, set.Default.MaxRequests)
	require.Equal(t, time.Minute, set.Default.Window)
}

func TestParsePolicies_RejectsInvalidRoutes(t *testing.T) {
	_, err := ParsePolicies([]byte(`
routes:
  - pattern: employees
    max_requests: 10
  - method: GET
    pattern: /
    max_requests: 0
  - method: GET
    pattern: /x
    max_requests: 1
  - method: get
    pattern: /x
    max_requests: 2
`))
	require.Error(t, err)
	require.ErrorContains(t, err, "employees: pattern must start with /")
	require.ErrorContains(t, err, "GET /: max_requests must be > 0")
	require.ErrorContains(t, err, "GET /x: duplicated route")
}

func TestParsePolicies_RejectsNegativeDefault(t *testing.T) {
	_, err := ParsePolicies([]byte("default:\n  max_requests: -1\n"))
	require.ErrorContains(t, err, "default: max_requests must be > 0")
}

func TestLoadPolicies_ReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default:\n  max_requests: 5\n  window: 10s\n"), 0o600))

	set, err := LoadPolicies(path)
	require.NoError(t, err)
	require.Equal(t, 5, set.Default.MaxRequests)
	require.Equal(t, 10*time.Second, set.Default.Window)
}

func TestLoadPolicies_MissingFile(t *testing.T) {
	_, err := LoadPolicies(filepath.Join(t.TempDir(), "nope.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestDirectoryPolicies_AreValid(t *testing.T) {
	set := DirectoryPolicies()
	require.NoError(t, set.Validate())
	require.Equal(t, 30, set.Default.MaxRequests)

	limits := map[string]int{}
	for _, p := range set.Routes {
		limits[p.Label()] = p.MaxRequests
	}
	require.Equal(t, 100, limits["GET /"])
	require.Equal(t, 50, limits["GET /employees/"])
	require.Equal(t, 20, limits["POST /employees/"])
	require.Equal(t, 20, limits["DELETE /employees/{id}"])
}
