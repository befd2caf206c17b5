package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbgerrors "github.com/ctagard/pydevd-mcp/internal/errors"
)

func TestCompareVersions(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.1", "1.1", 0},
		{"1.1", "1.1.0", 0},
		{"3.2.3", "1.1", 1},
		{"v0.2.0", "0.10.0", -1},
		{"2.9.5", "3.0.0-beta", -1},
		{"3.2.3.dev0", "3.2.3", 0},
		{"", "0", 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, CompareVersions(tc.a, tc.b), "%s vs %s", tc.a, tc.b)
	}
}

func TestCheckInterpreter(t *testing.T) {
	assert.NoError(t, CheckInterpreter("3.2.3", "1.1"))
	assert.NoError(t, CheckInterpreter("0.0.1", ""))

	err := CheckInterpreter("1.0", "1.1")
	require.Error(t, err)
	assert.True(t, dbgerrors.HasCode(err, dbgerrors.CodeInterpreterTooOld))
}

func TestCheckForUpdates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "pydevd-mcp/"+Version, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"tag_name":"v99.0.0","html_url":"https://example.invalid/r","body":"` + strings.Repeat("n", 600) + `"}`))
	}))
	t.Cleanup(srv.Close)

	c := NewCheckerWithURL(srv.URL)
	assert.Nil(t, c.GetUpdateInfo())

	info := c.CheckForUpdates(context.Background())
	assert.Empty(t, info.Error)
	assert.True(t, info.UpdateAvailable)
	assert.Equal(t, "99.0.0", info.LatestVersion)
	assert.Len(t, info.ReleaseNotes, 500)
	assert.Contains(t, info.UpdateMessage(), "v99.0.0")
	assert.Same(t, info, c.GetUpdateInfo())
}

func TestCheckForUpdatesReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	info := NewCheckerWithURL(srv.URL).CheckForUpdates(context.Background())
	assert.Contains(t, info.Error, "status 403")
	assert.False(t, info.UpdateAvailable)
	assert.Empty(t, info.UpdateMessage())
}
