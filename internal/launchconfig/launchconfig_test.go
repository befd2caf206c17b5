package launchconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbgerrors "github.com/ctagard/pydevd-mcp/internal/errors"
	"github.com/ctagard/pydevd-mcp/pkg/types"
)

const sampleLaunchJSON = `{
	// Use IntelliSense to learn about possible attributes.
	"version": "0.2.0",
	"configurations": [
		{
			"type": "debugpy",
			"request": "launch",
			"name": "Serve",
			"program": "${workspaceFolder}/app/serve.py",
			"args": ["--port", "${input:port}"],
			"cwd": "${workspaceFolder}",
			"env": {"DATA_DIR": "${env:APP_DATA}"},
			"python": "${workspaceFolder}/.venv/bin/python",
			/* children inherit the debugger */
			"subProcess": true,
		},
		{
			"type": "python",
			"request": "attach",
			"name": "Attach",
			"connect": {"host": "worker", "port": 5678}
		},
		{
			"type": "go",
			"request": "launch",
			"name": "Go: Debug",
			"program": "${workspaceFolder}"
		},
	],
}`

func writeWorkspace(t *testing.T) (string, string) {
	t.Helper()
	root := t.TempDir()
	vscodeDir := filepath.Join(root, VSCodeDirName)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "app", "nested"), 0o755))
	require.NoError(t, os.MkdirAll(vscodeDir, 0o755))
	path := filepath.Join(vscodeDir, LaunchJSONFileName)
	require.NoError(t, os.WriteFile(path, []byte(sampleLaunchJSON), 0o644))
	return root, path
}

func TestDiscoverWalksUp(t *testing.T) {
	root, path := writeWorkspace(t)

	found, err := Discover(filepath.Join(root, "app", "nested"))
	require.NoError(t, err)
	assert.Equal(t, path, found)
	assert.Equal(t, root, GetWorkspaceFolder(found))

	_, err = Discover(t.TempDir())
	assert.Error(t, err)
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), LaunchJSONFileName)
	require.NoError(t, os.WriteFile(path, []byte(`{invalid json`), 0o644))
	_, err := LoadFromPath(path)
	assert.Error(t, err)

	_, err = LoadFromPath(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestFindConfigurationOnlyMatchesPython(t *testing.T) {
	root, _ := writeWorkspace(t)
	lj, _, err := LoadAndDiscover(root)
	require.NoError(t, err)

	assert.Equal(t, []string{"Serve", "Attach"}, ListConfigurationNames(lj))

	cfg, err := FindConfiguration(lj, "Serve")
	require.NoError(t, err)
	assert.True(t, cfg.IsLaunchRequest())

	_, err = FindConfiguration(lj, "Go: Debug")
	assert.True(t, dbgerrors.HasCode(err, dbgerrors.CodeConfigInvalid))

	_, err = FindConfiguration(lj, "Nope")
	require.Error(t, err)
	assert.True(t, dbgerrors.HasCode(err, dbgerrors.CodeConfigNotFound))
	var de *dbgerrors.DebugError
	require.ErrorAs(t, err, &de)
	assert.Contains(t, de.Hint, "Serve, Attach")
}

func TestResolveVariables(t *testing.T) {
	t.Setenv("APP_DATA", "/srv/data")
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	ctx := &ResolutionContext{
		WorkspaceFolder: "/work/project",
		InputValues:     map[string]string{"port": "8080"},
		EnvOverrides:    map[string]string{"OVERRIDDEN": "yes"},
	}
	cases := map[string]string{
		"${workspaceFolder}/main.py":   "/work/project/main.py",
		"${workspaceFolderBasename}":   "project",
		"${userHome}/.cache":           home + "/.cache",
		"${env:APP_DATA}":              "/srv/data",
		"${env:OVERRIDDEN}":            "yes",
		"--port=${input:port}":         "--port=8080",
		"no variables":                 "no variables",
		"${env:PYDEVD_MCP_UNSET_VAR}x": "x",
	}
	for in, want := range cases {
		got, err := ResolveVariables(in, ctx)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	got, err := ResolveVariables("${file}", ctx)
	assert.Error(t, err)
	assert.Equal(t, "${file}", got, "unsupported variables are left in place")

	_, err = ResolveVariables("${input:missing}", ctx)
	assert.Error(t, err)
}

func TestResolveLaunchConfiguration(t *testing.T) {
	t.Setenv("APP_DATA", "/srv/data")
	root, _ := writeWorkspace(t)
	lj, path, err := LoadAndDiscover(root)
	require.NoError(t, err)
	cfg, err := FindConfiguration(lj, "Serve")
	require.NoError(t, err)

	ctx := &ResolutionContext{WorkspaceFolder: GetWorkspaceFolder(path)}
	_, err = Resolve(cfg, ctx)
	missing, ok := IsMissingInputsError(err)
	require.True(t, ok)
	assert.Equal(t, []string{"port"}, missing.Inputs)

	ctx.InputValues = map[string]string{"port": "9000"}
	resolved, err := Resolve(cfg, ctx)
	require.NoError(t, err)
	assert.Equal(t, "${workspaceFolder}/app/serve.py", cfg.Program, "the source configuration is not modified")

	req := resolved.LaunchRequest()
	assert.Equal(t, types.LaunchRequest{
		Program:      root + "/app/serve.py",
		Args:         []string{"--port", "9000"},
		Cwd:          root,
		Env:          map[string]string{"DATA_DIR": "/srv/data"},
		Python:       root + "/.venv/bin/python",
		Multiprocess: true,
	}, req)
}

func TestAttachRequest(t *testing.T) {
	root, _ := writeWorkspace(t)
	lj, _, err := LoadAndDiscover(root)
	require.NoError(t, err)
	cfg, err := FindConfiguration(lj, "Attach")
	require.NoError(t, err)

	resolved, err := Resolve(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, types.AttachRequest{Host: "worker", Port: 5678}, resolved.AttachRequest())

	legacy := Configuration{Type: "python", Request: "attach", Name: "old", Port: 3000}
	assert.Equal(t, types.AttachRequest{Host: "127.0.0.1", Port: 3000}, legacy.AttachRequest())
}

func TestValidateConfiguration(t *testing.T) {
	cases := []struct {
		name  string
		cfg   Configuration
		valid bool
	}{
		{"launch", Configuration{Type: "python", Request: "launch", Name: "a", Program: "main.py"}, true},
		{"module", Configuration{Type: "debugpy", Request: "launch", Name: "a", Module: "pkg"}, true},
		{"attach", Configuration{Type: "python", Request: "attach", Name: "a", Port: 1}, true},
		{"no name", Configuration{Type: "python", Request: "launch", Program: "main.py"}, false},
		{"wrong type", Configuration{Type: "node", Request: "launch", Name: "a", Program: "x.js"}, false},
		{"bad request", Configuration{Type: "python", Request: "debug", Name: "a"}, false},
		{"no target", Configuration{Type: "python", Request: "launch", Name: "a"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateConfiguration(&tc.cfg)
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestMergeOverrides(t *testing.T) {
	cfg := &Configuration{
		Type: "python", Request: "launch", Name: "a",
		Module: "pkg.main",
		Args:   []string{"--old"},
		Env:    map[string]string{"A": "1"},
	}
	merged := MergeOverrides(cfg, types.LaunchRequest{
		Program:     "/app/other.py",
		Env:         map[string]string{"B": "2"},
		StopOnEntry: true,
	})

	assert.Equal(t, "/app/other.py", merged.Program)
	assert.Empty(t, merged.Module, "a program override replaces the module")
	assert.Equal(t, []string{"--old"}, merged.Args)
	assert.Equal(t, map[string]string{"A": "1", "B": "2"}, merged.Env)
	assert.True(t, merged.StopOnEntry)
	assert.Equal(t, map[string]string{"A": "1"}, cfg.Env, "the base configuration is untouched")
}
