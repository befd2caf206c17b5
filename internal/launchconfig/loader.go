package launchconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"

	dbgerrors "github.com/ctagard/pydevd-mcp/internal/errors"
)

const (
	// LaunchJSONFileName is the file VS Code keeps launch configurations in.
	LaunchJSONFileName = "launch.json"
	// VSCodeDirName is the workspace directory holding LaunchJSONFileName.
	VSCodeDirName = ".vscode"
)

// LoadFromPath parses a launch.json. VS Code writes these files as JSONC, so
// comments and trailing commas are accepted.
func LoadFromPath(path string) (*LaunchJSON, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	std, err := hujson.Standardize(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	lj := new(LaunchJSON)
	if err := json.Unmarshal(std, lj); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return lj, nil
}

// Discover returns the nearest .vscode/launch.json at or above start. An
// empty start means the working directory; a file start means its directory.
func Discover(start string) (string, error) {
	dir, err := searchRoot(start)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, VSCodeDirName, LaunchJSONFileName)
		if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
			return candidate, nil
		}
		up := filepath.Dir(dir)
		if up == dir {
			return "", fmt.Errorf("no %s found at or above %s", filepath.Join(VSCodeDirName, LaunchJSONFileName), start)
		}
		dir = up
	}
}

func searchRoot(start string) (string, error) {
	if start == "" {
		return os.Getwd()
	}
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return "", err
	}
	if fi.IsDir() {
		return dir, nil
	}
	return filepath.Dir(dir), nil
}

// LoadAndDiscover runs Discover from start and loads what it finds.
func LoadAndDiscover(start string) (*LaunchJSON, string, error) {
	path, err := Discover(start)
	if err != nil {
		return nil, "", err
	}
	lj, err := LoadFromPath(path)
	return lj, path, err
}

// FindConfiguration returns the Python configuration called name.
func FindConfiguration(lj *LaunchJSON, name string) (*Configuration, error) {
	for i := range lj.Configurations {
		cfg := &lj.Configurations[i]
		if cfg.Name != name {
			continue
		}
		if !cfg.IsPython() {
			return nil, dbgerrors.ConfigInvalid(name, fmt.Sprintf("type %q is not a Python configuration", cfg.Type))
		}
		return cfg, nil
	}
	return nil, dbgerrors.ConfigNotFound(name, ListConfigurationNames(lj))
}

// ListConfigurationNames returns the names of the Python configurations.
func ListConfigurationNames(lj *LaunchJSON) []string {
	names := make([]string, 0, len(lj.Configurations))
	for i := range lj.Configurations {
		if lj.Configurations[i].IsPython() {
			names = append(names, lj.Configurations[i].Name)
		}
	}
	return names
}

// GetWorkspaceFolder is the directory that contains .vscode.
func GetWorkspaceFolder(launchJSONPath string) string {
	return filepath.Dir(filepath.Dir(launchJSONPath))
}

// ValidateConfiguration checks the fields every Python configuration needs.
func ValidateConfiguration(cfg *Configuration) error {
	if cfg.Name == "" {
		return fmt.Errorf("configuration has no name")
	}
	if !cfg.IsPython() {
		return fmt.Errorf("%s: type %q is not python or debugpy", cfg.Name, cfg.Type)
	}
	switch {
	case cfg.IsAttachRequest():
		return nil
	case !cfg.IsLaunchRequest():
		return fmt.Errorf("%s: request %q is neither launch nor attach", cfg.Name, cfg.Request)
	case cfg.Program == "" && cfg.Module == "":
		return fmt.Errorf("%s: launch configuration needs program or module", cfg.Name)
	}
	return nil
}
