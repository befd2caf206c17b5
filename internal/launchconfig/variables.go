package launchconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// placeholder matches ${name} and ${scope:name}.
var placeholder = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveVariables substitutes the ${...} placeholders in text. Placeholders
// that cannot be resolved stay in the output and are reported together.
func ResolveVariables(text string, ctx *ResolutionContext) (string, error) {
	if ctx == nil {
		ctx = &ResolutionContext{}
	}
	var errs []error
	out := placeholder.ReplaceAllStringFunc(text, func(m string) string {
		v, err := ctx.lookup(m[2 : len(m)-1])
		if err != nil {
			errs = append(errs, err)
			return m
		}
		return v
	})
	return out, errors.Join(errs...)
}

func (ctx *ResolutionContext) lookup(name string) (string, error) {
	if scope, key, ok := strings.Cut(name, ":"); ok {
		switch scope {
		case "env":
			if v, ok := ctx.EnvOverrides[key]; ok {
				return v, nil
			}
			return os.Getenv(key), nil
		case "input":
			if v, ok := ctx.InputValues[key]; ok {
				return v, nil
			}
			return "", fmt.Errorf("no value supplied for ${input:%s}", key)
		}
		return "", fmt.Errorf("unsupported variable ${%s}", name)
	}

	switch name {
	case "workspaceFolder":
		return ctx.WorkspaceFolder, nil
	case "workspaceFolderBasename":
		return filepath.Base(ctx.WorkspaceFolder), nil
	case "pathSeparator":
		return string(os.PathSeparator), nil
	case "userHome":
		return os.UserHomeDir()
	case "cwd":
		return os.Getwd()
	}
	return "", fmt.Errorf("unsupported variable ${%s}", name)
}

// FindRequiredInputs returns the ids of the ${input:...} placeholders in text.
func FindRequiredInputs(text string) []string {
	var ids []string
	for _, m := range placeholder.FindAllStringSubmatch(text, -1) {
		if id, ok := strings.CutPrefix(m[1], "input:"); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// MissingInputs lists, once each, the ${input:} ids used by cfg that have no
// value in values.
func MissingInputs(cfg *Configuration, values map[string]string) []string {
	fields := append([]string{cfg.Program, cfg.Module, cfg.Cwd, cfg.Python, cfg.PythonPath, cfg.Host}, cfg.Args...)
	for _, v := range cfg.Env {
		fields = append(fields, v)
	}

	var missing []string
	seen := make(map[string]struct{})
	for _, f := range fields {
		for _, id := range FindRequiredInputs(f) {
			if _, ok := values[id]; ok {
				continue
			}
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				missing = append(missing, id)
			}
		}
	}
	return missing
}
