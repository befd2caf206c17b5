package launchconfig

import (
	"errors"
	"fmt"
	"maps"

	dbgerrors "github.com/ctagard/pydevd-mcp/internal/errors"
	"github.com/ctagard/pydevd-mcp/pkg/types"
)

// Resolve returns a copy of cfg with every variable substituted.
func Resolve(cfg *Configuration, ctx *ResolutionContext) (*Configuration, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is nil")
	}
	if ctx == nil {
		ctx = &ResolutionContext{}
	}
	if err := ValidateConfiguration(cfg); err != nil {
		return nil, dbgerrors.ConfigInvalid(cfg.Name, err.Error())
	}
	if missing := MissingInputs(cfg, ctx.InputValues); len(missing) > 0 {
		return nil, &MissingInputsError{Inputs: missing}
	}

	resolved := *cfg
	resolved.Args = nil
	resolved.Env = nil
	if cfg.Connect != nil {
		connect := *cfg.Connect
		resolved.Connect = &connect
	}

	fields := []struct {
		name string
		ptr  *string
	}{
		{"program", &resolved.Program},
		{"module", &resolved.Module},
		{"cwd", &resolved.Cwd},
		{"python", &resolved.Python},
		{"pythonPath", &resolved.PythonPath},
		{"host", &resolved.Host},
	}
	for _, f := range fields {
		value, err := ResolveVariables(*f.ptr, ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", f.name, err)
		}
		*f.ptr = value
	}
	if resolved.Connect != nil {
		host, err := ResolveVariables(resolved.Connect.Host, ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve connect.host: %w", err)
		}
		resolved.Connect.Host = host
	}

	for i, arg := range cfg.Args {
		value, err := ResolveVariables(arg, ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve args[%d]: %w", i, err)
		}
		resolved.Args = append(resolved.Args, value)
	}
	if cfg.Env != nil {
		resolved.Env = make(map[string]string, len(cfg.Env))
		for k, v := range cfg.Env {
			value, err := ResolveVariables(v, ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve env %q: %w", k, err)
			}
			resolved.Env[k] = value
		}
	}
	return &resolved, nil
}

// MissingInputsError is returned when required ${input:} values are not provided.
type MissingInputsError struct {
	Inputs []string
}

func (e *MissingInputsError) Error() string {
	return fmt.Sprintf("missing input values: %v", e.Inputs)
}

// IsMissingInputsError checks if an error is a MissingInputsError.
func IsMissingInputsError(err error) (*MissingInputsError, bool) {
	var e *MissingInputsError
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// LaunchRequest converts a resolved launch configuration.
func (c *Configuration) LaunchRequest() types.LaunchRequest {
	return types.LaunchRequest{
		Program:      c.Program,
		Module:       c.Module,
		Args:         c.Args,
		Cwd:          c.Cwd,
		Env:          maps.Clone(c.Env),
		Python:       c.Interpreter(),
		StopOnEntry:  c.StopOnEntry,
		Multiprocess: c.SubProcess,
	}
}

// AttachRequest converts a resolved attach configuration. The host
// defaults to loopback.
func (c *Configuration) AttachRequest() types.AttachRequest {
	req := types.AttachRequest{Host: c.Host, Port: c.Port}
	if c.Connect != nil {
		req.Host, req.Port = c.Connect.Host, c.Connect.Port
	}
	if req.Host == "" {
		req.Host = "127.0.0.1"
	}
	return req
}

// MergeOverrides applies tool arguments on top of a configuration. Only
// non-zero override fields replace the configured value.
func MergeOverrides(cfg *Configuration, req types.LaunchRequest) *Configuration {
	merged := *cfg
	if req.Program != "" {
		merged.Program, merged.Module = req.Program, ""
	}
	if req.Module != "" {
		merged.Module, merged.Program = req.Module, ""
	}
	if req.Args != nil {
		merged.Args = req.Args
	}
	if req.Cwd != "" {
		merged.Cwd = req.Cwd
	}
	if req.Python != "" {
		merged.Python = req.Python
	}
	if len(req.Env) > 0 {
		merged.Env = maps.Clone(cfg.Env)
		if merged.Env == nil {
			merged.Env = map[string]string{}
		}
		maps.Copy(merged.Env, req.Env)
	}
	merged.StopOnEntry = cfg.StopOnEntry || req.StopOnEntry
	merged.SubProcess = cfg.SubProcess || req.Multiprocess
	return &merged
}
