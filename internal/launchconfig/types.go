// Package launchconfig reads Python debug configurations from VS Code
// launch.json files so a session can be started by configuration name.
package launchconfig

// LaunchJSON represents a VS Code launch.json file structure.
type LaunchJSON struct {
	Version        string          `json:"version"`
	Configurations []Configuration `json:"configurations"`
	Inputs         []InputConfig   `json:"inputs,omitempty"`
}

// Configuration is a single debug configuration in launch.json. Only the
// attributes a pydevd session can honour are decoded.
type Configuration struct {
	Type    string `json:"type"`    // "python" or "debugpy"
	Request string `json:"request"` // "launch" or "attach"
	Name    string `json:"name"`

	Program     string            `json:"program,omitempty"`
	Module      string            `json:"module,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Cwd         string            `json:"cwd,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	StopOnEntry bool              `json:"stopOnEntry,omitempty"`
	SubProcess  bool              `json:"subProcess,omitempty"`

	Python     string `json:"python,omitempty"`     // VS Code style (preferred)
	PythonPath string `json:"pythonPath,omitempty"` // legacy

	// Attach target. Newer files use "connect", older ones host/port.
	Host    string       `json:"host,omitempty"`
	Port    int          `json:"port,omitempty"`
	Connect *ConnectInfo `json:"connect,omitempty"`
}

// ConnectInfo is the "connect" block of an attach configuration.
type ConnectInfo struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port"`
}

// InputConfig represents a user input variable definition.
type InputConfig struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"` // "promptString", "pickString"
	Description string   `json:"description,omitempty"`
	Default     string   `json:"default,omitempty"`
	Options     []string `json:"options,omitempty"`
}

// ResolutionContext provides context for variable resolution.
type ResolutionContext struct {
	WorkspaceFolder string
	InputValues     map[string]string // values for ${input:} variables
	EnvOverrides    map[string]string
}

// IsPython reports whether the configuration targets the Python debugger.
func (c *Configuration) IsPython() bool {
	return c.Type == "python" || c.Type == "debugpy"
}

// IsLaunchRequest returns true if this is a launch configuration (not attach).
func (c *Configuration) IsLaunchRequest() bool {
	return c.Request == "launch"
}

// IsAttachRequest returns true if this is an attach configuration.
func (c *Configuration) IsAttachRequest() bool {
	return c.Request == "attach"
}

// Interpreter returns the configured Python interpreter; "python" wins over
// "pythonPath".
func (c *Configuration) Interpreter() string {
	if c.Python != "" {
		return c.Python
	}
	return c.PythonPath
}
