// Package launcher starts Python programs under pydevd and connects a
// protocol engine to them.
//
// The launcher listens on a loopback port first and then spawns the
// interpreter with pydevd in client mode, so the debugger dials back to us.
// The program's own stdout and stderr are copied into the engine's output
// buffer line by line; its stdin stays open for input() calls.
package launcher

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"pkt.systems/pslog"

	"github.com/ctagard/pydevd-mcp/internal/config"
	dbgerrors "github.com/ctagard/pydevd-mcp/internal/errors"
	"github.com/ctagard/pydevd-mcp/internal/pydevd"
	"github.com/ctagard/pydevd-mcp/pkg/types"
)

// Launcher spawns Python interpreters under pydevd.
type Launcher struct {
	python       string
	pydevdPath   string
	multiprocess bool
	protocol     config.ProtocolConfig
	outputLines  int
}

// New creates a launcher from the server configuration.
func New(cfg *config.Config) *Launcher {
	python := cfg.Python.Interpreter
	if python == "" {
		python = "python3"
	}
	return &Launcher{
		python:       python,
		pydevdPath:   cfg.Python.PydevdPath,
		multiprocess: cfg.Python.Multiprocess,
		protocol:     cfg.Protocol,
		outputLines:  cfg.OutputLines,
	}
}

// Process is a running interpreter with a connected engine.
type Process struct {
	Cmd     *exec.Cmd
	Engine  *pydevd.Engine
	Version string
	Python  string

	stdin  io.WriteCloser
	exited chan struct{}
	err    error
}

// PID returns the interpreter's process id.
func (p *Process) PID() int {
	if p.Cmd.Process == nil {
		return 0
	}
	return p.Cmd.Process.Pid
}

// Stdin returns the program's standard input.
func (p *Process) Stdin() io.WriteCloser { return p.stdin }

// Exited is closed once the interpreter has exited.
func (p *Process) Exited() <-chan struct{} { return p.exited }

// Err returns the exit error; valid after Exited is closed.
func (p *Process) Err() error {
	<-p.exited
	return p.err
}

// Python returns the interpreter a request resolves to.
func (l *Launcher) Python(req types.LaunchRequest) string {
	if req.Python != "" {
		return req.Python
	}
	return l.python
}

// Args builds the interpreter arguments for a launch with pydevd dialing
// back to port.
func (l *Launcher) Args(req types.LaunchRequest, port int) ([]string, error) {
	if req.Program == "" && req.Module == "" {
		return nil, dbgerrors.MissingParameter("program", "path of the Python script to debug, or module")
	}

	var args []string
	if l.pydevdPath != "" {
		args = append(args, l.pydevdPath)
	} else {
		args = append(args, "-m", "pydevd")
	}
	args = append(args, "--port", strconv.Itoa(port), "--client", "127.0.0.1")
	if l.multiprocess || req.Multiprocess {
		args = append(args, "--multiprocess")
	}
	if req.Module != "" {
		args = append(args, "--module", "--file", req.Module)
	} else {
		args = append(args, "--file", req.Program)
	}
	return append(args, req.Args...), nil
}

// Env builds the interpreter environment: the server's own, adjusted for
// a virtualenv interpreter, then the request's overrides.
func (l *Launcher) Env(req types.LaunchRequest) []string {
	python := l.Python(req)
	env := append(os.Environ(), "PYTHONUNBUFFERED=1")

	if venvRoot := detectVenvRoot(python); venvRoot != "" {
		env = append(env, "VIRTUAL_ENV="+venvRoot)
		binDir := filepath.Dir(python)
		for i, kv := range env {
			if strings.HasPrefix(kv, "PATH=") {
				env[i] = "PATH=" + binDir + string(os.PathListSeparator) + kv[len("PATH="):]
				break
			}
		}
	}

	for k, v := range req.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// detectVenvRoot returns the virtualenv containing python, or "" when the
// interpreter is not inside one. A venv is recognised by its pyvenv.cfg.
func detectVenvRoot(python string) string {
	venvRoot := filepath.Dir(filepath.Dir(python))
	if _, err := os.Stat(filepath.Join(venvRoot, "pyvenv.cfg")); err == nil {
		return venvRoot
	}
	return ""
}

// Launch starts req.Program under pydevd and waits for the debugger to
// connect and answer the version handshake. The caller owns the returned
// process and must close its engine.
func (l *Launcher) Launch(ctx context.Context, req types.LaunchRequest) (*Process, error) {
	logger := pslog.Ctx(ctx)
	target := req.Program
	if target == "" {
		target = req.Module
	}

	transport, err := pydevd.Listen(ctx, l.protocol.AcceptTimeout)
	if err != nil {
		return nil, dbgerrors.LaunchFailed(target, err)
	}
	engine := pydevd.NewEngine(ctx, transport, pydevd.EngineOptions{
		ResponseTimeout: l.protocol.ResponseTimeout,
		OutputLines:     l.outputLines,
	})

	args, err := l.Args(req, transport.Port())
	if err != nil {
		_ = engine.Close()
		return nil, err
	}

	python := l.Python(req)
	cmd := exec.Command(python, args...)
	cmd.Env = l.Env(req)
	cmd.Dir = req.Cwd
	setProcAttr(cmd)

	proc, err := start(cmd, engine.Output())
	if err != nil {
		_ = engine.Close()
		return nil, dbgerrors.LaunchFailed(target, err)
	}
	proc.Engine = engine
	proc.Python = python
	logger.Info("launcher.started", "program", target, "python", python, "pid", proc.PID(), "port", transport.Port())

	// An interpreter that dies before dialing back ends the wait early.
	connectCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-proc.exited:
			cancel()
		case <-connectCtx.Done():
		}
	}()

	version, err := engine.Connect(connectCtx)
	if err != nil {
		_ = engine.Close()
		select {
		case <-proc.exited:
			err = fmt.Errorf("interpreter exited before the debugger connected: %v", proc.err)
		default:
			_ = proc.Cmd.Process.Kill()
		}
		return nil, dbgerrors.LaunchFailed(target, err)
	}
	proc.Version = version
	return proc, nil
}

// start runs cmd with its output copied into out.
func start(cmd *exec.Cmd, out *pydevd.OutputBuffer) (*Process, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	proc := &Process{Cmd: cmd, stdin: stdin, exited: make(chan struct{})}

	var readers sync.WaitGroup
	readers.Add(2)
	go copyLines(&readers, stdout, out, pydevd.OutputStdout)
	go copyLines(&readers, stderr, out, pydevd.OutputStderr)
	go func() {
		// Wait closes the pipes, so the readers must drain first.
		readers.Wait()
		proc.err = cmd.Wait()
		close(proc.exited)
	}()
	return proc, nil
}

func copyLines(wg *sync.WaitGroup, r io.Reader, out *pydevd.OutputBuffer, kind pydevd.OutputKind) {
	defer wg.Done()
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			out.Append(kind, line)
		}
		if err != nil {
			return
		}
	}
}
