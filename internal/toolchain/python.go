package toolchain

import (
	"context"
	"errors"
	"fmt"
)

// ErrInterpreterNotFound indicates the configured Python executable
// could not be resolved on PATH.
var ErrInterpreterNotFound = errors.New("python interpreter not found")

// Python wraps a resolved interpreter and provides the handful of
// invocations the pipeline needs (pip and module execution).
type Python struct {
	// path is the resolved absolute path of the interpreter.
	path string
	// runner executes the subprocesses.
	runner Runner
}

// FindPython resolves the named interpreter on PATH.
func FindPython(runner Runner, executable string) (*Python, error) {
	path, err := runner.LookPath(executable)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInterpreterNotFound, executable)
	}

	return &Python{
		path:   path,
		runner: runner,
	}, nil
}

// Path returns the resolved interpreter location.
func (p *Python) Path() string {
	return p.path
}

// UpgradePip upgrades pip itself before any installs.
func (p *Python) UpgradePip(ctx context.Context) error {
	return p.runner.Run(ctx, p.path, "-m", "pip", "install", "--upgrade", "pip")
}

// PipInstall installs the provided packages in one pip invocation.
func (p *Python) PipInstall(ctx context.Context, packages ...string) error {
	if len(packages) == 0 {
		return nil
	}

	args := append([]string{"-m", "pip", "install", "--upgrade"}, packages...)

	return p.runner.Run(ctx, p.path, args...)
}

// RunScript executes a Python script with the resolved interpreter.
func (p *Python) RunScript(ctx context.Context, script string, args ...string) error {
	return p.runner.Run(ctx, p.path, append([]string{script}, args...)...)
}

// RunModule executes `python -m <module>` with the provided arguments.
func (p *Python) RunModule(ctx context.Context, module string, args ...string) error {
	return p.runner.Run(ctx, p.path, append([]string{"-m", module}, args...)...)
}
