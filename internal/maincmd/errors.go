package maincmd

import (
	"github.com/mna/mainer"

	"github.com/mna/aster/internal/config"
)

// Exit codes beyond mainer's own Success/Failure/InvalidArgs, distinguishing
// a compile-time failure from one raised during execution (spec.md §6).
const (
	compileErrorExit mainer.ExitCode = mainer.Failure + 1
	runtimeErrorExit mainer.ExitCode = mainer.Failure + 2
)

// compileError signals that one or more files failed to compile.
type compileError struct{ msg string }

func (e *compileError) Error() string {
	if e.msg == "" {
		return "compile error"
	}
	return e.msg
}
func (e *compileError) ExitCode() mainer.ExitCode { return compileErrorExit }

// scriptRuntimeError signals that compilation succeeded but execution
// raised an uncaught runtime error.
type scriptRuntimeError struct{ msg string }

func (e *scriptRuntimeError) Error() string {
	if e.msg == "" {
		return "runtime error"
	}
	return e.msg
}
func (e *scriptRuntimeError) ExitCode() mainer.ExitCode { return runtimeErrorExit }

// runtimeCfg is the subset of config.Runtime the commands consult.
type runtimeCfg = config.Runtime

// runtimeConfig loads the config.Runtime for a run, preferring an explicit
// --config path and falling back to the working directory's aster.yaml (if
// any), per SPEC_FULL.md §6.2.
func runtimeConfig(explicitPath string) (runtimeCfg, error) {
	path := explicitPath
	if path == "" {
		path = "aster.yaml"
	}
	return config.Load(path)
}
