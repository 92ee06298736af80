// Package execshell provides structured helpers for invoking external tools.
//
// It wraps os/exec with logging and timeouts via ShellExecutor, exposes
// OSCommandRunner for default process execution, and defines the ProcessError
// family returned when a child process times out, exits non-zero, or cannot be
// spawned. Environment overlays are applied per command so that callers never
// mutate the ambient process environment.
package execshell
