package execshell

import "sync"

// CommandEventObserver receives lifecycle notifications for shell command execution.
type CommandEventObserver interface {
	// CommandStarted notifies observers that command execution is beginning.
	CommandStarted(command ShellCommand)
	// CommandCompleted notifies observers that the process exited and supplies the result.
	CommandCompleted(command ShellCommand, result ExecutionResult)
	// CommandExecutionFailed reports spawn failures and timeouts.
	CommandExecutionFailed(command ShellCommand, failure error)
}

type noopCommandEventObserver struct{}

func (noopCommandEventObserver) CommandStarted(ShellCommand) {}

func (noopCommandEventObserver) CommandCompleted(ShellCommand, ExecutionResult) {}

func (noopCommandEventObserver) CommandExecutionFailed(ShellCommand, error) {}

// CommandTally counts command lifecycle events. It is safe for concurrent use.
type CommandTally struct {
	mutex     sync.Mutex
	started   int
	succeeded int
	failed    int
}

// CommandStarted records a started command.
func (tally *CommandTally) CommandStarted(ShellCommand) {
	tally.mutex.Lock()
	defer tally.mutex.Unlock()
	tally.started++
}

// CommandCompleted records a command that exited, counting non-zero exits as failures.
func (tally *CommandTally) CommandCompleted(_ ShellCommand, result ExecutionResult) {
	tally.mutex.Lock()
	defer tally.mutex.Unlock()
	if result.ExitCode == 0 {
		tally.succeeded++
		return
	}
	tally.failed++
}

// CommandExecutionFailed records a command that could not run to completion.
func (tally *CommandTally) CommandExecutionFailed(ShellCommand, error) {
	tally.mutex.Lock()
	defer tally.mutex.Unlock()
	tally.failed++
}

// Snapshot returns the started, succeeded and failed counts.
func (tally *CommandTally) Snapshot() (int, int, int) {
	tally.mutex.Lock()
	defer tally.mutex.Unlock()
	return tally.started, tally.succeeded, tally.failed
}
