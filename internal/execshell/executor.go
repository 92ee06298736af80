package execshell

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	loggerNotConfiguredMessageConstant        = "shell executor logger not configured"
	commandRunnerNotConfiguredMessageConstant = "shell executor command runner not configured"
	commandNameRequiredMessageConstant        = "command name must be provided"
	nonZeroExitMessageConstant                = "command exited with non-zero status"
	commandFailedErrorTemplateConstant        = "%s failed with exit code %d%s"
	commandTimeoutErrorTemplateConstant       = "%s timed out after %s"
	commandExecutionErrorTemplateConstant     = "%s could not be executed: %s"
	standardErrorDetailTemplateConstant       = ": %s"
	logFieldCommandConstant                   = "command"
	logFieldArgumentsConstant                 = "arguments"
	logFieldExitCodeConstant                  = "exit_code"
	logFieldTimeoutConstant                   = "timeout"
	logFieldStandardErrorConstant             = "stderr"
	logFieldStandardInputBytesConstant        = "stdin_bytes"
)

// CommandName identifies an executable resolved through PATH.
type CommandName string

// CommandVaultCLI is the default vault management executable.
const CommandVaultCLI CommandName = CommandName("bw")

// CommandDetails describes a single invocation of an executable.
type CommandDetails struct {
	Arguments                  []string
	WorkingDirectory           string
	EnvironmentVariables       map[string]string
	EnvironmentExclusions      []string
	EnvironmentValueExclusions []string
	StandardInput              []byte
	Timeout                    time.Duration
}

// ShellCommand combines an executable name with invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures the observable results of executing a command.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner executes shell commands.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

// ProcessError is implemented by every failure produced by ShellExecutor and exposes the captured streams.
type ProcessError interface {
	error
	StandardOutput() string
	StandardError() string
}

var (
	// ErrLoggerNotConfigured indicates the executor was constructed without a logger.
	ErrLoggerNotConfigured = errors.New(loggerNotConfiguredMessageConstant)
	// ErrCommandRunnerNotConfigured indicates the executor was constructed without a runner.
	ErrCommandRunnerNotConfigured = errors.New(commandRunnerNotConfiguredMessageConstant)
	// ErrNonZeroExit is wrapped by CommandFailedError.
	ErrNonZeroExit = errors.New(nonZeroExitMessageConstant)
)

// CommandFailedError reports a command that exited with a non-zero status.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error describes the failed command.
func (failedError CommandFailedError) Error() string {
	return fmt.Sprintf(commandFailedErrorTemplateConstant, formatCommandLabel(failedError.Command), failedError.Result.ExitCode, formatStandardErrorDetail(failedError.Result.StandardError))
}

// Unwrap exposes ErrNonZeroExit.
func (failedError CommandFailedError) Unwrap() error {
	return ErrNonZeroExit
}

// StandardOutput returns the captured standard output.
func (failedError CommandFailedError) StandardOutput() string {
	return failedError.Result.StandardOutput
}

// StandardError returns the captured standard error.
func (failedError CommandFailedError) StandardError() string {
	return failedError.Result.StandardError
}

// CommandTimeoutError reports a command that exceeded its timeout and was terminated.
type CommandTimeoutError struct {
	Command ShellCommand
	Result  ExecutionResult
	Timeout time.Duration
	Cause   error
}

// Error describes the timed out command.
func (timeoutError CommandTimeoutError) Error() string {
	return fmt.Sprintf(commandTimeoutErrorTemplateConstant, formatCommandLabel(timeoutError.Command), timeoutError.Timeout)
}

// Unwrap exposes the context deadline error.
func (timeoutError CommandTimeoutError) Unwrap() error {
	return timeoutError.Cause
}

// StandardOutput returns the output captured before termination.
func (timeoutError CommandTimeoutError) StandardOutput() string {
	return timeoutError.Result.StandardOutput
}

// StandardError returns the error output captured before termination.
func (timeoutError CommandTimeoutError) StandardError() string {
	return timeoutError.Result.StandardError
}

// CommandExecutionError reports a command that could not be started.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error describes the execution failure.
func (executionError CommandExecutionError) Error() string {
	causeDescription := unknownFailureMessageConstant
	if executionError.Cause != nil {
		causeDescription = executionError.Cause.Error()
	}
	return fmt.Sprintf(commandExecutionErrorTemplateConstant, formatCommandLabel(executionError.Command), causeDescription)
}

// Unwrap exposes the underlying cause.
func (executionError CommandExecutionError) Unwrap() error {
	return executionError.Cause
}

// StandardOutput is always empty because the process never produced output.
func (executionError CommandExecutionError) StandardOutput() string {
	return emptyStringConstant
}

// StandardError is always empty because the process never produced output.
func (executionError CommandExecutionError) StandardError() string {
	return emptyStringConstant
}

// ShellExecutor runs commands through a CommandRunner, enforcing timeouts and logging lifecycle events.
type ShellExecutor struct {
	logger               *zap.Logger
	runner               CommandRunner
	humanReadableLogging bool
	messageFormatter     CommandMessageFormatter
	eventObserver        CommandEventObserver
}

// NewShellExecutor constructs a ShellExecutor.
func NewShellExecutor(logger *zap.Logger, runner CommandRunner, humanReadableLogging bool) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if runner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}
	return &ShellExecutor{
		logger:               logger,
		runner:               runner,
		humanReadableLogging: humanReadableLogging,
		messageFormatter:     CommandMessageFormatter{},
		eventObserver:        noopCommandEventObserver{},
	}, nil
}

// WithObserver returns a copy of the executor that reports lifecycle events to the observer.
func (executor *ShellExecutor) WithObserver(observer CommandEventObserver) *ShellExecutor {
	duplicated := *executor
	if observer == nil {
		observer = noopCommandEventObserver{}
	}
	duplicated.eventObserver = observer
	return &duplicated
}

// Execute runs the command, waits for completion and returns the captured output.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	if len(strings.TrimSpace(string(command.Name))) == 0 {
		return ExecutionResult{}, CommandExecutionError{Command: command, Cause: errors.New(commandNameRequiredMessageConstant)}
	}
	if executionContext == nil {
		executionContext = context.Background()
	}

	runContext := executionContext
	if command.Details.Timeout > 0 {
		var cancel context.CancelFunc
		runContext, cancel = context.WithTimeout(executionContext, command.Details.Timeout)
		defer cancel()
	}

	executor.logStarted(command)
	executor.eventObserver.CommandStarted(command)

	executionResult, runError := executor.runner.Run(runContext, command)

	if executor.deadlineExceeded(executionContext, runContext) {
		timeoutError := CommandTimeoutError{Command: command, Result: executionResult, Timeout: command.Details.Timeout, Cause: context.DeadlineExceeded}
		executor.logExecutionFailure(command, timeoutError)
		executor.eventObserver.CommandExecutionFailed(command, timeoutError)
		return ExecutionResult{}, timeoutError
	}

	if runError != nil {
		executionError := CommandExecutionError{Command: command, Cause: runError}
		executor.logExecutionFailure(command, runError)
		executor.eventObserver.CommandExecutionFailed(command, runError)
		return ExecutionResult{}, executionError
	}

	executor.eventObserver.CommandCompleted(command, executionResult)

	if executionResult.ExitCode != 0 {
		executor.logFailure(command, executionResult)
		return ExecutionResult{}, CommandFailedError{Command: command, Result: executionResult}
	}

	executor.logSuccess(command)
	return executionResult, nil
}

// ExecuteWithInput streams the payload into the command's standard input before waiting for completion.
func (executor *ShellExecutor) ExecuteWithInput(executionContext context.Context, command ShellCommand, input []byte) (ExecutionResult, error) {
	pipedCommand := command
	pipedCommand.Details.StandardInput = append([]byte{}, input...)
	return executor.Execute(executionContext, pipedCommand)
}

func (executor *ShellExecutor) deadlineExceeded(parentContext context.Context, runContext context.Context) bool {
	if parentContext == runContext {
		return false
	}
	if parentContext.Err() != nil {
		return false
	}
	return errors.Is(runContext.Err(), context.DeadlineExceeded)
}

func (executor *ShellExecutor) logStarted(command ShellCommand) {
	if executor.humanReadableLogging {
		if executor.messageFormatter.shouldLogStartMessage(command) {
			executor.logger.Info(executor.messageFormatter.BuildStartedMessage(command))
		}
		return
	}
	executor.logger.Debug(
		executor.messageFormatter.BuildStartedMessage(command),
		zap.String(logFieldCommandConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
		zap.Duration(logFieldTimeoutConstant, command.Details.Timeout),
		zap.Int(logFieldStandardInputBytesConstant, len(command.Details.StandardInput)),
	)
}

func (executor *ShellExecutor) logSuccess(command ShellCommand) {
	if executor.humanReadableLogging {
		executor.logger.Debug(executor.messageFormatter.BuildSuccessMessage(command))
		return
	}
	executor.logger.Debug(
		executor.messageFormatter.BuildSuccessMessage(command),
		zap.String(logFieldCommandConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
	)
}

func (executor *ShellExecutor) logFailure(command ShellCommand, result ExecutionResult) {
	if executor.humanReadableLogging {
		executor.logger.Debug(executor.messageFormatter.BuildFailureMessage(command, result))
		return
	}
	executor.logger.Debug(
		executor.messageFormatter.BuildFailureMessage(command, result),
		zap.String(logFieldCommandConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
		zap.Int(logFieldExitCodeConstant, result.ExitCode),
		zap.String(logFieldStandardErrorConstant, strings.TrimSpace(result.StandardError)),
	)
}

func (executor *ShellExecutor) logExecutionFailure(command ShellCommand, failure error) {
	if executor.humanReadableLogging {
		executor.logger.Debug(executor.messageFormatter.BuildExecutionFailureMessage(command, failure))
		return
	}
	executor.logger.Debug(
		executor.messageFormatter.BuildExecutionFailureMessage(command, failure),
		zap.String(logFieldCommandConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, command.Details.Arguments),
		zap.Error(failure),
	)
}

func formatCommandLabel(command ShellCommand) string {
	commandParts := []string{string(command.Name)}
	commandParts = append(commandParts, command.Details.Arguments...)
	return strings.Join(commandParts, commandArgumentsJoinSeparatorConstant)
}

func formatStandardErrorDetail(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorDetailTemplateConstant, trimmedStandardError)
}
