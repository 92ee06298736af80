package execshell

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"sort"
	"strings"
	"time"
)

const (
	environmentAssignmentSeparatorConstant = "="
	environmentPrefixWildcardConstant      = "*"
	processWaitDelayConstant               = 5 * time.Second
)

// OSCommandRunner executes commands using the operating system facilities.
type OSCommandRunner struct {
	environmentProvider func() []string
}

// NewOSCommandRunner constructs a runner backed by os/exec that inherits the caller's environment.
func NewOSCommandRunner() *OSCommandRunner {
	return &OSCommandRunner{environmentProvider: os.Environ}
}

// Run executes the supplied command using os/exec.
func (runner *OSCommandRunner) Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	commandArguments := append([]string{}, command.Details.Arguments...)
	executable := exec.CommandContext(executionContext, string(command.Name), commandArguments...)
	executable.WaitDelay = processWaitDelayConstant

	if len(command.Details.WorkingDirectory) > 0 {
		executable.Dir = command.Details.WorkingDirectory
	}

	environmentProvider := runner.environmentProvider
	if environmentProvider == nil {
		environmentProvider = os.Environ
	}
	inheritedEnvironment := ScrubEnvironmentValues(environmentProvider(), command.Details.EnvironmentValueExclusions)
	executable.Env = MergeEnvironment(inheritedEnvironment, command.Details.EnvironmentExclusions, command.Details.EnvironmentVariables)

	var standardOutputBuffer bytes.Buffer
	var standardErrorBuffer bytes.Buffer
	executable.Stdout = &standardOutputBuffer
	executable.Stderr = &standardErrorBuffer

	if len(command.Details.StandardInput) > 0 {
		executable.Stdin = bytes.NewReader(command.Details.StandardInput)
	}

	runError := executable.Run()
	if runError != nil {
		exitError := &exec.ExitError{}
		if errors.As(runError, &exitError) {
			return ExecutionResult{
				StandardOutput: standardOutputBuffer.String(),
				StandardError:  standardErrorBuffer.String(),
				ExitCode:       exitError.ExitCode(),
			}, nil
		}
		return ExecutionResult{
			StandardOutput: standardOutputBuffer.String(),
			StandardError:  standardErrorBuffer.String(),
		}, runError
	}

	return ExecutionResult{
		StandardOutput: standardOutputBuffer.String(),
		StandardError:  standardErrorBuffer.String(),
		ExitCode:       0,
	}, nil
}

// MergeEnvironment layers the overlay over the inherited environment after dropping excluded keys.
// An exclusion ending in "*" drops every key with that prefix.
// Overlay values win on key collision and the result contains each key at most once.
func MergeEnvironment(inherited []string, exclusions []string, overlay map[string]string) []string {
	excludedKeys := make(map[string]struct{}, len(exclusions)+len(overlay))
	var excludedPrefixes []string
	for _, excludedKey := range exclusions {
		if prefix, isPattern := strings.CutSuffix(excludedKey, environmentPrefixWildcardConstant); isPattern {
			if len(prefix) > 0 {
				excludedPrefixes = append(excludedPrefixes, prefix)
			}
			continue
		}
		excludedKeys[excludedKey] = struct{}{}
	}
	for overlayKey := range overlay {
		excludedKeys[overlayKey] = struct{}{}
	}

	mergedEnvironment := make([]string, 0, len(inherited)+len(overlay))
	for _, assignment := range inherited {
		assignmentKey, _, _ := strings.Cut(assignment, environmentAssignmentSeparatorConstant)
		if _, excluded := excludedKeys[assignmentKey]; excluded {
			continue
		}
		if hasAnyPrefix(assignmentKey, excludedPrefixes) {
			continue
		}
		mergedEnvironment = append(mergedEnvironment, assignment)
	}

	overlayKeys := make([]string, 0, len(overlay))
	for overlayKey := range overlay {
		overlayKeys = append(overlayKeys, overlayKey)
	}
	sort.Strings(overlayKeys)

	for _, overlayKey := range overlayKeys {
		mergedEnvironment = append(mergedEnvironment, overlayKey+environmentAssignmentSeparatorConstant+overlay[overlayKey])
	}

	return mergedEnvironment
}

// ScrubEnvironmentValues drops every assignment whose value equals one of the supplied values.
// Empty values never match.
func ScrubEnvironmentValues(inherited []string, values []string) []string {
	scrubbedValues := make(map[string]struct{}, len(values))
	for _, value := range values {
		if len(value) > 0 {
			scrubbedValues[value] = struct{}{}
		}
	}
	if len(scrubbedValues) == 0 {
		return inherited
	}

	remaining := make([]string, 0, len(inherited))
	for _, assignment := range inherited {
		_, assignmentValue, _ := strings.Cut(assignment, environmentAssignmentSeparatorConstant)
		if _, scrubbed := scrubbedValues[assignmentValue]; scrubbed {
			continue
		}
		remaining = append(remaining, assignment)
	}
	return remaining
}

func hasAnyPrefix(key string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
