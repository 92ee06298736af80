package migration

import (
	"fmt"
	"strings"
)

// Process exit statuses.
const (
	ExitCodeSuccess              = 0
	ExitCodeOperationalFailure   = 1
	ExitCodeMissingConfiguration = 2
	ExitCodeToolUnavailable      = 3
)

const (
	toolUnavailableMessageConstant      = "vault CLI not found or not executable"
	stageErrorTemplateConstant          = "%s: %v"
	sideStageErrorTemplateConstant      = "[%s] %s: %v"
	configurationStageMessageConstant   = "invalid configuration"
	toolStageMessageConstant            = "vault CLI availability check failed"
	sessionStageMessageConstant         = "failed to establish session"
	exportStageMessageConstant          = "failed to export source vault"
	sanitizeStageMessageConstant        = "failed to sanitize snapshot"
	importStageMessageConstant          = "failed to import into target vault"
	genericStageMessageTemplateConstant = "stage %s failed"
)

// ToolUnavailableError reports that the vault CLI could not be executed.
type ToolUnavailableError struct {
	Cause error
}

// Error describes the unavailable tool.
func (unavailableError ToolUnavailableError) Error() string {
	if unavailableError.Cause == nil {
		return toolUnavailableMessageConstant
	}
	return fmt.Sprintf(stageErrorTemplateConstant, toolUnavailableMessageConstant, unavailableError.Cause)
}

// Unwrap exposes the underlying cause.
func (unavailableError ToolUnavailableError) Unwrap() error {
	return unavailableError.Cause
}

// ExitCode reports the process status for an unavailable tool.
func (ToolUnavailableError) ExitCode() int {
	return ExitCodeToolUnavailable
}

// StageError reports the stage a run failed to reach, the side involved and the process status.
type StageError struct {
	Stage Stage
	Code  int
	Side  string
	Cause error
}

// Error returns a side-labeled description of the failure.
func (stageError StageError) Error() string {
	description := describeStage(stageError.Stage)
	if len(stageError.Side) == 0 {
		return fmt.Sprintf(stageErrorTemplateConstant, description, stageError.Cause)
	}
	return fmt.Sprintf(sideStageErrorTemplateConstant, strings.ToUpper(stageError.Side), description, stageError.Cause)
}

// Unwrap exposes the underlying cause.
func (stageError StageError) Unwrap() error {
	return stageError.Cause
}

// ExitCode reports the process status for the failure.
func (stageError StageError) ExitCode() int {
	return stageError.Code
}

func describeStage(stage Stage) string {
	switch stage {
	case StageStart:
		return configurationStageMessageConstant
	case StageToolChecked:
		return toolStageMessageConstant
	case StageSessionsEstablished:
		return sessionStageMessageConstant
	case StageExported:
		return exportStageMessageConstant
	case StageSanitized:
		return sanitizeStageMessageConstant
	case StageImported:
		return importStageMessageConstant
	default:
		return fmt.Sprintf(genericStageMessageTemplateConstant, stage)
	}
}
