package execshell

import (
	"fmt"
	"strings"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	operationFailureTemplateConstant        = "Failed to %s (exit code %d%s)"
	operationExecutionFailureTemplate       = "Unable to %s: %s"
	commandArgumentsJoinSeparatorConstant   = " "
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	fallbackUnknownValueLabelConstant       = "unknown"
	flagPrefixConstant                      = "-"
)

const (
	vaultVersionFlagConstant          = "--version"
	vaultConfigSubcommandConstant     = "config"
	vaultServerSubcommandConstant     = "server"
	vaultLoginSubcommandConstant      = "login"
	vaultUnlockSubcommandConstant     = "unlock"
	vaultStatusSubcommandConstant     = "status"
	vaultExportSubcommandConstant     = "export"
	vaultImportSubcommandConstant     = "import"
	vaultFormatsFlagConstant          = "--formats"
	vaultOutputFlagConstant           = "--output"
	vaultOrganizationFlagConstant     = "--organizationid"
	vaultListSubcommandConstant       = "list"
	vaultGetSubcommandConstant        = "get"
	vaultEncodeSubcommandConstant     = "encode"
	vaultCreateSubcommandConstant     = "create"
	vaultLogoutSubcommandConstant     = "logout"
	organizationScopeSuffixConstant   = " for organization %s"
	vaultImportSubjectTemplate        = "%s as %s"
	vaultObjectSubjectTemplate        = "%s %s"
	vaultPositionalImportFormatIndex  = 0
	vaultPositionalImportPathIndex    = 1
	vaultPositionalObjectTypeIndex    = 0
	vaultPositionalObjectIDIndex      = 1
	vaultPositionalServerHostIndex    = 1
	vaultSubcommandArgumentIndexStart = 1
)

type vaultOperationMessages struct {
	startTemplate   string
	successTemplate string
	action          string
}

var vaultOperationCatalog = map[string]vaultOperationMessages{
	vaultVersionFlagConstant:      {startTemplate: "Checking vault CLI version", successTemplate: "Vault CLI is available", action: "check vault CLI version"},
	vaultConfigSubcommandConstant: {startTemplate: "Configuring server endpoint %s", successTemplate: "Server endpoint set to %s", action: "configure server endpoint %s"},
	vaultLoginSubcommandConstant:  {startTemplate: "Logging in with API key", successTemplate: "Logged in with API key", action: "log in with API key"},
	vaultUnlockSubcommandConstant: {startTemplate: "Unlocking vault", successTemplate: "Vault unlocked", action: "unlock vault"},
	vaultStatusSubcommandConstant: {startTemplate: "Checking vault status", successTemplate: "Collected vault status", action: "check vault status"},
	vaultExportSubcommandConstant: {startTemplate: "Exporting vault to %s", successTemplate: "Exported vault to %s", action: "export vault to %s"},
	vaultFormatsFlagConstant:      {startTemplate: "Discovering supported import formats", successTemplate: "Discovered supported import formats", action: "discover supported import formats"},
	vaultImportSubcommandConstant: {startTemplate: "Importing %s", successTemplate: "Imported %s", action: "import %s"},
	vaultListSubcommandConstant:   {startTemplate: "Listing vault %s", successTemplate: "Listed vault %s", action: "list vault %s"},
	vaultGetSubcommandConstant:    {startTemplate: "Retrieving %s", successTemplate: "Retrieved %s", action: "retrieve %s"},
	vaultEncodeSubcommandConstant: {startTemplate: "Encoding item payload", successTemplate: "Encoded item payload", action: "encode item payload"},
	vaultCreateSubcommandConstant: {startTemplate: "Creating %s", successTemplate: "Created %s", action: "create %s"},
	vaultLogoutSubcommandConstant: {startTemplate: "Logging out", successTemplate: "Logged out", action: "log out"},
}

// CommandMessageFormatter builds human-readable messages for command lifecycle events.
type CommandMessageFormatter struct{}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

// Status queries are diagnostics and would only add noise to console output.
func (formatter CommandMessageFormatter) shouldLogStartMessage(command ShellCommand) bool {
	operationKey, _ := formatter.resolveVaultOperation(command.Details.Arguments)
	return operationKey != vaultStatusSubcommandConstant
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	operationKey, subject := formatter.resolveVaultOperation(command.Details.Arguments)
	operationMessages, known := vaultOperationCatalog[operationKey]
	if !known {
		return formatter.buildGenericMessage(command, result, failure, stage)
	}

	switch stage {
	case messageStageStart:
		return formatter.applySubject(operationMessages.startTemplate, subject)
	case messageStageSuccess:
		return formatter.applySubject(operationMessages.successTemplate, subject)
	case messageStageFailure:
		return fmt.Sprintf(operationFailureTemplateConstant, formatter.applySubject(operationMessages.action, subject), result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(operationExecutionFailureTemplate, formatter.applySubject(operationMessages.action, subject), formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) resolveVaultOperation(arguments []string) (string, string) {
	if len(arguments) == 0 {
		return emptyStringConstant, emptyStringConstant
	}

	primaryArgument := strings.TrimSpace(arguments[0])
	positionalArguments := formatter.positionalArguments(arguments[vaultSubcommandArgumentIndexStart:])
	organizationSuffix := formatter.organizationSuffix(arguments)

	switch primaryArgument {
	case vaultVersionFlagConstant:
		return vaultVersionFlagConstant, emptyStringConstant
	case vaultConfigSubcommandConstant:
		return vaultConfigSubcommandConstant, formatter.ensureValue(formatter.argumentAtIndex(positionalArguments, vaultPositionalServerHostIndex))
	case vaultExportSubcommandConstant:
		return vaultExportSubcommandConstant, formatter.ensureValue(findFlagValue(arguments, vaultOutputFlagConstant)) + organizationSuffix
	case vaultImportSubcommandConstant:
		if containsArgument(arguments, vaultFormatsFlagConstant) {
			return vaultFormatsFlagConstant, emptyStringConstant
		}
		importSubject := fmt.Sprintf(
			vaultImportSubjectTemplate,
			formatter.ensureValue(formatter.argumentAtIndex(positionalArguments, vaultPositionalImportPathIndex)),
			formatter.ensureValue(formatter.argumentAtIndex(positionalArguments, vaultPositionalImportFormatIndex)),
		)
		return vaultImportSubcommandConstant, importSubject + organizationSuffix
	case vaultListSubcommandConstant:
		return vaultListSubcommandConstant, formatter.ensureValue(formatter.argumentAtIndex(positionalArguments, vaultPositionalObjectTypeIndex))
	case vaultGetSubcommandConstant:
		objectSubject := fmt.Sprintf(
			vaultObjectSubjectTemplate,
			formatter.ensureValue(formatter.argumentAtIndex(positionalArguments, vaultPositionalObjectTypeIndex)),
			formatter.ensureValue(formatter.argumentAtIndex(positionalArguments, vaultPositionalObjectIDIndex)),
		)
		return vaultGetSubcommandConstant, objectSubject
	case vaultCreateSubcommandConstant:
		return vaultCreateSubcommandConstant, formatter.ensureValue(formatter.argumentAtIndex(positionalArguments, vaultPositionalObjectTypeIndex))
	case vaultLoginSubcommandConstant, vaultUnlockSubcommandConstant, vaultStatusSubcommandConstant, vaultEncodeSubcommandConstant, vaultLogoutSubcommandConstant:
		return primaryArgument, emptyStringConstant
	default:
		return emptyStringConstant, emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) applySubject(template string, subject string) string {
	if !strings.Contains(template, "%s") {
		return template
	}
	return fmt.Sprintf(template, subject)
}

func (formatter CommandMessageFormatter) organizationSuffix(arguments []string) string {
	organizationIdentifier := findFlagValue(arguments, vaultOrganizationFlagConstant)
	if len(organizationIdentifier) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(organizationScopeSuffixConstant, organizationIdentifier)
}

// positionalArguments drops flags together with the values of flags known to take one.
func (formatter CommandMessageFormatter) positionalArguments(arguments []string) []string {
	positional := make([]string, 0, len(arguments))
	for argumentIndex := 0; argumentIndex < len(arguments); argumentIndex++ {
		argument := strings.TrimSpace(arguments[argumentIndex])
		if strings.HasPrefix(argument, flagPrefixConstant) {
			if argument == vaultOutputFlagConstant || argument == vaultOrganizationFlagConstant || argument == "--format" || argument == "--passwordenv" {
				argumentIndex++
			}
			continue
		}
		positional = append(positional, argument)
	}
	return positional
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := formatCommandLabel(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, commandLabel)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, commandLabel)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}

func (formatter CommandMessageFormatter) argumentAtIndex(arguments []string, index int) string {
	if index < 0 || index >= len(arguments) {
		return emptyStringConstant
	}
	return strings.TrimSpace(arguments[index])
}

func (formatter CommandMessageFormatter) ensureValue(value string) string {
	trimmedValue := strings.TrimSpace(value)
	if len(trimmedValue) == 0 {
		return fallbackUnknownValueLabelConstant
	}
	return trimmedValue
}

func containsArgument(arguments []string, value string) bool {
	for _, argument := range arguments {
		if strings.TrimSpace(argument) == value {
			return true
		}
	}
	return false
}

func findFlagValue(arguments []string, flag string) string {
	for argumentIndex := 0; argumentIndex < len(arguments)-1; argumentIndex++ {
		if strings.TrimSpace(arguments[argumentIndex]) == flag {
			return strings.TrimSpace(arguments[argumentIndex+1])
		}
	}
	return emptyStringConstant
}
