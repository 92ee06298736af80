package itemcopy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/vaultsync/internal/bwcli"
	"github.com/temirov/vaultsync/internal/execshell"
	"github.com/temirov/vaultsync/internal/session"
	"github.com/temirov/vaultsync/internal/utils"
)

const (
	commandUseConstant                    = "copy-items"
	commandShortDescriptionConstant       = "Copy items one by one from the source vault into the target vault"
	commandLongDescriptionConstant        = "copy-items reads every source item and recreates it in the target vault or organization without an intermediate snapshot file."
	commandExecutionErrorTemplateConstant = "copy-items failed: %w"
	unexpectedArgumentsMessageConstant    = "copy-items does not accept positional arguments"
	flagWorkRootNameConstant              = "work-root"
	flagWorkRootDescriptionConstant       = "Directory holding session state"
	flagOrganizationNameConstant          = "organization-id"
	flagOrganizationDescriptionConstant   = "Target organization receiving the items"
	flagContinueNameConstant              = "continue-on-error"
	flagContinueDescriptionConstant       = "Keep copying after an item fails and report every failure at the end"
	copySummaryTemplateConstant           = "Copied %d of %d items (%d failed)\n"
	logFieldRunIdentifierConstant         = "run_id"
	copySummaryMessageConstant            = "Item copy summary"
	logFieldListedConstant                = "listed"
	logFieldCopiedConstant                = "copied"
	logFieldFailedItemsConstant           = "failed_items"
	logFieldCommandsStartedConstant       = "commands_started"
	logFieldCommandsSucceededConstant     = "commands_succeeded"
	logFieldCommandsFailedConstant        = "commands_failed"
)

var errUnexpectedArguments = errors.New(unexpectedArgumentsMessageConstant)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// CommandConfiguration captures configuration values for the copy-items command.
type CommandConfiguration struct {
	WorkRoot        string              `mapstructure:"work_root"`
	OrganizationID  string              `mapstructure:"organization_id"`
	ContinueOnError bool                `mapstructure:"continue_on_error"`
	Source          session.Credentials `mapstructure:"source"`
	Target          session.Credentials `mapstructure:"target"`
	Vault           bwcli.Configuration `mapstructure:"vault"`
}

func (configuration CommandConfiguration) sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.WorkRoot = strings.TrimSpace(configuration.WorkRoot)
	if len(sanitized.WorkRoot) == 0 {
		sanitized.WorkRoot = session.DefaultWorkRoot
	}
	sanitized.OrganizationID = strings.TrimSpace(configuration.OrganizationID)
	sanitized.Vault = configuration.Vault.Sanitize()
	return sanitized
}

// CommandBuilder assembles the Cobra command for item-by-item copies.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() CommandConfiguration
	Executor                     bwcli.VaultCommandExecutor
	EnvironmentLookup            session.EnvironmentLookup
}

// Build constructs the copy-items command.
func (builder *CommandBuilder) Build() (*cobra.Command, error) {
	command := &cobra.Command{
		Use:           commandUseConstant,
		Short:         commandShortDescriptionConstant,
		Long:          commandLongDescriptionConstant,
		RunE:          builder.run,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	command.Flags().String(flagWorkRootNameConstant, "", flagWorkRootDescriptionConstant)
	command.Flags().String(flagOrganizationNameConstant, "", flagOrganizationDescriptionConstant)
	command.Flags().Bool(flagContinueNameConstant, false, flagContinueDescriptionConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errUnexpectedArguments
	}

	configuration := builder.parseConfiguration(command)
	environmentLookup := builder.EnvironmentLookup
	if environmentLookup == nil {
		environmentLookup = os.LookupEnv
	}
	sourceRequest, targetRequest := session.NewRequestPair(configuration.WorkRoot, configuration.Source, configuration.Target)
	if validationError := session.ValidateRequests(environmentLookup, sourceRequest, targetRequest); validationError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, validationError)
	}

	runID, runIDAvailable := utils.NewCommandContextAccessor().RunIdentifier(command.Context())
	if !runIDAvailable {
		runID = uuid.NewString()
	}
	logger := builder.resolveLogger().With(zap.String(logFieldRunIdentifierConstant, runID))
	commandTally := &execshell.CommandTally{}
	client, clientError := bwcli.NewConfiguredClient(logger, builder.humanReadableLogging(), builder.Executor, commandTally, configuration.Vault)
	if clientError != nil {
		return clientError
	}
	manager, managerError := session.NewManager(session.ManagerDependencies{Logger: logger, Client: client, EnvironmentLookup: environmentLookup})
	if managerError != nil {
		return managerError
	}
	migrator, migratorError := NewMigrator(logger, client)
	if migratorError != nil {
		return migratorError
	}

	sourceSession, targetSession, establishError := manager.EstablishPair(command.Context(), sourceRequest, targetRequest)
	if establishError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, establishError)
	}
	defer func() {
		cleanupContext := context.WithoutCancel(command.Context())
		manager.Logout(cleanupContext, sourceSession)
		manager.Logout(cleanupContext, targetSession)
	}()

	summary, copyError := migrator.CopyItems(command.Context(), sourceSession, targetSession, Options{
		TargetOrganizationID: configuration.OrganizationID,
		ContinueOnError:      configuration.ContinueOnError,
	})
	fmt.Fprintf(command.OutOrStdout(), copySummaryTemplateConstant, summary.Copied, summary.Listed, summary.Failed)
	logCopySummary(logger, summary, commandTally)
	if copyError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, copyError)
	}
	return nil
}

func logCopySummary(logger *zap.Logger, summary Summary, commandTally *execshell.CommandTally) {
	started, succeeded, failed := commandTally.Snapshot()
	logger.Info(
		copySummaryMessageConstant,
		zap.Int(logFieldListedConstant, summary.Listed),
		zap.Int(logFieldCopiedConstant, summary.Copied),
		zap.Int(logFieldFailedItemsConstant, summary.Failed),
		zap.Int(logFieldCommandsStartedConstant, started),
		zap.Int(logFieldCommandsSucceededConstant, succeeded),
		zap.Int(logFieldCommandsFailedConstant, failed),
	)
}

func (builder *CommandBuilder) parseConfiguration(command *cobra.Command) CommandConfiguration {
	configuration := CommandConfiguration{}
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}

	if command.Flags().Changed(flagWorkRootNameConstant) {
		configuration.WorkRoot, _ = command.Flags().GetString(flagWorkRootNameConstant)
	}
	if command.Flags().Changed(flagOrganizationNameConstant) {
		configuration.OrganizationID, _ = command.Flags().GetString(flagOrganizationNameConstant)
	}
	if command.Flags().Changed(flagContinueNameConstant) {
		configuration.ContinueOnError, _ = command.Flags().GetBool(flagContinueNameConstant)
	}

	return configuration.sanitize()
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}

	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}

func (builder *CommandBuilder) humanReadableLogging() bool {
	if builder.HumanReadableLoggingProvider == nil {
		return false
	}
	return builder.HumanReadableLoggingProvider()
}
