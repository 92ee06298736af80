package migration

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/vaultsync/internal/bwcli"
	"github.com/temirov/vaultsync/internal/execshell"
	"github.com/temirov/vaultsync/internal/session"
	"github.com/temirov/vaultsync/internal/snapshot"
	"github.com/temirov/vaultsync/internal/transfer"
	"github.com/temirov/vaultsync/internal/utils"
)

const (
	commandUseConstant                    = "sync"
	commandShortDescriptionConstant       = "Copy every item from the source vault into the target vault"
	commandLongDescriptionConstant        = "sync exports the source vault, strips secrets the importer rejects and imports the snapshot into the target vault or organization."
	commandExecutionErrorTemplateConstant = "sync failed: %w"
	unexpectedArgumentsMessageConstant    = "sync does not accept positional arguments"
	flagWorkRootNameConstant              = "work-root"
	flagWorkRootDescriptionConstant       = "Directory holding session state and snapshots"
	flagOrganizationNameConstant          = "organization-id"
	flagOrganizationDescriptionConstant   = "Target organization receiving the import"
	flagVerifyNameConstant                = "verify-item-count"
	flagVerifyDescriptionConstant         = "Compare the target item count with the snapshot after import"
	syncSummaryTemplateConstant           = "Sync completed using %s importer\n"
)

var errUnexpectedArguments = errors.New(unexpectedArgumentsMessageConstant)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// CommandConfiguration captures configuration values for the sync command.
type CommandConfiguration struct {
	WorkRoot        string              `mapstructure:"work_root"`
	OrganizationID  string              `mapstructure:"organization_id"`
	VerifyItemCount bool                `mapstructure:"verify_item_count"`
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

// CommandBuilder assembles the Cobra command for vault synchronization.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() CommandConfiguration
	Executor                     bwcli.VaultCommandExecutor
	EnvironmentLookup            session.EnvironmentLookup
}

// Build constructs the sync command.
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
	command.Flags().Bool(flagVerifyNameConstant, false, flagVerifyDescriptionConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errUnexpectedArguments
	}

	configuration := builder.parseConfiguration(command)
	runID, runIDAvailable := utils.NewCommandContextAccessor().RunIdentifier(command.Context())
	if !runIDAvailable {
		runID = uuid.NewString()
	}
	baseLogger := builder.resolveLogger()
	logger := baseLogger.With(zap.String(logFieldRunIdentifierConstant, runID))
	commandTally := &execshell.CommandTally{}

	client, clientError := bwcli.NewConfiguredClient(logger, builder.humanReadableLogging(), builder.Executor, commandTally, configuration.Vault)
	if clientError != nil {
		return clientError
	}
	manager, managerError := session.NewManager(session.ManagerDependencies{Logger: logger, Client: client, EnvironmentLookup: builder.EnvironmentLookup})
	if managerError != nil {
		return managerError
	}
	driver, driverError := transfer.NewDriver(logger, client)
	if driverError != nil {
		return driverError
	}

	service, serviceError := NewService(Dependencies{
		Logger:            baseLogger,
		ToolChecker:       client,
		Sessions:          manager,
		Transfer:          driver,
		Sanitizer:         snapshot.NewSanitizer(logger),
		ItemLister:        client,
		CommandStatistics: commandTally,
		EnvironmentLookup: builder.EnvironmentLookup,
	})
	if serviceError != nil {
		return serviceError
	}

	result, runError := service.Run(command.Context(), Options{
		RunID:                runID,
		WorkRoot:             configuration.WorkRoot,
		Source:               configuration.Source,
		Target:               configuration.Target,
		TargetOrganizationID: configuration.OrganizationID,
		VerifyItemCount:      configuration.VerifyItemCount,
		MinimumToolVersion:   configuration.Vault.MinimumVersion,
	})
	if runError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, runError)
	}

	fmt.Fprintf(command.OutOrStdout(), syncSummaryTemplateConstant, result.UsedFormat)
	return nil
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
	if command.Flags().Changed(flagVerifyNameConstant) {
		configuration.VerifyItemCount, _ = command.Flags().GetBool(flagVerifyNameConstant)
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
