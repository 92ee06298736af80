package transfer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/vaultsync/internal/bwcli"
	"github.com/temirov/vaultsync/internal/session"
	"github.com/temirov/vaultsync/internal/utils/flags"
)

const (
	commandUseConstant                    = "formats"
	commandShortDescriptionConstant       = "List the importer formats the sync would try, in order"
	commandLongDescriptionConstant        = "formats signs into one vault, asks the CLI for its importer list and prints the ordered candidates used during import."
	commandExecutionErrorTemplateConstant = "formats failed: %w"
	unexpectedArgumentsMessageConstant    = "formats does not accept positional arguments"
	unknownSideTemplateConstant           = "unknown side %q (expected %s or %s)"
	flagWorkRootNameConstant              = "work-root"
	flagWorkRootDescriptionConstant       = "Directory holding session state"
	flagSideNameConstant                  = "side"
	flagSideDescriptionConstant           = "Vault to query"
	candidateLineTemplateConstant         = "%s\n"
)

var errUnexpectedArguments = errors.New(unexpectedArgumentsMessageConstant)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// CommandConfiguration captures configuration values for the formats command.
type CommandConfiguration struct {
	WorkRoot string              `mapstructure:"work_root"`
	Side     string              `mapstructure:"side"`
	Source   session.Credentials `mapstructure:"source"`
	Target   session.Credentials `mapstructure:"target"`
	Vault    bwcli.Configuration `mapstructure:"vault"`
}

func (configuration CommandConfiguration) sanitize() CommandConfiguration {
	sanitized := configuration
	sanitized.WorkRoot = strings.TrimSpace(configuration.WorkRoot)
	if len(sanitized.WorkRoot) == 0 {
		sanitized.WorkRoot = session.DefaultWorkRoot
	}
	sanitized.Side = strings.ToLower(strings.TrimSpace(configuration.Side))
	if len(sanitized.Side) == 0 {
		sanitized.Side = session.LabelTarget
	}
	sanitized.Vault = configuration.Vault.Sanitize()
	return sanitized
}

func (configuration CommandConfiguration) request() (session.Request, error) {
	sourceRequest, targetRequest := session.NewRequestPair(configuration.WorkRoot, configuration.Source, configuration.Target)
	switch configuration.Side {
	case session.LabelSource:
		return sourceRequest, nil
	case session.LabelTarget:
		return targetRequest, nil
	default:
		return session.Request{}, fmt.Errorf(unknownSideTemplateConstant, configuration.Side, session.LabelSource, session.LabelTarget)
	}
}

// CommandBuilder assembles the Cobra command listing importer candidates.
type CommandBuilder struct {
	LoggerProvider               LoggerProvider
	HumanReadableLoggingProvider func() bool
	ConfigurationProvider        func() CommandConfiguration
	Executor                     bwcli.VaultCommandExecutor
	EnvironmentLookup            session.EnvironmentLookup
}

// Build constructs the formats command.
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
	flags.AddChoiceFlag(command.Flags(), flagSideNameConstant, session.LabelTarget, []string{session.LabelSource, session.LabelTarget}, flagSideDescriptionConstant)

	return command, nil
}

func (builder *CommandBuilder) run(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errUnexpectedArguments
	}

	configuration := builder.parseConfiguration(command)
	request, sideError := configuration.request()
	if sideError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, sideError)
	}
	environmentLookup := builder.EnvironmentLookup
	if environmentLookup == nil {
		environmentLookup = os.LookupEnv
	}
	if validationError := session.ValidateRequests(environmentLookup, request); validationError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, validationError)
	}

	logger := builder.resolveLogger()
	client, clientError := bwcli.NewConfiguredClient(logger, builder.humanReadableLogging(), builder.Executor, nil, configuration.Vault)
	if clientError != nil {
		return clientError
	}
	manager, managerError := session.NewManager(session.ManagerDependencies{Logger: logger, Client: client, EnvironmentLookup: environmentLookup})
	if managerError != nil {
		return managerError
	}
	driver, driverError := NewDriver(logger, client)
	if driverError != nil {
		return driverError
	}

	established, establishError := manager.Establish(command.Context(), request)
	if establishError != nil {
		return fmt.Errorf(commandExecutionErrorTemplateConstant, session.SideError{Side: request.Label, Cause: establishError})
	}
	defer manager.Logout(context.WithoutCancel(command.Context()), established)

	for _, candidate := range driver.DiscoverFormats(command.Context(), established) {
		fmt.Fprintf(command.OutOrStdout(), candidateLineTemplateConstant, candidate)
	}
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
	if command.Flags().Changed(flagSideNameConstant) || len(strings.TrimSpace(configuration.Side)) == 0 {
		configuration.Side = command.Flags().Lookup(flagSideNameConstant).Value.String()
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
