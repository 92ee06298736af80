package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/temirov/vaultsync/internal/bwcli"
	"github.com/temirov/vaultsync/internal/itemcopy"
	"github.com/temirov/vaultsync/internal/migration"
	"github.com/temirov/vaultsync/internal/session"
	"github.com/temirov/vaultsync/internal/transfer"
	"github.com/temirov/vaultsync/internal/utils"
	"github.com/temirov/vaultsync/internal/utils/flags"
	pathutils "github.com/temirov/vaultsync/internal/utils/path"
)

const (
	applicationNameConstant                 = "vault-sync"
	applicationShortDescriptionConstant     = "Migrate one password vault account into another through the bw CLI"
	applicationLongDescriptionConstant      = "vault-sync drives two isolated bw sessions to export, sanitize and import a vault snapshot, or to copy items one by one."
	versionTemplateConstant                 = "{{.Name}} version: {{.Version}}\n"
	configFileFlagNameConstant              = "config"
	configFileFlagUsageConstant             = "Optional path to a configuration file (YAML or JSON)."
	logLevelFlagNameConstant                = "log-level"
	logLevelFlagUsageConstant               = "Override the configured log level."
	logFormatFlagNameConstant               = "log-format"
	logFormatFlagUsageConstant              = "Override the configured log format."
	environmentPrefixConstant               = "VAULTSYNC"
	configurationNameConstant               = "config"
	configurationTypeConstant               = "yaml"
	userConfigurationDirectoryNameConstant  = "vaultsync"
	defaultConfigurationSearchPathConstant  = "."
	sourceClientIDConfigKeyConstant         = "source.client_id"
	sourceClientSecretConfigKeyConstant     = "source.client_secret"
	sourceHostConfigKeyConstant             = "source.host"
	targetClientIDConfigKeyConstant         = "target.client_id"
	targetClientSecretConfigKeyConstant     = "target.client_secret"
	targetHostConfigKeyConstant             = "target.host"
	organizationConfigKeyConstant           = "sync.organization_id"
	organizationEnvironmentVariableConstant = "TARGET_BW_ORGANIZATION_ID"
	configurationInitializedMessageConstant = "configuration initialized"
	configurationLogLevelFieldConstant      = "log_level"
	configurationLogFormatFieldConstant     = "log_format"
	configurationFileFieldConstant          = "config_file"
	configurationWorkRootFieldConstant      = "work_root"
	configurationRunIdentifierFieldConstant = "run_id"
	configurationLoadErrorTemplateConstant  = "unable to load configuration: %w"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
)

// Version is the application version reported by --version. Release builds override it with -ldflags.
var Version = "dev"

// ApplicationConfiguration describes the persisted configuration for the CLI entrypoint.
type ApplicationConfiguration struct {
	Common   ApplicationCommonConfiguration  `mapstructure:"common"`
	WorkRoot string                          `mapstructure:"work_root"`
	Vault    bwcli.Configuration             `mapstructure:"vault"`
	Source   session.Credentials             `mapstructure:"source"`
	Target   session.Credentials             `mapstructure:"target"`
	Sync     ApplicationSyncConfiguration    `mapstructure:"sync"`
	Formats  ApplicationFormatsConfiguration `mapstructure:"formats"`
}

// ApplicationCommonConfiguration stores logging configuration shared across commands.
type ApplicationCommonConfiguration struct {
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// ApplicationSyncConfiguration stores settings for the sync and copy-items commands.
type ApplicationSyncConfiguration struct {
	OrganizationID  string `mapstructure:"organization_id"`
	VerifyItemCount bool   `mapstructure:"verify_item_count"`
	ContinueOnError bool   `mapstructure:"continue_on_error"`
}

// ApplicationFormatsConfiguration stores settings for the formats command.
type ApplicationFormatsConfiguration struct {
	Side string `mapstructure:"side"`
}

// ApplicationDependencies replaces process-level collaborators. Zero values select the operating system.
type ApplicationDependencies struct {
	Executor          bwcli.VaultCommandExecutor
	EnvironmentLookup session.EnvironmentLookup
	LogOutput         io.Writer
	HomeExpander      *pathutils.HomeExpander
}

// Application wires the Cobra root command, configuration loader, and structured logger.
type Application struct {
	rootCommand            *cobra.Command
	configurationLoader    *utils.ConfigurationLoader
	loggerFactory          *utils.LoggerFactory
	logger                 *zap.Logger
	configuration          ApplicationConfiguration
	configurationMetadata  utils.LoadedConfiguration
	configurationFilePath  string
	logLevelFlagValue      string
	logFormatFlagValue     *flags.ChoiceValue
	commandContextAccessor utils.CommandContextAccessor
	homeExpander           *pathutils.HomeExpander
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication() *Application {
	return NewApplicationWithDependencies(ApplicationDependencies{})
}

// NewApplicationWithDependencies assembles the CLI around the provided collaborators.
func NewApplicationWithDependencies(dependencies ApplicationDependencies) *Application {
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		configurationSearchPaths(),
	)
	configurationLoader.SetEmbeddedConfiguration(EmbeddedDefaultConfiguration())
	configurationLoader.BindEnvironment(sourceClientIDConfigKeyConstant, session.ClientIDVariableFor(session.LabelSource))
	configurationLoader.BindEnvironment(sourceClientSecretConfigKeyConstant, session.ClientSecretVariableFor(session.LabelSource))
	configurationLoader.BindEnvironment(sourceHostConfigKeyConstant, session.HostVariableFor(session.LabelSource))
	configurationLoader.BindEnvironment(targetClientIDConfigKeyConstant, session.ClientIDVariableFor(session.LabelTarget))
	configurationLoader.BindEnvironment(targetClientSecretConfigKeyConstant, session.ClientSecretVariableFor(session.LabelTarget))
	configurationLoader.BindEnvironment(targetHostConfigKeyConstant, session.HostVariableFor(session.LabelTarget))
	configurationLoader.BindEnvironment(organizationConfigKeyConstant, organizationEnvironmentVariableConstant)

	homeExpander := dependencies.HomeExpander
	if homeExpander == nil {
		homeExpander = pathutils.NewHomeExpander()
	}

	application := &Application{
		configurationLoader:    configurationLoader,
		loggerFactory:          utils.NewLoggerFactoryWithOutput(dependencies.LogOutput),
		logger:                 zap.NewNop(),
		commandContextAccessor: utils.NewCommandContextAccessor(),
		homeExpander:           homeExpander,
	}

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return command.Help()
		},
	}

	cobraCommand.SetVersionTemplate(versionTemplateConstant)
	cobraCommand.SetContext(context.Background())
	cobraCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	application.logFormatFlagValue = flags.AddChoiceFlag(cobraCommand.PersistentFlags(), logFormatFlagNameConstant, string(utils.LogFormatStructured), utils.LogFormatChoices(), logFormatFlagUsageConstant)

	loggerProvider := func() *zap.Logger {
		return application.logger
	}

	syncBuilder := migration.CommandBuilder{
		LoggerProvider:               loggerProvider,
		HumanReadableLoggingProvider: application.humanReadableLoggingEnabled,
		ConfigurationProvider:        application.syncConfiguration,
		Executor:                     dependencies.Executor,
		EnvironmentLookup:            dependencies.EnvironmentLookup,
	}
	syncCommand, syncBuildError := syncBuilder.Build()
	if syncBuildError == nil {
		cobraCommand.AddCommand(syncCommand)
	}

	copyItemsBuilder := itemcopy.CommandBuilder{
		LoggerProvider:               loggerProvider,
		HumanReadableLoggingProvider: application.humanReadableLoggingEnabled,
		ConfigurationProvider:        application.copyItemsConfiguration,
		Executor:                     dependencies.Executor,
		EnvironmentLookup:            dependencies.EnvironmentLookup,
	}
	copyItemsCommand, copyItemsBuildError := copyItemsBuilder.Build()
	if copyItemsBuildError == nil {
		cobraCommand.AddCommand(copyItemsCommand)
	}

	formatsBuilder := transfer.CommandBuilder{
		LoggerProvider:               loggerProvider,
		HumanReadableLoggingProvider: application.humanReadableLoggingEnabled,
		ConfigurationProvider:        application.formatsConfiguration,
		Executor:                     dependencies.Executor,
		EnvironmentLookup:            dependencies.EnvironmentLookup,
	}
	formatsCommand, formatsBuildError := formatsBuilder.Build()
	if formatsBuildError == nil {
		cobraCommand.AddCommand(formatsCommand)
	}

	application.rootCommand = cobraCommand

	return application
}

// Execute runs the configured Cobra command hierarchy and ensures logger flushing.
func (application *Application) Execute() error {
	return application.ExecuteContext(context.Background())
}

// ExecuteContext runs the command hierarchy under executionContext, typically cancelled by a signal.
func (application *Application) ExecuteContext(executionContext context.Context) error {
	executionError := application.rootCommand.ExecuteContext(executionContext)
	if syncError := application.flushLogger(); syncError != nil && executionError == nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// ExecuteContext builds a fresh application instance and executes the root command hierarchy.
func ExecuteContext(executionContext context.Context) error {
	return NewApplication().ExecuteContext(executionContext)
}

// ExitCode maps an execution error to the process exit status. Errors that carry no status are operational failures.
func ExitCode(executionError error) int {
	if executionError == nil {
		return migration.ExitCodeSuccess
	}
	var statusCarrier interface{ ExitCode() int }
	if errors.As(executionError, &statusCarrier) {
		return statusCarrier.ExitCode()
	}
	return migration.ExitCodeOperationalFailure
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	configurationFilePath := application.homeExpander.Expand(application.configurationFilePath)
	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(configurationFilePath, nil, &application.configuration)
	if loadError != nil {
		return fmt.Errorf(configurationLoadErrorTemplateConstant, loadError)
	}

	application.configurationMetadata = loadedConfiguration
	application.configuration.WorkRoot = application.homeExpander.Expand(application.configuration.WorkRoot)

	if application.persistentFlagChanged(command, logLevelFlagNameConstant) {
		application.configuration.Common.LogLevel = application.logLevelFlagValue
	}

	if application.persistentFlagChanged(command, logFormatFlagNameConstant) {
		application.configuration.Common.LogFormat = application.logFormatFlagValue.String()
	}

	logger, loggerCreationError := application.loggerFactory.CreateLogger(
		utils.LogLevel(application.configuration.Common.LogLevel),
		utils.LogFormat(application.configuration.Common.LogFormat),
	)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = logger

	parentContext := context.Background()
	if command != nil && command.Context() != nil {
		parentContext = command.Context()
	}
	runIdentifier, runIdentifierAvailable := application.commandContextAccessor.RunIdentifier(parentContext)
	if !runIdentifierAvailable {
		runIdentifier = uuid.NewString()
	}

	application.logger.Info(
		configurationInitializedMessageConstant,
		zap.String(configurationRunIdentifierFieldConstant, runIdentifier),
		zap.String(configurationLogLevelFieldConstant, application.configuration.Common.LogLevel),
		zap.String(configurationLogFormatFieldConstant, application.configuration.Common.LogFormat),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
		zap.String(configurationWorkRootFieldConstant, application.configuration.WorkRoot),
	)

	if command != nil {
		updatedContext := application.commandContextAccessor.WithConfigurationFilePath(parentContext, application.configurationMetadata.ConfigFileUsed)
		updatedContext = application.commandContextAccessor.WithRunIdentifier(updatedContext, runIdentifier)
		command.SetContext(updatedContext)
	}

	return nil
}

func (application *Application) syncConfiguration() migration.CommandConfiguration {
	return migration.CommandConfiguration{
		WorkRoot:        application.configuration.WorkRoot,
		OrganizationID:  application.configuration.Sync.OrganizationID,
		VerifyItemCount: application.configuration.Sync.VerifyItemCount,
		Source:          application.configuration.Source,
		Target:          application.configuration.Target,
		Vault:           application.configuration.Vault,
	}
}

func (application *Application) copyItemsConfiguration() itemcopy.CommandConfiguration {
	return itemcopy.CommandConfiguration{
		WorkRoot:        application.configuration.WorkRoot,
		OrganizationID:  application.configuration.Sync.OrganizationID,
		ContinueOnError: application.configuration.Sync.ContinueOnError,
		Source:          application.configuration.Source,
		Target:          application.configuration.Target,
		Vault:           application.configuration.Vault,
	}
}

func (application *Application) formatsConfiguration() transfer.CommandConfiguration {
	return transfer.CommandConfiguration{
		WorkRoot: application.configuration.WorkRoot,
		Side:     application.configuration.Formats.Side,
		Source:   application.configuration.Source,
		Target:   application.configuration.Target,
		Vault:    application.configuration.Vault,
	}
}

func (application *Application) humanReadableLoggingEnabled() bool {
	logFormatValue := strings.TrimSpace(application.configuration.Common.LogFormat)
	return strings.EqualFold(logFormatValue, string(utils.LogFormatConsole))
}

func (application *Application) flushLogger() error {
	if application.logger == nil {
		return nil
	}

	syncError := application.logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	default:
		return syncError
	}
}

func (application *Application) persistentFlagChanged(command *cobra.Command, flagName string) bool {
	if command == nil {
		return false
	}

	flagSetsToInspect := []*pflag.FlagSet{
		command.PersistentFlags(),
		command.InheritedFlags(),
	}

	rootCommand := command.Root()
	if rootCommand != nil {
		flagSetsToInspect = append(flagSetsToInspect, rootCommand.PersistentFlags())
	}

	for _, flagSet := range flagSetsToInspect {
		if flagSet == nil {
			continue
		}

		if flagSet.Changed(flagName) {
			return true
		}
	}

	return false
}

func configurationSearchPaths() []string {
	searchPaths := []string{defaultConfigurationSearchPathConstant}
	if userConfigurationDirectory, directoryError := os.UserConfigDir(); directoryError == nil {
		searchPaths = append(searchPaths, filepath.Join(userConfigurationDirectory, userConfigurationDirectoryNameConstant))
	}
	return searchPaths
}
