package bwcli

import (
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/vaultsync/internal/execshell"
)

const defaultMinimumVersionConstant = "2023.1.0"

// Configuration captures the vault CLI settings shared by every command.
type Configuration struct {
	ToolName       string   `mapstructure:"cli"`
	MinimumVersion string   `mapstructure:"minimum_version"`
	Timeouts       Timeouts `mapstructure:"timeouts"`
}

// DefaultConfiguration provides baseline vault CLI settings.
func DefaultConfiguration() Configuration {
	return Configuration{
		ToolName:       string(execshell.CommandVaultCLI),
		MinimumVersion: defaultMinimumVersionConstant,
		Timeouts:       DefaultTimeouts(),
	}
}

// Sanitize trims values and replaces unset timeouts with their defaults.
func (configuration Configuration) Sanitize() Configuration {
	sanitized := configuration
	sanitized.ToolName = strings.TrimSpace(configuration.ToolName)
	if len(sanitized.ToolName) == 0 {
		sanitized.ToolName = string(execshell.CommandVaultCLI)
	}
	sanitized.MinimumVersion = strings.TrimSpace(configuration.MinimumVersion)
	sanitized.Timeouts = configuration.Timeouts.withDefaults()
	return sanitized
}

func (timeouts Timeouts) withDefaults() Timeouts {
	defaults := DefaultTimeouts()
	completed := timeouts
	if completed.ConfigureServer <= 0 {
		completed.ConfigureServer = defaults.ConfigureServer
	}
	if completed.Login <= 0 {
		completed.Login = defaults.Login
	}
	if completed.Unlock <= 0 {
		completed.Unlock = defaults.Unlock
	}
	if completed.Status <= 0 {
		completed.Status = defaults.Status
	}
	if completed.Export <= 0 {
		completed.Export = defaults.Export
	}
	if completed.FormatDiscovery <= 0 {
		completed.FormatDiscovery = defaults.FormatDiscovery
	}
	if completed.Import <= 0 {
		completed.Import = defaults.Import
	}
	if completed.ListItems <= 0 {
		completed.ListItems = defaults.ListItems
	}
	if completed.GetItem <= 0 {
		completed.GetItem = defaults.GetItem
	}
	if completed.Encode <= 0 {
		completed.Encode = defaults.Encode
	}
	if completed.CreateItem <= 0 {
		completed.CreateItem = defaults.CreateItem
	}
	if completed.Logout <= 0 {
		completed.Logout = defaults.Logout
	}
	return completed
}

// NewConfiguredClient builds a client over the given executor, or over a process-backed
// execshell.ShellExecutor reporting to observer when executor is nil.
func NewConfiguredClient(logger *zap.Logger, humanReadableLogging bool, executor VaultCommandExecutor, observer execshell.CommandEventObserver, configuration Configuration) (*Client, error) {
	sanitized := configuration.Sanitize()
	if executor == nil {
		shellExecutor, creationError := execshell.NewShellExecutor(logger, execshell.NewOSCommandRunner(), humanReadableLogging)
		if creationError != nil {
			return nil, creationError
		}
		if observer != nil {
			shellExecutor = shellExecutor.WithObserver(observer)
		}
		executor = shellExecutor
	}
	return NewClient(executor, execshell.CommandName(sanitized.ToolName), sanitized.Timeouts)
}
