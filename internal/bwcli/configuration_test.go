package bwcli_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/temirov/vaultsync/internal/bwcli"
	"github.com/temirov/vaultsync/internal/execshell"
)

func TestConfigurationSanitizeFillsDefaults(testInstance *testing.T) {
	configuration := bwcli.Configuration{
		ToolName:       "  ",
		MinimumVersion: " 2024.1.0 ",
		Timeouts:       bwcli.Timeouts{Export: 5 * time.Minute},
	}

	sanitized := configuration.Sanitize()

	expectedTimeouts := bwcli.DefaultTimeouts()
	expectedTimeouts.Export = 5 * time.Minute
	require.Equal(testInstance, bwcli.Configuration{
		ToolName:       string(execshell.CommandVaultCLI),
		MinimumVersion: "2024.1.0",
		Timeouts:       expectedTimeouts,
	}, sanitized)
	require.Equal(testInstance, sanitized, sanitized.Sanitize())
}

func TestNewConfiguredClientUsesProvidedExecutor(testInstance *testing.T) {
	executor := &stubVaultExecutor{executeFunc: respondWith("2024.6.0\n")}
	configuration := bwcli.DefaultConfiguration()
	configuration.ToolName = "/opt/bw/bin/bw"

	client, creationError := bwcli.NewConfiguredClient(zap.NewNop(), false, executor, nil, configuration)
	require.NoError(testInstance, creationError)
	require.Equal(testInstance, bwcli.DefaultTimeouts(), client.Timeouts())

	reportedVersion, versionError := client.Version(context.Background())
	require.NoError(testInstance, versionError)
	require.Equal(testInstance, "2024.6.0", reportedVersion)
	require.Len(testInstance, executor.recordedCommands, 1)
	require.Equal(testInstance, execshell.CommandName("/opt/bw/bin/bw"), executor.recordedCommands[0].Name)
	require.Zero(testInstance, executor.recordedCommands[0].Details.Timeout)
}

func TestNewConfiguredClientBuildsProcessExecutor(testInstance *testing.T) {
	client, creationError := bwcli.NewConfiguredClient(zap.NewNop(), true, nil, &execshell.CommandTally{}, bwcli.Configuration{})
	require.NoError(testInstance, creationError)
	require.NotNil(testInstance, client)

	_, missingLoggerError := bwcli.NewConfiguredClient(nil, false, nil, nil, bwcli.Configuration{})
	require.ErrorIs(testInstance, missingLoggerError, execshell.ErrLoggerNotConfigured)
}
