package transfer_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/vaultsync/internal/execshell"
	"github.com/temirov/vaultsync/internal/session"
	"github.com/temirov/vaultsync/internal/transfer"
)

const (
	testCommandListingConstant        = "json\ncsv\nbitwardenjson\n"
	testDefaultSideCaseConstant       = "default_target_side"
	testSourceSideCaseConstant        = "source_side_flag"
	testFailedDiscoveryCaseConstant   = "failed_discovery_prints_fallback"
	testCommandSourcePasswordConstant = "SOURCE_BW_PASSWORD"
	testCommandTargetPasswordConstant = "TARGET_BW_PASSWORD"
	testCommandSourceClientIDConstant = "source-id"
	testCommandTargetClientIDConstant = "target-id"
	testCommandUnknownSideConstant    = "sideways"
	testCommandFormatsFailureConstant = "formats unavailable"
)

type scriptedFormatsExecutor struct {
	mutex        sync.Mutex
	clientIDs    []string
	subcommands  []string
	formatsError error
}

func (executor *scriptedFormatsExecutor) Execute(_ context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error) {
	executor.mutex.Lock()
	defer executor.mutex.Unlock()
	arguments := command.Details.Arguments
	executor.subcommands = append(executor.subcommands, arguments[0])
	executor.clientIDs = append(executor.clientIDs, command.Details.EnvironmentVariables[session.ClientIDVariable])

	switch arguments[0] {
	case "unlock":
		return execshell.ExecutionResult{StandardOutput: "token"}, nil
	case "status":
		return execshell.ExecutionResult{StandardOutput: `{"status":"unlocked"}`}, nil
	case "import":
		if executor.formatsError != nil {
			return execshell.ExecutionResult{}, executor.formatsError
		}
		return execshell.ExecutionResult{StandardOutput: testCommandListingConstant}, nil
	default:
		return execshell.ExecutionResult{}, nil
	}
}

func (executor *scriptedFormatsExecutor) ExecuteWithInput(executionContext context.Context, command execshell.ShellCommand, _ []byte) (execshell.ExecutionResult, error) {
	return executor.Execute(executionContext, command)
}

func formatsConfiguration(workRoot string) transfer.CommandConfiguration {
	return transfer.CommandConfiguration{
		WorkRoot: workRoot,
		Source:   session.Credentials{ClientID: testCommandSourceClientIDConstant, ClientSecret: "source-secret"},
		Target:   session.Credentials{ClientID: testCommandTargetClientIDConstant, ClientSecret: "target-secret"},
	}
}

func formatsEnvironmentLookup(variableName string) (string, bool) {
	switch variableName {
	case testCommandSourcePasswordConstant, testCommandTargetPasswordConstant:
		return "master", true
	default:
		return "", false
	}
}

func TestFormatsCommandPrintsCandidates(testInstance *testing.T) {
	testCases := []struct {
		name             string
		arguments        []string
		formatsError     error
		expectedClientID string
		expectedOutput   string
	}{
		{
			name:             testDefaultSideCaseConstant,
			arguments:        []string{},
			expectedClientID: testCommandTargetClientIDConstant,
			expectedOutput:   "bitwardenjson\njson\ncsv\n",
		},
		{
			name:             testSourceSideCaseConstant,
			arguments:        []string{"--side", "SOURCE"},
			expectedClientID: testCommandSourceClientIDConstant,
			expectedOutput:   "bitwardenjson\njson\ncsv\n",
		},
		{
			name:             testFailedDiscoveryCaseConstant,
			arguments:        []string{},
			formatsError:     errors.New(testCommandFormatsFailureConstant),
			expectedClientID: testCommandTargetClientIDConstant,
			expectedOutput:   "bitwardenjson\njson\nencrypted_json\nbitwardencsv\n",
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			executor := &scriptedFormatsExecutor{formatsError: testCase.formatsError}
			workRoot := testInstance.TempDir()
			builder := transfer.CommandBuilder{
				ConfigurationProvider: func() transfer.CommandConfiguration { return formatsConfiguration(workRoot) },
				Executor:              executor,
				EnvironmentLookup:     formatsEnvironmentLookup,
			}
			command, buildError := builder.Build()
			require.NoError(testInstance, buildError)

			outputBuffer := &bytes.Buffer{}
			command.SetOut(outputBuffer)
			command.SetContext(context.Background())
			command.SetArgs(testCase.arguments)

			require.NoError(testInstance, command.Execute())
			require.Equal(testInstance, testCase.expectedOutput, outputBuffer.String())
			require.Equal(testInstance, "logout", executor.subcommands[len(executor.subcommands)-1])
			for _, clientID := range executor.clientIDs {
				require.Equal(testInstance, testCase.expectedClientID, clientID)
			}
		})
	}
}

func TestFormatsCommandRejectsUnknownSide(testInstance *testing.T) {
	executor := &scriptedFormatsExecutor{}
	builder := transfer.CommandBuilder{
		ConfigurationProvider: func() transfer.CommandConfiguration { return formatsConfiguration(testInstance.TempDir()) },
		Executor:              executor,
		EnvironmentLookup:     formatsEnvironmentLookup,
	}
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)
	command.SetContext(context.Background())
	command.SetArgs([]string{"--side", testCommandUnknownSideConstant})

	require.ErrorContains(testInstance, command.Execute(), testCommandUnknownSideConstant)
	require.Empty(testInstance, executor.subcommands)
}

func TestFormatsCommandRequiresCredentials(testInstance *testing.T) {
	executor := &scriptedFormatsExecutor{}
	builder := transfer.CommandBuilder{
		ConfigurationProvider: func() transfer.CommandConfiguration {
			configuration := formatsConfiguration(testInstance.TempDir())
			configuration.Target.ClientID = ""
			return configuration
		},
		Executor:          executor,
		EnvironmentLookup: formatsEnvironmentLookup,
	}
	command, buildError := builder.Build()
	require.NoError(testInstance, buildError)
	command.SetContext(context.Background())
	command.SetArgs([]string{})

	executionError := command.Execute()
	var configurationError session.ConfigurationError
	require.ErrorAs(testInstance, executionError, &configurationError)
	require.Equal(testInstance, "TARGET_BW_CLIENTID", configurationError.Variable)
	require.Empty(testInstance, executor.subcommands)
}
