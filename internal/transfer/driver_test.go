package transfer_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/vaultsync/internal/bwcli"
	"github.com/temirov/vaultsync/internal/transfer"
)

const (
	testSnapshotPathConstant         = "/tmp/bitsync/export.sanitized.json"
	testOrganizationConstant         = "org-b"
	testTargetLabelConstant          = "target"
	testOrderingCaseNameConstant     = "priority_first"
	testDecoratedCaseNameConstant    = "decorated_listing"
	testUnknownOnlyCaseNameConstant  = "unknown_only"
	testEmptyListingCaseNameConstant = "empty_listing"
	testDuplicateCaseNameConstant    = "duplicates_removed"
	testThirdCandidateCaseConstant   = "third_candidate_succeeds"
	testFirstCandidateCaseConstant   = "first_candidate_succeeds"
	testExhaustionCaseNameConstant   = "all_candidates_fail"
	testDiscoveryFailureCaseConstant = "discovery_failure_uses_fallback"
	testCancelledContextCaseConstant = "cancelled_context"
)

type stubSession struct{}

func (stubSession) Label() string { return testTargetLabelConstant }

func (stubSession) CommandEnvironment() bwcli.CommandEnvironment {
	return bwcli.CommandEnvironment{Variables: map[string]string{"BW_SESSION": "token"}}
}

type stubTransferClient struct {
	formatListing    string
	formatsError     error
	succeedingFormat string
	exportError      error
	attemptedFormats []string
	exportedPaths    []string
}

func (client *stubTransferClient) Export(_ context.Context, _ bwcli.CommandEnvironment, outputPath string, _ string) error {
	client.exportedPaths = append(client.exportedPaths, outputPath)
	return client.exportError
}

func (client *stubTransferClient) ImportFormats(context.Context, bwcli.CommandEnvironment) (string, error) {
	return client.formatListing, client.formatsError
}

func (client *stubTransferClient) Import(_ context.Context, _ bwcli.CommandEnvironment, format string, _ string, _ string) error {
	client.attemptedFormats = append(client.attemptedFormats, format)
	if format == client.succeedingFormat {
		return nil
	}
	return bwcli.OperationError{Operation: bwcli.OperationImport, Cause: errors.New("Import error: unsupported")}
}

func TestParseFormatListing(testInstance *testing.T) {
	testCases := []struct {
		name     string
		listing  string
		expected transfer.FormatCandidates
	}{
		{
			name:     testOrderingCaseNameConstant,
			listing:  "json\ncsv\nbitwardenjson\n",
			expected: transfer.FormatCandidates{"bitwardenjson", "json", "csv"},
		},
		{
			name:     testDecoratedCaseNameConstant,
			listing:  "Supported formats:\n  - lastpasscsv\n  - 1Password1pif\n  - JSON\n",
			expected: transfer.FormatCandidates{"json", "1password1pif", "lastpasscsv"},
		},
		{
			name:     testUnknownOnlyCaseNameConstant,
			listing:  "madeupformat\nanother\n",
			expected: transfer.FormatCandidates{"bitwardenjson", "json", "encrypted_json", "bitwardencsv"},
		},
		{
			name:     testEmptyListingCaseNameConstant,
			listing:  "",
			expected: transfer.FormatCandidates{"bitwardenjson", "json", "encrypted_json", "bitwardencsv"},
		},
		{
			name:     testDuplicateCaseNameConstant,
			listing:  "csv\ncsv\njson\n",
			expected: transfer.FormatCandidates{"json", "csv"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			require.Equal(testInstance, testCase.expected, transfer.ParseFormatListing(testCase.listing))
		})
	}
}

func TestFallbackFormatsReturnsCopy(testInstance *testing.T) {
	fallback := transfer.FallbackFormats()
	fallback[0] = "mutated"
	require.Equal(testInstance, "bitwardenjson", transfer.FallbackFormats()[0])
	require.True(testInstance, transfer.IsKnownFormat(" BitwardenJSON "))
	require.False(testInstance, transfer.IsKnownFormat("madeupformat"))
}

func TestImportAuto(testInstance *testing.T) {
	testCases := []struct {
		name             string
		client           *stubTransferClient
		expectedFormat   string
		expectedAttempts []string
		expectExhaustion bool
	}{
		{
			name:             testFirstCandidateCaseConstant,
			client:           &stubTransferClient{formatListing: "json\nbitwardenjson\n", succeedingFormat: "bitwardenjson"},
			expectedFormat:   "bitwardenjson",
			expectedAttempts: []string{"bitwardenjson"},
		},
		{
			name:             testThirdCandidateCaseConstant,
			client:           &stubTransferClient{formatListing: "json\ncsv\nbitwardenjson\n", succeedingFormat: "csv"},
			expectedFormat:   "csv",
			expectedAttempts: []string{"bitwardenjson", "json", "csv"},
		},
		{
			name:             testDiscoveryFailureCaseConstant,
			client:           &stubTransferClient{formatsError: errors.New("unknown option"), succeedingFormat: "encrypted_json"},
			expectedFormat:   "encrypted_json",
			expectedAttempts: []string{"bitwardenjson", "json", "encrypted_json"},
		},
		{
			name:             testExhaustionCaseNameConstant,
			client:           &stubTransferClient{formatListing: "json\ncsv\n"},
			expectedAttempts: []string{"json", "csv"},
			expectExhaustion: true,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			driver, creationError := transfer.NewDriver(zap.NewNop(), testCase.client)
			require.NoError(testInstance, creationError)

			usedFormat, importError := driver.ImportAuto(context.Background(), stubSession{}, testSnapshotPathConstant, testOrganizationConstant)
			require.Equal(testInstance, testCase.expectedAttempts, testCase.client.attemptedFormats)
			if testCase.expectExhaustion {
				var exhaustionError transfer.ExhaustionError
				require.ErrorAs(testInstance, importError, &exhaustionError)
				require.Equal(testInstance, transfer.FormatCandidates{"json", "csv"}, exhaustionError.AttemptedFormats)
				require.Contains(testInstance, importError.Error(), "no supported importer type")
				require.Len(testInstance, exhaustionError.Failures, 2)
				return
			}
			require.NoError(testInstance, importError)
			require.Equal(testInstance, testCase.expectedFormat, usedFormat)
		})
	}
}

func TestImportAutoLogsSwallowedAttemptsAtDebug(testInstance *testing.T) {
	observedCore, observedLogs := observer.New(zapcore.DebugLevel)
	client := &stubTransferClient{formatListing: "json\ncsv\n", succeedingFormat: "csv"}
	driver, creationError := transfer.NewDriver(zap.New(observedCore), client)
	require.NoError(testInstance, creationError)

	_, importError := driver.ImportAuto(context.Background(), stubSession{}, testSnapshotPathConstant, "")
	require.NoError(testInstance, importError)

	toleratedEntries := observedLogs.FilterMessage("Vault operation attempt failed; trying next candidate").All()
	require.Len(testInstance, toleratedEntries, 1)
	require.Equal(testInstance, zapcore.DebugLevel, toleratedEntries[0].Level)
	require.Equal(testInstance, testTargetLabelConstant, toleratedEntries[0].ContextMap()["side"])
}

func TestDiscoverFormatsWarnsWhenFallingBack(testInstance *testing.T) {
	testCases := []struct {
		name           string
		client         *stubTransferClient
		expectFallback bool
	}{
		{
			name:           testDiscoveryFailureCaseConstant,
			client:         &stubTransferClient{formatsError: bwcli.OperationError{Operation: bwcli.OperationImportFormats, Cause: errors.New("unknown option")}},
			expectFallback: true,
		},
		{
			name:           testEmptyListingCaseNameConstant,
			client:         &stubTransferClient{formatListing: ""},
			expectFallback: true,
		},
		{
			name:           testUnknownOnlyCaseNameConstant,
			client:         &stubTransferClient{formatListing: "madeupformat\n"},
			expectFallback: true,
		},
		{
			name:   testOrderingCaseNameConstant,
			client: &stubTransferClient{formatListing: "json\nbitwardenjson\n"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			observedCore, observedLogs := observer.New(zapcore.DebugLevel)
			driver, creationError := transfer.NewDriver(zap.New(observedCore), testCase.client)
			require.NoError(testInstance, creationError)

			candidates := driver.DiscoverFormats(context.Background(), stubSession{})

			fallbackEntries := observedLogs.FilterMessage("Format discovery returned no usable formats; using fallback list").All()
			if !testCase.expectFallback {
				require.Empty(testInstance, fallbackEntries)
				require.Equal(testInstance, transfer.FormatCandidates{"bitwardenjson", "json"}, candidates)
				return
			}
			require.Equal(testInstance, transfer.FallbackFormats(), candidates)
			require.Len(testInstance, fallbackEntries, 1)
			require.Equal(testInstance, zapcore.WarnLevel, fallbackEntries[0].Level)
			if testCase.client.formatsError != nil {
				require.Contains(testInstance, fallbackEntries[0].ContextMap(), "error")
			}
		})
	}
}

func TestImportAutoStopsOnCancelledContext(testInstance *testing.T) {
	testInstance.Run(testCancelledContextCaseConstant, func(testInstance *testing.T) {
		client := &stubTransferClient{formatListing: "json\n"}
		driver, creationError := transfer.NewDriver(nil, client)
		require.NoError(testInstance, creationError)

		cancelledContext, cancel := context.WithCancel(context.Background())
		cancel()

		_, importError := driver.ImportAuto(cancelledContext, stubSession{}, testSnapshotPathConstant, "")
		require.ErrorIs(testInstance, importError, context.Canceled)
		require.Empty(testInstance, client.attemptedFormats)
	})
}

func TestDriverExport(testInstance *testing.T) {
	client := &stubTransferClient{}
	driver, creationError := transfer.NewDriver(nil, client)
	require.NoError(testInstance, creationError)
	require.NoError(testInstance, driver.Export(context.Background(), stubSession{}, "/tmp/bitsync/export.json", ""))
	require.Equal(testInstance, []string{"/tmp/bitsync/export.json"}, client.exportedPaths)

	client.exportError = errors.New("export failed")
	require.ErrorContains(testInstance, driver.Export(context.Background(), stubSession{}, "/tmp/bitsync/export.json", ""), "export failed")

	_, nilClientError := transfer.NewDriver(nil, nil)
	require.ErrorIs(testInstance, nilClientError, transfer.ErrClientNotConfigured)
}
