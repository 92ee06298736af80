package snapshot_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/vaultsync/internal/snapshot"
)

const (
	testSnapshotFileNameConstant = "export.json"
	testSnapshotDocumentConstant = `{
  "encrypted": false,
  "folders": [],
  "items": [
    {"id": "a1", "type": 1, "name": "Mail & Calendar", "collectionIds": null, "login": {"username": "alice", "totp": "not a secret!"}},
    {"id": "a2", "type": 1, "name": "Bank", "collectionIds": ["c1"], "login": {"username": "bob", "totp": "JBSWY3DPEHPK3PXP"}},
    {"id": "a3", "type": 1, "name": "Chat", "login": {"username": "carol", "totp": "otpauth://totp/Chat:carol?secret=JBSWY3DP"}},
    {"id": "a4", "type": 2, "name": "Note", "collectionIds": [], "secureNote": {"type": 0}, "notes": "keep"},
    {"id": "a5", "type": 1, "name": "Forum", "collectionIds": ["c2"], "login": {"username": "dave", "totp": null}}
  ]
}`
	testRemovalCaseNameConstant     = "removes_unimportable_totp"
	testBase32CaseNameConstant      = "keeps_base32_totp"
	testURICaseNameConstant         = "keeps_uri_totp"
	testSecureNoteCaseNameConstant  = "keeps_secure_note"
	testNullTOTPCaseNameConstant    = "keeps_null_totp"
	testPassThroughObjectCaseConst  = "items_not_array"
	testPassThroughMissingCaseConst = "items_missing"
	testPassThroughArrayCaseConst   = "document_not_object"
)

func writeSnapshot(testInstance *testing.T, contents string) string {
	testInstance.Helper()
	snapshotPath := filepath.Join(testInstance.TempDir(), testSnapshotFileNameConstant)
	require.NoError(testInstance, os.WriteFile(snapshotPath, []byte(contents), 0o600))
	return snapshotPath
}

func readItems(testInstance *testing.T, snapshotPath string) []map[string]any {
	testInstance.Helper()
	contents, readError := os.ReadFile(snapshotPath)
	require.NoError(testInstance, readError)
	var document struct {
		Items []map[string]any `json:"items"`
	}
	require.NoError(testInstance, json.Unmarshal(contents, &document))
	return document.Items
}

func TestSanitizeRemovesUnimportableSecrets(testInstance *testing.T) {
	snapshotPath := writeSnapshot(testInstance, testSnapshotDocumentConstant)
	sanitizer := snapshot.NewSanitizer(zap.NewNop())

	report, sanitizeError := sanitizer.SanitizeWithReport(snapshotPath)
	require.NoError(testInstance, sanitizeError)
	require.Equal(testInstance, filepath.Join(filepath.Dir(snapshotPath), "export.sanitized.json"), report.OutputPath)
	require.Equal(testInstance, 5, report.ItemCount)
	require.Equal(testInstance, 1, report.RemovedSecrets)
	require.Equal(testInstance, 2, report.NormalizedCollections)
	require.False(testInstance, report.PassThrough)

	items := readItems(testInstance, report.OutputPath)
	require.Len(testInstance, items, 5)

	testCases := []struct {
		name   string
		index  int
		verify func(testInstance *testing.T, item map[string]any)
	}{
		{
			name:  testRemovalCaseNameConstant,
			index: 0,
			verify: func(testInstance *testing.T, item map[string]any) {
				login := item["login"].(map[string]any)
				require.NotContains(testInstance, login, "totp")
				require.Equal(testInstance, "alice", login["username"])
				require.Equal(testInstance, []any{}, item["collectionIds"])
				require.Equal(testInstance, "Mail & Calendar", item["name"])
			},
		},
		{
			name:  testBase32CaseNameConstant,
			index: 1,
			verify: func(testInstance *testing.T, item map[string]any) {
				require.Equal(testInstance, "JBSWY3DPEHPK3PXP", item["login"].(map[string]any)["totp"])
				require.Equal(testInstance, []any{"c1"}, item["collectionIds"])
			},
		},
		{
			name:  testURICaseNameConstant,
			index: 2,
			verify: func(testInstance *testing.T, item map[string]any) {
				require.Contains(testInstance, item["login"].(map[string]any), "totp")
				require.Equal(testInstance, []any{}, item["collectionIds"])
			},
		},
		{
			name:  testSecureNoteCaseNameConstant,
			index: 3,
			verify: func(testInstance *testing.T, item map[string]any) {
				require.Equal(testInstance, "keep", item["notes"])
				require.Equal(testInstance, []any{}, item["collectionIds"])
			},
		},
		{
			name:  testNullTOTPCaseNameConstant,
			index: 4,
			verify: func(testInstance *testing.T, item map[string]any) {
				login := item["login"].(map[string]any)
				require.Contains(testInstance, login, "totp")
				require.Nil(testInstance, login["totp"])
				require.Equal(testInstance, "dave", login["username"])
			},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			testCase.verify(testInstance, items[testCase.index])
		})
	}
}

func TestSanitizeLeavesOriginalUntouched(testInstance *testing.T) {
	snapshotPath := writeSnapshot(testInstance, testSnapshotDocumentConstant)

	sanitizedPath, sanitizeError := snapshot.NewSanitizer(nil).Sanitize(snapshotPath)
	require.NoError(testInstance, sanitizeError)
	require.NotEqual(testInstance, snapshotPath, sanitizedPath)

	originalContents, readError := os.ReadFile(snapshotPath)
	require.NoError(testInstance, readError)
	require.Equal(testInstance, testSnapshotDocumentConstant, string(originalContents))

	fileInformation, statError := os.Stat(sanitizedPath)
	require.NoError(testInstance, statError)
	require.Equal(testInstance, os.FileMode(0o600), fileInformation.Mode().Perm())
}

func TestSanitizeIsIdempotent(testInstance *testing.T) {
	snapshotPath := writeSnapshot(testInstance, testSnapshotDocumentConstant)
	sanitizer := snapshot.NewSanitizer(nil)

	firstPath, firstError := sanitizer.Sanitize(snapshotPath)
	require.NoError(testInstance, firstError)
	firstContents, readError := os.ReadFile(firstPath)
	require.NoError(testInstance, readError)

	secondReport, secondError := sanitizer.SanitizeWithReport(firstPath)
	require.NoError(testInstance, secondError)
	require.Equal(testInstance, filepath.Join(filepath.Dir(snapshotPath), "export.sanitized.sanitized.json"), secondReport.OutputPath)
	require.Zero(testInstance, secondReport.RemovedSecrets)
	require.Zero(testInstance, secondReport.NormalizedCollections)

	secondContents, secondReadError := os.ReadFile(secondReport.OutputPath)
	require.NoError(testInstance, secondReadError)
	require.Equal(testInstance, string(firstContents), string(secondContents))
	require.Contains(testInstance, string(firstContents), "Mail & Calendar")
}

func TestSanitizeKeepsUntouchedItemsVerbatim(testInstance *testing.T) {
	snapshotPath := writeSnapshot(testInstance, testSnapshotDocumentConstant)

	sanitizedPath, sanitizeError := snapshot.NewSanitizer(nil).Sanitize(snapshotPath)
	require.NoError(testInstance, sanitizeError)
	sanitizedContents, readError := os.ReadFile(sanitizedPath)
	require.NoError(testInstance, readError)

	require.Contains(testInstance, string(sanitizedContents), `{"id":"a2","type":1,"name":"Bank","collectionIds":["c1"],"login":{"username":"bob","totp":"JBSWY3DPEHPK3PXP"}}`)
	require.Contains(testInstance, string(sanitizedContents), `{"id":"a5","type":1,"name":"Forum","collectionIds":["c2"],"login":{"username":"dave","totp":null}}`)
}

func TestSanitizePassesThroughDocumentsWithoutItemList(testInstance *testing.T) {
	testCases := []struct {
		name     string
		document string
	}{
		{name: testPassThroughObjectCaseConst, document: `{"items":{"id":"a1"}}`},
		{name: testPassThroughMissingCaseConst, document: `{"folders":[]}`},
		{name: testPassThroughArrayCaseConst, document: `[{"id":"a1"}]`},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			snapshotPath := writeSnapshot(testInstance, testCase.document)
			observedCore, observedLogs := observer.New(zapcore.InfoLevel)

			sanitizedPath, sanitizeError := snapshot.NewSanitizer(zap.New(observedCore)).Sanitize(snapshotPath)
			require.NoError(testInstance, sanitizeError)
			require.Equal(testInstance, snapshotPath, sanitizedPath)
			require.Equal(testInstance, 1, observedLogs.Len())

			_, statError := os.Stat(snapshot.SanitizedPath(snapshotPath))
			require.True(testInstance, os.IsNotExist(statError))
		})
	}
}

func TestSanitizeReportsParseFailures(testInstance *testing.T) {
	snapshotPath := writeSnapshot(testInstance, "{not json")

	_, sanitizeError := snapshot.NewSanitizer(nil).Sanitize(snapshotPath)
	require.Error(testInstance, sanitizeError)

	_, missingError := snapshot.NewSanitizer(nil).Sanitize(filepath.Join(testInstance.TempDir(), "absent.json"))
	require.Error(testInstance, missingError)
}

func TestSanitizedPathNeverMatchesInput(testInstance *testing.T) {
	require.Equal(testInstance, "/tmp/bitsync/export.sanitized.json", snapshot.SanitizedPath("/tmp/bitsync/export.json"))
	require.Equal(testInstance, "/tmp/bitsync/export.txt.sanitized.json", snapshot.SanitizedPath("/tmp/bitsync/export.txt"))
}

func TestCountItems(testInstance *testing.T) {
	snapshotPath := writeSnapshot(testInstance, testSnapshotDocumentConstant)

	itemCount, countError := snapshot.CountItems(snapshotPath)
	require.NoError(testInstance, countError)
	require.Equal(testInstance, 5, itemCount)
}
