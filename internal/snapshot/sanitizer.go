package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/vaultsync/internal/vault"
)

const (
	itemsAttributeConstant              = "items"
	jsonSuffixConstant                  = ".json"
	sanitizedSuffixConstant             = ".sanitized.json"
	sanitizedFilePermissionsConstant    = 0o600
	readSnapshotErrorTemplateConstant   = "read snapshot %s: %w"
	parseSnapshotErrorTemplateConstant  = "parse snapshot %s: %w"
	encodeSnapshotErrorTemplateConstant = "encode snapshot %s: %w"
	writeSnapshotErrorTemplateConstant  = "write sanitized snapshot %s: %w"
	sanitizeItemErrorTemplateConstant   = "sanitize item %d: %w"
	sanitizedSnapshotMessageConstant    = "Sanitized snapshot"
	passThroughSnapshotMessageConstant  = "Snapshot has no item list; importing it unchanged"
	emptyPathMessageConstant            = "snapshot path required"
	logFieldInputPathConstant           = "input_path"
	logFieldOutputPathConstant          = "output_path"
	logFieldItemCountConstant           = "items"
	logFieldRemovedSecretsConstant      = "removed_totp_secrets"
	logFieldCollectionsConstant         = "normalized_collections"
)

// ErrSnapshotPathRequired indicates an empty snapshot path.
var ErrSnapshotPathRequired = errors.New(emptyPathMessageConstant)

// Report summarizes the changes applied to a snapshot.
type Report struct {
	InputPath             string
	OutputPath            string
	ItemCount             int
	RemovedSecrets        int
	NormalizedCollections int
	PassThrough           bool
}

// Sanitizer rewrites exported snapshots so they can be imported into a different account.
type Sanitizer struct {
	logger *zap.Logger
}

// NewSanitizer constructs a Sanitizer. A nil logger disables logging.
func NewSanitizer(logger *zap.Logger) *Sanitizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sanitizer{logger: logger}
}

// Sanitize writes the sanitized snapshot and returns its path. Snapshots without an item list are returned unchanged.
func (sanitizer *Sanitizer) Sanitize(snapshotPath string) (string, error) {
	report, sanitizeError := sanitizer.SanitizeWithReport(snapshotPath)
	if sanitizeError != nil {
		return "", sanitizeError
	}
	return report.OutputPath, nil
}

// SanitizeWithReport behaves like Sanitize and reports the applied changes.
func (sanitizer *Sanitizer) SanitizeWithReport(snapshotPath string) (Report, error) {
	if len(strings.TrimSpace(snapshotPath)) == 0 {
		return Report{}, ErrSnapshotPathRequired
	}

	contents, readError := os.ReadFile(snapshotPath)
	if readError != nil {
		return Report{}, fmt.Errorf(readSnapshotErrorTemplateConstant, snapshotPath, readError)
	}

	var document any
	if parseError := json.Unmarshal(contents, &document); parseError != nil {
		return Report{}, fmt.Errorf(parseSnapshotErrorTemplateConstant, snapshotPath, parseError)
	}

	attributes, rawItems, hasItemList := splitItemList(contents)
	if !hasItemList {
		sanitizer.logger.Info(passThroughSnapshotMessageConstant, zap.String(logFieldInputPathConstant, snapshotPath))
		return Report{InputPath: snapshotPath, OutputPath: snapshotPath, PassThrough: true}, nil
	}

	report := Report{InputPath: snapshotPath, OutputPath: SanitizedPath(snapshotPath), ItemCount: len(rawItems)}
	sanitizedItems := make([]json.RawMessage, 0, len(rawItems))
	for itemIndex, rawItem := range rawItems {
		sanitizedItem, itemError := sanitizeItem(rawItem, &report)
		if itemError != nil {
			return Report{}, fmt.Errorf(sanitizeItemErrorTemplateConstant, itemIndex, itemError)
		}
		sanitizedItems = append(sanitizedItems, sanitizedItem)
	}

	encodedItems, encodeItemsError := vault.MarshalCompact(sanitizedItems)
	if encodeItemsError != nil {
		return Report{}, fmt.Errorf(encodeSnapshotErrorTemplateConstant, snapshotPath, encodeItemsError)
	}
	attributes[itemsAttributeConstant] = encodedItems

	encodedDocument, encodeError := vault.MarshalCompact(attributes)
	if encodeError != nil {
		return Report{}, fmt.Errorf(encodeSnapshotErrorTemplateConstant, snapshotPath, encodeError)
	}
	if writeError := os.WriteFile(report.OutputPath, encodedDocument, sanitizedFilePermissionsConstant); writeError != nil {
		return Report{}, fmt.Errorf(writeSnapshotErrorTemplateConstant, report.OutputPath, writeError)
	}

	sanitizer.logger.Info(
		sanitizedSnapshotMessageConstant,
		zap.String(logFieldInputPathConstant, report.InputPath),
		zap.String(logFieldOutputPathConstant, report.OutputPath),
		zap.Int(logFieldItemCountConstant, report.ItemCount),
		zap.Int(logFieldRemovedSecretsConstant, report.RemovedSecrets),
		zap.Int(logFieldCollectionsConstant, report.NormalizedCollections),
	)
	return report, nil
}

// SanitizedPath derives the output path. The original snapshot is never overwritten.
func SanitizedPath(snapshotPath string) string {
	if strings.HasSuffix(snapshotPath, jsonSuffixConstant) {
		return strings.TrimSuffix(snapshotPath, jsonSuffixConstant) + sanitizedSuffixConstant
	}
	return snapshotPath + sanitizedSuffixConstant
}

// CountItems returns the number of entries in the snapshot item list.
func CountItems(snapshotPath string) (int, error) {
	contents, readError := os.ReadFile(snapshotPath)
	if readError != nil {
		return 0, fmt.Errorf(readSnapshotErrorTemplateConstant, snapshotPath, readError)
	}
	_, rawItems, hasItemList := splitItemList(contents)
	if !hasItemList {
		return 0, nil
	}
	return len(rawItems), nil
}

func splitItemList(contents []byte) (map[string]json.RawMessage, []json.RawMessage, bool) {
	attributes := map[string]json.RawMessage{}
	if decodeError := json.Unmarshal(contents, &attributes); decodeError != nil || attributes == nil {
		return nil, nil, false
	}
	rawItemList, present := attributes[itemsAttributeConstant]
	if !present || !bytes.HasPrefix(bytes.TrimSpace(rawItemList), []byte("[")) {
		return nil, nil, false
	}
	var rawItems []json.RawMessage
	if decodeError := json.Unmarshal(rawItemList, &rawItems); decodeError != nil {
		return nil, nil, false
	}
	return attributes, rawItems, true
}

// sanitizeItem returns untouched items verbatim so their key order matches the export.
func sanitizeItem(rawItem json.RawMessage, report *Report) (json.RawMessage, error) {
	if !bytes.HasPrefix(bytes.TrimSpace(rawItem), []byte("{")) {
		return rawItem, nil
	}
	item, decodeError := vault.NewItem(rawItem)
	if decodeError != nil {
		return nil, decodeError
	}

	modified := false
	payload, payloadError := item.Payload()
	if payloadError == nil {
		if loginPayload, isLogin := payload.(vault.LoginPayload); isLogin {
			secret, secretPresent := loginPayload.TOTP()
			if secretPresent && !vault.IsImportableTOTPSecret(secret) {
				strippedPayload, stripError := loginPayload.WithoutTOTP()
				if stripError != nil {
					return nil, stripError
				}
				item = item.WithPayload(strippedPayload)
				report.RemovedSecrets++
				modified = true
			}
		}
	}

	if _, collectionsSet := item.CollectionIDs(); !collectionsSet {
		item = item.WithEmptyCollections()
		report.NormalizedCollections++
		modified = true
	}

	if !modified {
		return rawItem, nil
	}
	return vault.MarshalCompact(item)
}
