package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/vaultsync/internal/bwcli"
)

const (
	clientNotConfiguredMessageConstant     = "transfer driver vault client not configured"
	exhaustionErrorMessageConstant         = "no supported importer type"
	exhaustionErrorTemplateConstant        = "%s (tried %s)"
	formatListSeparatorConstant            = ", "
	exportCompletedMessageConstant         = "Export completed"
	formatsDiscoveredMessageConstant       = "Import format candidates"
	formatDiscoveryFallbackMessageConstant = "Format discovery returned no usable formats; using fallback list"
	importAttemptMessageConstant           = "Attempting import"
	importCompletedMessageConstant         = "Import completed"
	logFieldPathConstant                   = "path"
	logFieldOrganizationConstant           = "organization_id"
	logFieldFormatConstant                 = "format"
	logFieldCandidatesConstant             = "candidates"
	logFieldSideConstant                   = "side"
)

// ErrClientNotConfigured indicates the driver was constructed without a vault client.
var ErrClientNotConfigured = errors.New(clientNotConfiguredMessageConstant)

// ExhaustionError reports that every candidate importer format failed.
type ExhaustionError struct {
	AttemptedFormats FormatCandidates
	Failures         []error
}

// Error lists the attempted formats.
func (exhaustionError ExhaustionError) Error() string {
	if len(exhaustionError.AttemptedFormats) == 0 {
		return exhaustionErrorMessageConstant
	}
	return fmt.Sprintf(exhaustionErrorTemplateConstant, exhaustionErrorMessageConstant, strings.Join(exhaustionError.AttemptedFormats, formatListSeparatorConstant))
}

// Unwrap exposes the individual attempt failures.
func (exhaustionError ExhaustionError) Unwrap() []error {
	return exhaustionError.Failures
}

// VaultTransferClient is the subset of bwcli.Client used by the driver.
type VaultTransferClient interface {
	Export(executionContext context.Context, environment bwcli.CommandEnvironment, outputPath string, organizationID string) error
	ImportFormats(executionContext context.Context, environment bwcli.CommandEnvironment) (string, error)
	Import(executionContext context.Context, environment bwcli.CommandEnvironment, format string, inputPath string, organizationID string) error
}

// Session is the per-account context a transfer runs under.
type Session interface {
	Label() string
	CommandEnvironment() bwcli.CommandEnvironment
}

// Driver exports and imports vault snapshots.
type Driver struct {
	logger *zap.Logger
	client VaultTransferClient
}

// NewDriver constructs a Driver.
func NewDriver(logger *zap.Logger, client VaultTransferClient) (*Driver, error) {
	if client == nil {
		return nil, ErrClientNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{logger: logger, client: client}, nil
}

// Export writes the full JSON snapshot of the session's vault to outputPath.
func (driver *Driver) Export(executionContext context.Context, session Session, outputPath string, organizationID string) error {
	if exportError := driver.client.Export(executionContext, session.CommandEnvironment(), outputPath, organizationID); exportError != nil {
		return exportError
	}
	driver.sessionLogger(session).Info(exportCompletedMessageConstant, zap.String(logFieldPathConstant, outputPath), zap.String(logFieldOrganizationConstant, organizationID))
	return nil
}

// DiscoverFormats returns the ordered importer candidates. A failed or empty discovery selects the fallback list.
func (driver *Driver) DiscoverFormats(executionContext context.Context, session Session) FormatCandidates {
	logger := driver.sessionLogger(session)
	listing, discoveryError := driver.client.ImportFormats(executionContext, session.CommandEnvironment())
	var discovered []string
	if discoveryError != nil {
		_ = bwcli.ApplyFailurePolicy(logger, bwcli.OperationImportFormats, discoveryError)
	} else {
		discovered = listedFormats(listing)
	}
	if len(discovered) == 0 {
		fallbackFields := []zap.Field{zap.Strings(logFieldCandidatesConstant, FallbackFormats())}
		if discoveryError != nil {
			fallbackFields = append(fallbackFields, zap.Error(discoveryError))
		}
		logger.Warn(formatDiscoveryFallbackMessageConstant, fallbackFields...)
		return FallbackFormats()
	}

	candidates := orderFormats(discovered)
	logger.Debug(formatsDiscoveredMessageConstant, zap.Strings(logFieldCandidatesConstant, candidates))
	return candidates
}

// ImportAuto tries each candidate format in order and returns the first that succeeds.
func (driver *Driver) ImportAuto(executionContext context.Context, session Session, inputPath string, organizationID string) (string, error) {
	logger := driver.sessionLogger(session)
	candidates := driver.DiscoverFormats(executionContext, session)

	attempted := make(FormatCandidates, 0, len(candidates))
	failures := make([]error, 0, len(candidates))
	for _, format := range candidates {
		if contextError := executionContext.Err(); contextError != nil {
			return "", contextError
		}
		attempted = append(attempted, format)
		logger.Debug(importAttemptMessageConstant, zap.String(logFieldFormatConstant, format), zap.String(logFieldPathConstant, inputPath))

		importError := driver.client.Import(executionContext, session.CommandEnvironment(), format, inputPath, organizationID)
		if importError == nil {
			logger.Info(importCompletedMessageConstant, zap.String(logFieldFormatConstant, format))
			return format, nil
		}
		if policyError := bwcli.ApplyFailurePolicy(logger, bwcli.OperationImport, importError); policyError != nil {
			return "", policyError
		}
		failures = append(failures, importError)
	}
	return "", ExhaustionError{AttemptedFormats: attempted, Failures: failures}
}

func (driver *Driver) sessionLogger(session Session) *zap.Logger {
	return driver.logger.With(zap.String(logFieldSideConstant, session.Label()))
}
