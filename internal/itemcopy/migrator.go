package itemcopy

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/temirov/vaultsync/internal/bwcli"
	"github.com/temirov/vaultsync/internal/vault"
)

const (
	clientNotConfiguredMessageConstant = "item migrator vault client not configured"
	itemErrorTemplateConstant          = "copy item %s (%s): %v"
	payloadEncodingTemplateConstant    = "encode creation payload for item %s: %v"
	itemsListedMessageConstant         = "Listed source items"
	itemCopiedMessageConstant          = "Copied item"
	itemSkippedMessageConstant         = "Item copy failed; continuing"
	copyCompletedMessageConstant       = "Item copy completed"
	logFieldItemIdentifierConstant     = "item_id"
	logFieldItemNameConstant           = "item_name"
	logFieldItemCountConstant          = "items"
	logFieldCopiedCountConstant        = "copied"
	logFieldFailedCountConstant        = "failed"
	logFieldOrganizationConstant       = "organization_id"
	logFieldSideConstant               = "side"
)

// ErrClientNotConfigured indicates the migrator was constructed without a vault client.
var ErrClientNotConfigured = errors.New(clientNotConfiguredMessageConstant)

// ItemError reports the failure to copy one item.
type ItemError struct {
	ItemID   string
	ItemName string
	Cause    error
}

// Error describes the failed item.
func (itemError ItemError) Error() string {
	return fmt.Sprintf(itemErrorTemplateConstant, itemError.ItemID, itemError.ItemName, itemError.Cause)
}

// Unwrap exposes the underlying cause.
func (itemError ItemError) Unwrap() error {
	return itemError.Cause
}

// PayloadEncodingError indicates the creation payload could not be serialized.
type PayloadEncodingError struct {
	ItemID string
	Cause  error
}

// Error describes the encoding failure.
func (encodingError PayloadEncodingError) Error() string {
	return fmt.Sprintf(payloadEncodingTemplateConstant, encodingError.ItemID, encodingError.Cause)
}

// Unwrap exposes the underlying cause.
func (encodingError PayloadEncodingError) Unwrap() error {
	return encodingError.Cause
}

// VaultItemClient is the subset of bwcli.Client used to copy items.
type VaultItemClient interface {
	ListItems(executionContext context.Context, environment bwcli.CommandEnvironment) ([]vault.ItemReference, error)
	GetItem(executionContext context.Context, environment bwcli.CommandEnvironment, itemID string) (vault.Item, error)
	Encode(executionContext context.Context, environment bwcli.CommandEnvironment, payload []byte) (string, error)
	CreateItem(executionContext context.Context, environment bwcli.CommandEnvironment, encodedPayload string) error
}

// Session is the per-account context items are read from or written to.
type Session interface {
	Label() string
	CommandEnvironment() bwcli.CommandEnvironment
}

// Options tune a bulk copy.
type Options struct {
	TargetOrganizationID string
	ContinueOnError      bool
}

// Summary reports the outcome of a bulk copy.
type Summary struct {
	Listed int
	Copied int
	Failed int
}

// Migrator copies items one at a time from a source session into a target session.
type Migrator struct {
	logger *zap.Logger
	client VaultItemClient
}

// NewMigrator constructs a Migrator.
func NewMigrator(logger *zap.Logger, client VaultItemClient) (*Migrator, error) {
	if client == nil {
		return nil, ErrClientNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Migrator{logger: logger, client: client}, nil
}

// CopyItems copies every source item sequentially. The first failure stops the copy unless
// ContinueOnError is set, in which case all failures are joined into the returned error.
func (migrator *Migrator) CopyItems(executionContext context.Context, source Session, target Session, options Options) (Summary, error) {
	references, listError := migrator.client.ListItems(executionContext, source.CommandEnvironment())
	if listError != nil {
		return Summary{}, listError
	}
	summary := Summary{Listed: len(references)}
	migrator.logger.Info(itemsListedMessageConstant, zap.String(logFieldSideConstant, source.Label()), zap.Int(logFieldItemCountConstant, summary.Listed))

	var failures []error
	for _, reference := range references {
		if contextError := executionContext.Err(); contextError != nil {
			return summary, errors.Join(append(failures, contextError)...)
		}
		copyError := migrator.CopyItem(executionContext, source, target, reference, options.TargetOrganizationID)
		if copyError == nil {
			summary.Copied++
			continue
		}
		summary.Failed++
		if !options.ContinueOnError {
			return summary, copyError
		}
		migrator.logger.Warn(itemSkippedMessageConstant, zap.String(logFieldItemIdentifierConstant, reference.ID), zap.Error(copyError))
		failures = append(failures, copyError)
	}

	migrator.logger.Info(copyCompletedMessageConstant, zap.Int(logFieldCopiedCountConstant, summary.Copied), zap.Int(logFieldFailedCountConstant, summary.Failed), zap.String(logFieldOrganizationConstant, options.TargetOrganizationID))
	return summary, errors.Join(failures...)
}

// CopyItem copies a single item: read it from the source, build the creation payload, encode it and create it in the target.
func (migrator *Migrator) CopyItem(executionContext context.Context, source Session, target Session, reference vault.ItemReference, targetOrganizationID string) error {
	item, getError := migrator.client.GetItem(executionContext, source.CommandEnvironment(), reference.ID)
	if getError != nil {
		return ItemError{ItemID: reference.ID, ItemName: reference.Name, Cause: getError}
	}

	createPayload, payloadError := NewCreatePayload(item, targetOrganizationID)
	if payloadError != nil {
		return ItemError{ItemID: reference.ID, ItemName: reference.Name, Cause: payloadError}
	}
	serializedPayload, marshalError := vault.MarshalCompact(createPayload)
	if marshalError != nil {
		return ItemError{ItemID: reference.ID, ItemName: reference.Name, Cause: PayloadEncodingError{ItemID: reference.ID, Cause: marshalError}}
	}

	targetEnvironment := target.CommandEnvironment()
	encodedPayload, encodeError := migrator.client.Encode(executionContext, targetEnvironment, serializedPayload)
	if encodeError != nil {
		return ItemError{ItemID: reference.ID, ItemName: reference.Name, Cause: encodeError}
	}
	if createError := migrator.client.CreateItem(executionContext, targetEnvironment, encodedPayload); createError != nil {
		return ItemError{ItemID: reference.ID, ItemName: reference.Name, Cause: createError}
	}

	migrator.logger.Debug(itemCopiedMessageConstant, zap.String(logFieldSideConstant, target.Label()), zap.String(logFieldItemIdentifierConstant, reference.ID), zap.String(logFieldItemNameConstant, reference.Name))
	return nil
}
