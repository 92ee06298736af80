package migration

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-version"
	"go.uber.org/zap"

	"github.com/temirov/vaultsync/internal/bwcli"
	"github.com/temirov/vaultsync/internal/session"
	"github.com/temirov/vaultsync/internal/snapshot"
	"github.com/temirov/vaultsync/internal/transfer"
	"github.com/temirov/vaultsync/internal/vault"
)

const (
	exportFileNameConstant              = "export.json"
	workRootPermissionsConstant         = 0o700
	toolCheckerMissingMessageConstant   = "migration tool checker not configured"
	sessionsMissingMessageConstant      = "migration session establisher not configured"
	transferMissingMessageConstant      = "migration snapshot transfer not configured"
	sanitizerMissingMessageConstant     = "migration snapshot sanitizer not configured"
	runStartedMessageConstant           = "Starting vault synchronization"
	toolVersionMessageConstant          = "Vault CLI available"
	toolVersionUnparsedMessageConstant  = "Unable to parse vault CLI version"
	toolVersionOutdatedMessageConstant  = "Vault CLI is older than the minimum supported version"
	exportingMessageConstant            = "Exporting vault"
	importingMessageConstant            = "Importing vault"
	sanitizeFallbackMessageConstant     = "Snapshot sanitization failed; importing the original snapshot"
	verificationSkippedMessageConstant  = "Unable to verify imported item count"
	verificationMismatchMessageConstant = "Target vault holds fewer items than the snapshot"
	verificationMatchedMessageConstant  = "Imported item count verified"
	commandSummaryMessageConstant       = "Vault CLI command summary"
	runCompletedMessageConstant         = "Sync completed"
	logFieldRunIdentifierConstant       = "run_id"
	logFieldSideConstant                = "side"
	logFieldVersionConstant             = "version"
	logFieldMinimumVersionConstant      = "minimum_version"
	logFieldWorkRootConstant            = "work_root"
	logFieldPathConstant                = "path"
	logFieldOrganizationConstant        = "organization_id"
	logFieldFormatConstant              = "format"
	logFieldStageConstant               = "stage"
	logFieldSnapshotCountConstant       = "snapshot_items"
	logFieldTargetCountConstant         = "target_items"
	logFieldStartedConstant             = "started"
	logFieldSucceededConstant           = "succeeded"
	logFieldFailedConstant              = "failed"
)

var (
	// ErrToolCheckerNotConfigured indicates a missing tool probe dependency.
	ErrToolCheckerNotConfigured = errors.New(toolCheckerMissingMessageConstant)
	// ErrSessionsNotConfigured indicates a missing session establisher dependency.
	ErrSessionsNotConfigured = errors.New(sessionsMissingMessageConstant)
	// ErrTransferNotConfigured indicates a missing transfer dependency.
	ErrTransferNotConfigured = errors.New(transferMissingMessageConstant)
	// ErrSanitizerNotConfigured indicates a missing sanitizer dependency.
	ErrSanitizerNotConfigured = errors.New(sanitizerMissingMessageConstant)
)

// ToolChecker reports the vault CLI version.
type ToolChecker interface {
	Version(executionContext context.Context) (string, error)
}

// SessionEstablisher authenticates and tears down sessions.
type SessionEstablisher interface {
	EstablishPair(executionContext context.Context, sourceRequest session.Request, targetRequest session.Request) (*session.Session, *session.Session, error)
	Logout(executionContext context.Context, established *session.Session)
}

// SnapshotTransfer exports and imports snapshots.
type SnapshotTransfer interface {
	Export(executionContext context.Context, transferSession transfer.Session, outputPath string, organizationID string) error
	ImportAuto(executionContext context.Context, transferSession transfer.Session, inputPath string, organizationID string) (string, error)
}

// SnapshotSanitizer prepares a snapshot for cross-account import.
type SnapshotSanitizer interface {
	SanitizeWithReport(snapshotPath string) (snapshot.Report, error)
}

// ItemLister enumerates the items visible to a session.
type ItemLister interface {
	ListItems(executionContext context.Context, environment bwcli.CommandEnvironment) ([]vault.ItemReference, error)
}

// CommandStatistics reports counts of spawned vault CLI processes.
type CommandStatistics interface {
	Snapshot() (int, int, int)
}

// DirectoryCreator creates the work root.
type DirectoryCreator interface {
	MkdirAll(path string, permissions fs.FileMode) error
}

// Dependencies enumerates collaborators required by Service.
type Dependencies struct {
	Logger            *zap.Logger
	ToolChecker       ToolChecker
	Sessions          SessionEstablisher
	Transfer          SnapshotTransfer
	Sanitizer         SnapshotSanitizer
	ItemLister        ItemLister
	CommandStatistics CommandStatistics
	FileSystem        DirectoryCreator
	EnvironmentLookup session.EnvironmentLookup
}

// Options configure a synchronization run.
type Options struct {
	RunID                string
	WorkRoot             string
	Source               session.Credentials
	Target               session.Credentials
	TargetOrganizationID string
	VerifyItemCount      bool
	MinimumToolVersion   string
}

// Result summarizes a completed run.
type Result struct {
	RunID          string
	FinalStage     Stage
	ToolVersion    string
	UsedFormat     string
	ExportPath     string
	ImportedPath   string
	SanitizeReport snapshot.Report
	VisitedStages  []Stage
}

// Service orchestrates a full vault synchronization.
type Service struct {
	logger            *zap.Logger
	toolChecker       ToolChecker
	sessions          SessionEstablisher
	transfer          SnapshotTransfer
	sanitizer         SnapshotSanitizer
	itemLister        ItemLister
	commandStatistics CommandStatistics
	fileSystem        DirectoryCreator
	environmentLookup session.EnvironmentLookup
}

// NewService validates dependencies and constructs a Service.
func NewService(dependencies Dependencies) (*Service, error) {
	if dependencies.ToolChecker == nil {
		return nil, ErrToolCheckerNotConfigured
	}
	if dependencies.Sessions == nil {
		return nil, ErrSessionsNotConfigured
	}
	if dependencies.Transfer == nil {
		return nil, ErrTransferNotConfigured
	}
	if dependencies.Sanitizer == nil {
		return nil, ErrSanitizerNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fileSystem := dependencies.FileSystem
	if fileSystem == nil {
		fileSystem = session.OSFileSystem{}
	}
	environmentLookup := dependencies.EnvironmentLookup
	if environmentLookup == nil {
		environmentLookup = os.LookupEnv
	}

	return &Service{
		logger:            logger,
		toolChecker:       dependencies.ToolChecker,
		sessions:          dependencies.Sessions,
		transfer:          dependencies.Transfer,
		sanitizer:         dependencies.Sanitizer,
		itemLister:        dependencies.ItemLister,
		commandStatistics: dependencies.CommandStatistics,
		fileSystem:        fileSystem,
		environmentLookup: environmentLookup,
	}, nil
}

// Run executes one synchronization: tool check, concurrent session establishment, export,
// sanitization, import and logout. Failures are returned as StageError values carrying the exit code.
func (service *Service) Run(executionContext context.Context, options Options) (Result, error) {
	runID := strings.TrimSpace(options.RunID)
	if len(runID) == 0 {
		runID = uuid.NewString()
	}
	workRoot := strings.TrimSpace(options.WorkRoot)
	if len(workRoot) == 0 {
		workRoot = session.DefaultWorkRoot
	}
	logger := service.logger.With(zap.String(logFieldRunIdentifierConstant, runID))
	machine := newStageMachine()
	result := Result{RunID: runID, FinalStage: StageStart}
	var sourceSession, targetSession *session.Session

	fail := func(stageError StageError) (Result, error) {
		cleanupContext := context.WithoutCancel(executionContext)
		service.sessions.Logout(cleanupContext, sourceSession)
		service.sessions.Logout(cleanupContext, targetSession)
		machine.fail()
		result.FinalStage = StageFailed
		result.VisitedStages = machine.visitedStages()
		service.logCommandSummary(logger)
		return result, stageError
	}

	sourceRequest, targetRequest := session.NewRequestPair(workRoot, options.Source, options.Target)
	if validationError := session.ValidateRequests(service.environmentLookup, sourceRequest, targetRequest); validationError != nil {
		var configurationError session.ConfigurationError
		errors.As(validationError, &configurationError)
		return fail(StageError{Stage: StageStart, Code: ExitCodeMissingConfiguration, Side: configurationError.Side, Cause: validationError})
	}
	logger.Info(runStartedMessageConstant, zap.String(logFieldWorkRootConstant, workRoot))

	toolVersion, versionError := service.toolChecker.Version(executionContext)
	if versionError != nil {
		return fail(StageError{Stage: StageToolChecked, Code: ExitCodeToolUnavailable, Cause: ToolUnavailableError{Cause: versionError}})
	}
	result.ToolVersion = toolVersion
	service.logToolVersion(logger, toolVersion, options.MinimumToolVersion)
	if advanceError := machine.advance(StageToolChecked); advanceError != nil {
		return fail(StageError{Stage: StageToolChecked, Code: ExitCodeOperationalFailure, Cause: advanceError})
	}

	if createError := service.fileSystem.MkdirAll(workRoot, workRootPermissionsConstant); createError != nil {
		return fail(StageError{Stage: StageSessionsEstablished, Code: ExitCodeOperationalFailure, Cause: createError})
	}
	establishedSource, establishedTarget, establishError := service.sessions.EstablishPair(executionContext, sourceRequest, targetRequest)
	if establishError != nil {
		return fail(sessionStageError(establishError))
	}
	sourceSession, targetSession = establishedSource, establishedTarget
	if advanceError := machine.advance(StageSessionsEstablished); advanceError != nil {
		return fail(StageError{Stage: StageSessionsEstablished, Code: ExitCodeOperationalFailure, Cause: advanceError})
	}

	exportPath := filepath.Join(workRoot, exportFileNameConstant)
	result.ExportPath = exportPath
	logger.Info(exportingMessageConstant, zap.String(logFieldSideConstant, session.LabelSource), zap.String(logFieldPathConstant, exportPath))
	if exportError := service.transfer.Export(executionContext, sourceSession, exportPath, ""); exportError != nil {
		return fail(StageError{Stage: StageExported, Code: ExitCodeOperationalFailure, Side: session.LabelSource, Cause: exportError})
	}
	if advanceError := machine.advance(StageExported); advanceError != nil {
		return fail(StageError{Stage: StageExported, Code: ExitCodeOperationalFailure, Cause: advanceError})
	}

	importPath := exportPath
	sanitizeReport, sanitizeError := service.sanitizer.SanitizeWithReport(exportPath)
	if sanitizeError != nil {
		logger.Warn(sanitizeFallbackMessageConstant, zap.String(logFieldPathConstant, exportPath), zap.Error(sanitizeError))
	} else {
		importPath = sanitizeReport.OutputPath
		result.SanitizeReport = sanitizeReport
	}
	result.ImportedPath = importPath
	if advanceError := machine.advance(StageSanitized); advanceError != nil {
		return fail(StageError{Stage: StageSanitized, Code: ExitCodeOperationalFailure, Cause: advanceError})
	}

	logger.Info(importingMessageConstant, zap.String(logFieldSideConstant, session.LabelTarget), zap.String(logFieldPathConstant, importPath), zap.String(logFieldOrganizationConstant, options.TargetOrganizationID))
	usedFormat, importError := service.transfer.ImportAuto(executionContext, targetSession, importPath, options.TargetOrganizationID)
	if importError != nil {
		return fail(StageError{Stage: StageImported, Code: ExitCodeOperationalFailure, Side: session.LabelTarget, Cause: importError})
	}
	result.UsedFormat = usedFormat
	if advanceError := machine.advance(StageImported); advanceError != nil {
		return fail(StageError{Stage: StageImported, Code: ExitCodeOperationalFailure, Cause: advanceError})
	}

	if options.VerifyItemCount {
		service.verifyItemCount(executionContext, logger, targetSession, importPath, sanitizeReport, sanitizeError == nil)
	}

	service.sessions.Logout(executionContext, sourceSession)
	service.sessions.Logout(executionContext, targetSession)
	if advanceError := machine.advance(StageLoggedOut); advanceError != nil {
		return fail(StageError{Stage: StageLoggedOut, Code: ExitCodeOperationalFailure, Cause: advanceError})
	}
	if advanceError := machine.advance(StageDone); advanceError != nil {
		return fail(StageError{Stage: StageDone, Code: ExitCodeOperationalFailure, Cause: advanceError})
	}

	result.FinalStage = StageDone
	result.VisitedStages = machine.visitedStages()
	service.logCommandSummary(logger)
	logger.Info(runCompletedMessageConstant, zap.String(logFieldFormatConstant, usedFormat), zap.String(logFieldStageConstant, string(result.FinalStage)))
	return result, nil
}

func sessionStageError(cause error) StageError {
	stageError := StageError{Stage: StageSessionsEstablished, Code: ExitCodeOperationalFailure, Cause: cause}
	var sideError session.SideError
	if errors.As(cause, &sideError) {
		stageError.Side = sideError.Side
		stageError.Cause = sideError.Cause
	}
	var configurationError session.ConfigurationError
	if errors.As(cause, &configurationError) {
		stageError.Code = configurationError.ExitCode()
	}
	return stageError
}

func (service *Service) logToolVersion(logger *zap.Logger, reportedVersion string, minimumVersion string) {
	logger.Info(toolVersionMessageConstant, zap.String(logFieldVersionConstant, reportedVersion))
	if len(strings.TrimSpace(minimumVersion)) == 0 {
		return
	}
	parsedVersion, parseError := version.NewVersion(strings.TrimSpace(reportedVersion))
	if parseError != nil {
		logger.Debug(toolVersionUnparsedMessageConstant, zap.String(logFieldVersionConstant, reportedVersion), zap.Error(parseError))
		return
	}
	parsedMinimum, minimumError := version.NewVersion(strings.TrimSpace(minimumVersion))
	if minimumError != nil {
		logger.Debug(toolVersionUnparsedMessageConstant, zap.String(logFieldMinimumVersionConstant, minimumVersion), zap.Error(minimumError))
		return
	}
	if parsedVersion.LessThan(parsedMinimum) {
		logger.Warn(toolVersionOutdatedMessageConstant, zap.String(logFieldVersionConstant, parsedVersion.String()), zap.String(logFieldMinimumVersionConstant, parsedMinimum.String()))
	}
}

// verifyItemCount compares the target item count with the snapshot. Mismatches are reported, never fatal.
func (service *Service) verifyItemCount(executionContext context.Context, logger *zap.Logger, targetSession *session.Session, importPath string, report snapshot.Report, reportAvailable bool) {
	targetLogger := logger.With(zap.String(logFieldSideConstant, session.LabelTarget))
	if service.itemLister == nil {
		return
	}
	snapshotCount := report.ItemCount
	if !reportAvailable || report.PassThrough {
		countedItems, countError := snapshot.CountItems(importPath)
		if countError != nil {
			targetLogger.Warn(verificationSkippedMessageConstant, zap.Error(countError))
			return
		}
		snapshotCount = countedItems
	}
	references, listError := service.itemLister.ListItems(executionContext, targetSession.CommandEnvironment())
	if listError != nil {
		targetLogger.Warn(verificationSkippedMessageConstant, zap.Error(listError))
		return
	}
	if len(references) < snapshotCount {
		targetLogger.Warn(verificationMismatchMessageConstant, zap.Int(logFieldSnapshotCountConstant, snapshotCount), zap.Int(logFieldTargetCountConstant, len(references)))
		return
	}
	targetLogger.Info(verificationMatchedMessageConstant, zap.Int(logFieldSnapshotCountConstant, snapshotCount), zap.Int(logFieldTargetCountConstant, len(references)))
}

func (service *Service) logCommandSummary(logger *zap.Logger) {
	if service.commandStatistics == nil {
		return
	}
	started, succeeded, failed := service.commandStatistics.Snapshot()
	logger.Debug(commandSummaryMessageConstant, zap.Int(logFieldStartedConstant, started), zap.Int(logFieldSucceededConstant, succeeded), zap.Int(logFieldFailedConstant, failed))
}
