package session

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/temirov/vaultsync/internal/bwcli"
)

const (
	stateDirectoryPermissionsConstant     = 0o700
	clientNotConfiguredMessageConstant    = "session manager vault client not configured"
	stateDirectoryRequiredMessageConstant = "session state directory required"
	resetDirectoryErrorTemplateConstant   = "reset state directory %s: %w"
	serverConfiguredMessageConstant       = "Configured vault server"
	loggingInMessageConstant              = "Logging in with API key"
	unlockingMessageConstant              = "Unlocking vault"
	statusAfterLoginMessageConstant       = "Status after login"
	statusAfterUnlockMessageConstant      = "Status after unlock"
	sessionEstablishedMessageConstant     = "Session established"
	loggedOutMessageConstant              = "Logged out"
	logFieldSideConstant                  = "side"
	logFieldHostConstant                  = "host"
	logFieldStatusConstant                = "status"
	logFieldStateDirectoryConstant        = "state_directory"
	defaultServerLabelConstant            = "default"
)

var (
	// ErrClientNotConfigured indicates the manager was constructed without a vault client.
	ErrClientNotConfigured = errors.New(clientNotConfiguredMessageConstant)
	// ErrStateDirectoryRequired indicates a request without a state directory.
	ErrStateDirectoryRequired = errors.New(stateDirectoryRequiredMessageConstant)
)

// VaultSessionClient is the subset of bwcli.Client used to authenticate sessions.
type VaultSessionClient interface {
	ConfigureServer(executionContext context.Context, environment bwcli.CommandEnvironment, host string) error
	LoginWithAPIKey(executionContext context.Context, environment bwcli.CommandEnvironment) error
	Unlock(executionContext context.Context, environment bwcli.CommandEnvironment, passwordVariable string) (string, error)
	Status(executionContext context.Context, environment bwcli.CommandEnvironment) (bwcli.VaultStatus, error)
	Logout(executionContext context.Context, environment bwcli.CommandEnvironment) error
}

// FileSystem exposes the directory operations used to reset session state.
type FileSystem interface {
	RemoveAll(path string) error
	MkdirAll(path string, permissions fs.FileMode) error
}

// OSFileSystem implements FileSystem with the os package.
type OSFileSystem struct{}

// RemoveAll removes the path and any children.
func (OSFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// MkdirAll creates the directory and any parents.
func (OSFileSystem) MkdirAll(path string, permissions fs.FileMode) error {
	return os.MkdirAll(path, permissions)
}

// EnvironmentLookup resolves a variable from the process environment.
type EnvironmentLookup func(name string) (string, bool)

// ManagerDependencies enumerates collaborators required by Manager.
type ManagerDependencies struct {
	Logger            *zap.Logger
	Client            VaultSessionClient
	FileSystem        FileSystem
	EnvironmentLookup EnvironmentLookup
}

// Request describes one session to establish. ForeignEnvironmentKeys and ForeignEnvironmentValues
// name the inherited variables, and the secret values, that the session's processes must not see.
type Request struct {
	Label                    string
	StateDirectory           string
	Host                     string
	ClientID                 string
	ClientSecret             string
	PasswordVariable         string
	ForeignEnvironmentKeys   []string
	ForeignEnvironmentValues []string
}

// Manager establishes and tears down isolated vault sessions.
type Manager struct {
	logger            *zap.Logger
	client            VaultSessionClient
	fileSystem        FileSystem
	environmentLookup EnvironmentLookup
}

// NewManager validates dependencies and constructs a Manager.
func NewManager(dependencies ManagerDependencies) (*Manager, error) {
	if dependencies.Client == nil {
		return nil, ErrClientNotConfigured
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fileSystem := dependencies.FileSystem
	if fileSystem == nil {
		fileSystem = OSFileSystem{}
	}
	environmentLookup := dependencies.EnvironmentLookup
	if environmentLookup == nil {
		environmentLookup = os.LookupEnv
	}
	return &Manager{logger: logger, client: dependencies.Client, fileSystem: fileSystem, environmentLookup: environmentLookup}, nil
}

// Establish authenticates and unlocks one session. Safe to call concurrently for different sides.
func (manager *Manager) Establish(executionContext context.Context, request Request) (*Session, error) {
	logger := manager.logger.With(zap.String(logFieldSideConstant, request.Label))

	if len(strings.TrimSpace(request.ClientID)) == 0 {
		return nil, ConfigurationError{Side: request.Label, Variable: ClientIDVariableFor(request.Label)}
	}
	if len(strings.TrimSpace(request.ClientSecret)) == 0 {
		return nil, ConfigurationError{Side: request.Label, Variable: ClientSecretVariableFor(request.Label)}
	}
	if len(strings.TrimSpace(request.StateDirectory)) == 0 {
		return nil, ErrStateDirectoryRequired
	}

	if resetError := manager.resetStateDirectory(request.StateDirectory); resetError != nil {
		return nil, resetError
	}

	session := &Session{
		label:          request.Label,
		stateDirectory: request.StateDirectory,
		overlay: map[string]string{
			StateDirectoryVariable: request.StateDirectory,
			ClientIDVariable:       request.ClientID,
			ClientSecretVariable:   request.ClientSecret,
		},
		exclusions:      ambientExclusions(request.ForeignEnvironmentKeys),
		valueExclusions: manager.foreignValues(request),
		state:           StateUnauthenticated,
	}

	trimmedHost := strings.TrimSpace(request.Host)
	if len(trimmedHost) > 0 {
		if configureError := manager.client.ConfigureServer(executionContext, session.CommandEnvironment(), trimmedHost); configureError != nil {
			return nil, configureError
		}
		logger.Info(serverConfiguredMessageConstant, zap.String(logFieldHostConstant, trimmedHost))
	} else {
		logger.Info(serverConfiguredMessageConstant, zap.String(logFieldHostConstant, defaultServerLabelConstant))
	}

	passwordVariable := strings.TrimSpace(request.PasswordVariable)
	if len(passwordVariable) == 0 {
		passwordVariable = PasswordVariableFor(request.Label)
	}
	if passwordValue, present := manager.environmentLookup(passwordVariable); !present || len(passwordValue) == 0 {
		return nil, ConfigurationError{Side: request.Label, Variable: passwordVariable}
	}

	logger.Info(loggingInMessageConstant)
	if loginError := manager.client.LoginWithAPIKey(executionContext, session.CommandEnvironment()); loginError != nil {
		return nil, loginError
	}
	session.state = StateLoggedIn
	manager.logStatus(executionContext, logger, session, statusAfterLoginMessageConstant)

	logger.Info(unlockingMessageConstant)
	sessionToken, unlockError := manager.client.Unlock(executionContext, session.CommandEnvironment(), passwordVariable)
	if unlockError != nil {
		return nil, unlockError
	}
	session.overlay[SessionTokenVariable] = sessionToken
	session.state = StateUnlocked
	manager.logStatus(executionContext, logger, session, statusAfterUnlockMessageConstant)

	logger.Info(sessionEstablishedMessageConstant, zap.String(logFieldStateDirectoryConstant, session.stateDirectory))
	return session, nil
}

// foreignValues combines the request's foreign values with the current values of its foreign variables,
// so a foreign secret is scrubbed even when it is inherited under an unrelated name. Values the side
// itself uses are kept, since both accounts may share a password or an API key.
func (manager *Manager) foreignValues(request Request) []string {
	values := append([]string{}, request.ForeignEnvironmentValues...)
	for _, foreignKey := range request.ForeignEnvironmentKeys {
		trimmedKey := strings.TrimSpace(foreignKey)
		if len(trimmedKey) == 0 || isPatternKey(trimmedKey) {
			continue
		}
		if foreignValue, present := manager.environmentLookup(trimmedKey); present {
			values = append(values, foreignValue)
		}
	}

	ownValues := []string{request.ClientID, request.ClientSecret}
	ownPasswordVariable := strings.TrimSpace(request.PasswordVariable)
	if len(ownPasswordVariable) == 0 {
		ownPasswordVariable = PasswordVariableFor(request.Label)
	}
	if ownPassword, present := manager.environmentLookup(ownPasswordVariable); present {
		ownValues = append(ownValues, ownPassword)
	}
	return withoutValues(uniqueNonEmpty(values...), ownValues...)
}

// EstablishPair establishes the source and target sessions concurrently. When either side fails the
// other is logged out and the failure is returned as a SideError.
func (manager *Manager) EstablishPair(executionContext context.Context, sourceRequest Request, targetRequest Request) (*Session, *Session, error) {
	var sourceSession, targetSession *Session
	group, groupContext := errgroup.WithContext(executionContext)
	group.Go(func() error {
		established, establishError := manager.Establish(groupContext, sourceRequest)
		if establishError != nil {
			return SideError{Side: sourceRequest.Label, Cause: establishError}
		}
		sourceSession = established
		return nil
	})
	group.Go(func() error {
		established, establishError := manager.Establish(groupContext, targetRequest)
		if establishError != nil {
			return SideError{Side: targetRequest.Label, Cause: establishError}
		}
		targetSession = established
		return nil
	})

	if waitError := group.Wait(); waitError != nil {
		cleanupContext := context.WithoutCancel(executionContext)
		manager.Logout(cleanupContext, sourceSession)
		manager.Logout(cleanupContext, targetSession)
		return nil, nil, waitError
	}
	return sourceSession, targetSession, nil
}

// Logout ends the session. Failures are diagnostic only.
func (manager *Manager) Logout(executionContext context.Context, session *Session) {
	if session == nil || session.state == StateLoggedOut {
		return
	}
	logger := manager.logger.With(zap.String(logFieldSideConstant, session.label))
	logoutError := manager.client.Logout(executionContext, session.CommandEnvironment())
	session.state = StateLoggedOut
	if logoutError != nil {
		_ = bwcli.ApplyFailurePolicy(logger, bwcli.OperationLogout, logoutError)
		return
	}
	logger.Info(loggedOutMessageConstant)
}

func (manager *Manager) logStatus(executionContext context.Context, logger *zap.Logger, session *Session, message string) {
	status, statusError := manager.client.Status(executionContext, session.CommandEnvironment())
	if statusError != nil {
		_ = bwcli.ApplyFailurePolicy(logger, bwcli.OperationStatus, statusError)
		return
	}
	logger.Info(message, zap.String(logFieldStatusConstant, status.Status))
}

func (manager *Manager) resetStateDirectory(stateDirectory string) error {
	if removeError := manager.fileSystem.RemoveAll(stateDirectory); removeError != nil {
		return fmt.Errorf(resetDirectoryErrorTemplateConstant, stateDirectory, removeError)
	}
	if createError := manager.fileSystem.MkdirAll(stateDirectory, stateDirectoryPermissionsConstant); createError != nil {
		return fmt.Errorf(resetDirectoryErrorTemplateConstant, stateDirectory, createError)
	}
	return nil
}
