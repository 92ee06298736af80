package bwcli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/temirov/vaultsync/internal/execshell"
	"github.com/temirov/vaultsync/internal/vault"
)

const (
	versionFlagConstant                     = "--version"
	configSubcommandConstant                = "config"
	serverSubcommandConstant                = "server"
	loginSubcommandConstant                 = "login"
	apiKeyFlagConstant                      = "--apikey"
	rawFlagConstant                         = "--raw"
	unlockSubcommandConstant                = "unlock"
	passwordEnvironmentFlagConstant         = "--passwordenv"
	statusSubcommandConstant                = "status"
	exportSubcommandConstant                = "export"
	outputFlagConstant                      = "--output"
	formatFlagConstant                      = "--format"
	exportFormatJSONConstant                = "json"
	organizationFlagConstant                = "--organizationid"
	importSubcommandConstant                = "import"
	formatsFlagConstant                     = "--formats"
	listSubcommandConstant                  = "list"
	getSubcommandConstant                   = "get"
	itemsObjectConstant                     = "items"
	itemObjectConstant                      = "item"
	encodeSubcommandConstant                = "encode"
	createSubcommandConstant                = "create"
	logoutSubcommandConstant                = "logout"
	requiredValueMessageConstant            = "value required"
	executorNotConfiguredMessageConstant    = "vault cli executor not configured"
	emptySessionTokenMessageConstant        = "unlock returned an empty session token"
	emptyEncodingMessageConstant            = "encode returned an empty payload"
	operationErrorMessageTemplateConstant   = "%s operation failed"
	operationErrorWithCauseTemplateConstant = "%s operation failed: %s"
	responseDecodingErrorTemplateConstant   = "%s response decoding failed: %s"
	invalidInputErrorTemplateConstant       = "%s: %s"
	hostFieldNameConstant                   = "host"
	passwordVariableFieldNameConstant       = "password_variable"
	outputPathFieldNameConstant             = "output_path"
	inputPathFieldNameConstant              = "input_path"
	formatFieldNameConstant                 = "format"
	itemIdentifierFieldNameConstant         = "item_id"
	payloadFieldNameConstant                = "payload"
)

// OperationName describes a named vault CLI operation supported by the client.
type OperationName string

// Supported operations.
const (
	OperationVersion         = OperationName("Version")
	OperationConfigureServer = OperationName("ConfigureServer")
	OperationLogin           = OperationName("LoginWithAPIKey")
	OperationUnlock          = OperationName("Unlock")
	OperationStatus          = OperationName("Status")
	OperationExport          = OperationName("Export")
	OperationImportFormats   = OperationName("ImportFormats")
	OperationImport          = OperationName("Import")
	OperationListItems       = OperationName("ListItems")
	OperationGetItem         = OperationName("GetItem")
	OperationEncode          = OperationName("Encode")
	OperationCreateItem      = OperationName("CreateItem")
	OperationLogout          = OperationName("Logout")
)

// CommandEnvironment is the per-session environment applied to every spawned process.
// Exclusions name inherited variables to drop; ValueExclusions drop inherited variables by value.
type CommandEnvironment struct {
	Variables       map[string]string
	Exclusions      []string
	ValueExclusions []string
}

// Timeouts bounds each operation. Zero leaves the operation unbounded.
type Timeouts struct {
	ConfigureServer time.Duration `mapstructure:"configure_server"`
	Login           time.Duration `mapstructure:"login"`
	Unlock          time.Duration `mapstructure:"unlock"`
	Status          time.Duration `mapstructure:"status"`
	Export          time.Duration `mapstructure:"export"`
	FormatDiscovery time.Duration `mapstructure:"format_discovery"`
	Import          time.Duration `mapstructure:"import"`
	ListItems       time.Duration `mapstructure:"list_items"`
	GetItem         time.Duration `mapstructure:"get_item"`
	Encode          time.Duration `mapstructure:"encode"`
	CreateItem      time.Duration `mapstructure:"create_item"`
	Logout          time.Duration `mapstructure:"logout"`
}

// DefaultTimeouts returns the baseline operation bounds.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		ConfigureServer: 20 * time.Second,
		Login:           20 * time.Second,
		Unlock:          30 * time.Second,
		Status:          10 * time.Second,
		Export:          2 * time.Minute,
		FormatDiscovery: 10 * time.Second,
		Import:          30 * time.Second,
		ListItems:       time.Minute,
		GetItem:         30 * time.Second,
		Encode:          10 * time.Second,
		CreateItem:      30 * time.Second,
		Logout:          10 * time.Second,
	}
}

// VaultStatus is the decoded output of the status query.
type VaultStatus struct {
	ServerURL string `json:"serverUrl"`
	LastSync  string `json:"lastSync"`
	UserEmail string `json:"userEmail"`
	UserID    string `json:"userId"`
	Status    string `json:"status"`
}

// VaultCommandExecutor is the minimal interface required from execshell.ShellExecutor.
type VaultCommandExecutor interface {
	Execute(executionContext context.Context, command execshell.ShellCommand) (execshell.ExecutionResult, error)
	ExecuteWithInput(executionContext context.Context, command execshell.ShellCommand, input []byte) (execshell.ExecutionResult, error)
}

// Client coordinates vault CLI invocations through execshell.
type Client struct {
	executor VaultCommandExecutor
	toolName execshell.CommandName
	timeouts Timeouts
}

var (
	// ErrExecutorNotConfigured indicates the client was constructed without an executor.
	ErrExecutorNotConfigured = errors.New(executorNotConfiguredMessageConstant)
	// ErrEmptySessionToken indicates unlock succeeded without printing a token.
	ErrEmptySessionToken = errors.New(emptySessionTokenMessageConstant)
	// ErrEmptyEncoding indicates encode succeeded without printing a payload.
	ErrEmptyEncoding = errors.New(emptyEncodingMessageConstant)
)

// InvalidInputError surfaces validation issues for operation inputs.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf(invalidInputErrorTemplateConstant, inputError.FieldName, inputError.Message)
}

// OperationError wraps execution issues for vault CLI operations.
type OperationError struct {
	Operation OperationName
	Cause     error
}

// Error describes the operation failure.
func (operationError OperationError) Error() string {
	if operationError.Cause == nil {
		return fmt.Sprintf(operationErrorMessageTemplateConstant, operationError.Operation)
	}
	return fmt.Sprintf(operationErrorWithCauseTemplateConstant, operationError.Operation, operationError.Cause)
}

// Unwrap exposes the underlying cause.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// ResponseDecodingError indicates JSON decoding failures.
type ResponseDecodingError struct {
	Operation OperationName
	Cause     error
}

// Error describes the decoding failure.
func (decodingError ResponseDecodingError) Error() string {
	return fmt.Sprintf(responseDecodingErrorTemplateConstant, decodingError.Operation, decodingError.Cause)
}

// Unwrap exposes the underlying JSON error.
func (decodingError ResponseDecodingError) Unwrap() error {
	return decodingError.Cause
}

// NewClient constructs a vault CLI client. An empty tool name selects the default executable.
func NewClient(executor VaultCommandExecutor, toolName execshell.CommandName, timeouts Timeouts) (*Client, error) {
	if executor == nil {
		return nil, ErrExecutorNotConfigured
	}
	if len(strings.TrimSpace(string(toolName))) == 0 {
		toolName = execshell.CommandVaultCLI
	}
	return &Client{executor: executor, toolName: toolName, timeouts: timeouts}, nil
}

// Timeouts returns the configured operation bounds.
func (client *Client) Timeouts() Timeouts {
	return client.timeouts
}

// Version reports the CLI version. The availability check is deliberately unbounded.
func (client *Client) Version(executionContext context.Context) (string, error) {
	executionResult, executionError := client.execute(executionContext, CommandEnvironment{}, 0, versionFlagConstant)
	if executionError != nil {
		return "", OperationError{Operation: OperationVersion, Cause: executionError}
	}
	return strings.TrimSpace(executionResult.StandardOutput), nil
}

// ConfigureServer points the session's CLI state at a self-hosted server.
func (client *Client) ConfigureServer(executionContext context.Context, environment CommandEnvironment, host string) error {
	trimmedHost := strings.TrimSpace(host)
	if len(trimmedHost) == 0 {
		return InvalidInputError{FieldName: hostFieldNameConstant, Message: requiredValueMessageConstant}
	}
	_, executionError := client.execute(executionContext, environment, client.timeouts.ConfigureServer, configSubcommandConstant, serverSubcommandConstant, trimmedHost)
	if executionError != nil {
		return OperationError{Operation: OperationConfigureServer, Cause: executionError}
	}
	return nil
}

// LoginWithAPIKey authenticates with the client id and secret carried in the environment.
func (client *Client) LoginWithAPIKey(executionContext context.Context, environment CommandEnvironment) error {
	_, executionError := client.execute(executionContext, environment, client.timeouts.Login, loginSubcommandConstant, apiKeyFlagConstant, rawFlagConstant)
	if executionError != nil {
		return OperationError{Operation: OperationLogin, Cause: executionError}
	}
	return nil
}

// Unlock decrypts the vault with the master password held in the named variable and returns the session token.
func (client *Client) Unlock(executionContext context.Context, environment CommandEnvironment, passwordVariable string) (string, error) {
	trimmedVariable := strings.TrimSpace(passwordVariable)
	if len(trimmedVariable) == 0 {
		return "", InvalidInputError{FieldName: passwordVariableFieldNameConstant, Message: requiredValueMessageConstant}
	}
	executionResult, executionError := client.execute(executionContext, environment, client.timeouts.Unlock, unlockSubcommandConstant, passwordEnvironmentFlagConstant, trimmedVariable, rawFlagConstant)
	if executionError != nil {
		return "", OperationError{Operation: OperationUnlock, Cause: executionError}
	}
	sessionToken := strings.TrimSpace(executionResult.StandardOutput)
	if len(sessionToken) == 0 {
		return "", OperationError{Operation: OperationUnlock, Cause: ErrEmptySessionToken}
	}
	return sessionToken, nil
}

// Status queries the authentication state of the session.
func (client *Client) Status(executionContext context.Context, environment CommandEnvironment) (VaultStatus, error) {
	executionResult, executionError := client.execute(executionContext, environment, client.timeouts.Status, statusSubcommandConstant, rawFlagConstant)
	if executionError != nil {
		return VaultStatus{}, OperationError{Operation: OperationStatus, Cause: executionError}
	}
	var status VaultStatus
	if decodingError := json.Unmarshal([]byte(executionResult.StandardOutput), &status); decodingError != nil {
		return VaultStatus{}, ResponseDecodingError{Operation: OperationStatus, Cause: decodingError}
	}
	return status, nil
}

// Export writes a JSON snapshot of the vault, optionally scoped to an organization.
func (client *Client) Export(executionContext context.Context, environment CommandEnvironment, outputPath string, organizationID string) error {
	trimmedPath := strings.TrimSpace(outputPath)
	if len(trimmedPath) == 0 {
		return InvalidInputError{FieldName: outputPathFieldNameConstant, Message: requiredValueMessageConstant}
	}
	arguments := []string{exportSubcommandConstant, outputFlagConstant, trimmedPath, formatFlagConstant, exportFormatJSONConstant}
	arguments = appendOrganizationScope(arguments, organizationID)
	_, executionError := client.execute(executionContext, environment, client.timeouts.Export, arguments...)
	if executionError != nil {
		return OperationError{Operation: OperationExport, Cause: executionError}
	}
	return nil
}

// ImportFormats returns the raw list of import formats advertised by the CLI.
func (client *Client) ImportFormats(executionContext context.Context, environment CommandEnvironment) (string, error) {
	executionResult, executionError := client.execute(executionContext, environment, client.timeouts.FormatDiscovery, importSubcommandConstant, formatsFlagConstant)
	if executionError != nil {
		return "", OperationError{Operation: OperationImportFormats, Cause: executionError}
	}
	return executionResult.StandardOutput, nil
}

// Import loads a snapshot using the given importer format, optionally into an organization.
func (client *Client) Import(executionContext context.Context, environment CommandEnvironment, format string, inputPath string, organizationID string) error {
	trimmedFormat := strings.TrimSpace(format)
	if len(trimmedFormat) == 0 {
		return InvalidInputError{FieldName: formatFieldNameConstant, Message: requiredValueMessageConstant}
	}
	trimmedPath := strings.TrimSpace(inputPath)
	if len(trimmedPath) == 0 {
		return InvalidInputError{FieldName: inputPathFieldNameConstant, Message: requiredValueMessageConstant}
	}
	arguments := appendOrganizationScope([]string{importSubcommandConstant, trimmedFormat, trimmedPath}, organizationID)
	_, executionError := client.execute(executionContext, environment, client.timeouts.Import, arguments...)
	if executionError != nil {
		return OperationError{Operation: OperationImport, Cause: executionError}
	}
	return nil
}

// ListItems enumerates every item visible to the session.
func (client *Client) ListItems(executionContext context.Context, environment CommandEnvironment) ([]vault.ItemReference, error) {
	executionResult, executionError := client.execute(executionContext, environment, client.timeouts.ListItems, listSubcommandConstant, itemsObjectConstant)
	if executionError != nil {
		return nil, OperationError{Operation: OperationListItems, Cause: executionError}
	}
	var references []vault.ItemReference
	if decodingError := json.Unmarshal([]byte(executionResult.StandardOutput), &references); decodingError != nil {
		return nil, ResponseDecodingError{Operation: OperationListItems, Cause: decodingError}
	}
	return references, nil
}

// GetItem retrieves the full record of one item.
func (client *Client) GetItem(executionContext context.Context, environment CommandEnvironment, itemID string) (vault.Item, error) {
	trimmedIdentifier := strings.TrimSpace(itemID)
	if len(trimmedIdentifier) == 0 {
		return vault.Item{}, InvalidInputError{FieldName: itemIdentifierFieldNameConstant, Message: requiredValueMessageConstant}
	}
	executionResult, executionError := client.execute(executionContext, environment, client.timeouts.GetItem, getSubcommandConstant, itemObjectConstant, trimmedIdentifier)
	if executionError != nil {
		return vault.Item{}, OperationError{Operation: OperationGetItem, Cause: executionError}
	}
	item, decodingError := vault.NewItem([]byte(executionResult.StandardOutput))
	if decodingError != nil {
		return vault.Item{}, ResponseDecodingError{Operation: OperationGetItem, Cause: decodingError}
	}
	return item, nil
}

// Encode converts a JSON payload into the encoding expected by the create command.
func (client *Client) Encode(executionContext context.Context, environment CommandEnvironment, payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", InvalidInputError{FieldName: payloadFieldNameConstant, Message: requiredValueMessageConstant}
	}
	executionResult, executionError := client.executeWithInput(executionContext, environment, client.timeouts.Encode, payload, encodeSubcommandConstant)
	if executionError != nil {
		return "", OperationError{Operation: OperationEncode, Cause: executionError}
	}
	encodedPayload := strings.TrimSpace(executionResult.StandardOutput)
	if len(encodedPayload) == 0 {
		return "", OperationError{Operation: OperationEncode, Cause: ErrEmptyEncoding}
	}
	return encodedPayload, nil
}

// CreateItem submits an encoded item payload.
func (client *Client) CreateItem(executionContext context.Context, environment CommandEnvironment, encodedPayload string) error {
	trimmedPayload := strings.TrimSpace(encodedPayload)
	if len(trimmedPayload) == 0 {
		return InvalidInputError{FieldName: payloadFieldNameConstant, Message: requiredValueMessageConstant}
	}
	_, executionError := client.executeWithInput(executionContext, environment, client.timeouts.CreateItem, []byte(trimmedPayload), createSubcommandConstant, itemObjectConstant)
	if executionError != nil {
		return OperationError{Operation: OperationCreateItem, Cause: executionError}
	}
	return nil
}

// Logout ends the session.
func (client *Client) Logout(executionContext context.Context, environment CommandEnvironment) error {
	_, executionError := client.execute(executionContext, environment, client.timeouts.Logout, logoutSubcommandConstant)
	if executionError != nil {
		return OperationError{Operation: OperationLogout, Cause: executionError}
	}
	return nil
}

func (client *Client) execute(executionContext context.Context, environment CommandEnvironment, timeout time.Duration, arguments ...string) (execshell.ExecutionResult, error) {
	return client.executor.Execute(executionContext, client.buildCommand(environment, timeout, arguments))
}

func (client *Client) executeWithInput(executionContext context.Context, environment CommandEnvironment, timeout time.Duration, input []byte, arguments ...string) (execshell.ExecutionResult, error) {
	return client.executor.ExecuteWithInput(executionContext, client.buildCommand(environment, timeout, arguments), input)
}

func (client *Client) buildCommand(environment CommandEnvironment, timeout time.Duration, arguments []string) execshell.ShellCommand {
	var environmentVariables map[string]string
	if len(environment.Variables) > 0 {
		environmentVariables = make(map[string]string, len(environment.Variables))
		for variableName, variableValue := range environment.Variables {
			environmentVariables[variableName] = variableValue
		}
	}
	return execshell.ShellCommand{
		Name: client.toolName,
		Details: execshell.CommandDetails{
			Arguments:                  append([]string{}, arguments...),
			EnvironmentVariables:       environmentVariables,
			EnvironmentExclusions:      append([]string{}, environment.Exclusions...),
			EnvironmentValueExclusions: append([]string{}, environment.ValueExclusions...),
			Timeout:                    timeout,
		},
	}
}

func appendOrganizationScope(arguments []string, organizationID string) []string {
	trimmedOrganization := strings.TrimSpace(organizationID)
	if len(trimmedOrganization) == 0 {
		return arguments
	}
	return append(arguments, organizationFlagConstant, trimmedOrganization)
}
