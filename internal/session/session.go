package session

import (
	"fmt"
	"sort"
	"strings"

	"github.com/temirov/vaultsync/internal/bwcli"
)

const (
	// LabelSource identifies the account snapshots are exported from.
	LabelSource = "source"
	// LabelTarget identifies the account snapshots are imported into.
	LabelTarget = "target"

	// StateDirectoryVariable points the vault CLI at a per-session state directory.
	StateDirectoryVariable = "BITWARDENCLI_APPDATA_DIR"
	// ClientIDVariable carries the API key client identifier.
	ClientIDVariable = "BW_CLIENTID"
	// ClientSecretVariable carries the API key client secret.
	ClientSecretVariable = "BW_CLIENTSECRET"
	// SessionTokenVariable carries the unlock token.
	SessionTokenVariable = "BW_SESSION"
	// ConfigurationVariablePattern matches the prefixed configuration overrides, which may carry either side's secrets.
	ConfigurationVariablePattern = "VAULTSYNC_*"

	clientIDSuffixConstant               = "_BW_CLIENTID"
	clientSecretSuffixConstant           = "_BW_CLIENTSECRET"
	passwordSuffixConstant               = "_BW_PASSWORD"
	hostSuffixConstant                   = "_BW_HOST"
	ambientPasswordVariableConstant      = "BW_PASSWORD"
	exitCodeConfigurationMissingConstant = 2
	configurationErrorTemplateConstant   = "missing required configuration %s for %s"
)

// State is the logical authentication state of a session.
type State int

// Session states.
const (
	StateUnauthenticated State = iota
	StateLoggedIn
	StateUnlocked
	StateLoggedOut
)

// String returns the state label used in logs.
func (state State) String() string {
	switch state {
	case StateLoggedIn:
		return "logged-in"
	case StateUnlocked:
		return "unlocked"
	case StateLoggedOut:
		return "logged-out"
	default:
		return "unauthenticated"
	}
}

// ConfigurationError reports a missing credential or password variable.
type ConfigurationError struct {
	Side     string
	Variable string
}

// Error names the missing variable and side.
func (configurationError ConfigurationError) Error() string {
	return fmt.Sprintf(configurationErrorTemplateConstant, configurationError.Variable, configurationError.Side)
}

// ExitCode reports the process status for missing configuration.
func (ConfigurationError) ExitCode() int {
	return exitCodeConfigurationMissingConstant
}

// Session is one authenticated vault account with an isolated CLI state directory.
type Session struct {
	label           string
	stateDirectory  string
	overlay         map[string]string
	exclusions      []string
	valueExclusions []string
	state           State
}

// Label returns source or target.
func (session *Session) Label() string {
	return session.label
}

// StateDirectory returns the isolated CLI state directory.
func (session *Session) StateDirectory() string {
	return session.stateDirectory
}

// State returns the logical authentication state.
func (session *Session) State() State {
	return session.state
}

// CommandEnvironment returns a copy of the overlay and exclusions applied to every process spawned for the session.
func (session *Session) CommandEnvironment() bwcli.CommandEnvironment {
	overlay := make(map[string]string, len(session.overlay))
	for variableName, variableValue := range session.overlay {
		overlay[variableName] = variableValue
	}
	return bwcli.CommandEnvironment{
		Variables:       overlay,
		Exclusions:      append([]string{}, session.exclusions...),
		ValueExclusions: append([]string{}, session.valueExclusions...),
	}
}

// ClientIDVariableFor returns the credential variable holding the side's client identifier.
func ClientIDVariableFor(label string) string {
	return strings.ToUpper(label) + clientIDSuffixConstant
}

// ClientSecretVariableFor returns the credential variable holding the side's client secret.
func ClientSecretVariableFor(label string) string {
	return strings.ToUpper(label) + clientSecretSuffixConstant
}

// PasswordVariableFor returns the variable holding the side's master password.
func PasswordVariableFor(label string) string {
	return strings.ToUpper(label) + passwordSuffixConstant
}

// HostVariableFor returns the variable holding the side's optional server override.
func HostVariableFor(label string) string {
	return strings.ToUpper(label) + hostSuffixConstant
}

// ForeignEnvironmentKeys lists the other side's default credential variables and the configuration
// override pattern, none of which may reach this side's processes.
func ForeignEnvironmentKeys(label string) []string {
	return []string{
		ClientIDVariableFor(otherLabel(label)),
		ClientSecretVariableFor(otherLabel(label)),
		PasswordVariableFor(otherLabel(label)),
		ConfigurationVariablePattern,
	}
}

func otherLabel(label string) string {
	if label == LabelTarget {
		return LabelSource
	}
	return LabelTarget
}

func ambientExclusions(foreignKeys []string) []string {
	exclusionSet := map[string]struct{}{
		StateDirectoryVariable:          {},
		ClientIDVariable:                {},
		ClientSecretVariable:            {},
		SessionTokenVariable:            {},
		ambientPasswordVariableConstant: {},
	}
	for _, foreignKey := range foreignKeys {
		trimmedKey := strings.TrimSpace(foreignKey)
		if len(trimmedKey) > 0 {
			exclusionSet[trimmedKey] = struct{}{}
		}
	}
	exclusions := make([]string, 0, len(exclusionSet))
	for exclusion := range exclusionSet {
		exclusions = append(exclusions, exclusion)
	}
	sort.Strings(exclusions)
	return exclusions
}

func isPatternKey(key string) bool {
	return strings.HasSuffix(key, "*")
}

func uniqueNonEmpty(values ...string) []string {
	seenValues := make(map[string]struct{}, len(values))
	unique := make([]string, 0, len(values))
	for _, value := range values {
		if len(strings.TrimSpace(value)) == 0 {
			continue
		}
		if _, seen := seenValues[value]; seen {
			continue
		}
		seenValues[value] = struct{}{}
		unique = append(unique, value)
	}
	return unique
}

func withoutValues(values []string, removed ...string) []string {
	removedSet := make(map[string]struct{}, len(removed))
	for _, removedValue := range removed {
		removedSet[removedValue] = struct{}{}
	}
	remaining := make([]string, 0, len(values))
	for _, value := range values {
		if _, isRemoved := removedSet[value]; isRemoved {
			continue
		}
		remaining = append(remaining, value)
	}
	return remaining
}
