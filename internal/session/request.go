package session

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// DefaultWorkRoot holds per-side state directories and snapshots when no work root is configured.
	DefaultWorkRoot = "/tmp/bitsync"

	sideErrorTemplateConstant = "[%s] %v"
)

// Credentials holds the configured API key and unlock settings of one account.
type Credentials struct {
	ClientID         string `mapstructure:"client_id"`
	ClientSecret     string `mapstructure:"client_secret"`
	Host             string `mapstructure:"host"`
	PasswordVariable string `mapstructure:"password_variable"`
}

// NewRequest builds the establishment request of one side rooted under workRoot.
func NewRequest(label string, workRoot string, credentials Credentials) Request {
	passwordVariable := strings.TrimSpace(credentials.PasswordVariable)
	if len(passwordVariable) == 0 {
		passwordVariable = PasswordVariableFor(label)
	}
	return Request{
		Label:                  label,
		StateDirectory:         filepath.Join(workRoot, label),
		Host:                   strings.TrimSpace(credentials.Host),
		ClientID:               strings.TrimSpace(credentials.ClientID),
		ClientSecret:           strings.TrimSpace(credentials.ClientSecret),
		PasswordVariable:       passwordVariable,
		ForeignEnvironmentKeys: ForeignEnvironmentKeys(label),
	}
}

// NewRequestPair builds the source and target requests so that each excludes the other's resolved
// password variable and drops any inherited variable holding the other's client credentials.
func NewRequestPair(workRoot string, source Credentials, target Credentials) (Request, Request) {
	sourceRequest := NewRequest(LabelSource, workRoot, source)
	targetRequest := NewRequest(LabelTarget, workRoot, target)
	return isolateFrom(sourceRequest, targetRequest), isolateFrom(targetRequest, sourceRequest)
}

// isolateFrom never lists the request's own password variable, which both sides may share.
func isolateFrom(request Request, foreign Request) Request {
	foreignKeys := append(append([]string{}, request.ForeignEnvironmentKeys...), foreign.PasswordVariable)
	isolated := request
	isolated.ForeignEnvironmentKeys = withoutValues(uniqueNonEmpty(foreignKeys...), request.PasswordVariable)
	isolated.ForeignEnvironmentValues = uniqueNonEmpty(append(append([]string{}, request.ForeignEnvironmentValues...), foreign.ClientID, foreign.ClientSecret)...)
	return isolated
}

// ValidateRequests reports the first missing credential or password variable across all requests.
// Credentials are checked for every side before any password variable is consulted.
func ValidateRequests(environmentLookup EnvironmentLookup, requests ...Request) error {
	for _, request := range requests {
		if len(strings.TrimSpace(request.ClientID)) == 0 {
			return ConfigurationError{Side: request.Label, Variable: ClientIDVariableFor(request.Label)}
		}
		if len(strings.TrimSpace(request.ClientSecret)) == 0 {
			return ConfigurationError{Side: request.Label, Variable: ClientSecretVariableFor(request.Label)}
		}
	}
	for _, request := range requests {
		passwordVariable := strings.TrimSpace(request.PasswordVariable)
		if len(passwordVariable) == 0 {
			passwordVariable = PasswordVariableFor(request.Label)
		}
		if passwordValue, present := environmentLookup(passwordVariable); !present || len(passwordValue) == 0 {
			return ConfigurationError{Side: request.Label, Variable: passwordVariable}
		}
	}
	return nil
}

// SideError attributes a failure to the source or target side.
type SideError struct {
	Side  string
	Cause error
}

// Error prefixes the cause with the upper-cased side label.
func (sideError SideError) Error() string {
	return fmt.Sprintf(sideErrorTemplateConstant, strings.ToUpper(sideError.Side), sideError.Cause)
}

// Unwrap exposes the underlying cause.
func (sideError SideError) Unwrap() error {
	return sideError.Cause
}
