// Package bwcli wraps the vault management CLI for vault-sync workflows.
//
// It layers typed request and response structures over the CLI subcommands,
// bounds every call with a configured timeout, and declares a FailurePolicy per
// operation so callers discard failures only through ApplyFailurePolicy.
package bwcli
