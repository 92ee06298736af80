// Package cli constructs the vault-sync command-line interface, wiring the
// Cobra command hierarchy, the configuration loader and structured logging.
// It exposes helpers to build application instances and to execute the
// default command set.
package cli
