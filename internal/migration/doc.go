// Package migration orchestrates a full vault synchronization as an explicit stage machine:
// start, tool-checked, sessions-established, exported, sanitized, imported, logged-out and done,
// with failed as the absorbing state. Failures surface as StageError values whose ExitCode maps
// to the process status.
package migration
