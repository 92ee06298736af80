// Package snapshot prepares exported vault snapshots for import into another account.
package snapshot
