// Package transfer exports vault snapshots and imports them with adaptive format discovery.
package transfer
