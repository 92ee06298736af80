// Package itemcopy copies vault items one at a time between two sessions.
//
// It is the granular alternative to the snapshot export and import path: each item is
// read from the source, stripped of organization, collection and folder assignments,
// encoded and created in the target.
package itemcopy
