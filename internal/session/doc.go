// Package session establishes isolated, authenticated vault CLI sessions.
//
// Each Session owns its own CLI state directory and an environment overlay that is
// only ever handed out as a copy. Processes spawned for one side never inherit the
// other side's credential variables.
package session
