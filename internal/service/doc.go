// Package service implements the component lifecycle state machine: the
// NEW -> INSTALLED -> STARTING -> RUNNING -> STOPPING -> FINISHED happy
// path, the ERRORED and BROKEN failure branches, and the Driver contract a
// component's install/startup/run/shutdown/recover steps are invoked
// through.
//
// A Service owns its own state and notifies a StateChangeCallback on every
// transition; internal/supervisor is the only caller that drives
// transitions, using internal/depgraph to decide which components may
// start or must stop.
package service
