// Package configwatch watches the on-disk input configuration file for
// external changes and turns them into merge attempts, using fsnotify. The
// <root>/config directory is not watched. It is intentionally thin: deployment transport
// (how a Deployment actually arrives) is out of scope, so this package only
// covers the one concrete transport implied by naming a `-i <path>` input
// file — a filesystem edit triggers a reload.
package configwatch
