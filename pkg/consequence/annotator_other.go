//go:build !unix

package consequence

import "os/exec"

// killProcessGroup leaves the default cancel behavior; WaitDelay still
// bounds a child that outlives the annotator.
func killProcessGroup(*exec.Cmd) {}
