//go:build !windows

package main

import (
	"os/exec"
	"syscall"
)

// configureDetachedProc detaches the background worker from our session so it
// survives the enqueuing CLI process.
func configureDetachedProc(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
