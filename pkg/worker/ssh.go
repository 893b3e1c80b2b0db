package worker

import (
	"fmt"
	"os/exec"
	"strconv"

	"github.com/xlttj/sshfwd/pkg/config"
)

// BuildSSHArgs constructs the ssh(1) argument list for a profile: -p only
// when the port differs from 22, one -L per complete forward rule, then the
// [user@]host target, -N (no remote command) and -v so connection progress
// shows up on the diagnostic stream.
func BuildSSHArgs(profile config.Profile) []string {
	var args []string

	if port := profile.EffectivePort(); port != config.DefaultSSHPort {
		args = append(args, "-p", strconv.Itoa(port))
	}

	for _, fwd := range profile.CompleteForwards() {
		args = append(args, "-L", fmt.Sprintf("%d:%s:%d", fwd.LocalPort, fwd.RemoteHost, fwd.RemotePort))
	}

	if profile.Username != "" {
		args = append(args, profile.Username+"@"+profile.Hostname)
	} else {
		args = append(args, profile.Hostname)
	}

	args = append(args, "-N", "-v")
	return args
}

// EnsureSSHBinary verifies ssh is on PATH before any connect is attempted.
func EnsureSSHBinary() error {
	if _, err := exec.LookPath("ssh"); err != nil {
		return fmt.Errorf("'ssh' command not found. Is OpenSSH installed and in your PATH?")
	}
	return nil
}
