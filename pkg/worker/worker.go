// Package worker implements the backend side of the tunnel protocol: it
// reads line-JSON requests on stdin, manages its own view of the profile
// set, runs the actual ssh tunnel process, and reports status as line-JSON
// events on stdout. Free-text diagnostics go to stderr, which the front end
// surfaces but never parses.
//
// The default application spawns this worker by re-executing its own binary
// with the "worker" subcommand, but any process speaking the same protocol
// can replace it via the settings file.
package worker

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/xlttj/sshfwd/pkg/config"
	"github.com/xlttj/sshfwd/pkg/ipc"
)

// connectGrace is how long the ssh process must stay alive before the worker
// reports Connected. ssh -N prints nothing on success, so process survival is
// the readiness signal.
const connectGrace = 2 * time.Second

// Worker is the backend process state: the profile set and at most one
// active ssh tunnel process.
type Worker struct {
	backend  config.Backend
	profiles map[string]config.Profile

	out      io.Writer
	outMutex sync.Mutex

	procMutex  sync.Mutex
	activeCmd  *exec.Cmd
	generation int // invalidates monitors of superseded processes
}

// New creates a worker that persists profiles through the given backend and
// writes protocol events to out.
func New(backend config.Backend, out io.Writer) (*Worker, error) {
	profiles, err := backend.LoadAll()
	if err != nil {
		// The front end treats a worker that cannot load as started-empty;
		// the failure itself travels on the error stream.
		fmt.Fprintf(os.Stderr, "failed to load profiles: %v\n", err)
		profiles = make(map[string]config.Profile)
	}
	if profiles == nil {
		profiles = make(map[string]config.Profile)
	}
	return &Worker{
		backend:  backend,
		profiles: profiles,
		out:      out,
	}, nil
}

// Run reads requests line by line until stdin closes, then tears down any
// active tunnel. The initial Disconnected status tells the front end the
// worker is alive.
func (w *Worker) Run(in io.Reader) error {
	w.sendStatus(ipc.StatusDisconnected, "Application started.")

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		req, err := ipc.DecodeRequest(line)
		if err != nil {
			w.sendError(fmt.Sprintf("Invalid JSON received from frontend: %v", err))
			continue
		}
		w.handleRequest(req)
	}

	w.teardown()
	return scanner.Err()
}

// handleRequest dispatches one request. The request union is matched
// exhaustively; unknown types produce an error event, never a crash.
func (w *Worker) handleRequest(req ipc.Request) {
	switch req.Type {
	case ipc.RequestListProfiles:
		w.send(ipc.Event{Type: ipc.EventProfilesList, Profiles: w.profileSet()})

	case ipc.RequestProfileDetails:
		p, ok := w.lookup(req.ProfileName)
		if !ok {
			w.sendError(fmt.Sprintf("Profile '%s' not found.", req.ProfileName))
			return
		}
		w.send(ipc.Event{Type: ipc.EventProfileDetails, ProfileName: req.ProfileName, Profile: &p})

	case ipc.RequestProfileDetailsEdit:
		p, ok := w.lookup(req.ProfileName)
		if !ok {
			w.sendError(fmt.Sprintf("Profile '%s' not found for editing.", req.ProfileName))
			return
		}
		w.send(ipc.Event{Type: ipc.EventProfileDetailsEdit, Profile: &p})

	case ipc.RequestAddProfile:
		w.saveProfile(req, false)

	case ipc.RequestSaveProfile:
		w.saveProfile(req, true)

	case ipc.RequestDeleteProfile:
		w.deleteProfile(req.ProfileName)

	case ipc.RequestConnect:
		if req.ProfileName == "" {
			w.sendError("Invalid connect request (missing profile_name).")
			return
		}
		w.connect(req.ProfileName)

	case ipc.RequestDisconnect:
		w.disconnect()

	default:
		w.sendError(fmt.Sprintf("Unknown request type: %s", req.Type))
	}
}

func (w *Worker) lookup(name string) (config.Profile, bool) {
	p, ok := w.profiles[name]
	if ok {
		p.Name = name
	}
	return p, ok
}

// profileSet returns the worker's current set with names filled in; keys are
// sorted only by the receiver, map order does not matter on the wire.
func (w *Worker) profileSet() map[string]config.Profile {
	out := make(map[string]config.Profile, len(w.profiles))
	for name, p := range w.profiles {
		p.Name = name
		out[name] = p
	}
	return out
}

// saveProfile handles add_profile (mustExist=false) and save_profile
// (mustExist=true). Validation failures and name conflicts are protocol
// errors; the persisted set only ever contains complete forward rules.
func (w *Worker) saveProfile(req ipc.Request, mustExist bool) {
	if req.ProfileName == "" || req.Data == nil {
		w.sendError(fmt.Sprintf("Invalid request for %s (missing profile_name or data).", req.Type))
		return
	}

	p := req.Data.Clone()
	p.Name = req.ProfileName
	p.Forwards = p.CompleteForwards()
	if verr := config.ValidateProfile(p); verr != nil {
		w.sendError(fmt.Sprintf("Invalid profile data for '%s': %v", req.ProfileName, verr))
		return
	}

	_, exists := w.profiles[req.ProfileName]
	if mustExist && !exists {
		w.sendError(fmt.Sprintf("Profile '%s' not found for saving.", req.ProfileName))
		return
	}
	if !mustExist && exists {
		w.sendError(fmt.Sprintf("Profile '%s' already exists.", req.ProfileName))
		return
	}

	w.profiles[req.ProfileName] = p
	if err := w.backend.SaveAll(w.profileSet()); err != nil {
		w.sendError(fmt.Sprintf("Failed to save profile '%s': %v", req.ProfileName, err))
		return
	}

	verb := "added"
	if mustExist {
		verb = "saved"
	}
	w.send(ipc.Event{
		Type:    ipc.EventProfileSaved,
		Message: fmt.Sprintf("Profile '%s' %s successfully.", req.ProfileName, verb),
	})
}

func (w *Worker) deleteProfile(name string) {
	if _, exists := w.profiles[name]; !exists {
		w.sendError(fmt.Sprintf("Profile '%s' not found for deletion.", name))
		return
	}

	delete(w.profiles, name)
	if err := w.backend.SaveAll(w.profileSet()); err != nil {
		w.sendError(fmt.Sprintf("Failed to delete profile '%s': %v", name, err))
		return
	}
	w.send(ipc.Event{
		Type:    ipc.EventProfileDeleted,
		Message: fmt.Sprintf("Profile '%s' deleted successfully.", name),
	})
}

// connect launches the ssh tunnel process for a profile and monitors it.
func (w *Worker) connect(profileName string) {
	w.procMutex.Lock()
	if w.activeCmd != nil {
		w.procMutex.Unlock()
		w.sendStatus(ipc.ErrorStatus("Already connected to an SSH server."), "Already connected to an SSH server.")
		return
	}
	w.procMutex.Unlock()

	profile, ok := w.lookup(profileName)
	if !ok {
		w.sendStatus(ipc.ErrorStatus("profile not found"), fmt.Sprintf("Profile '%s' not found.", profileName))
		return
	}
	if profile.Hostname == "" {
		w.sendStatus(ipc.ErrorStatus("hostname missing"), fmt.Sprintf("Hostname not specified for profile '%s'.", profileName))
		return
	}
	if err := EnsureSSHBinary(); err != nil {
		w.sendStatus(ipc.ErrorStatus(err.Error()), err.Error())
		return
	}

	args := BuildSSHArgs(profile)
	w.sendStatus(ipc.StatusConnecting, fmt.Sprintf("Attempting to connect to '%s'...", profileName))
	fmt.Fprintf(os.Stderr, "Executing: ssh %v\n", args)

	cmd := exec.Command("ssh", args...)
	// Own process group so disconnect can kill ssh and any children it forks.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		w.sendStatus(ipc.ErrorStatus(err.Error()), fmt.Sprintf("Failed to start SSH process: %v", err))
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		w.sendStatus(ipc.ErrorStatus(err.Error()), fmt.Sprintf("Failed to start SSH process: %v", err))
		return
	}

	if err := cmd.Start(); err != nil {
		w.sendStatus(ipc.ErrorStatus(err.Error()), fmt.Sprintf("Failed to start SSH process: %v", err))
		return
	}

	w.procMutex.Lock()
	w.generation++
	gen := w.generation
	w.activeCmd = cmd
	w.procMutex.Unlock()

	// Mirror ssh output onto the diagnostic stream; keep a tail of stderr to
	// report when the connection fails before the grace period expires.
	var tailMutex sync.Mutex
	var stderrTail []string
	go pipeToDiagnostics(stdout, "SSH stdout", nil, nil)
	go pipeToDiagnostics(stderr, "SSH stderr", &tailMutex, &stderrTail)

	go w.monitor(cmd, gen, profileName, func() string {
		tailMutex.Lock()
		defer tailMutex.Unlock()
		if len(stderrTail) == 0 {
			return ""
		}
		return stderrTail[len(stderrTail)-1]
	})
}

// pipeToDiagnostics copies a stream line by line to stderr, optionally
// recording lines for failure reporting.
func pipeToDiagnostics(r io.Reader, label string, mu *sync.Mutex, tail *[]string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintf(os.Stderr, "%s: %s\n", label, line)
		if mu != nil {
			mu.Lock()
			*tail = append(*tail, line)
			if len(*tail) > 20 {
				*tail = (*tail)[1:]
			}
			mu.Unlock()
		}
	}
}

// monitor reports Connected once the process survives the grace period,
// then maps its eventual exit to Disconnected or an error status. A monitor
// whose generation has been superseded stays silent.
func (w *Worker) monitor(cmd *exec.Cmd, gen int, profileName string, lastStderr func() string) {
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		// Exited before the grace period: a failed connection attempt.
		if !w.clearActive(gen) {
			return
		}
		detail := lastStderr()
		if detail == "" {
			detail = fmt.Sprintf("SSH process exited unexpectedly (%v).", exitDescription(cmd, err))
		}
		w.sendStatus(ipc.ErrorStatus("SSH connection failed"), fmt.Sprintf("SSH connection failed: %s", detail))
		return

	case <-time.After(connectGrace):
		if !w.isActiveGeneration(gen) {
			return
		}
		w.sendStatus(ipc.StatusConnected, fmt.Sprintf("Successfully connected to '%s'.", profileName))
	}

	err := <-done
	if !w.clearActive(gen) {
		return
	}

	if signaled(cmd) {
		w.sendStatus(ipc.StatusDisconnected, "SSH connection terminated.")
	} else if err == nil {
		w.sendStatus(ipc.StatusDisconnected, "SSH connection closed.")
	} else {
		w.sendStatus(ipc.ErrorStatus(exitDescription(cmd, err)), fmt.Sprintf("SSH process exited with %s.", exitDescription(cmd, err)))
	}
}

// clearActive clears the active process if gen still owns it.
func (w *Worker) clearActive(gen int) bool {
	w.procMutex.Lock()
	defer w.procMutex.Unlock()
	if w.generation != gen {
		return false
	}
	w.activeCmd = nil
	return true
}

func (w *Worker) isActiveGeneration(gen int) bool {
	w.procMutex.Lock()
	defer w.procMutex.Unlock()
	return w.generation == gen
}

// disconnect terminates the active tunnel's whole process group; the monitor
// goroutine reports the resulting Disconnected status.
func (w *Worker) disconnect() {
	w.procMutex.Lock()
	cmd := w.activeCmd
	w.procMutex.Unlock()

	if cmd == nil || cmd.Process == nil {
		w.sendStatus(ipc.StatusDisconnected, "No active connection to disconnect.")
		return
	}

	w.sendStatus(ipc.StatusDisconnecting, "Attempting to disconnect...")
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM); err != nil {
		if err == syscall.ESRCH {
			w.clearActiveAny()
			w.sendStatus(ipc.StatusDisconnected, "Connection already terminated.")
			return
		}
		w.sendStatus(ipc.ErrorStatus(err.Error()), fmt.Sprintf("An error occurred while trying to disconnect: %v", err))
	}
}

func (w *Worker) clearActiveAny() {
	w.procMutex.Lock()
	defer w.procMutex.Unlock()
	w.activeCmd = nil
}

// teardown kills any active tunnel on shutdown.
func (w *Worker) teardown() {
	w.procMutex.Lock()
	cmd := w.activeCmd
	w.procMutex.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
}

func signaled(cmd *exec.Cmd) bool {
	if cmd.ProcessState == nil {
		return false
	}
	if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok {
		return ws.Signaled()
	}
	return false
}

func exitDescription(cmd *exec.Cmd, err error) string {
	if cmd.ProcessState != nil {
		if signaled(cmd) {
			return "signal"
		}
		return fmt.Sprintf("code %d", cmd.ProcessState.ExitCode())
	}
	if err != nil {
		return err.Error()
	}
	return "code 0"
}

// send writes one event line to stdout. Writes are serialized: the monitor
// goroutine and the request loop both report status.
func (w *Worker) send(ev ipc.Event) {
	line, err := ipc.EncodeEvent(ev)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode event: %v\n", err)
		return
	}
	w.outMutex.Lock()
	defer w.outMutex.Unlock()
	_, _ = w.out.Write(line)
}

func (w *Worker) sendStatus(status, message string) {
	w.send(ipc.Event{Type: ipc.EventConnectionStatus, Status: status, Message: message})
}

func (w *Worker) sendError(message string) {
	w.send(ipc.Event{Type: ipc.EventError, Message: message})
}
