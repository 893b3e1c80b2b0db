package main

import (
	"fmt"
	"os"
	"time"

	"github.com/xlttj/sshfwd/pkg/cmd"
	"github.com/xlttj/sshfwd/pkg/config"
	"github.com/xlttj/sshfwd/pkg/core"
	"github.com/xlttj/sshfwd/pkg/ipc"
	"github.com/xlttj/sshfwd/pkg/logging"
	"github.com/xlttj/sshfwd/pkg/session"
	"github.com/xlttj/sshfwd/pkg/ui"
	"github.com/xlttj/sshfwd/pkg/worker"

	tea "github.com/charmbracelet/bubbletea"
)

// stopTimeout bounds how long we wait for the worker to exit on shutdown.
const stopTimeout = 3 * time.Second

// workerTransport funnels coordinator requests to the worker client. The
// client is attached after ipc.Start because the client itself needs the
// coordinator's handlers.
type workerTransport struct {
	client *ipc.Client
}

func (t *workerTransport) Send(req ipc.Request) error {
	if t.client == nil {
		return fmt.Errorf("worker not started")
	}
	return t.client.Send(req)
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "worker":
			runWorker()
			return
		case "help", "-h", "--help":
			cmd.ShowMainHelpAndExit()
		}
	}

	logging.LogDebug("Logger test: main started")
	runTUI()
}

// runWorker is the backend process: it reads requests on stdin and writes
// events on stdout until stdin closes.
func runWorker() {
	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Fprintf(os.Stderr, "sshfwd worker: %v\n", err)
		os.Exit(1)
	}
	backend, err := config.NewBackend(settings)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sshfwd worker: %v\n", err)
		os.Exit(1)
	}
	defer backend.Close()

	w, err := worker.New(backend, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sshfwd worker: %v\n", err)
		os.Exit(1)
	}
	if err := w.Run(os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "sshfwd worker: %v\n", err)
		os.Exit(1)
	}
}

func runTUI() {
	settings, err := config.LoadSettings()
	if err != nil {
		fmt.Printf("Error loading settings: %v\n", err)
		os.Exit(1)
	}
	backend, err := config.NewBackend(settings)
	if err != nil {
		fmt.Printf("Error opening profile storage: %v\n", err)
		os.Exit(1)
	}
	defer backend.Close()

	store, err := config.NewProfileStore(backend)
	if err != nil {
		fmt.Printf("Error loading profiles: %v\n", err)
		os.Exit(1)
	}

	sess := session.New()
	transport := &workerTransport{}
	coordinator := core.New(store, sess, transport)

	client, err := ipc.Start(workerCommand(settings), coordinator.Handlers())
	if err != nil {
		fmt.Printf("Error starting worker: %v\n", err)
		os.Exit(1)
	}
	transport.client = client
	defer client.Stop(stopTimeout)

	if err := coordinator.Start(); err != nil {
		logging.LogError("Initial profile list request failed: %v", err)
	}

	model := ui.NewModel(coordinator)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

// workerCommand resolves the worker invocation: the configured override, or
// this binary re-run with the worker subcommand.
func workerCommand(settings config.Settings) []string {
	if len(settings.WorkerCommand) > 0 {
		return settings.WorkerCommand
	}
	exe, err := os.Executable()
	if err != nil {
		exe = os.Args[0]
	}
	return []string{exe, "worker"}
}
