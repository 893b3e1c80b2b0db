package cmd

import (
	"fmt"
	"os"
)

// HandleHelpCommand displays help information for the application
func HandleHelpCommand() {
	showMainHelp()
}

// showMainHelp displays the main application help
func showMainHelp() {
	programName := os.Args[0]
	fmt.Printf(`sshfwd - SSH Connection Profile Manager

A terminal-based UI application for managing SSH connection profiles
with port forwarding, backed by a dedicated worker process.

Usage:
  %s [command]

Available Commands:
  worker   Run the backend worker process (started automatically by the TUI)
  help     Show help information

Options:
  -h, --help  Show help information

Interactive Mode:
  Run without any command to start the interactive TUI where you can:
  - Connect to a profile with Enter, disconnect with 'd'
  - Add a new profile with 'n', edit with 'e', delete with 'x'
  - Refresh the profile list from the worker with 'r'
  - Press 'q' to quit

Examples:
  %s          Start interactive TUI
  %s help     Show this help message

Configuration lives under ~/.sshfwd/ (config.yaml, profile storage, logs).
`, programName, programName, programName)
}

// ShowMainHelpAndExit displays help and exits with code 0
func ShowMainHelpAndExit() {
	showMainHelp()
	os.Exit(0)
}
