// Package main provides the lifeline CLI.
//
// Usage:
//
//	lifeline [flags] <command> [args]
//
// Commands:
//
//	talk   - Run a realtime voice session in the terminal
//	serve  - Serve the token endpoint and the WebSocket session bridge
//	exam   - Manage stored examinations
//	config - Configuration management
//
// Configuration:
//
//	The CLI stores configuration in ~/.lifeline/lifeline/
//	Use 'lifeline config' commands to manage contexts.
package main

import (
	"fmt"
	"os"

	"github.com/haivivi/lifeline/cmd/lifeline/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
