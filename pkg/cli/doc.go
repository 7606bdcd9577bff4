// Package cli provides common utilities for the lifeline command-line tool.
//
// This package includes:
//   - Configuration management (contexts)
//   - Output formatting (JSON, YAML)
//   - Session file loading (YAML/JSON)
//   - Transcript rendering for the terminal
//
// Configuration is stored in ~/.lifeline/<app>/ directory, supporting
// multiple contexts similar to kubectl.
//
// Example usage:
//
//	cfg, err := cli.LoadConfig("lifeline")
//
//	ctx, err := cfg.ResolveContext(name)
//
//	cli.Output(exam, cli.OutputOptions{
//	    Format: cli.FormatJSON,
//	})
package cli
