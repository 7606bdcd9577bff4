package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/lifeline/pkg/cli"
)

const appName = "lifeline"

var (
	// Global flags
	cfgFile     string
	contextName string
	outputFile  string
	outputJSON  bool
	verbose     bool

	globalConfig *cli.Config
)

var rootCmd = &cobra.Command{
	Use:   "lifeline",
	Short: "Realtime voice assistant for health examinations",
	Long: `Lifeline - realtime voice sessions for guided health examinations.

A session connects to the OpenAI realtime API over WebRTC, keeps a live
transcript, answers the assistant's tool calls and saves the conversation
with the examination it belongs to.

Configuration is stored in ~/.lifeline/lifeline/ and supports multiple
contexts, similar to kubectl's context management.

Examples:
  # Set up a context
  lifeline config add-context local --token-endpoint http://localhost:3000/api/session --voice verse
  lifeline config use-context local

  # Serve the token endpoint and the session bridge
  lifeline serve --api-key $OPENAI_API_KEY --listen :3000

  # Start an exam and talk through it, streaming a recording as microphone
  lifeline exam new "Annual checkup"
  lifeline talk --exam <id> --ogg mic.ogg
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "", "", "config file (default is ~/.lifeline/lifeline/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&contextName, "context", "c", "", "context name to use")
	rootCmd.PersistentFlags().StringVarP(&outputFile, "output", "o", "", "output file (default: stdout)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output as JSON (for piping)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(examCmd)
	rootCmd.AddCommand(talkCmd)
	rootCmd.AddCommand(serveCmd)
}

func initConfig() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	var err error
	globalConfig, err = cli.LoadConfigWithPath(appName, cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing config: %v\n", err)
		os.Exit(1)
	}
}

// getContext returns the context selected by -c or the current context.
func getContext() (*cli.Context, error) {
	if globalConfig == nil {
		return nil, fmt.Errorf("configuration not initialized")
	}
	ctx, err := globalConfig.ResolveContext(contextName)
	if err != nil {
		if contextName == "" {
			return nil, fmt.Errorf("no context specified. Use -c flag or set a default context with 'lifeline config use-context'")
		}
		return nil, err
	}
	return ctx, nil
}

// getContextOrDefault is getContext, except that having no context at all
// yields an empty one. Commands that work on local defaults use it.
func getContextOrDefault() (*cli.Context, error) {
	if contextName == "" && globalConfig != nil && globalConfig.CurrentContext == "" {
		return &cli.Context{}, nil
	}
	return getContext()
}

// outputResult outputs the result using cli package
func outputResult(result any) error {
	format := cli.FormatYAML
	if outputJSON {
		format = cli.FormatJSON
	}
	return cli.Output(result, cli.OutputOptions{
		Format: format,
		File:   outputFile,
	})
}
