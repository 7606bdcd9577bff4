package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/haivivi/lifeline/pkg/cli"
	"github.com/haivivi/lifeline/pkg/storage"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Manage lifeline configuration and contexts.

Contexts name a token endpoint, a default voice and an exam store.
Configuration is stored in ~/.lifeline/lifeline/config.yaml`,
}

var configAddContextCmd = &cobra.Command{
	Use:   "add-context <name>",
	Short: "Add or replace a context",
	Long: `Add or replace a configuration context.

Examples:
  lifeline config add-context local --token-endpoint http://localhost:3000/api/session
  lifeline config add-context cloud --api-key sk-xxx --store s3 --s3-bucket exams --s3-region eu-west-1`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigAddContext,
}

var configDeleteContextCmd = &cobra.Command{
	Use:   "delete-context <name>",
	Short: "Delete a context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := globalConfig.DeleteContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Context %q deleted", args[0])
		return nil
	},
}

var configUseContextCmd = &cobra.Command{
	Use:   "use-context <name>",
	Short: "Set the current context",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := globalConfig.UseContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Switched to context %q", args[0])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "List contexts",
	RunE: func(cmd *cobra.Command, args []string) error {
		names := globalConfig.ListContexts()
		if len(names) == 0 {
			cli.PrintInfo("No contexts configured. Use 'lifeline config add-context' to add one.")
			return nil
		}
		for _, name := range names {
			marker := " "
			if name == globalConfig.CurrentContext {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, name)
		}
		return nil
	},
}

var configViewCmd = &cobra.Command{
	Use:   "view [name]",
	Short: "Show a context with secrets masked",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := contextName
		if len(args) == 1 {
			name = args[0]
		}
		ctx, err := globalConfig.ResolveContext(name)
		if err != nil {
			return err
		}
		return outputResult(ctx.Masked())
	},
}

func init() {
	f := configAddContextCmd.Flags()
	f.String("token-endpoint", "", "application backend issuing realtime credentials")
	f.String("credential-path", "", "jq path to the credential in the token response")
	f.String("realtime-url", "", "SDP exchange endpoint")
	f.String("api-key", "", "OpenAI API key (used by serve)")
	f.String("base-url", "", "OpenAI API base URL (used by serve)")
	f.String("voice", "", "default voice")
	f.String("model", "", "default realtime model")
	f.String("tools-file", "", "YAML file of tool declarations")
	f.String("store", "", "exam store: badger, memory, local or s3")
	f.String("store-dir", "", "directory of the badger or local store")
	f.String("s3-bucket", "", "S3 bucket")
	f.String("s3-prefix", "", "S3 key prefix")
	f.String("s3-region", "", "S3 region")
	f.String("s3-endpoint", "", "S3 endpoint (e.g. MinIO)")
	f.String("s3-access-key", "", "S3 access key id")
	f.String("s3-secret-key", "", "S3 secret access key")
	f.Bool("use", false, "also make it the current context")

	configCmd.AddCommand(configAddContextCmd)
	configCmd.AddCommand(configDeleteContextCmd)
	configCmd.AddCommand(configUseContextCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configViewCmd)
}

func runConfigAddContext(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	str := func(name string) string {
		v, _ := f.GetString(name)
		return v
	}

	ctx := &cli.Context{
		TokenEndpoint:  str("token-endpoint"),
		CredentialPath: str("credential-path"),
		RealtimeURL:    str("realtime-url"),
		APIKey:         str("api-key"),
		BaseURL:        str("base-url"),
		Voice:          str("voice"),
		Model:          str("model"),
		ToolsFile:      str("tools-file"),
	}
	if kind := str("store"); kind != "" {
		ctx.Store = &cli.StoreConfig{Kind: kind, Dir: str("store-dir")}
		switch kind {
		case cli.StoreBadger, cli.StoreMemory, cli.StoreLocal:
		case cli.StoreS3:
			if str("s3-bucket") == "" {
				return fmt.Errorf("--s3-bucket is required for the s3 store")
			}
			ctx.Store.S3 = &storage.S3Config{
				Bucket:          str("s3-bucket"),
				Prefix:          str("s3-prefix"),
				Region:          str("s3-region"),
				Endpoint:        str("s3-endpoint"),
				AccessKeyID:     str("s3-access-key"),
				SecretAccessKey: str("s3-secret-key"),
			}
		default:
			return fmt.Errorf("unknown store %q", kind)
		}
	}

	if err := globalConfig.AddContext(args[0], ctx); err != nil {
		return err
	}
	cli.PrintSuccess("Context %q saved to %s", args[0], globalConfig.Path())

	if use, _ := f.GetBool("use"); use {
		if err := globalConfig.UseContext(args[0]); err != nil {
			return err
		}
		cli.PrintSuccess("Switched to context %q", args[0])
	}
	return nil
}
