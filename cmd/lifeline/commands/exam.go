package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/haivivi/lifeline/pkg/cli"
	"github.com/haivivi/lifeline/pkg/exam"
)

var examCmd = &cobra.Command{
	Use:   "exam",
	Short: "Manage stored examinations",
	Long: `Create, inspect and delete examinations in the configured store.

Examples:
  lifeline exam new "Annual checkup" --steps 10
  lifeline exam list
  lifeline exam show <id> --json
  lifeline exam step <id> blood-pressure`,
}

var examNewCmd = &cobra.Command{
	Use:   "new [name]",
	Short: "Create an examination",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		if steps <= 0 {
			return fmt.Errorf("--steps must be positive")
		}
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		return withStore(cmd.Context(), func(ctx context.Context, store exam.Store) error {
			e := exam.New(name, steps)
			if err := store.Save(ctx, e); err != nil {
				return err
			}
			return outputResult(e)
		})
	},
}

// examSummary is one row of "exam list".
type examSummary struct {
	ID        string      `json:"id" yaml:"id"`
	Name      string      `json:"name,omitzero" yaml:"name,omitempty"`
	Status    exam.Status `json:"status" yaml:"status"`
	Progress  string      `json:"progress" yaml:"progress"`
	Messages  int         `json:"messages" yaml:"messages"`
	CreatedAt time.Time   `json:"createdAt" yaml:"created_at"`
}

var examListCmd = &cobra.Command{
	Use:   "list",
	Short: "List examinations, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, store exam.Store) error {
			exams, err := store.List(ctx)
			if err != nil {
				return err
			}
			rows := make([]examSummary, 0, len(exams))
			for _, e := range exams {
				rows = append(rows, examSummary{
					ID:        e.ID,
					Name:      e.Name,
					Status:    e.Status,
					Progress:  fmt.Sprintf("%d/%d", e.Done(), e.TotalSteps),
					Messages:  len(e.Conversation),
					CreatedAt: e.CreatedAt,
				})
			}
			return outputResult(rows)
		})
	},
}

var examShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show an examination",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		transcript, _ := cmd.Flags().GetBool("transcript")
		return withStore(cmd.Context(), func(ctx context.Context, store exam.Store) error {
			e, err := store.Load(ctx, args[0])
			if err != nil {
				return err
			}
			if !transcript {
				return outputResult(e)
			}
			styles := cli.NewStyles(cli.DefaultTheme)
			for _, entry := range e.Conversation {
				fmt.Println(styles.Entry(entry))
			}
			return nil
		})
	},
}

var examDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an examination",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(cmd.Context(), func(ctx context.Context, store exam.Store) error {
			if err := store.Delete(ctx, args[0]); err != nil {
				return err
			}
			cli.PrintSuccess("Exam %s deleted", args[0])
			return nil
		})
	},
}

var examStepCmd = &cobra.Command{
	Use:   "step <id> <step-id>",
	Short: "Mark an examination step as done",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		undo, _ := cmd.Flags().GetBool("undo")
		return withStore(cmd.Context(), func(ctx context.Context, store exam.Store) error {
			var e *exam.Exam
			err := store.Update(ctx, args[0], func(x *exam.Exam) error {
				x.MarkStep(args[1], !undo, time.Now().UTC())
				e = x
				return nil
			})
			if err != nil {
				return err
			}
			return outputResult(e)
		})
	},
}

func init() {
	examNewCmd.Flags().Int("steps", exam.DefaultTotalSteps, "number of examination steps")
	examShowCmd.Flags().Bool("transcript", false, "print the conversation only")
	examStepCmd.Flags().Bool("undo", false, "mark the step as not done")

	examCmd.AddCommand(examNewCmd)
	examCmd.AddCommand(examListCmd)
	examCmd.AddCommand(examShowCmd)
	examCmd.AddCommand(examDeleteCmd)
	examCmd.AddCommand(examStepCmd)
}

// withStore opens the store of the selected context for the duration of fn.
func withStore(ctx context.Context, fn func(context.Context, exam.Store) error) error {
	c, err := getContextOrDefault()
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(c)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(ctx, store)
}
