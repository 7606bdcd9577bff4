package exam

import (
	"context"
	"errors"
	"time"

	"github.com/haivivi/lifeline/pkg/tools"
)

// StepToolName is the name the assistant calls to record exam progress.
const StepToolName = "markExamStep"

type stepArgs struct {
	StepID string `json:"stepId" jsonschema:"id of the examination step"`
	Done   *bool  `json:"done,omitempty" jsonschema:"false to undo; defaults to true"`
}

// StepResult is returned to the assistant after a step is marked.
type StepResult struct {
	Success        bool   `json:"success"`
	Status         Status `json:"status,omitzero"`
	CompletedSteps int    `json:"completedSteps"`
	TotalSteps     int    `json:"totalSteps"`
	Message        string `json:"message,omitzero"`
}

// StepTool returns a tool that marks steps of the exam named by current.
// current is read on every call, so the tool follows the session's
// association.
func StepTool(store Store, current func() string) *tools.Tool {
	return tools.MustFunc(StepToolName, "Mark an examination step as completed",
		func(ctx context.Context, a stepArgs) (any, error) {
			id := current()
			if id == "" {
				return StepResult{Message: "no exam is open"}, nil
			}
			if a.StepID == "" {
				return nil, errors.New("stepId is required")
			}
			done := true
			if a.Done != nil {
				done = *a.Done
			}
			var e *Exam
			err := store.Update(ctx, id, func(x *Exam) error {
				x.MarkStep(a.StepID, done, time.Now().UTC())
				e = x
				return nil
			})
			if err != nil {
				return nil, err
			}
			return StepResult{
				Success:        true,
				Status:         e.Status,
				CompletedSteps: e.Done(),
				TotalSteps:     e.TotalSteps,
			}, nil
		})
}
