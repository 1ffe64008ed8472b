package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/stockd/stockd/internal/model"
)

// JSONPrinter prints task information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// listItem represents a task in the list output (subset of fields).
type listItem struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
}

// statusOutput represents the full task status output.
type statusOutput struct {
	ID             string            `json:"id"`
	Type           string            `json:"type"`
	Status         string            `json:"status"`
	Progress       int               `json:"progress"`
	CurrentIndex   int               `json:"current_index"`
	TotalItems     int               `json:"total_items"`
	Stats          model.TaskStats   `json:"stats"`
	Params         json.RawMessage   `json:"params,omitempty"`
	Result         json.RawMessage   `json:"result,omitempty"`
	Error          string            `json:"error,omitempty"`
	Message        string            `json:"message,omitempty"`
	StopRequested  bool              `json:"stop_requested"`
	PauseRequested bool              `json:"pause_requested"`
	CreatedAt      time.Time         `json:"created_at"`
	CompletedAt    *time.Time        `json:"completed_at"`
	Checkpoint     *checkpointOutput `json:"checkpoint,omitempty"`
}

// checkpointOutput represents the checkpoint part of the status output.
type checkpointOutput struct {
	CurrentIndex int             `json:"current_index"`
	Stats        model.TaskStats `json:"stats"`
	Stage        string          `json:"stage,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// messageOutput represents a simple message output.
type messageOutput struct {
	Message string `json:"message"`
}

// PrintList prints tasks in JSON format with a subset of fields.
func (j *JSONPrinter) PrintList(tasks []model.Task) error {
	items := make([]listItem, len(tasks))
	for i, task := range tasks {
		items[i] = listItem{
			ID:        task.ID,
			Type:      task.Type,
			Status:    string(task.Status),
			Progress:  task.Progress,
			CreatedAt: task.CreatedAt.UTC(),
		}
	}

	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

// PrintStatus prints detailed task status in JSON format.
func (j *JSONPrinter) PrintStatus(task model.Task, checkpoint *model.Checkpoint) error {
	output := statusOutput{
		ID:             task.ID,
		Type:           task.Type,
		Status:         string(task.Status),
		Progress:       task.Progress,
		CurrentIndex:   task.CurrentIndex,
		TotalItems:     task.TotalItems,
		Stats:          task.Stats,
		Params:         task.Params,
		Result:         task.Result,
		Error:          task.Error,
		Message:        task.Message,
		StopRequested:  task.StopRequested,
		PauseRequested: task.PauseRequested,
		CreatedAt:      task.CreatedAt.UTC(),
	}

	if task.CompletedAt != nil {
		utcTime := task.CompletedAt.UTC()
		output.CompletedAt = &utcTime
	}

	if checkpoint != nil {
		output.Checkpoint = &checkpointOutput{
			CurrentIndex: checkpoint.CurrentIndex,
			Stats:        checkpoint.Stats,
			Stage:        checkpoint.Stage,
			UpdatedAt:    checkpoint.UpdatedAt.UTC(),
		}
	}

	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

// PrintMessage prints a simple message in JSON format.
func (j *JSONPrinter) PrintMessage(msg string) error {
	output := messageOutput{Message: msg}
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}
