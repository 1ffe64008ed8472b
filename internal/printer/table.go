package printer

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/stockd/stockd/internal/model"
)

// TablePrinter prints task information in a table format.
type TablePrinter struct {
	writer io.Writer
}

// NewTablePrinter creates a new table printer.
func NewTablePrinter(w io.Writer) *TablePrinter {
	return &TablePrinter{writer: w}
}

// PrintList prints tasks in a table format.
func (t *TablePrinter) PrintList(tasks []model.Task) error {
	if len(tasks) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(t.writer, 0, 0, 2, ' ', 0)
	defer tw.Flush()

	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tPROGRESS\tCREATED")
	for _, task := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d%%\t%s\n",
			task.ID, task.Type, task.Status, task.Progress, TimeAgo(task.CreatedAt))
	}

	return nil
}

// PrintStatus prints detailed task status.
func (t *TablePrinter) PrintStatus(task model.Task, checkpoint *model.Checkpoint) error {
	fmt.Fprintf(t.writer, "ID:          %s\n", task.ID)
	fmt.Fprintf(t.writer, "Type:        %s\n", task.Type)
	fmt.Fprintf(t.writer, "Status:      %s\n", task.Status)
	fmt.Fprintf(t.writer, "Progress:    %d%%\n", task.Progress)
	fmt.Fprintf(t.writer, "Items:       %d/%d\n", task.CurrentIndex, task.TotalItems)
	fmt.Fprintf(t.writer, "Stats:       %d ok, %d failed, %d skipped\n",
		task.Stats.Success, task.Stats.Failed, task.Stats.Skipped)

	if task.Message != "" {
		fmt.Fprintf(t.writer, "Message:     %s\n", task.Message)
	}

	if task.Error != "" {
		fmt.Fprintf(t.writer, "Error:       %s\n", task.Error)
	}

	if task.StopRequested {
		fmt.Fprintf(t.writer, "Stop:        requested\n")
	}

	if task.PauseRequested {
		fmt.Fprintf(t.writer, "Pause:       requested\n")
	}

	fmt.Fprintf(t.writer, "Created:     %s\n", FormatTimestamp(task.CreatedAt))

	if task.CompletedAt != nil {
		fmt.Fprintf(t.writer, "Completed:   %s\n", FormatTimestamp(*task.CompletedAt))
	}

	if checkpoint != nil {
		fmt.Fprintf(t.writer, "\nCheckpoint:\n")
		fmt.Fprintf(t.writer, "  Next index: %d\n", checkpoint.CurrentIndex)
		if checkpoint.Stage != "" {
			fmt.Fprintf(t.writer, "  Stage:      %s\n", checkpoint.Stage)
		}
		fmt.Fprintf(t.writer, "  Stats:      %d ok, %d failed, %d skipped\n",
			checkpoint.Stats.Success, checkpoint.Stats.Failed, checkpoint.Stats.Skipped)
		fmt.Fprintf(t.writer, "  Updated:    %s\n", FormatTimestamp(checkpoint.UpdatedAt))
	}

	return nil
}

// PrintMessage prints a simple text message.
func (t *TablePrinter) PrintMessage(msg string) error {
	fmt.Fprintln(t.writer, msg)
	return nil
}
