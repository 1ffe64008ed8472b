package printer

import "github.com/stockd/stockd/internal/model"

// Printer knows how to print task information in different formats.
type Printer interface {
	PrintList(tasks []model.Task) error
	PrintStatus(task model.Task, checkpoint *model.Checkpoint) error
	PrintMessage(msg string) error
}
