package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/stockd/stockd/internal/app/taskctl"
	"github.com/stockd/stockd/internal/model"
	"github.com/stockd/stockd/internal/printer"
)

type ListCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	statusFilter string
	limit        int
	format       string
}

// NewListCommand returns the list command.
func NewListCommand(rootCmd *RootCommand, app *kingpin.Application) *ListCommand {
	c := &ListCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("list", "List tasks, newest first.")
	c.Cmd.Flag("status", "Filter by status (pending, running, paused, completed, failed, stopped).").StringVar(&c.statusFilter)
	c.Cmd.Flag("limit", "Maximum number of tasks to show, 0 for all.").Default("0").IntVar(&c.limit)
	c.Cmd.Flag("format", "Output format (table, json).").Default("table").EnumVar(&c.format, "table", "json")

	return c
}

func (c ListCommand) Name() string { return c.Cmd.FullCommand() }

func (c ListCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

	// Parse status filter if provided.
	var statusFilter *model.TaskStatus
	if c.statusFilter != "" {
		status, err := model.ParseTaskStatus(c.statusFilter)
		if err != nil {
			return fmt.Errorf("invalid status filter: %s (must be: pending, running, paused, completed, failed, stopped)", c.statusFilter)
		}
		statusFilter = &status
	}

	repo, err := c.rootCmd.newTaskRepository(ctx)
	if err != nil {
		return err
	}

	svc, err := taskctl.NewService(taskctl.ServiceConfig{
		Repository: repo,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("could not create service: %w", err)
	}

	tasks, err := svc.List(ctx, statusFilter, c.limit)
	if err != nil {
		return fmt.Errorf("could not list tasks: %w", err)
	}

	// Print output.
	var p printer.Printer
	switch c.format {
	case "json":
		p = printer.NewJSONPrinter(c.rootCmd.Stdout)
	default: // table
		p = printer.NewTablePrinter(c.rootCmd.Stdout)
	}

	if err := p.PrintList(tasks); err != nil {
		return fmt.Errorf("could not print list: %w", err)
	}

	return nil
}
