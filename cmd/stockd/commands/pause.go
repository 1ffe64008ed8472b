package commands

import (
	"context"
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/stockd/stockd/internal/app/taskctl"
	"github.com/stockd/stockd/internal/printer"
)

type PauseCommand struct {
	Cmd     *kingpin.CmdClause
	rootCmd *RootCommand

	taskID string
}

// NewPauseCommand returns the pause command.
func NewPauseCommand(rootCmd *RootCommand, app *kingpin.Application) *PauseCommand {
	c := &PauseCommand{rootCmd: rootCmd}

	c.Cmd = app.Command("pause", "Request a cooperative pause of a running task.")
	c.Cmd.Arg("id", "Task ID.").Required().StringVar(&c.taskID)

	return c
}

func (c PauseCommand) Name() string { return c.Cmd.FullCommand() }

func (c PauseCommand) Run(ctx context.Context) error {
	logger := c.rootCmd.Logger

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

	if err := svc.Pause(ctx, c.taskID); err != nil {
		return fmt.Errorf("could not pause task: %w", err)
	}

	p := printer.NewTablePrinter(c.rootCmd.Stdout)
	if err := p.PrintMessage(fmt.Sprintf("Requested pause for task: %s", c.taskID)); err != nil {
		return fmt.Errorf("could not print message: %w", err)
	}

	return nil
}
