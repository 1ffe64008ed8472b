package scheduler_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockd/stockd/internal/log"
	"github.com/stockd/stockd/internal/model"
	"github.com/stockd/stockd/internal/scheduler"
	"github.com/stockd/stockd/internal/storage/memory"
)

func getTestRepo(t *testing.T) *memory.TaskRepository {
	repo, err := memory.NewTaskRepository(memory.TaskRepositoryConfig{Logger: log.Noop})
	require.NoError(t, err)
	return repo
}

func TestNew(t *testing.T) {
	tests := map[string]struct {
		config func(t *testing.T) scheduler.Config
		expErr bool
	}{
		"A valid configuration should create a scheduler": {
			config: func(t *testing.T) scheduler.Config {
				return scheduler.Config{
					Repository: getTestRepo(t),
					Schedules: []scheduler.Schedule{
						{Name: "prices", Cron: "@hourly", TaskType: "sync_prices"},
					},
				}
			},
		},

		"A missing repository should fail": {
			config: func(t *testing.T) scheduler.Config {
				return scheduler.Config{}
			},
			expErr: true,
		},

		"A schedule without a task type should fail": {
			config: func(t *testing.T) scheduler.Config {
				return scheduler.Config{
					Repository: getTestRepo(t),
					Schedules:  []scheduler.Schedule{{Name: "broken", Cron: "@hourly"}},
				}
			},
			expErr: true,
		},

		"An invalid cron expression should fail": {
			config: func(t *testing.T) scheduler.Config {
				return scheduler.Config{
					Repository: getTestRepo(t),
					Schedules: []scheduler.Schedule{
						{Name: "broken", Cron: "not a cron", TaskType: "sync_prices"},
					},
				}
			},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := scheduler.New(test.config(t))

			if test.expErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunEnqueuesOnSchedule(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	repo := getTestRepo(t)
	s, err := scheduler.New(scheduler.Config{
		Repository: repo,
		Schedules: []scheduler.Schedule{
			{
				Name:     "prices",
				Cron:     "@every 50ms",
				TaskType: "sync_prices",
				Params:   json.RawMessage(`{"since":"2026-01-01"}`),
			},
		},
	})
	require.NoError(err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	require.Eventually(func() bool {
		tasks, err := repo.ListTasks(context.Background(), nil, 0)
		return err == nil && len(tasks) > 0
	}, 3*time.Second, 10*time.Millisecond)

	// Further firings must be skipped while the task is still pending.
	time.Sleep(200 * time.Millisecond)

	tasks, err := repo.ListTasks(context.Background(), nil, 0)
	require.NoError(err)
	require.Len(tasks, 1)
	assert.Equal("sync_prices", tasks[0].Type)
	assert.Equal(model.TaskStatusPending, tasks[0].Status)
	assert.JSONEq(`{"since":"2026-01-01"}`, string(tasks[0].Params))

	cancel()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}
}
