package runner_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockd/stockd/internal/log"
	"github.com/stockd/stockd/internal/model"
	"github.com/stockd/stockd/internal/runner"
	"github.com/stockd/stockd/internal/storage"
	"github.com/stockd/stockd/internal/storage/memory"
)

func getTestStore(t *testing.T, status model.TaskStatus) (*memory.TaskRepository, string) {
	t.Helper()

	repo, err := memory.NewTaskRepository(memory.TaskRepositoryConfig{Logger: log.Noop})
	require.NoError(t, err)

	taskID, err := repo.CreateTask(context.Background(), "sync_prices", nil, nil)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateTask(context.Background(), taskID, storage.TaskUpdate{Status: &status}))

	return repo, taskID
}

func TestRunProcessesAllItems(t *testing.T) {
	tests := map[string]struct {
		total     int
		process   func(ctx context.Context, index int) error
		expStats  model.TaskStats
		expStatus model.TaskStatus
	}{
		"A run over all items should count every success": {
			total:    5,
			process:  func(ctx context.Context, index int) error { return nil },
			expStats: model.TaskStats{Success: 5},
		},

		"Skipped items should be counted apart from successes": {
			total: 4,
			process: func(ctx context.Context, index int) error {
				if index%2 == 0 {
					return runner.ErrSkipItem
				}
				return nil
			},
			expStats: model.TaskStats{Success: 2, Skipped: 2},
		},

		"Per-item failures should not abort the run": {
			total: 3,
			process: func(ctx context.Context, index int) error {
				if index == 1 {
					return fmt.Errorf("provider unavailable")
				}
				return nil
			},
			expStats: model.TaskStats{Success: 2, Failed: 1},
		},

		"An empty iteration space should finish immediately": {
			total:    0,
			process:  func(ctx context.Context, index int) error { return nil },
			expStats: model.TaskStats{},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			repo, taskID := getTestStore(t, model.TaskStatusRunning)

			res, err := runner.Run(context.Background(), runner.Config{
				Store:       repo,
				TaskID:      taskID,
				TotalItems:  test.total,
				ProcessItem: test.process,
			})
			require.NoError(err)
			require.NotNil(res)

			assert.False(res.Stopped)
			assert.Equal(test.total, res.Processed)
			assert.Equal(test.expStats, res.Stats)

			task, err := repo.GetTask(context.Background(), taskID)
			require.NoError(err)
			assert.Equal(test.expStats, task.Stats)
			assert.Equal(test.total, task.CurrentIndex)

			// A finished run leaves no checkpoint behind.
			cp, err := repo.LoadCheckpoint(context.Background(), taskID)
			require.NoError(err)
			assert.Nil(cp)
		})
	}
}

func TestRunCheckpointCadence(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	repo, taskID := getTestStore(t, model.TaskStatusRunning)

	var lastSeen *model.Checkpoint
	_, err := runner.Run(context.Background(), runner.Config{
		Store:           repo,
		TaskID:          taskID,
		TotalItems:      25,
		CheckpointEvery: 10,
		ProcessItem: func(ctx context.Context, index int) error {
			cp, err := repo.LoadCheckpoint(ctx, taskID)
			require.NoError(err)
			if cp != nil {
				lastSeen = cp
			}
			return nil
		},
	})
	require.NoError(err)

	// The last mid-run checkpoint sat at item 20, item 25 finished the run
	// and removed it.
	require.NotNil(lastSeen)
	assert.Equal(20, lastSeen.CurrentIndex)
	assert.Equal(20, lastSeen.Stats.Success)
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	repo, taskID := getTestStore(t, model.TaskStatusRunning)
	ctx := context.Background()

	// Simulate a previous run that died after item 4: checkpoint at index 4
	// and some extra counts accumulated past the snapshot.
	require.NoError(repo.SaveCheckpoint(ctx, model.Checkpoint{
		TaskID:       taskID,
		CurrentIndex: 4,
		Stats:        model.TaskStats{Success: 3, Failed: 1},
	}))
	require.NoError(repo.IncrementStats(ctx, taskID, model.StatSuccess, 6))

	var mu sync.Mutex
	processed := []int{}
	res, err := runner.Run(ctx, runner.Config{
		Store:      repo,
		TaskID:     taskID,
		TotalItems: 10,
		ProcessItem: func(ctx context.Context, index int) error {
			mu.Lock()
			defer mu.Unlock()
			processed = append(processed, index)
			return nil
		},
	})
	require.NoError(err)

	// Only items from the checkpoint onwards run, each exactly once.
	assert.Equal([]int{4, 5, 6, 7, 8, 9}, processed)
	assert.Equal(6, res.Processed)

	// Counters restart from the snapshot, items re-counted after the dead
	// run's checkpoint are not counted twice.
	assert.Equal(model.TaskStats{Success: 9, Failed: 1}, res.Stats)

	task, err := repo.GetTask(ctx, taskID)
	require.NoError(err)
	assert.Equal(model.TaskStats{Success: 9, Failed: 1}, task.Stats)
	assert.Equal(100, task.Progress)
}

func TestRunIgnoresForeignCheckpoints(t *testing.T) {
	tests := map[string]struct {
		checkpoint model.Checkpoint
		total      int
	}{
		"A checkpoint of a different stage should be ignored": {
			checkpoint: model.Checkpoint{CurrentIndex: 4, Stage: "2025Q4"},
			total:      6,
		},

		"A checkpoint beyond the iteration space should be ignored": {
			checkpoint: model.Checkpoint{CurrentIndex: 99},
			total:      6,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			repo, taskID := getTestStore(t, model.TaskStatusRunning)
			ctx := context.Background()

			test.checkpoint.TaskID = taskID
			require.NoError(repo.SaveCheckpoint(ctx, test.checkpoint))

			res, err := runner.Run(ctx, runner.Config{
				Store:       repo,
				TaskID:      taskID,
				TotalItems:  test.total,
				ProcessItem: func(ctx context.Context, index int) error { return nil },
			})
			require.NoError(err)

			// The whole space ran from scratch.
			assert.Equal(test.total, res.Processed)
		})
	}
}

func TestRunHonorsStop(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	repo, taskID := getTestStore(t, model.TaskStatusRunning)
	ctx := context.Background()

	res, err := runner.Run(ctx, runner.Config{
		Store:      repo,
		TaskID:     taskID,
		TotalItems: 10,
		ProcessItem: func(ctx context.Context, index int) error {
			if index == 2 {
				require.NoError(repo.RequestStop(ctx, taskID))
			}
			return nil
		},
	})
	require.NoError(err)

	// The flag raised during item 2 is honored before item 3.
	assert.True(res.Stopped)
	assert.Equal(3, res.Processed)

	task, err := repo.GetTask(ctx, taskID)
	require.NoError(err)
	assert.Equal(model.TaskStatusStopped, task.Status)
	assert.False(task.StopRequested)
	assert.NotNil(task.CompletedAt)

	// The position survives for inspection even though the task is final.
	cp, err := repo.LoadCheckpoint(ctx, taskID)
	require.NoError(err)
	require.NotNil(cp)
	assert.Equal(3, cp.CurrentIndex)
}

func TestRunPauseAndResume(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	repo, taskID := getTestStore(t, model.TaskStatusRunning)
	ctx := context.Background()

	// Un-pause the task as soon as it parks.
	go func() {
		for {
			task, err := repo.GetTask(ctx, taskID)
			if err == nil && task.Status == model.TaskStatusPaused {
				_ = repo.ResumeTask(ctx, taskID)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	res, err := runner.Run(ctx, runner.Config{
		Store:             repo,
		TaskID:            taskID,
		TotalItems:        5,
		PausePollInterval: 10 * time.Millisecond,
		ProcessItem: func(ctx context.Context, index int) error {
			if index == 1 {
				require.NoError(repo.RequestPause(ctx, taskID))
			}
			return nil
		},
	})
	require.NoError(err)

	// The run parked after item 1 and finished after the resume.
	assert.False(res.Stopped)
	assert.Equal(5, res.Processed)

	task, err := repo.GetTask(ctx, taskID)
	require.NoError(err)
	assert.Equal(model.TaskStatusRunning, task.Status)
	assert.Equal(model.TaskStats{Success: 5}, task.Stats)
}

func TestRunStopWhilePaused(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	repo, taskID := getTestStore(t, model.TaskStatusRunning)
	ctx := context.Background()

	// Request a stop once the task parks on pause.
	go func() {
		for {
			task, err := repo.GetTask(ctx, taskID)
			if err == nil && task.Status == model.TaskStatusPaused {
				_ = repo.RequestStop(ctx, taskID)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	res, err := runner.Run(ctx, runner.Config{
		Store:             repo,
		TaskID:            taskID,
		TotalItems:        5,
		PausePollInterval: 10 * time.Millisecond,
		ProcessItem: func(ctx context.Context, index int) error {
			if index == 0 {
				require.NoError(repo.RequestPause(ctx, taskID))
			}
			return nil
		},
	})
	require.NoError(err)

	// Stop wins over staying paused.
	assert.True(res.Stopped)

	task, err := repo.GetTask(ctx, taskID)
	require.NoError(err)
	assert.Equal(model.TaskStatusStopped, task.Status)
	assert.False(task.StopRequested)
	assert.False(task.PauseRequested)
}

func TestRunInterruptedByContext(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	repo, taskID := getTestStore(t, model.TaskStatusRunning)

	ctx, cancel := context.WithCancel(context.Background())
	_, err := runner.Run(ctx, runner.Config{
		Store:      repo,
		TaskID:     taskID,
		TotalItems: 10,
		ProcessItem: func(ctx context.Context, index int) error {
			if index == 3 {
				cancel()
			}
			return nil
		},
	})

	// The run surfaces the cancellation after checkpointing its position.
	require.ErrorIs(err, context.Canceled)

	cp, err := repo.LoadCheckpoint(context.Background(), taskID)
	require.NoError(err)
	require.NotNil(cp)
	assert.Equal(4, cp.CurrentIndex)
	assert.Equal(4, cp.Stats.Success)

	// The status is untouched so the next process can recover the task.
	task, err := repo.GetTask(context.Background(), taskID)
	require.NoError(err)
	assert.Equal(model.TaskStatusRunning, task.Status)
}

func TestRunInvalidConfig(t *testing.T) {
	repo, taskID := getTestStore(t, model.TaskStatusRunning)

	tests := map[string]runner.Config{
		"Missing store should fail": {
			TaskID:      taskID,
			ProcessItem: func(ctx context.Context, index int) error { return nil },
		},
		"Missing task ID should fail": {
			Store:       repo,
			ProcessItem: func(ctx context.Context, index int) error { return nil },
		},
		"Missing process func should fail": {
			Store:  repo,
			TaskID: taskID,
		},
		"Negative total should fail": {
			Store:       repo,
			TaskID:      taskID,
			TotalItems:  -1,
			ProcessItem: func(ctx context.Context, index int) error { return nil },
		},
	}

	for name, cfg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := runner.Run(context.Background(), cfg)
			assert.Error(t, err)
		})
	}
}
