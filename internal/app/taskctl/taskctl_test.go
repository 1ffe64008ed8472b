package taskctl_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/stockd/stockd/internal/app/taskctl"
	"github.com/stockd/stockd/internal/log"
	"github.com/stockd/stockd/internal/model"
	"github.com/stockd/stockd/internal/storage/storagemock"
)

func TestNewService(t *testing.T) {
	tests := map[string]struct {
		config taskctl.ServiceConfig
		expErr bool
	}{
		"valid config should create service": {
			config: taskctl.ServiceConfig{
				Repository: &storagemock.MockTaskRepository{},
				Logger:     log.Noop,
			},
			expErr: false,
		},
		"missing repository should fail": {
			config: taskctl.ServiceConfig{
				Logger: log.Noop,
			},
			expErr: true,
		},
		"nil logger should default to noop": {
			config: taskctl.ServiceConfig{
				Repository: &storagemock.MockTaskRepository{},
			},
			expErr: false,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			svc, err := taskctl.NewService(test.config)

			if test.expErr {
				require.Error(err)
				require.Nil(svc)
			} else {
				require.NoError(err)
				require.NotNil(svc)
			}
		})
	}
}

func TestService_Create(t *testing.T) {
	createdAt := time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)

	tests := map[string]struct {
		knownTypes []string
		taskType   string
		params     json.RawMessage
		mockRepo   func(m *storagemock.MockTaskRepository)
		expErr     error
	}{
		"create a valid task": {
			taskType: "sync_prices",
			params:   json.RawMessage(`{"since":"2026-01-01"}`),
			mockRepo: func(m *storagemock.MockTaskRepository) {
				m.On("CreateTask", mock.Anything, "sync_prices", json.RawMessage(`{"since":"2026-01-01"}`), json.RawMessage(nil)).Once().Return("01K3QWERTYASDFGZXCVBNMLKJH", nil)
				m.On("GetTask", mock.Anything, "01K3QWERTYASDFGZXCVBNMLKJH").Once().Return(&model.Task{
					ID:        "01K3QWERTYASDFGZXCVBNMLKJH",
					Type:      "sync_prices",
					Status:    model.TaskStatusPending,
					CreatedAt: createdAt,
				}, nil)
			},
		},
		"empty task type is rejected before hitting the store": {
			taskType: "",
			mockRepo: func(m *storagemock.MockTaskRepository) {},
			expErr:   model.ErrNotValid,
		},
		"unknown task type is rejected when a type list is configured": {
			knownTypes: []string{"sync_prices"},
			taskType:   "sync_nothing",
			mockRepo:   func(m *storagemock.MockTaskRepository) {},
			expErr:     model.ErrNotValid,
		},
		"malformed params JSON is rejected before hitting the store": {
			taskType: "sync_prices",
			params:   json.RawMessage(`{"since":`),
			mockRepo: func(m *storagemock.MockTaskRepository) {},
			expErr:   model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			repo := &storagemock.MockTaskRepository{}
			test.mockRepo(repo)

			svc, err := taskctl.NewService(taskctl.ServiceConfig{
				Repository: repo,
				KnownTypes: test.knownTypes,
				Logger:     log.Noop,
			})
			require.NoError(err)

			task, err := svc.Create(context.Background(), test.taskType, test.params, nil)

			if test.expErr != nil {
				assert.ErrorIs(err, test.expErr)
			} else {
				require.NoError(err)
				require.NotNil(task)
				assert.Equal(model.TaskStatusPending, task.Status)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestService_Pause(t *testing.T) {
	tests := map[string]struct {
		mockRepo func(m *storagemock.MockTaskRepository)
		expErr   error
	}{
		"pause a running task": {
			mockRepo: func(m *storagemock.MockTaskRepository) {
				m.On("GetTask", mock.Anything, "task-1").Once().Return(&model.Task{ID: "task-1", Status: model.TaskStatusRunning}, nil)
				m.On("RequestPause", mock.Anything, "task-1").Once().Return(nil)
			},
		},
		"pausing a pending task is invalid": {
			mockRepo: func(m *storagemock.MockTaskRepository) {
				m.On("GetTask", mock.Anything, "task-1").Once().Return(&model.Task{ID: "task-1", Status: model.TaskStatusPending}, nil)
			},
			expErr: model.ErrNotValid,
		},
		"pausing a completed task is invalid": {
			mockRepo: func(m *storagemock.MockTaskRepository) {
				m.On("GetTask", mock.Anything, "task-1").Once().Return(&model.Task{ID: "task-1", Status: model.TaskStatusCompleted}, nil)
			},
			expErr: model.ErrNotValid,
		},
		"pausing a missing task is not found": {
			mockRepo: func(m *storagemock.MockTaskRepository) {
				m.On("GetTask", mock.Anything, "task-1").Once().Return(nil, model.ErrNotFound)
			},
			expErr: model.ErrNotFound,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			repo := &storagemock.MockTaskRepository{}
			test.mockRepo(repo)

			svc, err := taskctl.NewService(taskctl.ServiceConfig{Repository: repo, Logger: log.Noop})
			require.NoError(err)

			err = svc.Pause(context.Background(), "task-1")

			if test.expErr != nil {
				assert.ErrorIs(err, test.expErr)
			} else {
				assert.NoError(err)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestService_Delete(t *testing.T) {
	tests := map[string]struct {
		mockRepo func(m *storagemock.MockTaskRepository)
		expErr   error
	}{
		"delete a finished task": {
			mockRepo: func(m *storagemock.MockTaskRepository) {
				m.On("GetTask", mock.Anything, "task-1").Once().Return(&model.Task{ID: "task-1", Status: model.TaskStatusCompleted}, nil)
				m.On("DeleteTask", mock.Anything, "task-1").Once().Return(nil)
			},
		},
		"delete a pending task": {
			mockRepo: func(m *storagemock.MockTaskRepository) {
				m.On("GetTask", mock.Anything, "task-1").Once().Return(&model.Task{ID: "task-1", Status: model.TaskStatusPending}, nil)
				m.On("DeleteTask", mock.Anything, "task-1").Once().Return(nil)
			},
		},
		"deleting a running task is invalid": {
			mockRepo: func(m *storagemock.MockTaskRepository) {
				m.On("GetTask", mock.Anything, "task-1").Once().Return(&model.Task{ID: "task-1", Status: model.TaskStatusRunning}, nil)
			},
			expErr: model.ErrNotValid,
		},
		"deleting a paused task is invalid": {
			mockRepo: func(m *storagemock.MockTaskRepository) {
				m.On("GetTask", mock.Anything, "task-1").Once().Return(&model.Task{ID: "task-1", Status: model.TaskStatusPaused}, nil)
			},
			expErr: model.ErrNotValid,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			repo := &storagemock.MockTaskRepository{}
			test.mockRepo(repo)

			svc, err := taskctl.NewService(taskctl.ServiceConfig{Repository: repo, Logger: log.Noop})
			require.NoError(err)

			err = svc.Delete(context.Background(), "task-1")

			if test.expErr != nil {
				assert.ErrorIs(err, test.expErr)
			} else {
				assert.NoError(err)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestService_StopAndResume(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	repo := &storagemock.MockTaskRepository{}
	repo.On("RequestStop", mock.Anything, "task-1").Once().Return(nil)
	repo.On("ResumeTask", mock.Anything, "task-2").Once().Return(nil)

	svc, err := taskctl.NewService(taskctl.ServiceConfig{Repository: repo, Logger: log.Noop})
	require.NoError(err)

	assert.NoError(svc.Stop(context.Background(), "task-1"))
	assert.NoError(svc.Resume(context.Background(), "task-2"))
	repo.AssertExpectations(t)
}
