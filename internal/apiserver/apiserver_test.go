package apiserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockd/stockd/internal/apiserver"
	"github.com/stockd/stockd/internal/app/taskctl"
	"github.com/stockd/stockd/internal/log"
	"github.com/stockd/stockd/internal/model"
	"github.com/stockd/stockd/internal/storage"
	"github.com/stockd/stockd/internal/storage/memory"
)

func getTestServer(t *testing.T) (*httptest.Server, *memory.TaskRepository) {
	t.Helper()

	repo, err := memory.NewTaskRepository(memory.TaskRepositoryConfig{Logger: log.Noop})
	require.NoError(t, err)

	svc, err := taskctl.NewService(taskctl.ServiceConfig{
		Repository: repo,
		KnownTypes: []string{"sync_prices", "sync_industry", "sync_reports"},
		Logger:     log.Noop,
	})
	require.NoError(t, err)

	handler, err := apiserver.NewHandler(apiserver.Config{
		ListenAddr: ":0",
		Service:    svc,
		Logger:     log.Noop,
	})
	require.NoError(t, err)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return server, repo
}

func TestCreateTaskEndpoint(t *testing.T) {
	tests := map[string]struct {
		body    string
		expCode int
	}{
		"Creating a valid task should return 201": {
			body:    `{"type":"sync_prices","params":{"since":"2026-01-01"}}`,
			expCode: http.StatusCreated,
		},

		"An unknown task type should return 400": {
			body:    `{"type":"sync_nothing"}`,
			expCode: http.StatusBadRequest,
		},

		"A malformed body should return 400": {
			body:    `{"type":`,
			expCode: http.StatusBadRequest,
		},

		"A missing type should return 400": {
			body:    `{"params":{}}`,
			expCode: http.StatusBadRequest,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			server, _ := getTestServer(t)

			resp, err := http.Post(server.URL+"/api/v1/tasks", "application/json", strings.NewReader(test.body))
			require.NoError(err)
			defer resp.Body.Close()

			assert.Equal(test.expCode, resp.StatusCode)

			if test.expCode == http.StatusCreated {
				var task struct {
					ID     string `json:"id"`
					Type   string `json:"type"`
					Status string `json:"status"`
				}
				require.NoError(json.NewDecoder(resp.Body).Decode(&task))
				assert.NotEmpty(task.ID)
				assert.Equal("sync_prices", task.Type)
				assert.Equal("pending", task.Status)
			}
		})
	}
}

func TestGetTaskEndpoint(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	server, repo := getTestServer(t)
	ctx := context.Background()

	taskID, err := repo.CreateTask(ctx, "sync_prices", json.RawMessage(`{}`), nil)
	require.NoError(err)
	require.NoError(repo.SaveCheckpoint(ctx, model.Checkpoint{
		TaskID:       taskID,
		CurrentIndex: 7,
		Stats:        model.TaskStats{Success: 6, Failed: 1},
	}))

	resp, err := http.Get(server.URL + "/api/v1/tasks/" + taskID)
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)

	var body struct {
		ID         string `json:"id"`
		Status     string `json:"status"`
		Checkpoint *struct {
			CurrentIndex int `json:"current_index"`
		} `json:"checkpoint"`
	}
	require.NoError(json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(taskID, body.ID)
	assert.Equal("pending", body.Status)
	require.NotNil(body.Checkpoint)
	assert.Equal(7, body.Checkpoint.CurrentIndex)

	// Missing tasks are 404.
	resp, err = http.Get(server.URL + "/api/v1/tasks/missing")
	require.NoError(err)
	defer resp.Body.Close()
	assert.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestListTasksEndpoint(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	server, repo := getTestServer(t)
	ctx := context.Background()

	id1, err := repo.CreateTask(ctx, "sync_prices", nil, nil)
	require.NoError(err)
	id2, err := repo.CreateTask(ctx, "sync_industry", nil, nil)
	require.NoError(err)
	running := model.TaskStatusRunning
	require.NoError(repo.UpdateTask(ctx, id2, storage.TaskUpdate{Status: &running}))

	resp, err := http.Get(server.URL + "/api/v1/tasks")
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)

	var tasks []struct {
		ID string `json:"id"`
	}
	require.NoError(json.NewDecoder(resp.Body).Decode(&tasks))
	require.Len(tasks, 2)
	assert.Equal(id2, tasks[0].ID)
	assert.Equal(id1, tasks[1].ID)

	// Status filter.
	resp, err = http.Get(server.URL + "/api/v1/tasks?status=running")
	require.NoError(err)
	defer resp.Body.Close()
	require.NoError(json.NewDecoder(resp.Body).Decode(&tasks))
	require.Len(tasks, 1)
	assert.Equal(id2, tasks[0].ID)

	// Bad filter values are 400.
	resp, err = http.Get(server.URL + "/api/v1/tasks?status=bogus")
	require.NoError(err)
	defer resp.Body.Close()
	assert.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestTaskControlEndpoints(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	server, repo := getTestServer(t)
	ctx := context.Background()

	taskID, err := repo.CreateTask(ctx, "sync_prices", nil, nil)
	require.NoError(err)
	running := model.TaskStatusRunning
	require.NoError(repo.UpdateTask(ctx, taskID, storage.TaskUpdate{Status: &running}))

	// Pause raises the flag.
	resp, err := http.Post(server.URL+"/api/v1/tasks/"+taskID+"/pause", "application/json", nil)
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)

	paused, err := repo.IsPauseRequested(ctx, taskID)
	require.NoError(err)
	assert.True(paused)

	// Resume only works on tasks actually parked in paused.
	resp, err = http.Post(server.URL+"/api/v1/tasks/"+taskID+"/resume", "application/json", nil)
	require.NoError(err)
	defer resp.Body.Close()
	assert.Equal(http.StatusBadRequest, resp.StatusCode)

	pausedStatus := model.TaskStatusPaused
	require.NoError(repo.UpdateTask(ctx, taskID, storage.TaskUpdate{Status: &pausedStatus}))

	resp, err = http.Post(server.URL+"/api/v1/tasks/"+taskID+"/resume", "application/json", nil)
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)

	var body struct {
		Status string `json:"status"`
	}
	require.NoError(json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal("running", body.Status)

	// Stop raises the flag on the running task.
	resp, err = http.Post(server.URL+"/api/v1/tasks/"+taskID+"/stop", "application/json", nil)
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)

	stop, err := repo.IsStopRequested(ctx, taskID)
	require.NoError(err)
	assert.True(stop)
}

func TestDeleteTaskEndpoint(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	server, repo := getTestServer(t)
	ctx := context.Background()

	taskID, err := repo.CreateTask(ctx, "sync_prices", nil, nil)
	require.NoError(err)

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/v1/tasks/"+taskID, nil)
	require.NoError(err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(err)
	defer resp.Body.Close()
	assert.Equal(http.StatusNoContent, resp.StatusCode)

	_, err = repo.GetTask(ctx, taskID)
	assert.ErrorIs(err, model.ErrNotFound)

	// Running tasks cannot be deleted.
	taskID, err = repo.CreateTask(ctx, "sync_prices", nil, nil)
	require.NoError(err)
	running := model.TaskStatusRunning
	require.NoError(repo.UpdateTask(ctx, taskID, storage.TaskUpdate{Status: &running}))

	req, err = http.NewRequest(http.MethodDelete, server.URL+"/api/v1/tasks/"+taskID, nil)
	require.NoError(err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(err)
	defer resp.Body.Close()
	assert.Equal(http.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	require := require.New(t)

	server, _ := getTestServer(t)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(err)
	defer resp.Body.Close()
	require.Equal(http.StatusOK, resp.StatusCode)
}
