package config_test

import (
	"context"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockd/stockd/internal/config"
)

func TestGetServerConfig(t *testing.T) {
	tests := map[string]struct {
		yaml   string
		expCfg config.Server
		expErr bool
	}{
		"A full config should load with every field set": {
			yaml: `
listen_addr: ":9090"
poll_interval: 5s
max_concurrent: 4
drain_timeout: 1m
checkpoint_every: 20
provider:
  base_url: https://data.example.com/v1
  api_key: secret
schedules:
  - name: nightly-prices
    cron: "0 18 * * 1-5"
    task_type: sync_prices
    params:
      since: "2026-01-01"
`,
			expCfg: config.Server{
				ListenAddr:      ":9090",
				PollInterval:    5 * time.Second,
				MaxConcurrent:   4,
				DrainTimeout:    time.Minute,
				CheckpointEvery: 20,
				Provider: config.Provider{
					BaseURL: "https://data.example.com/v1",
					APIKey:  "secret",
				},
				Schedules: []config.Schedule{
					{
						Name:     "nightly-prices",
						Cron:     "0 18 * * 1-5",
						TaskType: "sync_prices",
						Params:   []byte(`{"since":"2026-01-01"}`),
					},
				},
			},
		},

		"A minimal config should fill defaults": {
			yaml: `
provider:
  fake: true
`,
			expCfg: config.Server{
				ListenAddr: ":8080",
				Provider:   config.Provider{Fake: true},
			},
		},

		"A real provider without a base URL should fail": {
			yaml: `
provider:
  api_key: secret
`,
			expErr: true,
		},

		"A schedule with a bad cron expression should fail": {
			yaml: `
provider:
  fake: true
schedules:
  - name: broken
    cron: "not a cron"
    task_type: sync_prices
`,
			expErr: true,
		},

		"A schedule without a task type should fail": {
			yaml: `
provider:
  fake: true
schedules:
  - name: broken
    cron: "@hourly"
`,
			expErr: true,
		},

		"Malformed YAML should fail": {
			yaml:   `provider: [`,
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			fs := fstest.MapFS{"stockd.yaml": &fstest.MapFile{Data: []byte(test.yaml)}}
			repo := config.NewYAMLRepository(fs)

			cfg, err := repo.GetServerConfig(context.Background(), "stockd.yaml")

			if test.expErr {
				assert.Error(err)
				return
			}

			require.NoError(err)
			if len(test.expCfg.Schedules) > 0 {
				require.Len(cfg.Schedules, len(test.expCfg.Schedules))
				for i, exp := range test.expCfg.Schedules {
					assert.Equal(exp.Name, cfg.Schedules[i].Name)
					assert.Equal(exp.Cron, cfg.Schedules[i].Cron)
					assert.Equal(exp.TaskType, cfg.Schedules[i].TaskType)
					assert.JSONEq(string(exp.Params), string(cfg.Schedules[i].Params))
				}
				cfg.Schedules, test.expCfg.Schedules = nil, nil
			}
			assert.Equal(test.expCfg, cfg)
		})
	}
}

func TestGetServerConfigMissingFile(t *testing.T) {
	repo := config.NewYAMLRepository(fstest.MapFS{})

	_, err := repo.GetServerConfig(context.Background(), "missing.yaml")
	assert.Error(t, err)
}
