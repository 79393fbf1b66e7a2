package conf_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/squadscrape/squadpanel/util/conf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	LogLevel string      `conf:"log_level"`
	Panel    panelConfig `conf:"panel"`
}

type panelConfig struct {
	SourceURL   string            `conf:"source_url"`
	Interpreter string            `conf:"interpreter"`
	Workers     map[string]string `conf:"workers"`
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := conf.Parse[testConfig](conf.ParseOptions{
		Defaults: conf.DefaultConfig{
			"log_level":        "info",
			"panel.source_url": "https://sofifa.com",
		},
		EnvPrefix: "SQUADPANEL_TEST_DEFAULTS_",
	})
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "https://sofifa.com", cfg.Panel.SourceURL)
}

func TestParse_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("SQUADPANEL_TEST_ENV_LOG_LEVEL", "debug")
	t.Setenv("SQUADPANEL_TEST_ENV_PANEL__INTERPRETER", "python3")
	t.Setenv("SQUADPANEL_TEST_ENV_PANEL__WORKERS__1", "Script_1.py")

	cfg, err := conf.Parse[testConfig](conf.ParseOptions{
		Defaults:  conf.DefaultConfig{"log_level": "info"},
		EnvPrefix: "SQUADPANEL_TEST_ENV_",
	})
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "python3", cfg.Panel.Interpreter)
	assert.Equal(t, map[string]string{"1": "Script_1.py"}, cfg.Panel.Workers)
}

func TestParse_JsonFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"log_level": "warn",
		"panel": {"source_url": "https://source.example", "workers": {"2": "Script_2.py"}}
	}`), 0o644))

	cfg, err := conf.Parse[testConfig](conf.ParseOptions{
		Defaults:  conf.DefaultConfig{"log_level": "info"},
		FileName:  path,
		EnvPrefix: "SQUADPANEL_TEST_JSON_",
	})
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "https://source.example", cfg.Panel.SourceURL)
	assert.Equal(t, map[string]string{"2": "Script_2.py"}, cfg.Panel.Workers)
}

func TestParse_DotenvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("LOG_LEVEL=error\nPANEL__INTERPRETER=python\n"), 0o644))

	cfg, err := conf.Parse[testConfig](conf.ParseOptions{
		FileName:  path,
		EnvPrefix: "SQUADPANEL_TEST_DOTENV_",
	})
	require.NoError(t, err)

	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, "python", cfg.Panel.Interpreter)
}

func TestParse_MissingFile(t *testing.T) {
	_, err := conf.Parse[testConfig](conf.ParseOptions{
		FileName: filepath.Join(t.TempDir(), "missing.json"),
	})
	assert.Error(t, err)
}

func TestMergeDefaults(t *testing.T) {
	merged := conf.MergeDefaults("panel", conf.DefaultConfig{"cwd": "."}, conf.DefaultConfig{"interpreter": ""})

	assert.Equal(t, conf.DefaultConfig{"panel.cwd": ".", "panel.interpreter": ""}, merged)
}
