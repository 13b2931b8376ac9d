package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Launcher LauncherConfig `toml:"launcher"`
	Jira     JiraConfig     `toml:"jira"`
	Cache    CacheConfig    `toml:"cache"`
	Storage  StorageConfig  `toml:"storage"`
	Logging  LoggingConfig  `toml:"logging"`
}

type LauncherConfig struct {
	Name        string `toml:"name"`
	Environment string `toml:"environment"`
}

type JiraConfig struct {
	BaseURL    string `toml:"base_url"`
	Username   string `toml:"username"`
	Timeout    int    `toml:"timeout"`
	PageSize   int    `toml:"page_size"`
	MaxWorkers int    `toml:"max_workers"`
}

type CacheConfig struct {
	MaxAge     int `toml:"max_age"`
	RecentSize int `toml:"recent_size"`
}

type StorageConfig struct {
	DatabasePath string `toml:"database_path"`
}

type LoggingConfig struct {
	Level      string `toml:"level"`
	Format     string `toml:"format"`
	Output     string `toml:"output"`
	MaxSize    int    `toml:"max_size"`
	MaxBackups int    `toml:"max_backups"`
}

func DefaultConfig() *Config {
	execPath, _ := os.Executable()
	execDir := filepath.Dir(execPath)
	execName := filepath.Base(execPath)
	execName = execName[:len(execName)-len(filepath.Ext(execName))]

	defaultDBPath := filepath.Join(execDir, "data", execName+".db")

	return &Config{
		Launcher: LauncherConfig{
			Name:        execName,
			Environment: "development",
		},
		Jira: JiraConfig{
			Timeout:    30,
			PageSize:   50,
			MaxWorkers: 4,
		},
		Cache: CacheConfig{
			MaxAge:     600,
			RecentSize: 9,
		},
		Storage: StorageConfig{
			DatabasePath: defaultDBPath,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			MaxSize:    100,
			MaxBackups: 3,
		},
	}
}

func LoadConfig(configFile string) (*Config, error) {
	config := DefaultConfig()

	if configFile == "" {
		// Auto-detect config file
		execPath, _ := os.Executable()
		execDir := filepath.Dir(execPath)
		execName := filepath.Base(execPath)
		execName = execName[:len(execName)-len(filepath.Ext(execName))]

		possiblePaths := []string{
			filepath.Join(execDir, execName+".toml"),
			filepath.Join(execDir, "config.toml"),
			"config.toml",
		}

		for _, path := range possiblePaths {
			if _, err := os.Stat(path); err == nil {
				configFile = path
				break
			}
		}

		if configFile == "" {
			applyEnvOverrides(config)
			return config, nil
		}
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func applyEnvOverrides(config *Config) {
	if apiURL := os.Getenv("JIRA_API_URL"); apiURL != "" {
		config.Jira.BaseURL = apiURL
	}
	if username := os.Getenv("JIRA_USER"); username != "" {
		config.Jira.Username = username
	}

	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		config.Storage.DatabasePath = dbPath
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		config.Logging.Level = logLevel
	}
	if logFormat := os.Getenv("LOG_FORMAT"); logFormat != "" {
		config.Logging.Format = logFormat
	}
	if logOutput := os.Getenv("LOG_OUTPUT"); logOutput != "" {
		config.Logging.Output = logOutput
	}

	if maxAge := os.Getenv("CACHE_MAX_AGE"); maxAge != "" {
		if seconds, err := strconv.Atoi(maxAge); err == nil {
			config.Cache.MaxAge = seconds
		}
	}
}

func (c *Config) Validate() error {
	if c.Jira.BaseURL == "" {
		return fmt.Errorf("jira base_url is required (config or JIRA_API_URL)")
	}
	if !strings.HasPrefix(c.Jira.BaseURL, "http://") && !strings.HasPrefix(c.Jira.BaseURL, "https://") {
		return fmt.Errorf("jira base_url must include a scheme: %s", c.Jira.BaseURL)
	}
	if c.Jira.Username == "" {
		return fmt.Errorf("jira username is required (config or JIRA_USER)")
	}

	if c.Storage.DatabasePath == "" {
		return fmt.Errorf("storage database_path is required")
	}

	if c.Jira.Timeout <= 0 {
		c.Jira.Timeout = 30
	}
	if c.Jira.PageSize <= 0 {
		c.Jira.PageSize = 50
	}
	if c.Jira.MaxWorkers <= 0 {
		c.Jira.MaxWorkers = 4
	}
	if c.Cache.MaxAge <= 0 {
		c.Cache.MaxAge = 600
	}
	if c.Cache.RecentSize <= 0 {
		c.Cache.RecentSize = 9
	}

	validLogLevels := []string{"debug", "info", "warn", "error", "fatal", "panic"}
	validLevel := false
	for _, level := range validLogLevels {
		if c.Logging.Level == level {
			validLevel = true
			break
		}
	}
	if !validLevel {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validOutputs := []string{"console", "file", "both"}
	validOutput := false
	for _, output := range validOutputs {
		if c.Logging.Output == output {
			validOutput = true
			break
		}
	}
	if !validOutput {
		return fmt.Errorf("invalid log output: %s", c.Logging.Output)
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Launcher.Environment == "production"
}
