package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from a YAML string like "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = dur
	return nil
}

// Account is one credential pair a multi-account check rotates through.
// Both fields name environment variables, not the secrets themselves.
type Account struct {
	DatasetIDEnv string `yaml:"dataset_id_env"`
	APIKeyEnv    string `yaml:"api_key_env"`
}

// Check describes a single configured check. Which fields are required
// depends on Type; Load validates per type.
type Check struct {
	ID   string
	Name string
	Type string

	// http
	URL            string
	Method         string
	ExpectedStatus int
	ExpectedBody   string

	// api-backed checks (retrieve, indexing, workflow)
	BaseURL      string
	Query        string
	DatasetIDEnv string
	APIKeyEnv    string
	Accounts     []Account

	// workflow
	TriggerURL      string
	TriggerTokenEnv string

	Timeout Duration
	// Interval is the minimum wait between initiating a deferred unit of
	// work and verifying it. Zero means verify on the very next cycle.
	Interval Duration
}

// NotificationConfig holds incident notification settings.
type NotificationConfig struct {
	GitHubRepo       string `yaml:"github_repo"`
	IssueNumber      int    `yaml:"issue_number"`
	TokenEnv         string `yaml:"token_env"`
	FailureThreshold int    `yaml:"failure_threshold"`
}

// StorageConfig holds history log and state database settings.
type StorageConfig struct {
	DataDir       string `yaml:"data_dir"`
	StatePath     string `yaml:"state_path"`
	RetentionDays int    `yaml:"retention_days"`
}

// ServerConfig holds HTTP status API settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// Config is the root application configuration.
type Config struct {
	Checks       []Check
	Storage      StorageConfig
	Server       ServerConfig
	Notification NotificationConfig
}

var validTypes = map[string]bool{
	"http":     true,
	"retrieve": true,
	"indexing": true,
	"workflow": true,
}

// Load reads, parses, and validates the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Unmarshal into a raw intermediate to detect YAML parse errors vs duration errors.
	type rawCheck struct {
		ID              string    `yaml:"id"`
		Name            string    `yaml:"name"`
		Type            string    `yaml:"type"`
		URL             string    `yaml:"url"`
		Method          string    `yaml:"method"`
		ExpectedStatus  int       `yaml:"expected_status"`
		ExpectedBody    string    `yaml:"expected_body"`
		BaseURL         string    `yaml:"base_url"`
		Query           string    `yaml:"query"`
		DatasetIDEnv    string    `yaml:"dataset_id_env"`
		APIKeyEnv       string    `yaml:"api_key_env"`
		Accounts        []Account `yaml:"accounts"`
		TriggerURL      string    `yaml:"trigger_url"`
		TriggerTokenEnv string    `yaml:"trigger_token_env"`
		Timeout         string    `yaml:"timeout"`
		Interval        string    `yaml:"interval"`
	}
	type rawConfig struct {
		Checks       []rawCheck         `yaml:"checks"`
		Storage      StorageConfig      `yaml:"storage"`
		Server       ServerConfig       `yaml:"server"`
		Notification NotificationConfig `yaml:"notification"`
	}

	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Apply defaults.
	if raw.Storage.DataDir == "" {
		raw.Storage.DataDir = "data"
	}
	if raw.Storage.StatePath == "" {
		raw.Storage.StatePath = "statuswatch.db"
	}
	if raw.Storage.RetentionDays == 0 {
		raw.Storage.RetentionDays = 90
	}
	if raw.Server.Address == "" {
		raw.Server.Address = ":8080"
	}
	if raw.Notification.FailureThreshold == 0 {
		raw.Notification.FailureThreshold = 2
	}

	if len(raw.Checks) == 0 {
		return nil, fmt.Errorf("at least one check must be configured")
	}

	cfg := &Config{
		Storage:      raw.Storage,
		Server:       raw.Server,
		Notification: raw.Notification,
	}

	ids := make(map[string]bool, len(raw.Checks))
	for i, rc := range raw.Checks {
		if rc.ID == "" {
			return nil, fmt.Errorf("check[%d]: id is required", i)
		}
		if ids[rc.ID] {
			return nil, fmt.Errorf("duplicate check id %q", rc.ID)
		}
		ids[rc.ID] = true

		if !validTypes[rc.Type] {
			return nil, fmt.Errorf("check %q: invalid type %q (must be http, retrieve, indexing, or workflow)", rc.ID, rc.Type)
		}

		c := Check{
			ID:              rc.ID,
			Name:            rc.Name,
			Type:            rc.Type,
			URL:             rc.URL,
			Method:          rc.Method,
			ExpectedStatus:  rc.ExpectedStatus,
			ExpectedBody:    rc.ExpectedBody,
			BaseURL:         rc.BaseURL,
			Query:           rc.Query,
			DatasetIDEnv:    rc.DatasetIDEnv,
			APIKeyEnv:       rc.APIKeyEnv,
			Accounts:        rc.Accounts,
			TriggerURL:      rc.TriggerURL,
			TriggerTokenEnv: rc.TriggerTokenEnv,
		}
		if c.Name == "" {
			c.Name = c.ID
		}

		switch rc.Type {
		case "http":
			if rc.URL == "" {
				return nil, fmt.Errorf("check %q: url is required", rc.ID)
			}
			if c.Method == "" {
				c.Method = "GET"
			}
			if c.ExpectedStatus == 0 {
				c.ExpectedStatus = 200
			}
		case "retrieve":
			if rc.BaseURL == "" {
				return nil, fmt.Errorf("check %q: base_url is required", rc.ID)
			}
			if rc.DatasetIDEnv == "" || rc.APIKeyEnv == "" {
				return nil, fmt.Errorf("check %q: dataset_id_env and api_key_env are required", rc.ID)
			}
			if c.Query == "" {
				c.Query = "test"
			}
		case "indexing":
			if rc.BaseURL == "" {
				return nil, fmt.Errorf("check %q: base_url is required", rc.ID)
			}
			// A lone dataset_id_env/api_key_env pair is shorthand for one account.
			if len(c.Accounts) == 0 {
				if rc.DatasetIDEnv == "" || rc.APIKeyEnv == "" {
					return nil, fmt.Errorf("check %q: accounts or dataset_id_env/api_key_env are required", rc.ID)
				}
				c.Accounts = []Account{{DatasetIDEnv: rc.DatasetIDEnv, APIKeyEnv: rc.APIKeyEnv}}
			}
			for j, a := range c.Accounts {
				if a.DatasetIDEnv == "" || a.APIKeyEnv == "" {
					return nil, fmt.Errorf("check %q: account[%d]: dataset_id_env and api_key_env are required", rc.ID, j)
				}
			}
		case "workflow":
			if rc.TriggerURL == "" || rc.TriggerTokenEnv == "" {
				return nil, fmt.Errorf("check %q: trigger_url and trigger_token_env are required", rc.ID)
			}
			if rc.BaseURL == "" || rc.APIKeyEnv == "" {
				return nil, fmt.Errorf("check %q: base_url and api_key_env are required", rc.ID)
			}
		}

		// Parse timeout with default.
		if rc.Timeout == "" {
			c.Timeout = Duration{30 * time.Second}
		} else {
			d, err := time.ParseDuration(rc.Timeout)
			if err != nil {
				return nil, fmt.Errorf("check %q: invalid timeout %q: %w", rc.ID, rc.Timeout, err)
			}
			c.Timeout = Duration{d}
		}

		// Parse interval; zero (the default) disables the rate gate.
		if rc.Interval != "" {
			d, err := time.ParseDuration(rc.Interval)
			if err != nil {
				return nil, fmt.Errorf("check %q: invalid interval %q: %w", rc.ID, rc.Interval, err)
			}
			c.Interval = Duration{d}
		}

		cfg.Checks = append(cfg.Checks, c)
	}

	return cfg, nil
}
