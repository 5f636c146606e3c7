package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ServerConfig declares a Minecraft server for the status dashboard.
type ServerConfig struct {
	ID        int    `yaml:"id"`
	Name      string `yaml:"name"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Enabled   *bool  `yaml:"enabled,omitempty"`
	SortOrder int    `yaml:"sort_order"`
}

// IsEnabled defaults to true when the key is absent.
func (s ServerConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// ServersConfig is the root of servers.yaml.
type ServersConfig struct {
	Servers []ServerConfig `yaml:"servers"`
	// DisableMissing turns off servers that are in the database but not in the file.
	DisableMissing bool `yaml:"disable_missing"`
}

// LoadServersConfig loads and validates servers.yaml.
func LoadServersConfig(path string) (*ServersConfig, error) {
	if path == "" {
		path = "configs/servers.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read servers config: %w", err)
	}
	data = []byte(os.ExpandEnv(string(data)))

	var cfg ServersConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse servers config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate servers config: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

// Validate checks the configuration for errors.
func (c *ServersConfig) Validate() error {
	ids := make(map[int]bool)
	names := make(map[string]bool)

	for i, srv := range c.Servers {
		if srv.ID <= 0 {
			return fmt.Errorf("server[%d]: id must be positive, got %d", i, srv.ID)
		}
		if ids[srv.ID] {
			return fmt.Errorf("server[%d]: duplicate id %d", i, srv.ID)
		}
		ids[srv.ID] = true

		if srv.Name == "" {
			return fmt.Errorf("server[%d]: name is required", i)
		}
		if names[srv.Name] {
			return fmt.Errorf("server[%d]: duplicate name '%s'", i, srv.Name)
		}
		names[srv.Name] = true

		if srv.Host == "" {
			return fmt.Errorf("server[%d]: host is required", i)
		}
		if srv.Port < 0 || srv.Port > 65535 {
			return fmt.Errorf("server[%d]: invalid port %d", i, srv.Port)
		}
	}
	return nil
}

func (c *ServersConfig) applyDefaults() {
	for i := range c.Servers {
		if c.Servers[i].Port == 0 {
			c.Servers[i].Port = 25565
		}
		if c.Servers[i].SortOrder == 0 {
			c.Servers[i].SortOrder = i + 1
		}
	}
}

// String returns a summary of the configuration.
func (c *ServersConfig) String() string {
	enabled := 0
	for _, srv := range c.Servers {
		if srv.IsEnabled() {
			enabled++
		}
	}
	return fmt.Sprintf("ServersConfig: %d servers (%d enabled)", len(c.Servers), enabled)
}
