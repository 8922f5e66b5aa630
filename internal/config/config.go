package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models servicelog.yml.
type Config struct {
	Organization struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
		// Timezone is the organization's reporting timezone (IANA name).
		// Dashboard weeks are Sunday-start in this zone; UTC when empty.
		Timezone string `yaml:"timezone"`
	} `yaml:"organization"`
	ServiceCodes struct {
		Catalog map[string]struct {
			Description string `yaml:"description"`
		} `yaml:"catalog"`
	} `yaml:"service_codes"`
	Auth struct {
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"auth"`
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Organization.ID == "" {
		return fmt.Errorf("config.organization.id is required")
	}
	if c.Organization.Timezone != "" {
		if _, err := time.LoadLocation(c.Organization.Timezone); err != nil {
			return fmt.Errorf("config.organization.timezone %q is not a valid IANA zone", c.Organization.Timezone)
		}
	}
	for code := range c.ServiceCodes.Catalog {
		if code == "" {
			return fmt.Errorf("config.service_codes.catalog contains an empty code")
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "servicelog.yml")
}

// Default returns the default Config struct for an organization.
func Default(orgID string) *Config {
	var cfg Config
	cfg.Organization.ID = orgID
	_ = yaml.NewDecoder(bytes.NewBufferString(fmt.Sprintf(defaultTemplate, orgID))).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault(orgID string) string {
	return fmt.Sprintf(defaultTemplate, orgID)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

const defaultTemplate = `organization:
  id: %s
  name: ""
  timezone: UTC

service_codes:
  catalog:
    H0038:
      description: "Self-help/peer services, per 15 minutes"
    H0038-HQ:
      description: "Self-help/peer services, group setting"
    H0025:
      description: "Behavioral health prevention education"

auth:
  jwt_secret: ""
  allow_legacy_actor_header: true
`
