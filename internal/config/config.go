package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config models wps.yml.
type Config struct {
	Project struct {
		Slug string `yaml:"slug"`
	} `yaml:"project"`
	FeaturesDir string `yaml:"features_dir"`
	Node        struct {
		ID string `yaml:"id"`
	} `yaml:"node"`
	Actor         string `yaml:"actor"`
	ExecutionMode string `yaml:"execution_mode"`
	Bridge        struct {
		Phase int `yaml:"phase"`
	} `yaml:"bridge"`
}

// Path returns the config file path for a project root.
func Path(root string) string {
	if root == "" {
		root = "."
	}
	return filepath.Join(root, "wps.yml")
}

// Default returns the default config for a project.
func Default(slug string) *Config {
	var cfg Config
	cfg.Project.Slug = slug
	cfg.FeaturesDir = "features"
	cfg.Actor = "local-user"
	cfg.ExecutionMode = "worktree"
	cfg.Bridge.Phase = 0
	return &cfg
}

// Load reads and validates config from the project root.
func Load(root string) (*Config, error) {
	data, err := os.ReadFile(Path(root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run wps init", Path(root))
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns defaults if the config file does not exist.
func LoadOptional(root string) (*Config, error) {
	data, err := os.ReadFile(Path(root))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(""), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.FeaturesDir == "" {
		cfg.FeaturesDir = "features"
	}
	if cfg.Actor == "" {
		cfg.Actor = "local-user"
	}
	if cfg.ExecutionMode == "" {
		cfg.ExecutionMode = "worktree"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Bridge.Phase < 0 || c.Bridge.Phase > 2 {
		return fmt.Errorf("config.bridge.phase must be 0, 1 or 2, got %d", c.Bridge.Phase)
	}
	if c.ExecutionMode == "" {
		return fmt.Errorf("config.execution_mode is required")
	}
	return nil
}

// Save writes the config back to the project root.
func (c *Config) Save(root string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(Path(root), data, 0o644)
}

// EnsureNodeID returns the configured writer node identity, generating and
// persisting one when absent. Each working-directory checkout gets its own
// identity so the logical clock can tell writers apart.
func EnsureNodeID(root string, cfg *Config) (string, error) {
	if cfg.Node.ID != "" {
		return cfg.Node.ID, nil
	}
	cfg.Node.ID = uuid.NewString()
	if err := cfg.Save(root); err != nil {
		return "", fmt.Errorf("persist node id: %w", err)
	}
	return cfg.Node.ID, nil
}

// FeatureDir returns the directory holding a feature's log and views.
func (c *Config) FeatureDir(root, featureSlug string) string {
	return filepath.Join(root, c.FeaturesDir, featureSlug)
}
