package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the file that marks a directory as a plugin.
const ManifestFile = "plugin.yaml"

// ScriptFactory selects the declarative plugin built from the manifest itself.
const ScriptFactory = "script"

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

// Manifest is the parsed plugin.yaml of a plugin folder.
type Manifest struct {
	Name        string                 `yaml:"name"`
	Version     string                 `yaml:"version"`
	Description string                 `yaml:"description"`
	Author      string                 `yaml:"author"`
	Factory     string                 `yaml:"factory"`
	Enabled     *bool                  `yaml:"enabled"`
	Options     map[string]interface{} `yaml:"options"`
	Commands    []ScriptCommand        `yaml:"commands"`
}

// ScriptCommand is a declarative text-reply command of a script plugin.
type ScriptCommand struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Aliases     []string `yaml:"aliases"`
	// Cooldown in seconds; 0 uses the default, negative disables it.
	Cooldown    float64  `yaml:"cooldown"`
	GuildOnly   bool     `yaml:"guild_only"`
	OwnerOnly   bool     `yaml:"owner_only"`
	Permissions []string `yaml:"permissions"`
	Response    string   `yaml:"response"`
	Ephemeral   bool     `yaml:"ephemeral"`
	Slash       bool     `yaml:"slash"`
}

// IsEnabled reports whether the plugin should be loaded by LoadAll.
func (m *Manifest) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// FactoryName returns the catalog key, defaulting to folder.
func (m *Manifest) FactoryName(folder string) string {
	if m.Factory != "" {
		return m.Factory
	}
	return folder
}

// Validate checks the manifest fields that do not depend on the factory.
func (m *Manifest) Validate() error {
	if m.Name != "" && !namePattern.MatchString(m.Name) {
		return fmt.Errorf("name %q must be lowercase letters, digits, '-' or '_'", m.Name)
	}
	if m.Factory == ScriptFactory {
		if len(m.Commands) == 0 {
			return errors.New("script plugin declares no commands")
		}
		for i, cmd := range m.Commands {
			if cmd.Name == "" {
				return fmt.Errorf("commands[%d]: name is required", i)
			}
			if cmd.Response == "" {
				return fmt.Errorf("commands[%d] %s: response is required", i, cmd.Name)
			}
		}
	}
	return nil
}

// ParseManifest parses plugin.yaml content.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ManifestFile, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// ReadManifest reads and parses dir/plugin.yaml. A missing file yields an
// error matching os.ErrNotExist.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	return ParseManifest(data)
}
