// Package plugins bundles the compiled plugins and their default manifests.
package plugins

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"guildkeeper/pkg/config"
	"guildkeeper/pkg/logger"
	"guildkeeper/pkg/plugin"
	"guildkeeper/pkg/plugins/admin"
	"guildkeeper/pkg/plugins/tags"
	"guildkeeper/pkg/plugins/utility"
	"guildkeeper/pkg/plugins/welcome"
)

//go:embed builtin/*
var builtinFS embed.FS

// Module registers the compiled plugins with the catalog.
var Module = fx.Module("plugins",
	fx.Invoke(Register, seedFirstRun),
)

// Register adds every compiled plugin factory to c.
func Register(c *plugin.Catalog) error {
	factories := map[string]plugin.Factory{
		utility.Name: utility.New,
		admin.Name:   admin.New,
		welcome.Name: welcome.New,
		tags.Name:    tags.New,
	}
	for name, f := range factories {
		if err := c.Register(name, f); err != nil {
			return err
		}
	}
	return nil
}

// Builtin returns the folder names of the bundled default manifests.
func Builtin() []string {
	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names
}

// Seed writes the bundled manifests into dir. Existing plugin folders are
// left alone unless overwrite is set. It returns the folders written.
func Seed(log *logger.Logger, dir string, overwrite bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating plugins directory: %w", err)
	}

	var written []string
	for _, name := range Builtin() {
		target := filepath.Join(dir, name, plugin.ManifestFile)
		if _, err := os.Stat(target); err == nil && !overwrite {
			continue
		} else if err != nil && !os.IsNotExist(err) {
			return written, err
		}

		data, err := fs.ReadFile(builtinFS, path.Join("builtin", name, plugin.ManifestFile))
		if err != nil {
			return written, fmt.Errorf("reading bundled manifest %s: %w", name, err)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return written, fmt.Errorf("creating %s: %w", name, err)
		}
		if err := os.WriteFile(target, data, 0644); err != nil {
			return written, fmt.Errorf("writing %s: %w", target, err)
		}

		log.Info("Created plugin manifest", zap.String("plugin", name), zap.String("path", target))
		written = append(written, name)
	}
	return written, nil
}

// seedFirstRun populates the plugins directory the first time the bot starts.
func seedFirstRun(log *logger.Logger, cfg *config.Config) error {
	if _, err := os.Stat(cfg.Plugins.Dir); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	_, err := Seed(log, cfg.Plugins.Dir, false)
	return err
}
