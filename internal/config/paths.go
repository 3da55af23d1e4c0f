package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	configDirName   = ".cdflow"
	configFileName  = "config.yaml"
	localConfigFile = "cdflow.yaml"
	tokenFileName   = "token"
)

// ConfigDir returns the cdflow configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, configDirName), nil
}

// ConfigFilePath returns the path to the config file in the configuration directory.
func ConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// DefaultPath returns ./cdflow.yaml when it exists, else the config file in the
// configuration directory.
func DefaultPath() (string, error) {
	if _, err := os.Stat(localConfigFile); err == nil {
		return localConfigFile, nil
	}
	return ConfigFilePath()
}

// resolve fills unset paths with locations under the configuration directory and expands ~.
func (p *Paths) resolve() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	defaults := []struct {
		path *string
		name string
	}{
		{path: &p.Jobs, name: "jobs"},
		{path: &p.Logs, name: "logs"},
		{path: &p.Output, name: "output"},
		{path: &p.Plugins, name: "plugins"},
		{path: &p.Token, name: tokenFileName},
	}
	for _, d := range defaults {
		if *d.path == "" {
			*d.path = filepath.Join(dir, d.name)
			continue
		}
		expanded, err := expandHome(*d.path)
		if err != nil {
			return err
		}
		*d.path = expanded
	}
	return nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
