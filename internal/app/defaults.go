package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment overrides for the default locations.
const (
	EnvConfigPath = "ANIMLIB_CONFIG_PATH" // default ~/.config/animlib.toml
	EnvHome       = "ANIMLIB_HOME"        // default ~/.local/share/animlib
)

// GetDefaults returns the default config file location and the data
// directories derived from the animlib home.
func GetDefaults() (map[string]string, error) {
	configPath, err := fromEnvOrHome(EnvConfigPath, ".config", "animlib.toml")
	if err != nil {
		return nil, err
	}
	home, err := fromEnvOrHome(EnvHome, ".local", "share", "animlib")
	if err != nil {
		return nil, err
	}

	defaults := map[string]string{
		"config_path": configPath,
		"base_dir":    home,
	}
	for _, sub := range []string{"log", "data", "keys"} {
		defaults[sub+"_dir"] = filepath.Join(home, sub)
	}
	return defaults, nil
}

// fromEnvOrHome returns $env, or the path below the user's home directory.
func fromEnvOrHome(env string, rel ...string) (string, error) {
	if v := os.Getenv(env); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(append([]string{home}, rel...)...), nil
}
