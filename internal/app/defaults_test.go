package app

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetDefaults(t *testing.T) {
	home, _ := os.UserHomeDir()
	share := filepath.Join(home, ".local", "share", "animlib")

	tests := []struct {
		name       string
		configEnv  string
		homeEnv    string
		wantConfig string
		wantBase   string
	}{
		{"environment overrides", "/custom/config.toml", "/custom/animlib", "/custom/config.toml", "/custom/animlib"},
		{"home directory fallback", "", "", filepath.Join(home, ".config", "animlib.toml"), share},
		{"only home overridden", "", "/srv/anim", filepath.Join(home, ".config", "animlib.toml"), "/srv/anim"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvConfigPath, tt.configEnv)
			t.Setenv(EnvHome, tt.homeEnv)

			got, err := GetDefaults()
			if err != nil {
				t.Fatalf("GetDefaults() error = %v", err)
			}
			want := map[string]string{
				"config_path": tt.wantConfig,
				"base_dir":    tt.wantBase,
				"log_dir":     filepath.Join(tt.wantBase, "log"),
				"data_dir":    filepath.Join(tt.wantBase, "data"),
				"keys_dir":    filepath.Join(tt.wantBase, "keys"),
			}
			for k, v := range want {
				if got[k] != v {
					t.Errorf("%s = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}
