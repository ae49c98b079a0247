package app

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// Defaults are the locations sniff uses when the config does not say
// otherwise.
type Defaults struct {
	ConfigPath string
	BaseDir    string
	LogDir     string
}

// GetDefaults resolves default locations. SNIFF_CONFIG_PATH and SNIFF_HOME
// override the XDG locations:
//
//	config file:  $XDG_CONFIG_HOME/sniff.toml
//	base dir:     $XDG_DATA_HOME/sniff
//
// The index, the local vault, the keys and the logs live under the base dir.
func GetDefaults() *Defaults {
	configPath := envOr("SNIFF_CONFIG_PATH", filepath.Join(xdg.ConfigHome, "sniff.toml"))
	baseDir := envOr("SNIFF_HOME", filepath.Join(xdg.DataHome, "sniff"))

	return &Defaults{
		ConfigPath: configPath,
		BaseDir:    baseDir,
		LogDir:     filepath.Join(baseDir, "log"),
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
