package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const configFileName = "update-gate.yaml"
const configDirName = "update-gate"

// EnvConfigPath overrides config discovery entirely when set.
const EnvConfigPath = "UPDATE_GATE_CONFIG"

// DiscoverPath returns the config file to load: the explicit path when
// given, else $UPDATE_GATE_CONFIG, else the first existing of the user
// and system defaults, falling back to the system default.
func DiscoverPath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		return env
	}
	for _, p := range []string{userConfigPath(), systemConfigPath()} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return systemConfigPath()
}

// systemConfigPath returns the platform-standard system config path.
func systemConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		pd := os.Getenv("ProgramData")
		if pd == "" {
			pd = `C:\ProgramData`
		}
		return filepath.Join(pd, configDirName, configFileName)
	default: // linux, darwin, etc.
		return filepath.Join("/etc", configDirName, configFileName)
	}
}

// userConfigPath returns the platform-standard user config path.
func userConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, configDirName, configFileName)
}
