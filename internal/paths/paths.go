// Package paths lays out icecat's files on disk. The config directory holds
// config.yaml; the data directory holds the SQLite catalog and, when no
// warehouse is configured, the local warehouse that metadata files go to.
package paths

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// appName names the per-user config directory.
const appName = "icecat"

// File and directory names inside the config and data directories.
const (
	// DefaultDataDirName is the CWD-relative data directory used when
	// nothing else is configured.
	DefaultDataDirName = ".icecat"
	ConfigFileName     = "config.yaml"
	CatalogDBName      = "catalog.db"
	WarehouseDirName   = "warehouse"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "ICECAT_CONFIG_DIR"
	EnvDataDir   = "ICECAT_DATA_DIR"
)

// userConfigDir is swapped out in tests.
var userConfigDir = os.UserConfigDir

// ResolveConfigDir returns the absolute config directory: flag, then
// ICECAT_CONFIG_DIR, then <user config dir>/icecat ($XDG_CONFIG_HOME or
// ~/.config on Linux, ~/Library/Application Support on macOS, %AppData% on
// Windows).
func ResolveConfigDir(flag string) (string, error) {
	if dir := firstSet(flag, os.Getenv(EnvConfigDir)); dir != "" {
		return filepath.Abs(dir)
	}
	base, err := userConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config dir: %w", err)
	}
	return filepath.Join(base, appName), nil
}

// ResolveDataDir returns the absolute data directory: flag, then the
// data_dir config value, then ICECAT_DATA_DIR, then ./.icecat. The default
// keeps a catalog next to the project it describes.
func ResolveDataDir(flag, configValue string) (string, error) {
	dir := firstSet(flag, configValue, os.Getenv(EnvDataDir))
	if dir == "" {
		dir = DefaultDataDirName
	}
	return filepath.Abs(dir)
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// ConfigFile returns the path of config.yaml in configDir.
func ConfigFile(configDir string) string {
	return filepath.Join(configDir, ConfigFileName)
}

// CatalogDB returns the path of the SQLite catalog in dataDir. An empty
// dataDir means the working directory.
func CatalogDB(dataDir string) string {
	if dataDir == "" {
		dataDir = "."
	}
	return filepath.Join(dataDir, CatalogDBName)
}

// WarehouseDir returns the default local warehouse directory in dataDir.
func WarehouseDir(dataDir string) string {
	return filepath.Join(dataDir, WarehouseDirName)
}

// DefaultWarehouse returns WarehouseDir as a file:// location. The path is
// escaped, so parsing the location gives back the directory unchanged.
func DefaultWarehouse(dataDir string) string {
	p := filepath.ToSlash(WarehouseDir(dataDir))
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}
