package config

import (
	"os"
	"path/filepath"
)

// getDataDir determines the data directory path from environment or default.
// Priority: PIXCONV_DATA_DIR environment variable > "./data" default
func getDataDir() string {
	if dir := os.Getenv("PIXCONV_DATA_DIR"); dir != "" {
		return dir
	}
	return "./data"
}

// GetDataDir returns the directory holding the history databases, the
// credentials store and the lock file.
// The environment variable is read on every call so tests and operators can
// move the data directory without a restart.
func GetDataDir() string {
	return getDataDir()
}

// GetCredentialsDBPath returns the full path to the credentials database.
// Path: {data dir}/credentials.db
func GetCredentialsDBPath() string {
	return filepath.Join(GetDataDir(), "credentials.db")
}

// GetFailuresDBPath returns the full path to the failures database.
// The failures database tracks conversion jobs that ended in error.
// Path: {data dir}/failures.db
func GetFailuresDBPath() string {
	return filepath.Join(GetDataDir(), "failures.db")
}

// GetSuccessDBPath returns the full path to the success database.
// Path: {data dir}/success.db
func GetSuccessDBPath() string {
	return filepath.Join(GetDataDir(), "success.db")
}

// GetLockPath returns the path of the lock file that keeps two servers from
// sharing one data directory.
func GetLockPath() string {
	return filepath.Join(GetDataDir(), "pixconv.lock")
}

// GetDirectServeBaseDir returns the base directory for direct file serving.
// Packaged batch archives written with the directServe backend land here.
// Configurable via PIXCONV_SERVE_DIR for server administrators only.
// Defaults to "./serve" relative to the executable.
func GetDirectServeBaseDir() string {
	if dir := os.Getenv("PIXCONV_SERVE_DIR"); dir != "" {
		return dir
	}
	return "./serve"
}
