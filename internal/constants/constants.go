// Package constants is responsible for defining the constants used in the application.
// It also provides utility functions to get the default configuration paths.
package constants

import (
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// CmdName is the name of the command line tool.
	CmdName = "ddb"

	// DefaultAppFolder is the name of the default configuration folder.
	DefaultAppFolder = "ddb"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelWarn

	// TableEnv is the environment variable holding the default table name.
	TableEnv = "DYNAMODB_TABLE"

	// SchemaCacheFileName is the base name of the key schema cache file.
	SchemaCacheFileName = "key_schema.yaml"

	// ErrorLogFileName is the base name of the file failed commands are logged to.
	ErrorLogFileName = "error.log"

	// AWSSetupURL documents how to configure AWS credentials and region.
	AWSSetupURL = "https://docs.aws.amazon.com/cli/latest/userguide/cli-configure-quickstart.html"
)

// Version is the version of the executable, set at build time.
var Version = "Dev"

type options struct {
	baseDir func() (string, error)
}

type option func(*options)

// GetDefaultConfigPath is the default path to the configuration folder.
// It is empty when the user configuration directory cannot be determined.
func GetDefaultConfigPath(opts ...option) string {
	o := options{baseDir: os.UserConfigDir}
	for _, opt := range opts {
		opt(&o)
	}

	dir := userConfigDir(o.baseDir)
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, DefaultAppFolder)
}

// GetDefaultSchemaCachePath is the default path to the key schema cache file.
func GetDefaultSchemaCachePath(opts ...option) string {
	dir := GetDefaultConfigPath(opts...)
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, SchemaCacheFileName)
}

// GetDefaultErrorLogPath is the default path to the error log file.
func GetDefaultErrorLogPath(opts ...option) string {
	dir := GetDefaultConfigPath(opts...)
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, ErrorLogFileName)
}

// userConfigDir returns the user configuration directory, or an empty string on error.
func userConfigDir(baseDirFunc func() (string, error)) string {
	dir, err := baseDirFunc()
	if err != nil {
		slog.Debug("Could not determine user config directory", "error", err)
		return ""
	}
	return dir
}
