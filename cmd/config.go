package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
	"zipmirror.dev/pkg/zipmirror/internal/adapter"
	"zipmirror.dev/pkg/zipmirror/internal/domain"
)

const (
	configVersionKey     = "version"
	currentConfigVersion = 1

	configBaseName   = "zipmirror"
	configFileName   = configBaseName + ".yaml"
	configFolderPath = "."

	sourceFlagName           = "source"
	destinationFlagName      = "destination"
	dryRunFlagName           = "dry-run"
	parallelFlagName         = "parallel"
	excludeFlagName          = "exclude"
	autosaveIntervalFlagName = "autosave-interval"
	passwordEnvFlagName      = "password-env"
	keyringFlagName          = "keyring"
	yamlFlagName             = "yaml"
	verboseFlagName          = "verbose"
	logFileFlagName          = "log-file"

	sourceConfigKey           = "source"
	destinationConfigKey      = "destination"
	dryRunConfigKey           = "dry_run"
	parallelConfigKey         = "sync.parallel"
	autosaveIntervalConfigKey = "sync.autosave_interval"
	excludeConfigKey          = "sync.exclude"
	archiveExecutableKey      = "archive.executable"
	archiveLevelKey           = "archive.level"
	archiveTimeoutKey         = "archive.timeout"
	alphabetConfigKey         = "naming.alphabet"
	passwordEnvConfigKey      = "password.env"
	passwordKeyringConfigKey  = "password.keyring"

	defaultParallel        = 1
	defaultPasswordEnv     = "ZIPMIRROR_PASSWORD"
	defaultPasswordKeyring = false

	keyringService = "zipmirror"

	envPrefix = "ZIPMIRROR"

	logFilenameKey   = "log.filename"
	logLevelKey      = "log.level"
	logVerboseKey    = "log.verbose"
	logMaxSizeKey    = "log.max_size"
	logMaxBackupsKey = "log.max_backups"
	logMaxAgeKey     = "log.max_age"
	logCompressKey   = "log.compress"

	defaultLogFilename   = ".zipmirror.log"
	defaultLogLevel      = "info"
	defaultLogVerbose    = false
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

var globalLogger *slog.Logger

func init() {
	viper.SetConfigName(configBaseName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configFolderPath)
	viper.SetConfigFile(filepath.Join(configFolderPath, configFileName))
	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.SetDefault(configVersionKey, currentConfigVersion)
	viper.SetDefault(sourceConfigKey, "")
	viper.SetDefault(destinationConfigKey, "")
	viper.SetDefault(dryRunConfigKey, false)
	viper.SetDefault(parallelConfigKey, defaultParallel)
	viper.SetDefault(autosaveIntervalConfigKey, domain.DefaultAutosaveInterval.String())
	viper.SetDefault(excludeConfigKey, []string{})
	viper.SetDefault(archiveExecutableKey, adapter.Default7zExecutable)
	viper.SetDefault(archiveLevelKey, adapter.DefaultLevel)
	viper.SetDefault(archiveTimeoutKey, "0s")
	viper.SetDefault(alphabetConfigKey, domain.DefaultAlphabet)
	viper.SetDefault(passwordEnvConfigKey, defaultPasswordEnv)
	viper.SetDefault(passwordKeyringConfigKey, defaultPasswordKeyring)

	viper.SetDefault(logFilenameKey, defaultLogFilename)
	viper.SetDefault(logLevelKey, defaultLogLevel)
	viper.SetDefault(logVerboseKey, defaultLogVerbose)
	viper.SetDefault(logMaxSizeKey, defaultLogMaxSize)
	viper.SetDefault(logMaxBackupsKey, defaultLogMaxBackups)
	viper.SetDefault(logMaxAgeKey, defaultLogMaxAge)
	viper.SetDefault(logCompressKey, defaultLogCompress)

	configErr = readConfig()
}

// configErr holds the failure to read an existing config file. Commands
// refuse to run while it is set.
var configErr error

func readConfig() error {
	err := viper.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	return &domain.UserError{Message: fmt.Sprintf("cannot read %s: %v", viper.ConfigFileUsed(), err), Err: err}
}

func parseSlogLevel(value string, defaultLevel slog.Level) slog.Level {
	level := strings.ToLower(strings.TrimSpace(value))
	if level == "" {
		return defaultLevel
	}

	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}

	// Allow numeric slog levels as well (e.g. -4 for debug).
	if n, err := strconv.Atoi(level); err == nil {
		return slog.Level(n)
	}

	return defaultLevel
}

// configureLogger configures the global slog logger.
//
// By default it logs at the configured level; if verbose is true it logs at
// Debug. Every record carries the id of the current run.
func configureLogger(logPath string, verbose bool) {
	if strings.TrimSpace(logPath) == "" {
		logPath = viper.GetString(logFilenameKey)
	}

	if strings.TrimSpace(logPath) == "" {
		logPath = defaultLogFilename
	}

	var logLevel slog.Level
	if verbose || viper.GetBool(logVerboseKey) {
		logLevel = slog.LevelDebug
	} else {
		logLevel = parseSlogLevel(viper.GetString(logLevelKey), slog.LevelInfo)
	}

	logWriter := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    viper.GetInt(logMaxSizeKey),
		MaxBackups: viper.GetInt(logMaxBackupsKey),
		MaxAge:     viper.GetInt(logMaxAgeKey),
		Compress:   viper.GetBool(logCompressKey),
	}

	handler := slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	})

	globalLogger = slog.New(handler).With("run", uuid.NewString())
	slog.SetDefault(globalLogger)
}
