package config

import "errors"

var (
	// ErrConfigFileNotFound indicates that the config file was not found
	ErrConfigFileNotFound = errors.New("configuration file not found")

	// ErrInvalidConfigFormat indicates that the config file is not valid YAML
	ErrInvalidConfigFormat = errors.New("invalid configuration file format")

	// ErrInvalidLogLevel indicates an unknown zerolog level
	ErrInvalidLogLevel = errors.New("invalid logLevel")

	// ErrMissingStorePath indicates that the event store has no path
	ErrMissingStorePath = errors.New("store.path is required")

	// ErrUnknownRemoteKind indicates a remote.kind other than rest or postgres
	ErrUnknownRemoteKind = errors.New("remote.kind must be rest or postgres")

	// ErrMissingRemoteBaseURL indicates a rest remote without a base URL
	ErrMissingRemoteBaseURL = errors.New("remote.baseUrl is required for the rest remote")

	// ErrMissingDatabaseURL indicates a postgres remote without a DSN
	ErrMissingDatabaseURL = errors.New("remote.databaseUrl is required for the postgres remote")

	// ErrInvalidSync indicates out-of-range sync tuning
	ErrInvalidSync = errors.New("invalid sync configuration")

	// ErrInvalidRetention indicates a negative retention period
	ErrInvalidRetention = errors.New("retention.days must not be negative")

	// ErrMissingAuthSecret indicates auth is enabled without a secret
	ErrMissingAuthSecret = errors.New("auth.hs256Secret is required when auth is enabled outside dev mode")
)
