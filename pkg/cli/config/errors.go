package config

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for configuration validation
var (
	ErrConfigNotFound      = goerr.New("configuration file not found")
	ErrInvalidConfig       = goerr.New("invalid configuration")
	ErrDuplicateCategoryID = goerr.New("duplicate category ID")
	ErrInvalidThreshold    = goerr.New("invalid duplication threshold")
)
