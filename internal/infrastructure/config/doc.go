// Package config provides configuration loading for HomeFleet Core.
//
// Configuration is layered: hardcoded defaults, then YAML file values,
// then HOMEFLEET_* environment variable overrides. The loaded Config is
// validated before use so startup fails fast on bad settings.
//
// # Usage
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	db, err := database.Open(database.Config{Path: cfg.Database.Path})
//
// A missing config file is not an error; defaults plus environment
// overrides apply, which keeps containerised deployments simple.
package config
