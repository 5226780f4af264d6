// Package config provides centralized configuration management for tabtweak.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//  1. Environment variables (highest priority)
//  2. A YAML file: $TWEAK_CONFIG, config.yaml or configs/config.yaml
//  3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern TWEAK_<SECTION>_<FIELD>:
//
//	TWEAK_SERVER_PORT=8080
//	TWEAK_LOGGING_LEVEL=debug
//	TWEAK_DATA_MAX_INPUT_SIZE=1GB
//	TWEAK_DATA_DATASETS_FILE=/etc/tabtweak/datasets.yaml
//
// Byte sizes accept human units ("64MB", "1GB").
//
// # Path Management
//
// Paths lays out input, report and log directories under one base, by
// default the directory holding the executable:
//
//	paths, err := cfg.ResolvePaths()
//	src := paths.GetInputPath("central-park-raw.csv")
package config
