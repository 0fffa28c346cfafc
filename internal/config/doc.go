// Package config loads authd settings with viper: YAML file, then defaults,
// then AUTHCORE_* environment overrides.
package config
