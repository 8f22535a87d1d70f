// Package config defines application configuration and its loading from
// environment variables and an optional YAML file.
package config
