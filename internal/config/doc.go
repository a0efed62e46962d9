// Package config loads pipeline configuration from environment
// variables, logging every effective value at startup.
package config
