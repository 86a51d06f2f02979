// Package config loads the YAML producer manifest and dataset
// definition files used by the burrow CLI.
package config
