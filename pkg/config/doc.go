// Package config loads process configuration from environment variables
// and an optional .env file.
//
// Load and MustLoad parse any struct tagged for caarlos0/env and cache the
// result per type. Parse reads from an explicit map and is what tests use.
// App is the configuration shared by mediarelay and mediactl; its Logger,
// Policy, Adapters and Uploader methods turn it into ready components.
//
// Sizes such as MEDIA_MAX_FILE_SIZE accept human values ("20MiB") through
// ByteSize.
package config
