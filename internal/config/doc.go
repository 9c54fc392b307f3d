// Package config provides configuration management for maestro.
//
// This package implements a simple configuration system that loads
// configuration from a single directory. The default configuration
// directory is ~/.config/maestro, but users can specify a custom
// directory using the --config-path flag in commands.
//
// # Loading Order
//
// Every run mode resolves its configuration the same way:
//
//  1. Built-in defaults (GetDefaultConfig)
//  2. config.yaml from the configuration directory, if present
//  3. Command-line flags, applied by the cmd package
//
// A missing config.yaml is not an error; a malformed one is.
//
// # Configuration Structure
//
// The configuration file uses YAML format with one section per concern:
//
//	bus:
//	  transport: "redis"            # memory | redis (default: memory)
//	  redis:
//	    addr: "localhost:6379"      # redis endpoint (default: localhost:6379)
//	api:
//	  listen: ":8090"               # HTTP listen address (default: :8090)
//	  definitionsDir: ""            # instance definition files; empty disables autoload
//	worker:
//	  platform: "process"           # process | container | pod (default: process)
//	  executable: "/usr/local/bin/managed-server"
//	  configDir: "/var/lib/maestro"
//	reconciler:
//	  apiBaseUrl: "http://localhost:8090"
//	  maxRetries: 3
//	  concurrency: 5
//	  reconcileError: true
//
// Only the sections a mode needs have to be present: a worker node reads
// bus and worker, the reconciler reads bus and reconciler, the API node
// reads bus and api. standalone mode reads all of them.
//
// # Usage Examples
//
//	// Load configuration from default location
//	cfg, err := config.LoadConfig(config.GetDefaultConfigPathOrPanic())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Access the API listen address
//	fmt.Printf("API listening on %s\n", cfg.API.Listen)
package config
