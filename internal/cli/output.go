package cli

import (
	"fmt"
	"os"
)

// OutputFormat selects how command results are rendered.
type OutputFormat string

const (
	// OutputFormatTable renders a kubectl-style plain table.
	OutputFormatTable OutputFormat = "table"
	// OutputFormatWide renders the table with additional columns.
	OutputFormatWide OutputFormat = "wide"
	// OutputFormatJSON renders indented JSON.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML renders YAML converted from the JSON form.
	OutputFormatYAML OutputFormat = "yaml"
)

// ValidOutputFormats lists every accepted --output value.
var ValidOutputFormats = []OutputFormat{
	OutputFormatTable,
	OutputFormatWide,
	OutputFormatJSON,
	OutputFormatYAML,
}

// ValidateOutputFormat rejects unknown --output values with a message
// listing the valid ones.
func ValidateOutputFormat(format string) error {
	switch OutputFormat(format) {
	case OutputFormatTable, OutputFormatWide, OutputFormatJSON, OutputFormatYAML:
		return nil
	default:
		return fmt.Errorf("unsupported output format: %q (valid: table, wide, json, yaml)", format)
	}
}

// EndpointEnvVar is the environment variable holding the default
// control-plane endpoint.
const EndpointEnvVar = "MAESTRO_ENDPOINT"

// DefaultEndpoint is used when neither the --endpoint flag nor the
// environment variable is set.
const DefaultEndpoint = "http://localhost:8090"

// GetDefaultEndpoint returns the endpoint from the environment, if set.
func GetDefaultEndpoint() string {
	return os.Getenv(EndpointEnvVar)
}

// ResolveEndpoint applies the precedence order: --endpoint flag,
// MAESTRO_ENDPOINT, built-in default.
func ResolveEndpoint(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := GetDefaultEndpoint(); env != "" {
		return env
	}
	return DefaultEndpoint
}
