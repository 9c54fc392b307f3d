package cmd

import (
	"context"
	"fmt"

	"maestro/internal/api"
	"maestro/internal/cli"
	"maestro/internal/client"

	"github.com/spf13/cobra"
)

// newAPIClient builds the HTTP client for the endpoint resolved from
// the command flags, the MAESTRO_ENDPOINT environment variable, or the
// built-in default, in that order.
func newAPIClient(flags *cli.CommandFlags) (*client.Client, error) {
	return client.New(client.Config{BaseURL: cli.ResolveEndpoint(flags.Endpoint)})
}

// newPrinter builds a printer for the command's output stream, so
// tests can capture rendering through cobra's SetOut.
func newPrinter(cmd *cobra.Command, flags *cli.CommandFlags) (*cli.Printer, error) {
	p, err := cli.NewPrinter(flags.OutputFormat, flags.NoHeaders)
	if err != nil {
		return nil, err
	}
	p.Out = cmd.OutOrStdout()
	return p, nil
}

// resolveInstance looks an instance up by id, falling back to a unique
// name match so commands accept either.
func resolveInstance(ctx context.Context, c *client.Client, key string) (*api.Instance, error) {
	inst, err := c.GetInstance(ctx, key)
	if err == nil {
		return inst, nil
	}
	if !api.IsNotFound(err) {
		return nil, err
	}

	instances, listErr := c.ListInstances(ctx)
	if listErr != nil {
		return nil, err
	}
	var match *api.Instance
	for _, candidate := range instances {
		if candidate.Name != key {
			continue
		}
		if match != nil {
			return nil, api.NewValidationError("name", fmt.Sprintf("name %q matches more than one instance, use the instance id", key))
		}
		match = candidate
	}
	if match == nil {
		return nil, err
	}
	return match, nil
}

// structured reports whether the format bypasses human-oriented
// success lines in favor of the full API object.
func structured(flags *cli.CommandFlags) bool {
	format := cli.OutputFormat(flags.OutputFormat)
	return format == cli.OutputFormatJSON || format == cli.OutputFormatYAML
}

// runLifecycle is the shared body of the start, stop, and restart
// commands: resolve the instance, run the operation behind a spinner,
// then either print a success line or the runtime info for structured
// formats.
func runLifecycle(cmd *cobra.Command, flags *cli.CommandFlags, key, progress, done string,
	op func(ctx context.Context, c *client.Client, id string) (*api.RuntimeInfo, error)) error {
	c, err := newAPIClient(flags)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	inst, err := resolveInstance(ctx, c, key)
	if err != nil {
		return err
	}

	var info *api.RuntimeInfo
	err = cli.RunWithSpinner(flags.Quiet, fmt.Sprintf("%s instance %s...", progress, inst.Name), func() error {
		var opErr error
		info, opErr = op(ctx, c, inst.ID)
		return opErr
	})
	if err != nil {
		return err
	}

	if flags.Quiet {
		return nil
	}
	if structured(flags) {
		printer, err := newPrinter(cmd, flags)
		if err != nil {
			return err
		}
		return printer.PrintRuntime(info)
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Instance %s %s", inst.Name, done)))
	return nil
}
