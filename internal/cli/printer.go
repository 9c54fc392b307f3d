package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"sigs.k8s.io/yaml"

	"maestro/internal/api"
)

// Printer renders API objects in the format picked via --output. Table
// and wide rendering is typed per resource; json and yaml rendering
// round-trips through the wire form, so the field names match what the
// HTTP API returns.
type Printer struct {
	Format    OutputFormat
	NoHeaders bool
	Out       io.Writer
}

// NewPrinter validates the format and builds a printer on stdout.
func NewPrinter(format string, noHeaders bool) (*Printer, error) {
	if err := ValidateOutputFormat(format); err != nil {
		return nil, err
	}
	return &Printer{Format: OutputFormat(format), NoHeaders: noHeaders, Out: os.Stdout}, nil
}

func (p *Printer) PrintInstances(instances []*api.Instance) error {
	switch p.Format {
	case OutputFormatTable, OutputFormatWide:
		renderInstancesTable(p.Out, instances, p.Format == OutputFormatWide, !p.NoHeaders)
		return nil
	default:
		return p.printStructured(instances)
	}
}

func (p *Printer) PrintInstance(inst *api.Instance) error {
	switch p.Format {
	case OutputFormatTable, OutputFormatWide:
		renderInstancesTable(p.Out, []*api.Instance{inst}, p.Format == OutputFormatWide, !p.NoHeaders)
		return nil
	default:
		return p.printStructured(inst)
	}
}

func (p *Printer) PrintRuntime(info *api.RuntimeInfo) error {
	switch p.Format {
	case OutputFormatTable, OutputFormatWide:
		renderRuntimeTable(p.Out, info, p.Format == OutputFormatWide, !p.NoHeaders)
		return nil
	default:
		return p.printStructured(info)
	}
}

// PrintConfiguration summarizes record lists as counts in table mode;
// the full declared configuration is the yaml/json rendering.
func (p *Printer) PrintConfiguration(cfg *api.DeclaredConfiguration) error {
	switch p.Format {
	case OutputFormatTable, OutputFormatWide:
		renderConfigurationTable(p.Out, cfg, !p.NoHeaders)
		return nil
	default:
		return p.printStructured(cfg)
	}
}

func (p *Printer) PrintChanges(records []api.StatusChangeRecord) error {
	switch p.Format {
	case OutputFormatTable, OutputFormatWide:
		renderChangesTable(p.Out, records, p.Format == OutputFormatWide, !p.NoHeaders)
		return nil
	default:
		return p.printStructured(records)
	}
}

func (p *Printer) printStructured(v any) error {
	switch p.Format {
	case OutputFormatJSON:
		enc := json.NewEncoder(p.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case OutputFormatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling to yaml: %w", err)
		}
		_, err = p.Out.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported output format: %q", p.Format)
	}
}
