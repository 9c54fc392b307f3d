package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"maestro/internal/api"
	pkgstrings "maestro/pkg/strings"
)

// tableWriter renders kubectl-style plain tables: uppercase headers,
// space-aligned columns, no box drawing. The format survives grep, awk
// and copy/paste, which matters more for a CLI than pretty borders.
type tableWriter struct {
	out         io.Writer
	headers     []string
	rows        [][]string
	widths      []int
	showHeaders bool
}

const columnPadding = 3

func newTableWriter(out io.Writer, showHeaders bool) *tableWriter {
	return &tableWriter{out: out, showHeaders: showHeaders}
}

func (w *tableWriter) setHeaders(headers ...string) {
	w.headers = make([]string, len(headers))
	w.widths = make([]int, len(headers))
	for i, h := range headers {
		w.headers[i] = strings.ToUpper(h)
		w.widths[i] = len(w.headers[i])
	}
}

func (w *tableWriter) addRow(cells ...string) {
	row := make([]string, len(w.headers))
	for i := range w.headers {
		if i < len(cells) {
			row[i] = cells[i]
			if len(cells[i]) > w.widths[i] {
				w.widths[i] = len(cells[i])
			}
		}
	}
	w.rows = append(w.rows, row)
}

func (w *tableWriter) render() {
	if len(w.headers) == 0 {
		return
	}
	if w.showHeaders {
		w.printRow(w.headers)
	}
	for _, row := range w.rows {
		w.printRow(row)
	}
}

func (w *tableWriter) printRow(row []string) {
	var sb strings.Builder
	for i, cell := range row {
		if i == len(row)-1 {
			sb.WriteString(cell)
			continue
		}
		sb.WriteString(fmt.Sprintf("%-*s", w.widths[i]+columnPadding, cell))
	}
	fmt.Fprintln(w.out, strings.TrimRight(sb.String(), " "))
}

// formatAge renders a duration since t the way kubectl does: the
// largest useful unit only.
func formatAge(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	d := time.Since(t)
	switch {
	case d < 0:
		return "0s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// formatTags renders tag maps as sorted key=value pairs.
func formatTags(tags map[string]string) string {
	if len(tags) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+tags[k])
	}
	return strings.Join(pairs, ",")
}

// formatHandle renders the platform-specific runtime handle.
func formatHandle(info *api.RuntimeInfo) string {
	switch {
	case info.ProcessID != 0:
		return fmt.Sprintf("pid:%d", info.ProcessID)
	case info.PodName != "":
		return info.PodNamespace + "/" + info.PodName
	case info.ContainerID != "":
		id := info.ContainerID
		if len(id) > 12 {
			id = id[:12]
		}
		return id
	default:
		return "-"
	}
}

func renderInstancesTable(out io.Writer, instances []*api.Instance, wide, showHeaders bool) {
	w := newTableWriter(out, showHeaders)
	if wide {
		w.setHeaders("name", "id", "platform", "status", "description", "tags", "age", "modified")
	} else {
		w.setHeaders("name", "platform", "status", "age")
	}
	for _, inst := range instances {
		if wide {
			description := pkgstrings.TruncateDescription(inst.Description, 40)
			if description == "" {
				description = "-"
			}
			w.addRow(inst.Name, inst.ID, string(inst.Platform), string(inst.Status),
				description, formatTags(inst.Tags), formatAge(inst.CreatedAt), formatAge(inst.LastModifiedAt))
		} else {
			w.addRow(inst.Name, string(inst.Platform), string(inst.Status), formatAge(inst.CreatedAt))
		}
	}
	w.render()
}

func renderRuntimeTable(out io.Writer, info *api.RuntimeInfo, wide, showHeaders bool) {
	w := newTableWriter(out, showHeaders)
	if wide {
		w.setHeaders("instance", "status", "handle", "started", "stopped", "error")
		stopped := "-"
		if info.StoppedAt != nil {
			stopped = formatAge(*info.StoppedAt)
		}
		errMsg := pkgstrings.TruncateDescription(info.ErrorMessage, pkgstrings.DefaultDescriptionMaxLen)
		if errMsg == "" {
			errMsg = "-"
		}
		w.addRow(info.InstanceID, string(info.Status), formatHandle(info),
			formatAge(info.StartedAt), stopped, errMsg)
	} else {
		w.setHeaders("instance", "status", "handle", "started")
		w.addRow(info.InstanceID, string(info.Status), formatHandle(info), formatAge(info.StartedAt))
	}
	w.render()
}

func renderConfigurationTable(out io.Writer, cfg *api.DeclaredConfiguration, showHeaders bool) {
	w := newTableWriter(out, showHeaders)
	w.setHeaders("host", "port", "loglevel", "sources", "queries", "reactions")
	w.addRow(cfg.Host, fmt.Sprintf("%d", cfg.Port), cfg.LogLevel,
		fmt.Sprintf("%d", len(cfg.Sources)), fmt.Sprintf("%d", len(cfg.Queries)), fmt.Sprintf("%d", len(cfg.Reactions)))
	w.render()
}

func renderChangesTable(out io.Writer, records []api.StatusChangeRecord, wide, showHeaders bool) {
	w := newTableWriter(out, showHeaders)
	if wide {
		w.setHeaders("instance", "from", "to", "source", "timestamp")
	} else {
		w.setHeaders("instance", "from", "to", "source", "age")
	}
	for _, record := range records {
		if wide {
			w.addRow(record.InstanceID, string(record.OldStatus), string(record.NewStatus),
				record.Source, record.Timestamp.Format(time.RFC3339))
		} else {
			w.addRow(record.InstanceID, string(record.OldStatus), string(record.NewStatus),
				record.Source, formatAge(record.Timestamp))
		}
	}
	w.render()
}
