package probe

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v2"
)

// WriteSummary prints one line per column (name, type, layout, role) and the
// suggested comparison.
func (a *Analysis) WriteSummary(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "COLUMN\tTYPE\tLAYOUT\tDISTINCT\tROLE\n")
	for _, c := range a.Columns {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", c.Name, c.Type, c.Layout, c.Distinct, c.Role)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nrows sampled: %d", a.Rows)
	if a.Truncated {
		fmt.Fprint(w, " (truncated sample)")
	}
	fmt.Fprintln(w)
	if a.Latest != "" {
		c := a.Config.Report.Comparison
		fmt.Fprintf(w, "dates: %s .. %s\n", a.Earliest, a.Latest)
		fmt.Fprintf(w, "current:  %s .. %s\nprevious: %s .. %s\n", c.CurrentStart, c.CurrentEnd, c.PreviousStart, c.PreviousEnd)
	}
	return nil
}

// ConfigJSON renders the suggested configuration as indented JSON.
func (a *Analysis) ConfigJSON() ([]byte, error) {
	b, err := json.MarshalIndent(a.Config, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// ConfigYAML renders the suggested configuration as YAML.
func (a *Analysis) ConfigYAML() ([]byte, error) {
	return yaml.Marshal(a.Config)
}
