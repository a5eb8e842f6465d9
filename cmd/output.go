package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"goalsync/internal/errs"
)

// writeOutput renders value as json or yaml, or hands off to text for the
// default human format.
func writeOutput(w io.Writer, format string, value any, text func(io.Writer) error) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return text(w)
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return errs.Wrap(encoder.Encode(value), "encode json output")
	case "yaml", "yml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(value); err != nil {
			return errs.Wrap(err, "encode yaml output")
		}
		return errs.Wrap(encoder.Close(), "flush yaml output")
	default:
		return fmt.Errorf("unsupported output format %q (text|json|yaml)", format)
	}
}
