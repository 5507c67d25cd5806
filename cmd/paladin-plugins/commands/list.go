package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/pkg/errors"

	"github.com/askiada/paladin-plugins/pkg/plugin"
)

const (
	listWidth = 78
	// descriptions start at this column, continuation lines are indented to it
	listIndent = 24
)

// listPlugins writes the registered plugins sorted by name with their wrapped description.
func listPlugins(w io.Writer, reg *plugin.Registry) error {
	var b strings.Builder
	b.WriteString("The following plugins are available:\n")
	for _, def := range reg.Definitions() {
		header := fmt.Sprintf("%s (%s):", def.Name(), def.VersionString())
		lines := strings.Split(wordwrap.String(def.Description(), listWidth-listIndent), "\n")
		fmt.Fprintf(&b, "  %-21s %s\n", header, strings.TrimSpace(lines[0]))
		if len(lines) > 1 {
			b.WriteString(indent.String(strings.Join(lines[1:], "\n"), listIndent) + "\n")
		}
	}

	_, err := io.WriteString(w, b.String())

	return errors.Wrap(err, "unable to list plugins")
}
