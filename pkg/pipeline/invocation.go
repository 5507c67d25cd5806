package pipeline

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"

	"github.com/askiada/paladin-plugins/pkg/plugin"
)

// Invocation is one plugin segment of a command line.
type Invocation struct {
	Name string
	// Args is the raw argument substring, trimmed of surrounding whitespace.
	Args string
}

// String renders the invocation the way it is typed.
func (i Invocation) String() string {
	if i.Args == "" {
		return plugin.Marker + i.Name
	}

	return plugin.Marker + i.Name + " " + i.Args
}

// Format joins invocations into a command line ParseLine splits back into the same invocations.
func Format(invocations []Invocation) string {
	parts := make([]string, len(invocations))
	for i, inv := range invocations {
		parts[i] = inv.String()
	}

	return strings.Join(parts, " ")
}

// Parse builds invocations from arguments already split by a shell. Arguments needing it are
// quoted again so plugins see them as single words.
func Parse(args []string) ([]Invocation, error) {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = quote(arg)
	}

	return ParseLine(strings.Join(quoted, " "))
}

// ParseLine splits a command line into invocations. The marker is only recognised at the start
// of an unquoted whitespace delimited token. An empty line holds no invocation.
func ParseLine(line string) ([]Invocation, error) {
	toks, err := tokenize(line)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, nil
	}

	var (
		res     []Invocation
		current *Invocation
		start   int
	)
	closeCurrent := func(end int) {
		if current != nil {
			current.Args = strings.TrimSpace(line[start:end])
			res = append(res, *current)
		}
	}

	for _, tk := range toks {
		text := line[tk.start:tk.end]
		if !strings.HasPrefix(text, plugin.Marker) {
			if current == nil {
				return nil, errors.Wrapf(ErrMissingMarker, "found %q", text)
			}

			continue
		}

		closeCurrent(tk.start)
		name := strings.TrimPrefix(text, plugin.Marker)
		if name == "" {
			return nil, errors.Wrapf(ErrEmptyPluginName, "at offset %d", tk.start)
		}
		current = &Invocation{Name: name}
		start = tk.end
	}
	closeCurrent(len(line))

	return res, nil
}

type token struct {
	start, end int
}

// tokenize returns the byte offsets of the whitespace delimited tokens of line, honouring
// single quotes, double quotes and backslash escapes.
func tokenize(line string) ([]token, error) {
	var (
		toks           []token
		inToken        bool
		single, double bool
		escaped        bool
		tokenStart     int
	)

	for i, r := range line {
		switch {
		case escaped:
			escaped = false
		case r == '\\' && !single:
			escaped = true
		case r == '\'' && !double:
			single = !single
		case r == '"' && !single:
			double = !double
		case unicode.IsSpace(r) && !single && !double:
			if inToken {
				toks = append(toks, token{tokenStart, i})
				inToken = false
			}

			continue
		}

		if !inToken {
			inToken = true
			tokenStart = i
		}
	}

	if single || double || escaped {
		return nil, errors.Wrapf(ErrUnbalancedQuote, "in %q", line)
	}
	if inToken {
		toks = append(toks, token{tokenStart, len(line)})
	}

	return toks, nil
}

func quote(arg string) string {
	if arg != "" && !strings.ContainsFunc(arg, needsQuote) {
		return arg
	}

	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range arg {
		if r == '"' || r == '\\' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	sb.WriteByte('"')

	return sb.String()
}

func needsQuote(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune(shellSpecial, r)
}

const shellSpecial = "\"'\\;&|<>()`$"
