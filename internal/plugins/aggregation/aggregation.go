// Package aggregation combines the SAM files and UniProt reports of several PALADIN runs.
package aggregation

import (
	"bufio"
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/askiada/paladin-plugins/internal/report"
	"github.com/askiada/paladin-plugins/pkg/plugin"
	"github.com/askiada/paladin-plugins/pkg/stage"
)

const (
	Name        = "aggregation"
	description = "Combine multiple PALADIN outputs (both SAM and UniProt) into a single output"
	version     = "1.1.0"

	samSuffix     = ".sam"
	uniprotSuffix = "_uniprot.tsv"
)

var (
	ErrNoInputs  = errors.New("no PALADIN output matched")
	ErrMalformed = errors.New("malformed UniProt report line")
)

// Args are the parsed arguments of the plugin.
type Args struct {
	Root    string
	Pattern *regexp.Regexp
	Output  string
}

// Definition builds the plugin. Reports are parsed by up to workers goroutines.
func Definition(workers int) (*plugin.Definition, error) {
	return plugin.New(Name, description, version, parse, func(ctx context.Context, env *plugin.Env, args plugin.Args) error {
		a, _ := args.(*Args)
		bases, err := BuildPaths(a.Root, a.Pattern)
		if err != nil {
			return err
		}

		return ProcessData(ctx, env, bases, a.Output, workers)
	})
}

func parse(raw string, env *plugin.Env) (plugin.Args, error) {
	flags := plugin.NewFlagSet(Name, description)
	root := flags.StringP("root", "r", "", "root path to search")
	pattern := flags.StringP("pattern", "s", "", "SAM file name pattern (infers the UniProt report)")
	out := flags.StringP("output", "o", "", "output base path")

	err := plugin.ParseFlags(flags, raw, env.Out)
	if err != nil {
		return nil, err
	}
	err = plugin.RequireFlags(flags, "root", "pattern", "output")
	if err != nil {
		return nil, err
	}

	re, err := regexp.Compile("^(?:" + *pattern + ")")
	if err != nil {
		return nil, errors.Wrapf(err, "%s: invalid pattern %q", Name, *pattern)
	}

	return &Args{Root: *root, Pattern: re, Output: *out}, nil
}

// BuildPaths walks root and returns the base path of every SAM file whose name matches pattern.
func BuildPaths(root string, pattern *regexp.Regexp) ([]string, error) {
	var bases []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !pattern.MatchString(d.Name()) || !strings.HasSuffix(d.Name(), samSuffix) {
			return nil
		}
		bases = append(bases, strings.TrimSuffix(path, samSuffix))

		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to walk %s", root)
	}

	return bases, nil
}

// ProcessData writes <outputBase>.sam and <outputBase>_uniprot.tsv from the outputs found at
// bases. SAM headers are kept from the first file only. Report entries are merged by UniProtKB.
func ProcessData(ctx context.Context, env *plugin.Env, bases []string, outputBase string, workers int) error {
	if len(bases) == 0 {
		return errors.Wrapf(ErrNoInputs, "%s", outputBase)
	}

	env.Progress("Gathering SAM data...")
	err := aggregateSAM(env, bases, outputBase+samSuffix)
	if err != nil {
		return err
	}

	env.Progress("Gathering UniProt data...")
	header, merged, err := aggregateReports(ctx, env, bases, workers)
	if err != nil {
		return err
	}

	return writeReport(outputBase+uniprotSuffix, header, merged.finalize())
}

func aggregateSAM(env *plugin.Env, bases []string, target string) (err error) {
	out, err := os.Create(target)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", target)
	}
	defer func() {
		err = multierr.Append(err, out.Close())
	}()

	w := bufio.NewWriter(out)
	for i, base := range bases {
		path := base + samSuffix
		env.Progress("Processing " + path + "...")
		err = copySAM(w, path, i == 0)
		if err != nil {
			return err
		}
	}

	return errors.Wrapf(w.Flush(), "unable to write %s", target)
}

func copySAM(w io.Writer, path string, withHeader bool) error {
	in, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "unable to open %s", path)
	}
	defer in.Close()

	r := bufio.NewReader(in)
	for {
		line, readErr := r.ReadString('\n')
		if line != "" && (withHeader || !strings.HasPrefix(line, "@")) {
			if !strings.HasSuffix(line, "\n") {
				line += "\n"
			}
			_, err = io.WriteString(w, line)
			if err != nil {
				return errors.Wrapf(err, "unable to copy %s", path)
			}
		}
		if errors.Is(readErr, io.EOF) {
			return nil
		}
		if readErr != nil {
			return errors.Wrapf(readErr, "unable to read %s", path)
		}
	}
}

type parsedReport struct {
	index  int
	header string
	rows   []row
}

type row struct {
	count      int
	abundance  float64
	qualityAvg float64
	qualityMax int
	// fields from the UniProtKB column onwards
	rest []string
}

func aggregateReports(ctx context.Context, env *plugin.Env, bases []string, workers int) (string, *merger, error) {
	indices := make([]int, len(bases))
	for i := range indices {
		indices[i] = i
	}

	pipe := stage.New(ctx)
	paths, err := stage.AddRootSlice(pipe, "reports", indices)
	if err != nil {
		return "", nil, err
	}
	parsed, err := stage.AddStepOneToOne(pipe, "parse", paths, func(_ context.Context, i int) (*parsedReport, error) {
		path := bases[i] + uniprotSuffix
		env.Progress("Processing " + path + "...")
		env.Logger.Debug("parsing report", zap.String("path", path))

		return parseReport(i, path)
	}, stage.StepConcurrency[*parsedReport](workers))
	if err != nil {
		return "", nil, err
	}
	results, err := stage.Collect(pipe, "collect", parsed)
	if err != nil {
		return "", nil, err
	}
	err = pipe.Run()
	if err != nil {
		return "", nil, errors.Wrap(err, "unable to read UniProt reports")
	}

	sort.Slice(*results, func(i, j int) bool { return (*results)[i].index < (*results)[j].index })

	m := newMerger()
	header := ""
	for _, res := range *results {
		if header == "" {
			header = res.header
		}
		for _, r := range res.rows {
			m.add(r)
		}
	}

	return header, m, nil
}

func parseReport(index int, path string) (*parsedReport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", path)
	}
	defer f.Close()

	res := &parsedReport{index: index}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if lineNumber == 1 {
			res.header = line
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		r, err := parseRow(strings.Split(line, "\t"))
		if err != nil {
			return nil, errors.Wrapf(err, "%s:%d", path, lineNumber)
		}
		res.rows = append(res.rows, r)
	}

	return res, errors.Wrapf(scanner.Err(), "unable to read %s", path)
}

func parseRow(fields []string) (row, error) {
	if len(fields) < 5 {
		return row{}, errors.Wrapf(ErrMalformed, "%d fields", len(fields))
	}
	count, err := strconv.Atoi(fields[0])
	if err != nil {
		return row{}, errors.Wrapf(ErrMalformed, "count %q", fields[0])
	}
	abundance, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return row{}, errors.Wrapf(ErrMalformed, "abundance %q", fields[1])
	}
	qualityAvg, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return row{}, errors.Wrapf(ErrMalformed, "average quality %q", fields[2])
	}
	qualityMax, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return row{}, errors.Wrapf(ErrMalformed, "max quality %q", fields[3])
	}

	return row{
		count:      count,
		abundance:  abundance,
		qualityAvg: qualityAvg,
		qualityMax: int(qualityMax),
		rest:       fields[4:],
	}, nil
}

// merger sums counts and keeps count weighted sums of abundance and quality.
type merger struct {
	rows map[string]*row
	keys []string
}

func newMerger() *merger {
	return &merger{rows: make(map[string]*row)}
}

func (m *merger) add(r row) {
	kb := r.rest[0]
	existing, ok := m.rows[kb]
	if !ok {
		existing = &row{}
		m.rows[kb] = existing
		m.keys = append(m.keys, kb)
	}
	existing.count += r.count
	existing.abundance += float64(r.count) * r.abundance
	existing.qualityAvg += float64(r.count) * r.qualityAvg
	if r.qualityMax > existing.qualityMax {
		existing.qualityMax = r.qualityMax
	}
	existing.rest = r.rest
}

// finalize turns the sums into the rows of the combined report, largest counts first.
func (m *merger) finalize() []row {
	total := 0
	for _, r := range m.rows {
		total += r.count
	}

	rows := make([]row, 0, len(m.keys))
	for _, kb := range m.keys {
		r := m.rows[kb]
		final := row{qualityMax: r.qualityMax, count: r.count, rest: r.rest}
		if total > 0 {
			final.abundance = float64(r.count) * 100 / float64(total)
		}
		if r.count > 0 {
			final.qualityAvg = r.qualityAvg / float64(r.count)
		}
		rows = append(rows, final)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].count > rows[j].count })

	return rows
}

func writeReport(path, header string, rows []row) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "unable to create %s", path)
	}
	defer func() {
		err = multierr.Append(err, out.Close())
	}()

	w := bufio.NewWriter(out)
	_, err = w.WriteString(header + "\n")
	if err != nil {
		return errors.Wrapf(err, "unable to write %s", path)
	}
	for _, r := range rows {
		fields := append([]string{
			strconv.Itoa(r.count),
			report.FormatFloat(r.abundance),
			report.FormatFloat(r.qualityAvg),
			strconv.Itoa(r.qualityMax),
		}, r.rest...)
		_, err = w.WriteString(strings.Join(fields, "\t") + "\n")
		if err != nil {
			return errors.Wrapf(err, "unable to write %s", path)
		}
	}

	return errors.Wrapf(w.Flush(), "unable to write %s", path)
}
