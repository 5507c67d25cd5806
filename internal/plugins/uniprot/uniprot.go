// Package uniprot builds a custom UniProt report for a SAM file through the UniProt id mapping
// service.
package uniprot

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/askiada/paladin-plugins/internal/plugins/resources"
	"github.com/askiada/paladin-plugins/internal/report"
	"github.com/askiada/paladin-plugins/pkg/plugin"
)

const (
	Name        = "uniprot"
	description = "Download custom UniProt reports"
	version     = "1.0.1"

	defaultBatch = 5000
	defaultRetry = 10
)

// DefaultColumns are the UniProtKB result fields retrieved when none are given.
var DefaultColumns = []string{
	"organism_name", "protein_name", "gene_names", "cc_pathway", "go", "reviewed",
	"protein_existence", "xref_kegg", "xref_geneid", "xref_patric", "xref_ensemblbacteria",
}

var (
	ErrTooManyRetries  = errors.New("too many HTTP errors")
	ErrInvalidArgument = errors.New("invalid argument")
)

type Args struct {
	Input   string
	Columns []string
	Batch   int
	Retry   int
}

// hit aggregates the mapped reads of one reference.
type hit struct {
	reference  string
	count      int
	qualitySum int
	qualityMax int
}

type uniprotPlugin struct {
	res *resources.Resources
}

func Definition(res *resources.Resources) (*plugin.Definition, error) {
	p := &uniprotPlugin{res: res}

	return plugin.New(Name, description, version, parse, p.main)
}

func parse(raw string, env *plugin.Env) (plugin.Args, error) {
	flags := plugin.NewFlagSet(Name, description)
	input := flags.StringP("input", "i", "", "input SAM file")
	columns := flags.StringSliceP("columns", "c", DefaultColumns, "UniProtKB fields to retrieve")
	batch := flags.IntP("batch", "b", defaultBatch, "number of entries per submission batch")
	retry := flags.IntP("retry", "r", defaultRetry, "number of times to retry after an HTTP error")

	err := plugin.ParseFlags(flags, raw, env.Out)
	if err != nil {
		return nil, err
	}
	err = plugin.RequireFlags(flags, "input")
	if err != nil {
		return nil, err
	}
	if *batch <= 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "batch must be positive, got %d", *batch)
	}
	if *retry < 0 {
		return nil, errors.Wrapf(ErrInvalidArgument, "retry must not be negative, got %d", *retry)
	}

	return &Args{Input: *input, Columns: *columns, Batch: *batch, Retry: *retry}, nil
}

func (p *uniprotPlugin) main(ctx context.Context, env *plugin.Env, args plugin.Args) error {
	a, _ := args.(*Args)

	poll, err := p.res.Config.Remote.PollDuration()
	if err != nil {
		return err
	}
	timeout, err := p.res.Config.Remote.TimeoutDuration()
	if err != nil {
		return err
	}
	client := NewClient(p.res.HTTP, p.res.Config.Remote.UniProtRESTURL, poll, timeout)

	env.Progress("Gathering SAM data...")
	alignment, err := p.res.Reports.Alignment(a.Input, 0)
	if err != nil {
		return err
	}
	hits, total := aggregateSAM(alignment)

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.reference
	}
	fields := append([]string{"accession"}, a.Columns...)
	table, err := retrieve(ctx, env, client, ids, fields, a.Batch, a.Retry)
	if err != nil {
		return err
	}

	extra := a.Columns
	if len(table.Header) > 0 {
		extra = table.Header[1:]
	}
	env.Send(strings.Join(append([]string{
		"Count", "Abundance", "Quality (Average)", "Quality (Max)", "UniProtKB", "ID",
	}, extra...), "\t"))
	for _, row := range join(hits, total, table) {
		env.Send(strings.Join(row, "\t"))
	}

	return nil
}

// aggregateSAM groups the mapped entries by reference. PALADIN references such as
// sp|P0A7E5|PYRG_ECOLI are reduced to their entry name.
func aggregateSAM(alignment *report.Alignment) ([]*hit, int) {
	var (
		hits  []*hit
		total int
	)
	byRef := make(map[string]*hit)
	for _, key := range alignment.Keys {
		entry := alignment.Entries[key]
		ref := entry.Reference
		if parts := strings.Split(ref, "|"); len(parts) > 2 {
			ref = parts[2]
		}

		h, ok := byRef[ref]
		if !ok {
			h = &hit{reference: ref}
			byRef[ref] = h
			hits = append(hits, h)
		}
		h.count++
		h.qualitySum += entry.MapQuality
		if entry.MapQuality > h.qualityMax {
			h.qualityMax = entry.MapQuality
		}
		total++
	}

	return hits, total
}

// retrieve maps ids batch by batch, retrying a failed batch up to retry times.
func retrieve(ctx context.Context, env *plugin.Env, client *Client, ids, fields []string, batch, retry int) (*Table, error) {
	merged := &Table{Rows: make(map[string][]string)}
	for start := 0; start < len(ids); start += batch {
		end := min(start+batch, len(ids))
		env.Progress(fmt.Sprintf("Fetching entries %d:%d of %d...", start, end, len(ids)))

		var (
			table *Table
			err   error
		)
		for attempt := 0; ; attempt++ {
			table, err = client.Map(ctx, ids[start:end], fields)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return nil, errors.Wrap(ctx.Err(), "id mapping interrupted")
			}
			env.Logger.Debug("id mapping failed", zap.Int("attempt", attempt), zap.Error(err))
			if attempt >= retry {
				env.Progress("Too many HTTP errors, quitting...")

				return nil, errors.Wrapf(ErrTooManyRetries, "entries %d:%d: %s", start, end, err)
			}
			env.Progress("HTTP error, retrying...")
		}

		if merged.Header == nil {
			merged.Header = table.Header
		}
		for id, row := range table.Rows {
			merged.Rows[id] = row
		}
	}

	return merged, nil
}

// join renders one row per hit sorted by count, UniProt columns appended when the hit was
// mapped.
func join(hits []*hit, total int, table *Table) [][]string {
	sorted := append([]*hit(nil), hits...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].count != sorted[j].count {
			return sorted[i].count > sorted[j].count
		}

		return sorted[i].reference < sorted[j].reference
	})

	rows := make([][]string, 0, len(sorted))
	for _, h := range sorted {
		row := []string{
			strconv.Itoa(h.count),
			report.FormatFloat(float64(h.count) * 100 / float64(total)),
			report.FormatFloat(float64(h.qualitySum) / float64(h.count)),
			strconv.Itoa(h.qualityMax),
			h.reference,
		}
		row = append(row, table.Rows[h.reference]...)
		rows = append(rows, row)
	}

	return rows
}
