// Package decluster renders the protein sequences of every member of the UniRef90 clusters
// found in a UniProt report.
package decluster

import (
	"bufio"
	"context"
	"database/sql"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/askiada/paladin-plugins/internal/datastore"
	"github.com/askiada/paladin-plugins/internal/filestore"
	"github.com/askiada/paladin-plugins/internal/plugins/crossref"
	"github.com/askiada/paladin-plugins/internal/plugins/resources"
	"github.com/askiada/paladin-plugins/internal/report"
	"github.com/askiada/paladin-plugins/pkg/plugin"
	"github.com/askiada/paladin-plugins/pkg/plugin/output"
)

const (
	Name        = "decluster"
	description = "Generate a reference containing each protein sequence used to generate the UniRef clusters detected in a PALADIN UniProt report"
	version     = "1.1.0"

	sequencesGroup = "decluster-seqs"
	indexQuery     = "index-lookup"
	clusterDB      = "UniRef90"
	insertBatch    = 1000
)

var ErrSequenceNotFound = errors.New("sequence not found for UniProt accession")

type Args struct {
	Input   string
	Quality int
}

type declusterPlugin struct {
	res *resources.Resources
	st  *datastore.Store
}

// Definition builds the plugin. Its init callback indexes the Swiss-Prot and TrEMBL sequences.
func Definition(res *resources.Resources) (*plugin.Definition, error) {
	p := &declusterPlugin{res: res}

	return plugin.New(Name, description, version, parse, p.main,
		plugin.WithDependencies(crossref.Name),
		plugin.WithInit(p.init),
	)
}

func parse(raw string, env *plugin.Env) (plugin.Args, error) {
	flags := plugin.NewFlagSet(Name, description)
	input := flags.StringP("input", "i", "", "PALADIN UniProt report")
	quality := flags.IntP("quality", "q", 0, "minimum mapping quality filter")

	err := plugin.ParseFlags(flags, raw, env.Out)
	if err != nil {
		return nil, err
	}
	err = plugin.RequireFlags(flags, "input", "quality")
	if err != nil {
		return nil, err
	}

	return &Args{Input: *input, Quality: *quality}, nil
}

func (p *declusterPlugin) init(ctx context.Context, env *plugin.Env) error {
	remote := p.res.Config.Remote
	p.res.Files.Add(sequencesGroup, "decluster-swissprot", "decluster_uniprot_sprot.fasta.gz",
		remote.SwissProtURL, filestore.Cache, filestore.GzipDecompress)
	p.res.Files.Add(sequencesGroup, "decluster-trembl", "decluster_uniprot_trembl.fasta.gz",
		remote.TremblURL, filestore.Cache, filestore.GzipDecompress)

	st, err := p.res.OpenStore(ctx, Name)
	if err != nil {
		return err
	}
	err = st.CreateTable(ctx, "indices", []datastore.Column{
		{Name: "id", Type: "TEXT", Modifier: "PRIMARY KEY"},
		{Name: "file", Type: "TEXT"},
		{Name: "pos", Type: "INTEGER"},
	})
	if err != nil {
		return err
	}
	st.DefineQuery(indexQuery, "SELECT file, pos FROM indices WHERE id = ?")

	_, err = p.res.Populate(ctx, env.Logger, st, "indices", func(ctx context.Context) error {
		env.Progress("Populating UniProt sequences...")
		err := st.DeleteRows(ctx, "indices", "")
		if err != nil {
			return err
		}
		for _, entry := range p.res.Files.Group(sequencesGroup) {
			err = indexSequences(ctx, st, entry)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return err
	}
	p.st = st

	return nil
}

// indexSequences records the offset of every FASTA header of entry.
func indexSequences(ctx context.Context, st *datastore.Store, entry *filestore.Entry) (err error) {
	err = entry.Prepare(ctx)
	if err != nil {
		return err
	}
	f, err := entry.Open()
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	var (
		batch  [][]any
		offset int64
	)
	r := bufio.NewReader(f)
	for {
		line, readErr := r.ReadString('\n')
		if strings.HasPrefix(line, ">") {
			if acc, ok := accession(line); ok {
				batch = append(batch, []any{acc, entry.ID, offset})
			}
		}
		offset += int64(len(line))

		if len(batch) == insertBatch || (errors.Is(readErr, io.EOF) && len(batch) > 0) {
			err = st.InsertRows(ctx, "indices", batch...)
			if err != nil {
				return err
			}
			batch = batch[:0]
		}
		if errors.Is(readErr, io.EOF) {
			return nil
		}
		if readErr != nil {
			return errors.Wrapf(readErr, "unable to read %s", entry.Path())
		}
	}
}

// accession extracts P0A7E5 from a header such as >sp|P0A7E5|PYRG_ECOLI CTP synthase.
func accession(header string) (string, bool) {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return "", false
	}
	parts := strings.Split(fields[0], "|")
	if len(parts) < 2 || parts[1] == "" {
		return "", false
	}

	return parts[1], true
}

func (p *declusterPlugin) main(ctx context.Context, env *plugin.Env, args plugin.Args) (err error) {
	a, _ := args.(*Args)
	index, err := plugin.Lookup[*crossref.Index](env.State, crossref.StateKey)
	if err != nil {
		return err
	}

	rep, err := p.res.Reports.Report(a.Input, float64(a.Quality), "")
	if err != nil {
		return err
	}
	var clusters []string
	seen := make(map[string]bool)
	rep.Each(func(entry *report.Entry) {
		if entry.ID == report.UnknownValue || seen[entry.ID] {
			return
		}
		seen[entry.ID] = true
		clusters = append(clusters, clusterDB+"_"+entry.ID)
	})
	env.Progress("Parsed " + strconv.Itoa(len(clusters)) + " entries from UniProt report")

	reader := newSequenceReader(p.res.Files, p.st)
	defer func() {
		err = multierr.Append(err, reader.close())
	}()

	w := env.Out.Writer(output.Stdout)
	for _, cluster := range clusters {
		accessions, err := index.Accessions(ctx, clusterDB, cluster)
		if err != nil {
			return err
		}
		for _, acc := range accessions {
			sequence, err := reader.sequence(ctx, acc)
			if err != nil {
				return err
			}
			_, err = io.WriteString(w, sequence)
			if err != nil {
				return errors.Wrap(err, "unable to write sequence")
			}
		}
	}

	return nil
}

// sequenceReader reads indexed FASTA records, keeping one handle per file.
type sequenceReader struct {
	files   *filestore.Store
	st      *datastore.Store
	handles map[string]io.ReadSeekCloser
}

func newSequenceReader(files *filestore.Store, st *datastore.Store) *sequenceReader {
	return &sequenceReader{files: files, st: st, handles: make(map[string]io.ReadSeekCloser)}
}

func (r *sequenceReader) sequence(ctx context.Context, acc string) (string, error) {
	row, err := r.st.QueryRow(ctx, indexQuery, acc)
	if err != nil {
		return "", err
	}
	var (
		file string
		pos  int64
	)
	err = row.Scan(&file, &pos)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errors.Wrapf(ErrSequenceNotFound, "%q", acc)
	}
	if err != nil {
		return "", errors.Wrapf(err, "unable to look up sequence of %s", acc)
	}

	handle, ok := r.handles[file]
	if !ok {
		entry, err := r.files.Entry(sequencesGroup, file)
		if err != nil {
			return "", err
		}
		handle, err = entry.OpenSeeker()
		if err != nil {
			return "", err
		}
		r.handles[file] = handle
	}
	_, err = handle.Seek(pos, io.SeekStart)
	if err != nil {
		return "", errors.Wrapf(err, "unable to seek sequence of %s", acc)
	}

	var record strings.Builder
	br := bufio.NewReader(handle)
	for {
		line, readErr := br.ReadString('\n')
		if strings.HasPrefix(line, ">") && record.Len() > 0 {
			break
		}
		record.WriteString(line)
		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				return "", errors.Wrapf(readErr, "unable to read sequence of %s", acc)
			}
			if line != "" && !strings.HasSuffix(line, "\n") {
				record.WriteString("\n")
			}

			break
		}
	}

	return record.String(), nil
}

func (r *sequenceReader) close() error {
	var err error
	for _, handle := range r.handles {
		err = multierr.Append(err, handle.Close())
	}

	return err
}
