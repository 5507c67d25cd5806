// Package resourcestest builds resources backed by temporary directories and runs plugins
// through a real pipeline engine in tests.
package resourcestest

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/askiada/paladin-plugins/internal/config"
	"github.com/askiada/paladin-plugins/internal/datastore"
	"github.com/askiada/paladin-plugins/internal/filestore"
	"github.com/askiada/paladin-plugins/internal/plugins/resources"
	"github.com/askiada/paladin-plugins/internal/report"
	"github.com/askiada/paladin-plugins/pkg/pipeline"
	"github.com/askiada/paladin-plugins/pkg/plugin"
	"github.com/askiada/paladin-plugins/pkg/plugin/output"
)

// Alignment records one call of the fake aligner.
type Alignment struct {
	Reference string
	Input     string
	Output    string
	Options   []string
}

// Aligner is a fake aligner writing a SAM file and a UniProt report produced by Produce.
type Aligner struct {
	mu    sync.Mutex
	Calls []Alignment
	// Produce returns the SAM and report contents written for input. Nothing is written when nil.
	Produce func(input string) (sam string, uniprot string)
	Err     error
}

// Align records the call and writes <output>.sam, <output>_uniprot.tsv and <output>.log.
func (a *Aligner) Align(_ context.Context, reference, input, out string, options []string) error {
	a.mu.Lock()
	a.Calls = append(a.Calls, Alignment{Reference: reference, Input: input, Output: out, Options: options})
	a.mu.Unlock()

	if a.Err != nil {
		return a.Err
	}
	if a.Produce == nil {
		return nil
	}
	sam, uniprot := a.Produce(input)
	for path, content := range map[string]string{out + ".sam": sam, out + "_uniprot.tsv": uniprot, out + ".log": "done\n"} {
		err := os.WriteFile(path, []byte(content), 0o600)
		if err != nil {
			return err
		}
	}

	return nil
}

// Recorded returns a copy of the recorded calls.
func (a *Aligner) Recorded() []Alignment {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]Alignment(nil), a.Calls...)
}

// New builds resources in temporary directories. Remote URLs point at base when it is not empty.
func New(t *testing.T, base string) *resources.Resources {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Store.CacheDir = t.TempDir()
	cfg.Store.OutputDir = t.TempDir()
	cfg.Aligner.Workers = 2
	cfg.Remote.PollInterval = "10ms"
	cfg.Remote.Timeout = "5s"
	if base != "" {
		cfg.Remote.TaxonomyLineageURL = base + "/taxonomy.tsv"
		cfg.Remote.IDMappingURL = base + "/idmapping.dat.gz"
		cfg.Remote.SwissProtURL = base + "/uniprot_sprot.fasta.gz"
		cfg.Remote.TremblURL = base + "/uniprot_trembl.fasta.gz"
		cfg.Remote.UniProtRESTURL = base
		cfg.Remote.KEGGRESTURL = base + "/kegg"
	}

	files, err := filestore.New(cfg.Store.CacheDir, cfg.Store.OutputDir, "pp-test-", cfg.Store.ExpireDays)
	require.NoError(t, err)
	stores := datastore.NewRegistry()
	t.Cleanup(func() {
		require.NoError(t, stores.Close())
		require.NoError(t, files.Close())
	})

	return &resources.Resources{
		Config:  cfg,
		Files:   files,
		Stores:  stores,
		Reports: report.NewCache(),
		Aligner: &Aligner{},
		HTTP:    http.DefaultClient,
	}
}

// Result is what a pipeline run left on the output streams.
type Result struct {
	Stdout string
	Stderr string
	Env    *plugin.Env
}

// Run parses line and runs it with an engine knowing defs. Both streams stay buffered.
func Run(t *testing.T, line string, defs ...*plugin.Definition) (Result, error) {
	t.Helper()

	reg, err := plugin.NewRegistry(defs...)
	require.NoError(t, err)

	router := output.NewRouter(output.RouterConsole(output.Stderr, nil))
	engine, err := pipeline.New(reg, router)
	require.NoError(t, err)

	invocations, err := pipeline.ParseLine(line)
	require.NoError(t, err)

	err = engine.Run(context.Background(), invocations)

	return Result{
		Stdout: router.Pending(output.Stdout),
		Stderr: router.Pending(output.Stderr),
		Env:    engine.Env(),
	}, err
}

// WriteFile writes content to name inside dir and returns the path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}
