package taxonomy

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/askiada/paladin-plugins/internal/datastore"
	"github.com/askiada/paladin-plugins/internal/filestore"
	"github.com/askiada/paladin-plugins/internal/plugins/resources"
)

const (
	lineageQuery = "lineage-lookup"
)

// Lineage resolves the semicolon separated lineage of a UniProt species mnemonic.
type Lineage interface {
	Lookup(ctx context.Context, mnemonic string) (string, bool, error)
}

// Ranks splits a lineage into its trimmed ranks.
func Ranks(lineage string) []string {
	parts := strings.Split(lineage, ";")
	ranks := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			ranks = append(ranks, part)
		}
	}

	return ranks
}

type storeLineage struct {
	st    *datastore.Store
	mu    sync.Mutex
	cache map[string]*string
}

func newStoreLineage(st *datastore.Store) *storeLineage {
	return &storeLineage{st: st, cache: make(map[string]*string)}
}

func (l *storeLineage) Lookup(ctx context.Context, mnemonic string) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cached, ok := l.cache[mnemonic]; ok {
		if cached == nil {
			return "", false, nil
		}

		return *cached, true, nil
	}

	row, err := l.st.QueryRow(ctx, lineageQuery, mnemonic)
	if err != nil {
		return "", false, err
	}
	var lineage string
	err = row.Scan(&lineage)
	if errors.Is(err, sql.ErrNoRows) {
		l.cache[mnemonic] = nil

		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "unable to look up lineage of %s", mnemonic)
	}
	l.cache[mnemonic] = &lineage

	return lineage, true, nil
}

// populate replaces the lineage table with the downloaded taxonomy table.
func (p *taxonomyPlugin) populate(ctx context.Context, st *datastore.Store) error {
	entry := p.res.Files.Add("taxonomy-lineage", "taxonomy-lineage", "taxonomy-lineage.dat",
		p.res.Config.Remote.TaxonomyLineageURL, filestore.Temp, filestore.Normal)
	err := entry.Prepare(ctx)
	if err != nil {
		return err
	}
	r, err := entry.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	err = st.DeleteRows(ctx, "lineage", "")
	if err != nil {
		return err
	}

	_, err = resources.LoadTSV(ctx, r, st, "lineage", true, func(fields []string) ([]any, bool) {
		if len(fields) < 3 || fields[1] == "" {
			return nil, false
		}

		return []any{fields[1], fields[2]}, true
	})

	return err
}
