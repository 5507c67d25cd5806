// Package crossref maintains the UniProt id mapping table and exposes it to other plugins.
package crossref

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/askiada/paladin-plugins/internal/datastore"
	"github.com/askiada/paladin-plugins/internal/filestore"
	"github.com/askiada/paladin-plugins/internal/plugins/resources"
	"github.com/askiada/paladin-plugins/pkg/plugin"
)

const (
	Name        = "crossref"
	description = "Provide database cross-references between IDs"
	version     = "1.1.0"

	// StateKey is where the init callback publishes the Index of the plugin.
	StateKey = "crossref.index"

	table = "uniprot"
)

const (
	queryAccCross   = "uniprot_acc_cross"
	queryAccAll     = "uniprot_acc_all"
	queryCrossAcc   = "uniprot_cross_acc"
	queryCrossCross = "uniprot_cross_cross"
)

var indices = []struct {
	name    string
	columns []string
}{
	{name: "uniprot_acc", columns: []string{"acc"}},
	{name: "uniprot_acc_db", columns: []string{"acc", "db"}},
	{name: "uniprot_db_xref", columns: []string{"db", "xref"}},
}

// Definition builds the plugin. It only provides an Index to the plugins depending on it.
func Definition(res *resources.Resources) (*plugin.Definition, error) {
	return plugin.New(Name, description, version, plugin.NoArgs(Name, description),
		func(_ context.Context, env *plugin.Env, _ plugin.Args) error {
			env.Logger.Debug("crossref only provides an API to other plugins")

			return nil
		},
		plugin.WithInit(func(ctx context.Context, env *plugin.Env) error {
			idx, err := Open(ctx, res, env)
			if err != nil {
				return err
			}
			env.State.Set(StateKey, idx)

			return nil
		}),
	)
}

// Open prepares the id mapping store, populating it when it expired.
func Open(ctx context.Context, res *resources.Resources, env *plugin.Env) (*Index, error) {
	st, err := res.OpenStore(ctx, Name)
	if err != nil {
		return nil, err
	}
	err = st.CreateTable(ctx, table, []datastore.Column{
		{Name: "acc", Type: "TEXT"},
		{Name: "db", Type: "TEXT"},
		{Name: "xref", Type: "TEXT"},
	})
	if err != nil {
		return nil, err
	}
	st.DefineQuery(queryAccCross, "SELECT xref FROM uniprot WHERE acc = ? AND db = ?")
	st.DefineQuery(queryAccAll, "SELECT db, xref FROM uniprot WHERE acc = ?")
	st.DefineQuery(queryCrossAcc, "SELECT acc FROM uniprot WHERE db = ? AND xref = ? ORDER BY acc")
	st.DefineQuery(queryCrossCross, "SELECT t2.xref FROM uniprot AS t1 JOIN uniprot AS t2 ON t1.acc = t2.acc "+
		"WHERE t1.db = ? AND t1.xref = ? AND t2.db = ?")
	for _, idx := range indices {
		err = st.DefineIndex(idx.name, table, idx.columns, false)
		if err != nil {
			return nil, err
		}
	}

	_, err = res.Populate(ctx, env.Logger, st, table, func(ctx context.Context) error {
		env.Progress("Populating UniProt database cross-references...")

		return populate(ctx, res, env, st)
	})
	if err != nil {
		return nil, err
	}
	for _, idx := range indices {
		err = st.CreateIndex(ctx, idx.name)
		if err != nil {
			return nil, err
		}
	}

	return &Index{st: st}, nil
}

// populate loads the id mapping file, without indices while rows are inserted.
func populate(ctx context.Context, res *resources.Resources, env *plugin.Env, st *datastore.Store) (err error) {
	entry := res.Files.Add("crossref-uniprot", "crossref-uniprot", "idmapping.dat.gz",
		res.Config.Remote.IDMappingURL, filestore.Temp, filestore.Gzip)
	err = entry.Prepare(ctx)
	if err != nil {
		return err
	}
	r, err := entry.Open()
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, r.Close())
	}()

	for _, idx := range indices {
		err = st.DropIndex(ctx, idx.name)
		if err != nil {
			return err
		}
	}
	err = st.DeleteRows(ctx, table, "")
	if err != nil {
		return err
	}

	inserted, err := resources.LoadTSV(ctx, r, st, table, false, func(fields []string) ([]any, bool) {
		if len(fields) < 3 {
			return nil, false
		}

		return []any{fields[0], fields[1], fields[2]}, true
	})
	if err != nil {
		return err
	}
	env.Logger.Debug("cross references loaded", zap.Int("rows", inserted))

	return nil
}

// Reference is an identifier of an accession in another database.
type Reference struct {
	DB string
	ID string
}

// Index answers cross reference lookups.
type Index struct {
	st *datastore.Store
}

// Cross returns the identifiers of acc in db.
func (i *Index) Cross(ctx context.Context, acc, db string) ([]string, error) {
	return i.st.QueryStrings(ctx, queryAccCross, acc, db)
}

// All returns every identifier of acc.
func (i *Index) All(ctx context.Context, acc string) (refs []Reference, err error) {
	rows, err := i.st.Query(ctx, queryAccAll, acc)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, rows.Close())
	}()

	for rows.Next() {
		var ref Reference
		err = rows.Scan(&ref.DB, &ref.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to read cross references of %s", acc)
		}
		refs = append(refs, ref)
	}

	return refs, errors.Wrapf(rows.Err(), "unable to read cross references of %s", acc)
}

// Accessions returns the accessions known as id in db.
func (i *Index) Accessions(ctx context.Context, db, id string) ([]string, error) {
	return i.st.QueryStrings(ctx, queryCrossAcc, db, id)
}

// Translate maps id of db to the identifiers of the same accessions in toDB.
func (i *Index) Translate(ctx context.Context, db, id, toDB string) ([]string, error) {
	return i.st.QueryStrings(ctx, queryCrossCross, db, id, toDB)
}
