// Package resources bundles what the bundled plugins share: configuration, file and SQLite
// stores, parsed reports and the aligner.
package resources

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/askiada/paladin-plugins/internal/aligner"
	"github.com/askiada/paladin-plugins/internal/config"
	"github.com/askiada/paladin-plugins/internal/datastore"
	"github.com/askiada/paladin-plugins/internal/filestore"
	"github.com/askiada/paladin-plugins/internal/report"
)

var ErrMissingResource = errors.New("resource must be set")

// Resources is built once by the command and handed to every plugin constructor.
type Resources struct {
	Config  *config.Config
	Files   *filestore.Store
	Stores  *datastore.Registry
	Reports *report.Cache
	Aligner aligner.Runner
	HTTP    *http.Client
}

// Validate checks every resource is set.
func (r *Resources) Validate() error {
	switch {
	case r == nil:
		return errors.Wrap(ErrMissingResource, "resources")
	case r.Config == nil:
		return errors.Wrap(ErrMissingResource, "config")
	case r.Files == nil:
		return errors.Wrap(ErrMissingResource, "file store")
	case r.Stores == nil:
		return errors.Wrap(ErrMissingResource, "datastore registry")
	case r.Reports == nil:
		return errors.Wrap(ErrMissingResource, "report cache")
	case r.Aligner == nil:
		return errors.Wrap(ErrMissingResource, "aligner")
	case r.HTTP == nil:
		return errors.Wrap(ErrMissingResource, "http client")
	}

	return nil
}

// OpenStore opens the SQLite store called name in the cache directory.
func (r *Resources) OpenStore(ctx context.Context, name string) (*datastore.Store, error) {
	group := name + "-db"
	entry := r.Files.Add(group, group, name+".db", "", filestore.Cache, filestore.Normal)

	return r.Stores.Open(ctx, name, entry.Path())
}

// Populate refills table with fill, inside a transaction, when the table is older than the
// configured expiry. It reports whether fill ran.
func (r *Resources) Populate(ctx context.Context, logger *zap.Logger, st *datastore.Store, table string, fill func(ctx context.Context) error) (bool, error) {
	expired, err := st.Expired(ctx, table, r.Config.Store.ExpireDays)
	if err != nil {
		return false, err
	}
	if !expired {
		logger.Debug("table is fresh", zap.String("store", st.Name()), zap.String("table", table))

		return false, nil
	}

	err = st.Transaction(ctx, fill)
	if err != nil {
		return false, errors.Wrapf(err, "unable to populate %s.%s", st.Name(), table)
	}

	return true, st.UpdateAge(ctx, table)
}

const loadBatch = 1000

// LoadTSV inserts the rows convert builds from the tab separated lines of r into table, in
// batches. Lines convert rejects are skipped. It returns the number of rows inserted.
func LoadTSV(ctx context.Context, r io.Reader, st *datastore.Store, table string, skipHeader bool, convert func(fields []string) ([]any, bool)) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	var (
		batch    [][]any
		inserted int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := st.InsertRows(ctx, table, batch...)
		if err != nil {
			return err
		}
		inserted += len(batch)
		batch = batch[:0]

		return nil
	}

	first := true
	for scanner.Scan() {
		if first && skipHeader {
			first = false

			continue
		}
		first = false

		values, ok := convert(strings.Split(strings.TrimRight(scanner.Text(), "\r\n"), "\t"))
		if !ok {
			continue
		}
		batch = append(batch, values)
		if len(batch) == loadBatch {
			err := flush()
			if err != nil {
				return inserted, err
			}
		}
	}
	err := scanner.Err()
	if err != nil {
		return inserted, errors.Wrapf(err, "unable to read %s.%s data", st.Name(), table)
	}

	return inserted, flush()
}
