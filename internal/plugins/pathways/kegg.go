package pathways

import (
	"context"
	"database/sql"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/askiada/paladin-plugins/internal/datastore"
)

const (
	enzymeQuery  = "enzyme-lookup"
	pathwayQuery = "pathway-lookup"
)

var ErrBadResponse = errors.New("unexpected response from KEGG")

// Record holds the fields of a KEGG flat file entry. Continuation lines are appended to the
// field they continue.
type Record map[string][]string

// ParseRecord splits a KEGG flat file entry into its fields.
func ParseRecord(raw string) Record {
	rec := Record{}
	field := ""
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		words := strings.Fields(line)
		if line[0] != ' ' {
			field = words[0]
			words = words[1:]
		}
		if field == "" {
			continue
		}
		rec[field] = append(rec[field], strings.Join(words, " "))
	}

	return rec
}

// Enzymes returns the distinct EC numbers listed in the ENZYME field.
func (r Record) Enzymes() map[string]bool {
	enzymes := make(map[string]bool)
	for _, line := range r["ENZYME"] {
		for _, ec := range strings.Fields(line) {
			enzymes[ec] = true
		}
	}

	return enzymes
}

// Pathways returns the identifiers listed in the PATHWAY field.
func (r Record) Pathways() []string {
	ids := make([]string, 0, len(r["PATHWAY"]))
	for _, line := range r["PATHWAY"] {
		if words := strings.Fields(line); len(words) > 0 {
			ids = append(ids, words[0])
		}
	}

	return ids
}

// Name returns the first line of the NAME field.
func (r Record) Name() string {
	if names := r["NAME"]; len(names) > 0 {
		return names[0]
	}

	return ""
}

// Client fetches entries from the KEGG REST API.
type Client struct {
	http *http.Client
	base string
}

func NewClient(httpClient *http.Client, base string) *Client {
	return &Client{http: httpClient, base: strings.TrimSuffix(base, "/")}
}

// Get returns the flat file entry of id. Unknown entries are returned empty.
func (c *Client) Get(ctx context.Context, id string) (raw string, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/get/"+id, nil)
	if err != nil {
		return "", errors.Wrapf(err, "unable to build request for %s", id)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "GET %s", req.URL.Path)
	}
	defer func() {
		err = multierr.Append(err, resp.Body.Close())
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", nil
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return "", errors.Wrapf(ErrBadResponse, "GET %s: %s", req.URL.Path, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrapf(err, "unable to read %s", id)
	}

	return string(body), nil
}

// cache answers lookups from the pathways store and fetches the misses from KEGG.
type cache struct {
	st     *datastore.Store
	client *Client
}

func (c *cache) enzyme(ctx context.Context, ec string) (Record, error) {
	return c.lookup(ctx, enzymeQuery, "enzyme", ec, "ec:"+ec)
}

func (c *cache) pathway(ctx context.Context, id string) (Record, error) {
	return c.lookup(ctx, pathwayQuery, "pathway", id, id)
}

func (c *cache) lookup(ctx context.Context, query, table, key, keggID string) (Record, error) {
	row, err := c.st.QueryRow(ctx, query, key)
	if err != nil {
		return nil, err
	}
	var raw string
	err = row.Scan(&raw)
	switch {
	case err == nil:
		return ParseRecord(raw), nil
	case !errors.Is(err, sql.ErrNoRows):
		return nil, errors.Wrapf(err, "unable to look up %s %s", table, key)
	}

	raw, err = c.client.Get(ctx, keggID)
	if err != nil {
		return nil, err
	}
	err = c.st.InsertRows(ctx, table, []any{key, raw})
	if err != nil {
		return nil, err
	}

	return ParseRecord(raw), nil
}
