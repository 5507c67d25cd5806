package uniprot

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"go.uber.org/multierr"
)

const (
	fromDB = "UniProtKB_AC-ID"
	toDB   = "UniProtKB"
)

var (
	ErrJobFailed   = errors.New("id mapping job failed")
	ErrBadResponse = errors.New("unexpected response from UniProt")
)

// Table holds the rows of an id mapping job keyed by the submitted identifier.
type Table struct {
	// Header names the columns following the submitted identifier.
	Header []string
	Rows   map[string][]string
}

// Client talks to the id mapping endpoints of the UniProt REST API.
type Client struct {
	http    *http.Client
	base    string
	poll    time.Duration
	timeout time.Duration
}

// NewClient creates a client for the API rooted at base.
func NewClient(httpClient *http.Client, base string, poll, timeout time.Duration) *Client {
	return &Client{
		http:    httpClient,
		base:    strings.TrimSuffix(base, "/"),
		poll:    poll,
		timeout: timeout,
	}
}

// Map submits ids, waits for the job to finish and returns the requested fields of every
// mapped entry.
func (c *Client) Map(ctx context.Context, ids, fields []string) (*Table, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	jobID, err := c.submit(ctx, ids)
	if err != nil {
		return nil, err
	}
	err = c.wait(ctx, jobID)
	if err != nil {
		return nil, err
	}

	return c.results(ctx, jobID, fields)
}

func (c *Client) submit(ctx context.Context, ids []string) (string, error) {
	form := url.Values{}
	form.Set("ids", strings.Join(ids, ","))
	form.Set("from", fromDB)
	form.Set("to", toDB)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/idmapping/run", strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "unable to build id mapping request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := c.do(req)
	if err != nil {
		return "", err
	}
	jobID := gjson.GetBytes(body, "jobId").String()
	if jobID == "" {
		return "", errors.Wrapf(ErrBadResponse, "no job id in %q", string(body))
	}

	return jobID, nil
}

func (c *Client) wait(ctx context.Context, jobID string) error {
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/idmapping/status/"+jobID, nil)
		if err != nil {
			return errors.Wrap(err, "unable to build status request")
		}
		body, err := c.do(req)
		if err != nil {
			return err
		}

		status := gjson.GetBytes(body, "jobStatus").String()
		switch {
		case status == "FINISHED" || gjson.GetBytes(body, "results").Exists():
			return nil
		case status == "ERROR" || status == "FAILED":
			return errors.Wrapf(ErrJobFailed, "job %s: %s", jobID, gjson.GetBytes(body, "errors.0.message").String())
		}

		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "job %s", jobID)
		case <-time.After(c.poll):
		}
	}
}

func (c *Client) results(ctx context.Context, jobID string, fields []string) (table *Table, err error) {
	query := url.Values{}
	query.Set("format", "tsv")
	query.Set("fields", strings.Join(fields, ","))
	endpoint := c.base + "/idmapping/uniprotkb/results/stream/" + jobID + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "unable to build results request")
	}
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, resp.Body.Close())
	}()

	table = &Table{Rows: make(map[string][]string)}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	first := true
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		columns := strings.Split(line, "\t")
		if first {
			first = false
			if len(columns) > 1 {
				table.Header = columns[1:]
			}

			continue
		}
		table.Rows[columns[0]] = columns[1:]
	}
	if scanErr := scanner.Err(); scanErr != nil {
		return nil, errors.Wrapf(scanErr, "unable to read results of job %s", jobID)
	}

	return table, nil
}

func (c *Client) do(req *http.Request) (body []byte, err error) {
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		err = multierr.Append(err, resp.Body.Close())
	}()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read response of %s", req.URL.Path)
	}

	return body, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", req.Method, req.URL.Path)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_ = resp.Body.Close()

		return nil, errors.Wrapf(ErrBadResponse, "%s %s: %s", req.Method, req.URL.Path, resp.Status)
	}

	return resp, nil
}
