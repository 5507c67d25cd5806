// Package filestore tracks the temporary, cached and produced files plugins work with.
package filestore

import (
	"archive/tar"
	"bufio"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Kind selects the directory an entry lives in.
type Kind int

const (
	Temp Kind = iota
	Cache
	Output
	// User entries use their name as a path.
	User
)

// Option tells how an entry is stored on disk.
type Option int

const (
	Normal Option = iota
	// Gzip entries stay compressed and are read through a gzip reader.
	Gzip
	// GzipDecompress entries are decompressed once prepared.
	GzipDecompress
	// Tar entries are extracted next to the archive once prepared.
	Tar
)

const day = 24 * time.Hour

var (
	ErrEntryNotFound = errors.New("file entry not found")
	ErrNoURL         = errors.New("file entry has no url")
	ErrNotSeekable   = errors.New("compressed file entries cannot be seeked")
	ErrUnsafePath    = errors.New("archive member escapes the extraction directory")
)

// Store owns the entries of a run and the temporary directory backing Temp entries.
type Store struct {
	mu         sync.Mutex
	tempDir    string
	cacheDir   string
	outputDir  string
	expireDays int
	client     *http.Client
	logger     *zap.Logger
	groups     map[string][]*Entry
}

// StoreOption configures a Store.
type StoreOption func(s *Store)

// WithHTTPClient sets the client used to download entries.
func WithHTTPClient(client *http.Client) StoreOption {
	return func(s *Store) {
		s.client = client
	}
}

func WithLogger(logger *zap.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates the cache and output directories if needed and a fresh temporary directory
// named after tempPrefix.
func New(cacheDir, outputDir, tempPrefix string, expireDays int, opts ...StoreOption) (*Store, error) {
	for _, dir := range []string{cacheDir, outputDir} {
		err := os.MkdirAll(dir, 0o755)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to create directory %s", dir)
		}
	}

	tempDir, err := os.MkdirTemp("", tempPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create temporary directory")
	}

	s := &Store{
		tempDir:    tempDir,
		cacheDir:   cacheDir,
		outputDir:  outputDir,
		expireDays: expireDays,
		client:     http.DefaultClient,
		logger:     zap.NewNop(),
		groups:     make(map[string][]*Entry),
	}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// TempDir returns the temporary directory removed by Close.
func (s *Store) TempDir() string { return s.tempDir }

// Add registers an entry in group, replacing an entry with the same id.
func (s *Store) Add(group, id, name, url string, kind Kind, option Option) *Entry {
	entry := &Entry{
		ID:     id,
		URL:    url,
		Kind:   kind,
		Option: option,
		store:  s,
	}
	switch kind {
	case Temp:
		entry.path = filepath.Join(s.tempDir, name)
	case Cache:
		entry.path = filepath.Join(s.cacheDir, name)
	case Output:
		entry.path = filepath.Join(s.outputDir, name)
	case User:
		entry.path = name
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.groups[group]
	for i, existing := range entries {
		if existing.ID == id {
			entries[i] = entry

			return entry
		}
	}
	s.groups[group] = append(entries, entry)

	return entry
}

// Entry returns the entry id of group.
func (s *Store) Entry(group, id string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.groups[group] {
		if entry.ID == id {
			return entry, nil
		}
	}

	return nil, errors.Wrapf(ErrEntryNotFound, "%s/%s", group, id)
}

// Group returns the entries of group in the order they were added.
func (s *Store) Group(group string) []*Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]*Entry(nil), s.groups[group]...)
}

// Close closes every handle still open and removes the temporary directory.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for _, entries := range s.groups {
		for _, entry := range entries {
			err = multierr.Append(err, entry.closeHandles())
		}
	}

	return multierr.Append(err, errors.Wrapf(os.RemoveAll(s.tempDir), "unable to remove %s", s.tempDir))
}

// Entry is one file of the store.
type Entry struct {
	ID     string
	URL    string
	Kind   Kind
	Option Option

	store   *Store
	mu      sync.Mutex
	path    string
	handles []io.Closer
}

// Path returns the location of the file. A GzipDecompress entry already decompressed, fully or
// partially, resolves to the decompressed file.
func (e *Entry) Path() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.resolvedPath()
}

func (e *Entry) resolvedPath() string {
	if e.Option != GzipDecompress || !strings.HasSuffix(e.path, ".gz") {
		return e.path
	}
	decompressed := strings.TrimSuffix(e.path, ".gz")
	if _, err := os.Stat(decompressed); err == nil {
		return decompressed
	}

	return e.path
}

// Exists reports whether the file is present.
func (e *Entry) Exists() bool {
	_, err := os.Stat(e.Path())

	return err == nil
}

// Expired reports whether the file is older than the expiry of the store. A missing file is
// expired.
func (e *Entry) Expired() (bool, error) {
	info, err := os.Stat(e.Path())
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "unable to stat %s", e.Path())
	}

	return time.Since(info.ModTime()) > time.Duration(e.store.expireDays)*day, nil
}

// Prepare downloads the entry if it has a URL, then decompresses or extracts it as its option
// requires.
func (e *Entry) Prepare(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.URL != "" {
		err := e.download(ctx)
		if err != nil {
			return err
		}
	}

	switch e.Option {
	case GzipDecompress:
		return e.decompress()
	case Tar:
		return e.extract()
	default:
		return nil
	}
}

func (e *Entry) download(ctx context.Context) (err error) {
	e.store.logger.Debug("downloading file", zap.String("url", e.URL), zap.String("path", e.path))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.URL, nil)
	if err != nil {
		return errors.Wrapf(err, "unable to build request for %s", e.URL)
	}
	resp, err := e.store.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "unable to download %s", e.URL)
	}
	defer func() {
		err = multierr.Append(err, resp.Body.Close())
	}()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("unable to download %s: %s", e.URL, resp.Status)
	}

	return writeAtomic(e.path, resp.Body)
}

func (e *Entry) decompress() (err error) {
	if !strings.HasSuffix(e.path, ".gz") {
		return nil
	}

	in, err := os.Open(e.path)
	if err != nil {
		return errors.Wrapf(err, "unable to open %s", e.path)
	}
	defer func() {
		err = multierr.Append(err, in.Close())
	}()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return errors.Wrapf(err, "unable to read gzip header of %s", e.path)
	}

	target := strings.TrimSuffix(e.path, ".gz")
	err = writeAtomic(target, zr)
	if err != nil {
		return err
	}
	err = os.Remove(e.path)
	if err != nil {
		return errors.Wrapf(err, "unable to remove %s", e.path)
	}
	e.path = target

	return nil
}

func (e *Entry) extract() (err error) {
	in, err := os.Open(e.path)
	if err != nil {
		return errors.Wrapf(err, "unable to open %s", e.path)
	}
	defer func() {
		err = multierr.Append(err, in.Close())
	}()

	buffered := bufio.NewReader(in)
	var reader io.Reader = buffered
	if magic, peekErr := buffered.Peek(2); peekErr == nil && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(buffered)
		if err != nil {
			return errors.Wrapf(err, "unable to read gzip header of %s", e.path)
		}
		reader = zr
	}

	dir := filepath.Dir(e.path)
	tr := tar.NewReader(reader)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "unable to read archive %s", e.path)
		}

		target := filepath.Join(dir, header.Name)
		if target != dir && !strings.HasPrefix(target, dir+string(os.PathSeparator)) {
			return errors.Wrapf(ErrUnsafePath, "%s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			err = os.MkdirAll(target, 0o755)
			if err != nil {
				return errors.Wrapf(err, "unable to create %s", target)
			}
		case tar.TypeReg:
			err = os.MkdirAll(filepath.Dir(target), 0o755)
			if err != nil {
				return errors.Wrapf(err, "unable to create %s", filepath.Dir(target))
			}
			err = writeAtomic(target, tr)
			if err != nil {
				return err
			}
		}
	}
}

// Open opens the file for reading, through a gzip reader for Gzip entries. The handle is also
// closed by Store.Close.
func (e *Entry) Open() (io.ReadCloser, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	path := e.resolvedPath()
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", path)
	}
	e.handles = append(e.handles, file)

	if e.Option != Gzip {
		return file, nil
	}

	zr, err := gzip.NewReader(file)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read gzip header of %s", path)
	}

	return &gzipFile{Reader: zr, file: file}, nil
}

// OpenSeeker opens an uncompressed entry for random access.
func (e *Entry) OpenSeeker() (io.ReadSeekCloser, error) {
	if e.Option == Gzip {
		return nil, errors.Wrapf(ErrNotSeekable, "%s", e.ID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	path := e.resolvedPath()
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", path)
	}
	e.handles = append(e.handles, file)

	return file, nil
}

func (e *Entry) closeHandles() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var err error
	for _, handle := range e.handles {
		closeErr := handle.Close()
		if !errors.Is(closeErr, os.ErrClosed) {
			err = multierr.Append(err, closeErr)
		}
	}
	e.handles = nil

	return err
}

type gzipFile struct {
	*gzip.Reader
	file *os.File
}

func (g *gzipFile) Close() error {
	return multierr.Append(g.Reader.Close(), g.file.Close())
}

// writeAtomic copies r into path through a temporary file so an interrupted copy never
// leaves a truncated file behind.
func writeAtomic(path string, r io.Reader) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".part-*")
	if err != nil {
		return errors.Wrapf(err, "unable to create temporary file for %s", path)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	_, err = io.Copy(tmp, r)
	err = multierr.Append(err, tmp.Close())
	if err != nil {
		return errors.Wrapf(err, "unable to write %s", path)
	}

	return errors.Wrapf(os.Rename(tmp.Name(), path), "unable to move %s into place", path)
}
