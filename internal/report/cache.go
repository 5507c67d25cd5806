package report

import (
	"sync"
)

type reportKey struct {
	path    string
	quality float64
	pattern string
}

type samKey struct {
	path    string
	quality int
}

// Cache memoises parsed reports and alignments for the duration of a run.
type Cache struct {
	mu         sync.Mutex
	reports    map[reportKey]*Report
	alignments map[samKey]*Alignment
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		reports:    make(map[reportKey]*Report),
		alignments: make(map[samKey]*Alignment),
	}
}

// Report returns the report at path filtered by quality, with pattern as custom species pattern.
func (c *Cache) Report(path string, quality float64, pattern string) (*Report, error) {
	key := reportKey{path: path, quality: quality, pattern: pattern}

	c.mu.Lock()
	defer c.mu.Unlock()

	if rep, ok := c.reports[key]; ok {
		return rep, nil
	}
	re, err := CompilePattern(pattern)
	if err != nil {
		return nil, err
	}
	rep, err := LoadReport(path, quality, re)
	if err != nil {
		return nil, err
	}
	c.reports[key] = rep

	return rep, nil
}

// Alignment returns the SAM file at path filtered by quality.
func (c *Cache) Alignment(path string, quality int) (*Alignment, error) {
	key := samKey{path: path, quality: quality}

	c.mu.Lock()
	defer c.mu.Unlock()

	if alignment, ok := c.alignments[key]; ok {
		return alignment, nil
	}
	alignment, err := LoadSAM(path, quality)
	if err != nil {
		return nil, err
	}
	c.alignments[key] = alignment

	return alignment, nil
}
