// Package report reads the UniProt reports and SAM alignments produced by PALADIN.
package report

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// EntryType tells how a report entry was identified.
type EntryType int

const (
	Unknown EntryType = iota
	// Exact entries match a UniProtKB mnemonic of a single species.
	Exact
	// Group entries match a UniProtKB mnemonic of a taxonomic group (species code starting with 9).
	Group
	// Custom entries matched the caller's species pattern.
	Custom
)

// UnknownValue fills the descriptive fields of entries that could not be identified.
const UnknownValue = "Unknown"

const (
	fieldCount = iota
	fieldAbundance
	fieldQualityAvg
	fieldQualityMax
	fieldKB
	fieldID
	fieldSpecies
	fieldProtein
	fieldOntology = 11
)

const (
	// Lines with more fields than this were annotated from UniProt by PALADIN.
	annotatedFields = 10
	maxLineSize     = 16 * 1024 * 1024
)

var (
	ErrMalformedReport = errors.New("malformed report line")
	ErrPatternGroup    = errors.New("pattern must have one capture group")
)

// Entry is one line of a UniProt report.
type Entry struct {
	Type        EntryType
	ID          string
	KB          string
	Count       int
	Abundance   float64
	QualityAvg  float64
	QualityMax  int
	SpeciesID   string
	SpeciesFull string
	Protein     string
	Ontology    []string
}

// Report holds the entries of a UniProt report keyed by UniProtKB, in file order.
type Report struct {
	Entries map[string]*Entry
	Keys    []string
}

// Get returns the entry for kb.
func (r *Report) Get(kb string) (*Entry, bool) {
	entry, ok := r.Entries[kb]

	return entry, ok
}

// Each calls fn for every entry in file order.
func (r *Report) Each(fn func(entry *Entry)) {
	for _, key := range r.Keys {
		fn(r.Entries[key])
	}
}

// CompilePattern compiles a custom species pattern. The first capture group is the species.
func CompilePattern(expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid pattern %q", expr)
	}
	if re.NumSubexp() < 1 {
		return nil, errors.Wrapf(ErrPatternGroup, "%q", expr)
	}

	return re, nil
}

// LoadReport parses the report at path.
func LoadReport(path string, quality float64, pattern *regexp.Regexp) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open report %s", path)
	}
	defer f.Close()

	rep, err := ParseReport(f, quality, pattern)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}

	return rep, nil
}

// ParseReport reads a report, skipping its header and the entries whose maximum quality is below quality.
// Unannotated entries whose UniProtKB matches pattern become Custom entries.
func ParseReport(r io.Reader, quality float64, pattern *regexp.Regexp) (*Report, error) {
	rep := &Report{Entries: make(map[string]*Entry)}

	scanner := newScanner(r)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if lineNumber == 1 || strings.TrimSpace(line) == "" {
			continue
		}

		entry, err := parseEntry(strings.Split(line, "\t"), pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNumber)
		}
		if float64(entry.QualityMax) < quality {
			continue
		}
		if _, ok := rep.Entries[entry.KB]; !ok {
			rep.Keys = append(rep.Keys, entry.KB)
		}
		rep.Entries[entry.KB] = entry
	}
	err := scanner.Err()
	if err != nil {
		return nil, errors.Wrap(err, "unable to read report")
	}

	return rep, nil
}

func parseEntry(fields []string, pattern *regexp.Regexp) (*Entry, error) {
	if len(fields) <= fieldKB {
		return nil, errors.Wrapf(ErrMalformedReport, "%d fields", len(fields))
	}

	entry := &Entry{
		Type:        Unknown,
		ID:          UnknownValue,
		KB:          fields[fieldKB],
		SpeciesID:   UnknownValue,
		SpeciesFull: UnknownValue,
		Protein:     UnknownValue,
	}

	var err error
	entry.Count, err = strconv.Atoi(fields[fieldCount])
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedReport, "count %q", fields[fieldCount])
	}
	entry.Abundance, err = strconv.ParseFloat(fields[fieldAbundance], 64)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedReport, "abundance %q", fields[fieldAbundance])
	}
	entry.QualityAvg, err = strconv.ParseFloat(fields[fieldQualityAvg], 64)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedReport, "average quality %q", fields[fieldQualityAvg])
	}
	maxQuality, err := strconv.ParseFloat(fields[fieldQualityMax], 64)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedReport, "max quality %q", fields[fieldQualityMax])
	}
	entry.QualityMax = int(maxQuality)

	if len(fields) > annotatedFields {
		entry.Type = Exact
		if strings.Contains(entry.KB, "_9") {
			entry.Type = Group
		}
		if _, species, ok := strings.Cut(entry.KB, "_"); ok {
			entry.SpeciesID = species
		}
		entry.ID = fields[fieldID]
		entry.SpeciesFull = fields[fieldSpecies]
		entry.Protein = fields[fieldProtein]
		if len(fields) > fieldOntology {
			entry.Ontology = splitTerms(fields[fieldOntology])
		}

		return entry, nil
	}

	if pattern != nil {
		match := pattern.FindStringSubmatch(entry.KB)
		if len(match) > 1 {
			entry.Type = Custom
			entry.SpeciesID = match[1]
			entry.SpeciesFull = match[1]
		}
	}

	return entry, nil
}

func splitTerms(field string) []string {
	var terms []string
	for _, term := range strings.Split(field, ";") {
		term = strings.TrimSpace(term)
		if term != "" {
			terms = append(terms, term)
		}
	}

	return terms
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	return scanner
}

// FormatFloat renders v with the fewest digits that read back to the same value.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
