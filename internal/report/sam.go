package report

import (
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	samQName = iota
	samFlag
	samRName
	samPos
	samMapQ
	samCigar
	samRNext
	samPNext
	samTLen
	samSeq
	samQual
	samFields
)

// AnyQuality disables the mapping quality filter of ParseSAM.
const AnyQuality = -1

const flagUnmapped = 0x4

// PALADIN prefixes query names with the frame of the best scoring translation.
var frameRegexp = regexp.MustCompile(`^(.*?:.*?:.*?:)(.*)$`)

// SamEntry is one alignment line of a SAM file.
type SamEntry struct {
	Query         string
	Frame         string
	Flag          int
	Reference     string
	Pos           int
	MapQuality    int
	Cigar         string
	NextReference string
	NextPos       int
	Length        int
	Sequence      string
	ReadQuality   string
}

// IsMapped reports whether the read aligned.
func (e *SamEntry) IsMapped() bool {
	return e.Flag&flagUnmapped == 0
}

// ReadKey identifies one hit of a read. Chimeric reads have several hits.
type ReadKey struct {
	Read string
	Hit  int
}

// Alignment holds the entries of a SAM file in file order.
type Alignment struct {
	Entries map[ReadKey]*SamEntry
	Keys    []ReadKey
}

// Get returns the entry of key.
func (a *Alignment) Get(key ReadKey) (*SamEntry, bool) {
	entry, ok := a.Entries[key]

	return entry, ok
}

// Reads returns every read once, in file order.
func (a *Alignment) Reads() []string {
	var reads []string
	for _, key := range a.Keys {
		if key.Hit == 0 {
			reads = append(reads, key.Read)
		}
	}

	return reads
}

// LoadSAM parses the SAM file at path.
func LoadSAM(path string, quality int) (*Alignment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open SAM file %s", path)
	}
	defer f.Close()

	alignment, err := ParseSAM(f, quality)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}

	return alignment, nil
}

// ParseSAM reads a SAM file. Header and malformed lines are skipped. Unless quality is
// AnyQuality, unmapped lines and lines whose mapping quality is below quality are skipped too.
func ParseSAM(r io.Reader, quality int) (*Alignment, error) {
	alignment := &Alignment{Entries: make(map[ReadKey]*SamEntry)}

	scanner := newScanner(r)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if strings.HasPrefix(line, "@") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < samFields {
			continue
		}

		mapQuality := samInt(fields[samMapQ])
		if quality != AnyQuality && (fields[samRName] == "*" || mapQuality < quality) {
			continue
		}

		entry := &SamEntry{
			Query:         fields[samQName],
			Flag:          samInt(fields[samFlag]),
			Reference:     fields[samRName],
			Pos:           samInt(fields[samPos]),
			MapQuality:    mapQuality,
			Cigar:         fields[samCigar],
			NextReference: fields[samRNext],
			NextPos:       samInt(fields[samPNext]),
			Length:        samInt(fields[samTLen]),
			Sequence:      fields[samSeq],
			ReadQuality:   fields[samQual],
		}
		if match := frameRegexp.FindStringSubmatch(entry.Query); match != nil {
			entry.Frame = match[1]
			entry.Query = match[2]
		}

		key := ReadKey{Read: entry.Query}
		for {
			if _, ok := alignment.Entries[key]; !ok {
				break
			}
			key.Hit++
		}
		alignment.Entries[key] = entry
		alignment.Keys = append(alignment.Keys, key)
	}
	err := scanner.Err()
	if err != nil {
		return nil, errors.Wrap(err, "unable to read SAM file")
	}

	return alignment, nil
}

func samInt(field string) int {
	v, err := strconv.Atoi(field)
	if err != nil {
		return 0
	}

	return v
}
