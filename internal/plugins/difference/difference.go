// Package difference compares two taxonomy reports and explains the difference with the reads
// that changed hit between the two alignments.
package difference

import (
	"bufio"
	"context"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/askiada/paladin-plugins/internal/plugins/resources"
	"github.com/askiada/paladin-plugins/internal/plugins/taxonomy"
	"github.com/askiada/paladin-plugins/internal/report"
	"github.com/askiada/paladin-plugins/pkg/plugin"
)

const (
	Name        = "difference"
	description = "Analyze relative differences between two PALADIN taxonomy reports"
	version     = "1.1.0"

	unmapped = "Unmapped"
)

var (
	ErrFileCount   = errors.New("expected taxonomy, SAM and UniProt files")
	ErrEmptyReport = errors.New("compared taxonomy report is empty")
	ErrMalformed   = errors.New("malformed taxonomy report line")
)

// Files are the outputs of one alignment.
type Files struct {
	Taxonomy string
	SAM      string
	UniProt  string
}

type Args struct {
	Basis   Files
	Compare Files
	Custom  string
	Simple  bool
}

// Definition builds the plugin. Lineages come from the taxonomy plugin it depends on.
func Definition(res *resources.Resources) (*plugin.Definition, error) {
	return plugin.New(Name, description, version, parse, func(ctx context.Context, env *plugin.Env, args plugin.Args) error {
		a, _ := args.(*Args)
		lineage, err := plugin.Lookup[taxonomy.Lineage](env.State, taxonomy.StateKey)
		if err != nil {
			return err
		}

		return run(ctx, env, res.Reports, lineage, a)
	}, plugin.WithDependencies(taxonomy.Name))
}

func parse(raw string, env *plugin.Env) (plugin.Args, error) {
	flags := plugin.NewFlagSet(Name, description)
	basis := flags.StringSliceP("basis", "1", nil, "basis files of the comparison (taxonomy,sam,uniprot)")
	compare := flags.StringSliceP("compare", "2", nil, "compared files of the comparison (taxonomy,sam,uniprot)")
	custom := flags.StringP("custom", "c", "", "species parsing pattern for non UniProt entries")
	simple := flags.BoolP("simple", "s", false, "simple report without read contributions")

	err := plugin.ParseFlags(flags, raw, env.Out)
	if err != nil {
		return nil, err
	}
	err = plugin.RequireFlags(flags, "basis", "compare")
	if err != nil {
		return nil, err
	}

	args := &Args{Custom: *custom, Simple: *simple}
	for _, set := range []struct {
		flag  string
		files []string
		dst   *Files
	}{{"basis", *basis, &args.Basis}, {"compare", *compare, &args.Compare}} {
		if len(set.files) != 3 {
			return nil, errors.Wrapf(ErrFileCount, "%s: --%s got %d files", Name, set.flag, len(set.files))
		}
		*set.dst = Files{Taxonomy: set.files[0], SAM: set.files[1], UniProt: set.files[2]}
	}

	return args, nil
}

// Contribution is how much the reads moving to or from a contributor changed a taxon.
type Contribution struct {
	Contributor string
	Positive    float64
	Negative    float64
}

// Taxon is the relative difference of one taxon between the two reports.
type Taxon struct {
	Name          string
	Difference    float64
	Contributions []Contribution
}

func run(ctx context.Context, env *plugin.Env, cache *report.Cache, lineage taxonomy.Lineage, a *Args) error {
	env.Progress("Comparing taxonomy reports...")
	diffs, total, err := compareTaxonomy(a.Basis.Taxonomy, a.Compare.Taxonomy)
	if err != nil {
		return err
	}

	var moves []move
	var reports [2]*report.Report
	if !a.Simple {
		env.Progress("Gathering SAM data from first alignment")
		first, err := cache.Alignment(a.Basis.SAM, report.AnyQuality)
		if err != nil {
			return err
		}
		env.Progress("Gathering SAM data from second alignment")
		second, err := cache.Alignment(a.Compare.SAM, report.AnyQuality)
		if err != nil {
			return err
		}
		env.Progress("Comparing SAM data...")
		moves = compareSAM(first, second)

		env.Progress("Gathering UniProt data from first alignment")
		reports[0], err = cache.Report(a.Basis.UniProt, 0, a.Custom)
		if err != nil {
			return err
		}
		env.Progress("Gathering UniProt data from second alignment")
		reports[1], err = cache.Report(a.Compare.UniProt, 0, a.Custom)
		if err != nil {
			return err
		}
	}

	env.Progress("Comparing alignments...")
	taxa, err := combine(ctx, lineage, diffs, total, moves, reports)
	if err != nil {
		return err
	}
	render(env, taxa, a.Simple)

	return nil
}

// taxonDiffs keeps the differences per taxon in first seen order.
type taxonDiffs struct {
	values map[string]int
	order  []string
}

func (d *taxonDiffs) add(name string, delta int) {
	if _, ok := d.values[name]; !ok {
		d.order = append(d.order, name)
	}
	d.values[name] += delta
}

// compareTaxonomy returns compare minus basis per taxon and the total count of compare.
func compareTaxonomy(basis, compare string) (*taxonDiffs, int, error) {
	diffs := &taxonDiffs{values: make(map[string]int)}

	basisCounts, _, err := readTaxonomy(basis)
	if err != nil {
		return nil, 0, err
	}
	compareCounts, total, err := readTaxonomy(compare)
	if err != nil {
		return nil, 0, err
	}
	for _, c := range basisCounts {
		diffs.add(c.name, -c.count)
	}
	for _, c := range compareCounts {
		diffs.add(c.name, c.count)
	}

	return diffs, total, nil
}

type namedCount struct {
	name  string
	count int
}

func readTaxonomy(path string) ([]namedCount, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "unable to open taxonomy report %s", path)
	}
	defer f.Close()

	var (
		counts []namedCount
		total  int
	)
	scanner := bufio.NewScanner(f)
	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := strings.TrimRight(scanner.Text(), "\r\n")
		if lineNumber == 1 || strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			return nil, 0, errors.Wrapf(ErrMalformed, "%s:%d", path, lineNumber)
		}
		count, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, 0, errors.Wrapf(ErrMalformed, "%s:%d: count %q", path, lineNumber, fields[0])
		}
		counts = append(counts, namedCount{name: fields[2], count: count})
		total += count
	}

	return counts, total, errors.Wrapf(scanner.Err(), "unable to read %s", path)
}

// move counts the hits that went from one reference to another. "*" is no hit.
type move struct {
	from  string
	to    string
	count int
}

// compareSAM pairs the hits of every read of both alignments and counts the ones whose
// reference changed.
func compareSAM(first, second *report.Alignment) []move {
	var (
		moves []move
		index = make(map[[2]string]int)
		seen  = make(map[string]bool)
	)
	reads := append(first.Reads(), second.Reads()...)
	for _, read := range reads {
		if seen[read] {
			continue
		}
		seen[read] = true

		for hit := 0; ; hit++ {
			key := report.ReadKey{Read: read, Hit: hit}
			a, inFirst := first.Get(key)
			b, inSecond := second.Get(key)
			if !inFirst && !inSecond {
				break
			}
			from, to := "*", "*"
			if inFirst {
				from = a.Reference
			}
			if inSecond {
				to = b.Reference
			}
			if from == to {
				continue
			}

			pair := [2]string{from, to}
			i, ok := index[pair]
			if !ok {
				i = len(moves)
				index[pair] = i
				moves = append(moves, move{from: from, to: to})
			}
			moves[i].count++
		}
	}

	return moves
}

type side struct {
	species string
	ranks   []string
}

// describe resolves the species and the lineage of a reference of one alignment.
func describe(ctx context.Context, lineage taxonomy.Lineage, rep *report.Report, reference string) (side, error) {
	if reference == "*" {
		return side{species: unmapped, ranks: []string{unmapped}}, nil
	}

	kb := reference
	if i := strings.LastIndex(kb, "|"); i >= 0 {
		kb = kb[i+1:]
	}
	id, full := report.UnknownValue, report.UnknownValue
	if entry, ok := rep.Get(kb); ok {
		id, full = entry.SpeciesID, entry.SpeciesFull
	}

	raw, ok, err := lineage.Lookup(ctx, id)
	if err != nil {
		return side{}, err
	}
	if !ok {
		return side{species: full, ranks: []string{report.UnknownValue}}, nil
	}

	return side{species: full, ranks: taxonomy.Ranks(raw)}, nil
}

type contributions struct {
	values map[string]*Contribution
	order  []string
}

func (c *contributions) add(name string, amount float64) {
	contribution, ok := c.values[name]
	if !ok {
		contribution = &Contribution{Contributor: name}
		c.values[name] = contribution
		c.order = append(c.order, name)
	}
	if amount > 0 {
		contribution.Positive += amount
	} else {
		contribution.Negative += amount
	}
}

// combine breaks every changed taxon down into the references its reads moved from or to.
func combine(ctx context.Context, lineage taxonomy.Lineage, diffs *taxonDiffs, total int, moves []move, reports [2]*report.Report) ([]Taxon, error) {
	// Reads unmapped in the compared alignment are part of its total.
	unmappedDiff := 0
	for _, m := range moves {
		if m.from == "*" {
			unmappedDiff -= m.count
		}
		if m.to == "*" {
			total += m.count
			unmappedDiff += m.count
		}
	}
	if len(moves) > 0 {
		diffs.add(unmapped, unmappedDiff)
	}
	if total == 0 {
		return nil, ErrEmptyReport
	}

	sides := make([][2]side, len(moves))
	for i, m := range moves {
		for j, reference := range []string{m.from, m.to} {
			s, err := describe(ctx, lineage, reports[j], reference)
			if err != nil {
				return nil, err
			}
			sides[i][j] = s
		}
	}

	var taxa []Taxon
	for _, name := range diffs.order {
		diff := diffs.values[name]
		if diff == 0 {
			continue
		}

		contrib := &contributions{values: make(map[string]*Contribution)}
		for i, m := range moves {
			attribute(contrib, name, sides[i], float64(m.count))
		}

		taxon := Taxon{Name: name, Difference: float64(diff) / float64(total)}
		for _, contributor := range contrib.order {
			c := *contrib.values[contributor]
			c.Positive /= float64(total)
			c.Negative /= float64(total)
			taxon.Contributions = append(taxon.Contributions, c)
		}
		taxa = append(taxa, taxon)
	}

	return taxa, nil
}

// attribute records the move described by sides against taxon. Hits leaving a taxon count
// positively for the other side, hits entering it negatively.
func attribute(contrib *contributions, taxon string, sides [2]side, count float64) {
	for i := range sides {
		other := sides[1-i]
		amount := count
		if i == 1 {
			amount = -count
		}

		if sides[i].species == taxon {
			contrib.add(other.species, amount)

			return
		}
		for rankIdx, rank := range sides[i].ranks {
			if rank != taxon {
				continue
			}
			compareIdx := rankIdx
			if compareIdx >= len(other.ranks) {
				compareIdx = len(other.ranks) - 1
			}
			contrib.add(other.ranks[compareIdx], amount)

			break
		}
	}
}

func render(env *plugin.Env, taxa []Taxon, simple bool) {
	if simple {
		env.Send("Taxon\tDifference")
	} else {
		env.Send("Taxon\tDifference\tContributor\tContribution (Pos)\tContribution (Neg)")
	}

	sort.SliceStable(taxa, func(i, j int) bool {
		return math.Abs(taxa[i].Difference) > math.Abs(taxa[j].Difference)
	})
	for _, taxon := range taxa {
		difference := report.FormatFloat(taxon.Difference)
		if simple {
			env.Send(taxon.Name + "\t" + difference)

			continue
		}

		contributions := append([]Contribution(nil), taxon.Contributions...)
		sort.SliceStable(contributions, func(i, j int) bool {
			return math.Abs(contributions[i].Positive+contributions[i].Negative) >
				math.Abs(contributions[j].Positive+contributions[j].Negative)
		})
		for _, c := range contributions {
			env.Send(strings.Join([]string{
				taxon.Name, difference, c.Contributor,
				report.FormatFloat(c.Positive), report.FormatFloat(c.Negative),
			}, "\t"))
		}
	}
}
