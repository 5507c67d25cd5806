// Package taxonomy groups the entries of a UniProt report by taxonomic lineage.
package taxonomy

import (
	"context"
	"regexp"
	"strconv"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/askiada/paladin-plugins/internal/datastore"
	"github.com/askiada/paladin-plugins/internal/plugins/resources"
	"github.com/askiada/paladin-plugins/internal/report"
	"github.com/askiada/paladin-plugins/pkg/plugin"
)

const (
	Name        = "taxonomy"
	description = "Perform taxonomic grouping and abundance reporting"
	version     = "1.1.3"

	// StateKey is where the init callback publishes the Lineage of the plugin.
	StateKey = "taxonomy.lineage"
)

const (
	ChildrenReport = "children"
	SpeciesReport  = "species"

	FilterUnknown = "unknown"
	FilterCustom  = "custom"
	FilterGroup   = "group"
)

var (
	ErrInvalidChoice  = errors.New("invalid choice")
	ErrLevelOrRank    = errors.New("exactly one of --level and --rank is required")
	ErrNotInitialised = errors.New("taxonomy store is not initialised")
)

// Args are the parsed arguments of the plugin. Exactly one of Level and Rank is set.
type Args struct {
	Input   string
	Quality int
	Custom  string
	Type    string
	Filters map[string]bool
	SAM     string
	Level   *int
	Rank    *regexp.Regexp
}

type taxonomyPlugin struct {
	res     *resources.Resources
	lineage *storeLineage
}

// Definition builds the plugin. Its init callback fills the lineage table when it expired.
func Definition(res *resources.Resources) (*plugin.Definition, error) {
	p := &taxonomyPlugin{res: res}

	return plugin.New(Name, description, version, parse, p.main, plugin.WithInit(p.init))
}

func parse(raw string, env *plugin.Env) (plugin.Args, error) {
	flags := plugin.NewFlagSet(Name, description)
	input := flags.StringP("input", "i", "", "PALADIN UniProt report")
	quality := flags.IntP("quality", "q", 0, "minimum mapping quality filter")
	custom := flags.StringP("custom", "c", "", "species parsing pattern for non UniProt entries, with one capture group")
	reportType := flags.StringP("type", "t", SpeciesReport, "type of report (children, species)")
	filters := flags.StringSliceP("filter", "f", nil, "filter non standard entries (unknown, custom, group)")
	sam := flags.StringP("sam", "s", "", "SAM file for reporting the reads contributing to each rank")
	level := flags.IntP("level", "l", 0, "hierarchy level, negative for the leaves")
	rank := flags.StringP("rank", "r", "", "pattern of the named rank")

	err := plugin.ParseFlags(flags, raw, env.Out)
	if err != nil {
		return nil, err
	}
	err = plugin.RequireFlags(flags, "input", "quality")
	if err != nil {
		return nil, err
	}
	if flags.Changed("level") == flags.Changed("rank") {
		return nil, errors.Wrap(ErrLevelOrRank, Name)
	}
	if *reportType != ChildrenReport && *reportType != SpeciesReport {
		return nil, errors.Wrapf(ErrInvalidChoice, "%s: type %q", Name, *reportType)
	}

	args := &Args{
		Input:   *input,
		Quality: *quality,
		Custom:  *custom,
		Type:    *reportType,
		Filters: make(map[string]bool, len(*filters)),
		SAM:     *sam,
	}
	for _, filter := range *filters {
		if filter != FilterUnknown && filter != FilterCustom && filter != FilterGroup {
			return nil, errors.Wrapf(ErrInvalidChoice, "%s: filter %q", Name, filter)
		}
		args.Filters[filter] = true
	}
	if flags.Changed("level") {
		args.Level = level
	} else {
		args.Rank, err = regexp.Compile(*rank)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: invalid rank %q", Name, *rank)
		}
	}

	return args, nil
}

func (p *taxonomyPlugin) init(ctx context.Context, env *plugin.Env) error {
	st, err := p.res.OpenStore(ctx, Name)
	if err != nil {
		return err
	}
	err = st.CreateTable(ctx, "lineage", []datastore.Column{
		{Name: "mnemonic", Type: "TEXT", Modifier: "PRIMARY KEY"},
		{Name: "lineage", Type: "TEXT"},
	})
	if err != nil {
		return err
	}
	st.DefineQuery(lineageQuery, "SELECT lineage FROM lineage WHERE mnemonic = ?")

	populated, err := p.res.Populate(ctx, env.Logger, st, "lineage", func(ctx context.Context) error {
		env.Progress("Populating taxonomic lineage data...")

		return p.populate(ctx, st)
	})
	if err != nil {
		return err
	}
	env.Logger.Debug("lineage table ready", zap.Bool("populated", populated))

	p.lineage = newStoreLineage(st)
	env.State.Set(StateKey, Lineage(p.lineage))

	return nil
}

func (p *taxonomyPlugin) main(ctx context.Context, env *plugin.Env, args plugin.Args) error {
	a, _ := args.(*Args)
	if p.lineage == nil {
		return ErrNotInitialised
	}

	rep, err := p.res.Reports.Report(a.Input, float64(a.Quality), a.Custom)
	if err != nil {
		return err
	}
	taxa, total := aggregateTaxa(rep, a.Filters)
	tree, err := treeify(ctx, p.lineage, taxa, total)
	if err != nil {
		return err
	}

	var (
		entries counts
		header  string
	)
	switch {
	case a.Type == ChildrenReport && a.Level != nil:
		entries = tree.flatten(*a.Level)
		header = "Count\tAbundance\tRank " + strconv.Itoa(*a.Level)
	case a.Type == ChildrenReport:
		entries = newCounts()
		if subtree := tree.find(a.Rank); subtree != nil {
			entries = subtree.childCounts()
		}
		header = "Count\tAbundance\tRank"
	case a.Level != nil:
		entries, err = speciesCounts(ctx, p.lineage, taxa, nil)
		header = "Count\tAbundance\tSpecies"
	default:
		entries, err = speciesCounts(ctx, p.lineage, taxa, a.Rank)
		header = "Count\tAbundance\tSpecies"
	}
	if err != nil {
		return err
	}

	if a.SAM == "" {
		renderAbundance(env, header, entries)

		return nil
	}

	alignment, err := p.res.Reports.Alignment(a.SAM, 0)
	if err != nil {
		return err
	}
	reads, err := groupSAM(ctx, p.lineage, entries, alignment, taxa)
	if err != nil {
		return err
	}
	renderSAM(env, reads)

	return nil
}

func renderAbundance(env *plugin.Env, header string, entries counts) {
	env.Send(header)

	total := entries.total()
	for _, name := range entries.sorted() {
		count := entries.values[name]
		abundance := float64(count) * 100 / float64(total)
		env.Send(strconv.Itoa(count) + "\t" + report.FormatFloat(abundance) + "\t" + name)
	}
}

func renderSAM(env *plugin.Env, reads []readRanks) {
	env.Send("Read\tTaxonomy")
	for _, read := range reads {
		for _, rank := range read.ranks {
			env.Send(read.read + "\t" + rank)
		}
	}
}
