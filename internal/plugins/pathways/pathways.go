// Package pathways reports how much of the KEGG metabolic pathways the enzymes of UniProt
// reports cover, per taxonomic group.
package pathways

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/askiada/paladin-plugins/internal/datastore"
	"github.com/askiada/paladin-plugins/internal/plugins/resources"
	"github.com/askiada/paladin-plugins/internal/plugins/taxonomy"
	"github.com/askiada/paladin-plugins/internal/report"
	"github.com/askiada/paladin-plugins/pkg/plugin"
)

const (
	Name        = "pathways"
	description = "Analyze metabolic pathway participation"
	version     = "1.0.0"

	ChildrenGrouping = "children"
	SpeciesGrouping  = "species"

	// maxAbstraction is the number of levels of an EC number.
	maxAbstraction = 4
)

var (
	ErrInvalidChoice   = errors.New("invalid choice")
	ErrLevelOrSearch   = errors.New("exactly one of --level and --search is required")
	ErrPathwayNoEnzyme = errors.New("pathway lists no enzyme")
	ErrNotInitialised  = errors.New("pathways store is not initialised")
)

// Args are the parsed arguments of the plugin. Exactly one of Level and Search is set.
type Args struct {
	Inputs   []string
	Quality  int
	Pathway  string
	Abstract int
	Grouping string
	Rounding int
	Level    *int
	Search   *regexp.Regexp
}

type pathwaysPlugin struct {
	res   *resources.Resources
	cache *cache
}

// Definition builds the plugin. It reads lineages through the taxonomy plugin.
func Definition(res *resources.Resources) (*plugin.Definition, error) {
	p := &pathwaysPlugin{res: res}

	return plugin.New(Name, description, version, parse, p.main,
		plugin.WithDependencies(taxonomy.Name),
		plugin.WithInit(p.init),
	)
}

func parse(raw string, env *plugin.Env) (plugin.Args, error) {
	flags := plugin.NewFlagSet(Name, description)
	inputs := flags.StringSliceP("input", "i", nil, "PALADIN UniProt reports")
	quality := flags.IntP("quality", "q", 0, "minimum mapping quality filter")
	pathway := flags.StringP("pathway", "p", "", "KEGG pathway ID, every detected pathway when empty")
	abstract := flags.IntP("abstract", "a", 0, "levels of EC hierarchy abstraction")
	grouping := flags.StringP("grouping", "g", ChildrenGrouping, "taxonomy grouping (children, species)")
	rounding := flags.IntP("rounding", "r", 4, "rounding precision")
	level := flags.IntP("level", "l", 0, "grouping: taxonomic level")
	search := flags.StringP("search", "s", "", "grouping: pattern of the named rank")

	err := plugin.ParseFlags(flags, raw, env.Out)
	if err != nil {
		return nil, err
	}
	err = plugin.RequireFlags(flags, "input", "quality")
	if err != nil {
		return nil, err
	}
	if flags.Changed("level") == flags.Changed("search") {
		return nil, errors.Wrap(ErrLevelOrSearch, Name)
	}
	if *grouping != ChildrenGrouping && *grouping != SpeciesGrouping {
		return nil, errors.Wrapf(ErrInvalidChoice, "%s: grouping %q", Name, *grouping)
	}
	if *abstract < 0 || *rounding < 0 {
		return nil, errors.Wrapf(ErrInvalidChoice, "%s: abstraction and rounding must not be negative", Name)
	}

	args := &Args{
		Inputs:   *inputs,
		Quality:  *quality,
		Pathway:  *pathway,
		Abstract: min(*abstract, maxAbstraction),
		Grouping: *grouping,
		Rounding: *rounding,
	}
	if flags.Changed("level") {
		args.Level = level
	} else {
		args.Search, err = regexp.Compile(*search)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: invalid search %q", Name, *search)
		}
	}

	return args, nil
}

func (p *pathwaysPlugin) init(ctx context.Context, env *plugin.Env) error {
	st, err := p.res.OpenStore(ctx, Name)
	if err != nil {
		return err
	}
	for _, table := range [][2]string{{"enzyme", "ec"}, {"pathway", "pathway"}} {
		err = st.CreateTable(ctx, table[0], []datastore.Column{
			{Name: table[1], Type: "TEXT", Modifier: "PRIMARY KEY"},
			{Name: "info", Type: "TEXT"},
		})
		if err != nil {
			return err
		}
	}
	st.DefineQuery(enzymeQuery, "SELECT info FROM enzyme WHERE ec = ?")
	st.DefineQuery(pathwayQuery, "SELECT info FROM pathway WHERE pathway = ?")

	cleared, err := p.res.Populate(ctx, env.Logger, st, "enzyme", func(ctx context.Context) error {
		err := st.DeleteRows(ctx, "enzyme", "")
		if err != nil {
			return err
		}

		return st.DeleteRows(ctx, "pathway", "")
	})
	if err != nil {
		return err
	}
	env.Logger.Debug("KEGG cache ready", zap.Bool("cleared", cleared))

	p.cache = &cache{st: st, client: NewClient(p.res.HTTP, p.res.Config.Remote.KEGGRESTURL)}

	return nil
}

func (p *pathwaysPlugin) main(ctx context.Context, env *plugin.Env, args plugin.Args) error {
	a, _ := args.(*Args)
	if p.cache == nil {
		return ErrNotInitialised
	}
	lineage, err := plugin.Lookup[taxonomy.Lineage](env.State, taxonomy.StateKey)
	if err != nil {
		return err
	}

	if a.Pathway == "" {
		env.Progress("Pathway unspecified, retrieving all detected pathways...")
	}

	var (
		trees    = make([]*node, 0, len(a.Inputs))
		detected []string
		seen     = make(map[string]bool)
	)
	for _, input := range a.Inputs {
		rep, err := p.res.Reports.Report(input, float64(a.Quality), "")
		if err != nil {
			return err
		}
		se := collectEnzymes(rep)
		for _, key := range se.order {
			for ec := range se.counts[key] {
				if !seen[ec] {
					seen[ec] = true
					detected = append(detected, ec)
				}
			}
		}

		full, err := buildTree(ctx, lineage, se)
		if err != nil {
			return err
		}
		var trimmed *node
		if a.Search != nil {
			trimmed = full.search(a.Search)
		} else {
			trimmed = full.flatten(*a.Level)
		}
		if a.Grouping == SpeciesGrouping {
			trimmed = trimmed.flatten(-1)
		}
		trees = append(trees, trimmed)
	}
	alignGroups(trees)
	sort.Strings(detected)

	pathways, err := p.retrieve(ctx, a.Pathway, detected)
	if err != nil {
		return err
	}
	for _, pw := range pathways {
		pw.abstract(a.Abstract)
	}

	if len(pathways) == 1 {
		renderSingle(env, pathways[0], trees, a.Rounding)

		return nil
	}
	renderAll(env, pathways, trees, a.Rounding)

	return nil
}

type pathway struct {
	id      string
	name    string
	enzymes map[string]bool
}

// retrieve returns the requested pathway, or every pathway with enzymes that one of the
// detected EC numbers takes part in, sorted by identifier.
func (p *pathwaysPlugin) retrieve(ctx context.Context, id string, detected []string) ([]*pathway, error) {
	if id != "" {
		rec, err := p.cache.pathway(ctx, id)
		if err != nil {
			return nil, err
		}
		enzymes := rec.Enzymes()
		if len(enzymes) == 0 {
			return nil, errors.Wrapf(ErrPathwayNoEnzyme, "%s: %s", Name, id)
		}

		return []*pathway{{id: id, name: rec.Name(), enzymes: enzymes}}, nil
	}

	found := make(map[string]*pathway)
	checked := make(map[string]bool)
	for _, ec := range detected {
		rec, err := p.cache.enzyme(ctx, ec)
		if err != nil {
			return nil, err
		}
		for _, pid := range rec.Pathways() {
			if checked[pid] {
				continue
			}
			checked[pid] = true

			prec, err := p.cache.pathway(ctx, pid)
			if err != nil {
				return nil, err
			}
			enzymes := prec.Enzymes()
			if len(enzymes) == 0 {
				continue
			}
			found[pid] = &pathway{id: pid, name: prec.Name(), enzymes: enzymes}
		}
	}

	ids := make([]string, 0, len(found))
	for pid := range found {
		ids = append(ids, pid)
	}
	sort.Strings(ids)
	res := make([]*pathway, 0, len(ids))
	for _, pid := range ids {
		res = append(res, found[pid])
	}

	return res, nil
}

// abstract adds, for each of levels, the parent EC numbers of the enzymes, replacing one more
// trailing component with "-" (1.2.3.4, 1.2.3.-, 1.2.-.-).
func (pw *pathway) abstract(levels int) {
	for level := 0; level < levels; level++ {
		var parents []string
		for ec := range pw.enzymes {
			parts := strings.Split(ec, ".")
			if len(parts) != maxAbstraction || countDashes(parts) != level {
				continue
			}
			parts[maxAbstraction-1-level] = "-"
			parents = append(parents, strings.Join(parts, "."))
		}
		for _, ec := range parents {
			pw.enzymes[ec] = true
		}
	}
}

func countDashes(parts []string) int {
	n := 0
	for _, part := range parts {
		if part == "-" {
			n++
		}
	}

	return n
}

// participation is the share of the pathway enzymes found in group.
func (pw *pathway) participation(group *node, rounding int) string {
	shared := 0
	for ec := range pw.enzymes {
		if _, ok := group.enzymes[ec]; ok {
			shared++
		}
	}
	scale := math.Pow10(rounding)

	return report.FormatFloat(math.Round(float64(shared)/float64(len(pw.enzymes))*scale) / scale)
}

func groupHeaders(trees []*node) []string {
	var headers []string
	for _, name := range trees[0].order {
		for i := range trees {
			headers = append(headers, strconv.Itoa(i+1)+":"+name)
		}
	}

	return headers
}

func renderSingle(env *plugin.Env, pw *pathway, trees []*node, rounding int) {
	env.Send(strings.Join(append([]string{"EC"}, groupHeaders(trees)...), "\t"))

	enzymes := make([]string, 0, len(pw.enzymes))
	for ec := range pw.enzymes {
		enzymes = append(enzymes, ec)
	}
	sort.Strings(enzymes)
	for _, ec := range enzymes {
		row := []string{ec}
		for _, name := range trees[0].order {
			for _, tree := range trees {
				row = append(row, strconv.Itoa(tree.children[name].enzymes[ec]))
			}
		}
		env.Send(strings.Join(row, "\t"))
	}

	row := []string{"Participation"}
	for _, name := range trees[0].order {
		for _, tree := range trees {
			row = append(row, pw.participation(tree.children[name], rounding))
		}
	}
	env.Send(strings.Join(row, "\t"))
}

func renderAll(env *plugin.Env, pathways []*pathway, trees []*node, rounding int) {
	env.Send(strings.Join(append([]string{"ID", "Pathway"}, groupHeaders(trees)...), "\t"))

	for _, pw := range pathways {
		row := []string{pw.id, pw.name}
		for _, name := range trees[0].order {
			for _, tree := range trees {
				row = append(row, pw.participation(tree.children[name], rounding))
			}
		}
		env.Send(strings.Join(row, "\t"))
	}
}
