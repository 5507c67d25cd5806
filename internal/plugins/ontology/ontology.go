// Package ontology groups the gene ontology terms of a UniProt report. Its plugin is called go.
package ontology

import (
	"context"
	"sort"
	"strconv"

	"github.com/askiada/paladin-plugins/internal/report"
	"github.com/askiada/paladin-plugins/pkg/plugin"
)

const (
	Name        = "go"
	description = "Perform gene ontology term grouping and abundance reporting"
	version     = "1.1.0"
)

type Args struct {
	Input   string
	Quality int
}

// TermCount is the number of reads mapped to proteins annotated with a term.
type TermCount struct {
	Term  string
	Count int
}

// Definition builds the plugin reading reports through cache.
func Definition(cache *report.Cache) (*plugin.Definition, error) {
	return plugin.New(Name, description, version, parse, func(_ context.Context, env *plugin.Env, args plugin.Args) error {
		a, _ := args.(*Args)
		rep, err := cache.Report(a.Input, float64(a.Quality), "")
		if err != nil {
			return err
		}

		for _, term := range Aggregate(rep) {
			env.Send(term.Term + "\t" + strconv.Itoa(term.Count))
		}

		return nil
	})
}

func parse(raw string, env *plugin.Env) (plugin.Args, error) {
	flags := plugin.NewFlagSet(Name, description)
	input := flags.StringP("input", "i", "", "PALADIN UniProt report")
	quality := flags.IntP("quality", "q", 0, "minimum mapping quality filter")

	err := plugin.ParseFlags(flags, raw, env.Out)
	if err != nil {
		return nil, err
	}
	err = plugin.RequireFlags(flags, "input", "quality")
	if err != nil {
		return nil, err
	}

	return &Args{Input: *input, Quality: *quality}, nil
}

// Aggregate sums the counts of the entries carrying each term, most frequent terms first.
func Aggregate(rep *report.Report) []TermCount {
	counts := make(map[string]int)
	rep.Each(func(entry *report.Entry) {
		for _, term := range entry.Ontology {
			counts[term] += entry.Count
		}
	})

	terms := make([]TermCount, 0, len(counts))
	for term, count := range counts {
		terms = append(terms, TermCount{Term: term, Count: count})
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}

		return terms[i].Term < terms[j].Term
	})

	return terms
}
