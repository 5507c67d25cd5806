package taxonomy

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/askiada/paladin-plugins/internal/report"
)

// taxon identifies a species by UniProt mnemonic and full name.
type taxon struct {
	id   string
	full string
}

type taxa struct {
	values map[taxon]int
	order  []taxon
}

// aggregateTaxa sums the counts of the report per species, skipping the filtered entry types.
func aggregateTaxa(rep *report.Report, filters map[string]bool) (*taxa, int) {
	t := &taxa{values: make(map[taxon]int)}
	total := 0
	rep.Each(func(entry *report.Entry) {
		switch {
		case filters[FilterUnknown] && entry.Type == report.Unknown,
			filters[FilterCustom] && entry.Type == report.Custom,
			filters[FilterGroup] && entry.Type == report.Group:
			return
		}

		key := taxon{id: entry.SpeciesID, full: entry.SpeciesFull}
		if _, ok := t.values[key]; !ok {
			t.order = append(t.order, key)
		}
		t.values[key] += entry.Count
		total += entry.Count
	})

	return t, total
}

// counts maps display names to counts, remembering insertion order.
type counts struct {
	values map[string]int
	order  []string
}

func newCounts() counts {
	return counts{values: make(map[string]int)}
}

func (c *counts) add(name string, count int) {
	if _, ok := c.values[name]; !ok {
		c.order = append(c.order, name)
	}
	c.values[name] += count
}

func (c *counts) merge(other counts) {
	for _, name := range other.order {
		c.add(name, other.values[name])
	}
}

func (c counts) total() int {
	total := 0
	for _, count := range c.values {
		total += count
	}

	return total
}

// sorted returns the names by decreasing count, then by name.
func (c counts) sorted() []string {
	names := append([]string(nil), c.order...)
	sort.SliceStable(names, func(i, j int) bool {
		if c.values[names[i]] != c.values[names[j]] {
			return c.values[names[i]] > c.values[names[j]]
		}

		return names[i] < names[j]
	})

	return names
}

// node is a rank of the lineage tree with the total count of the species below it.
type node struct {
	name     string
	count    int
	children map[string]*node
	order    []string
}

func newNode(name string) *node {
	return &node{name: name, children: make(map[string]*node)}
}

func (n *node) child(name string) *node {
	c, ok := n.children[name]
	if !ok {
		c = newNode(name)
		n.children[name] = c
		n.order = append(n.order, name)
	}

	return c
}

// treeify builds the lineage tree of taxa. Species without a known lineage are left out.
func treeify(ctx context.Context, lineage Lineage, t *taxa, total int) (*node, error) {
	root := newNode("")
	root.count = total
	for _, key := range t.order {
		raw, ok, err := lineage.Lookup(ctx, key.id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		parent := root
		for _, rank := range Ranks(raw) {
			parent = parent.child(rank)
			parent.count += t.values[key]
		}
	}

	return root, nil
}

func (n *node) childCounts() counts {
	c := newCounts()
	for _, name := range n.order {
		c.add(name, n.children[name].count)
	}

	return c
}

// flatten returns the ranks level steps below the children of n. A negative level returns
// the leaves.
func (n *node) flatten(level int) counts {
	if level == 0 {
		return n.childCounts()
	}

	c := newCounts()
	for _, name := range n.order {
		child := n.children[name]
		if level < 0 && len(child.children) == 0 {
			c.add(child.name, child.count)

			continue
		}
		next := level - 1
		if level < 0 {
			next = level
		}
		c.merge(child.flatten(next))
	}

	return c
}

// find returns the shallowest rank whose name matches pattern, searching breadth first.
func (n *node) find(pattern *regexp.Regexp) *node {
	queue := []*node{n}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, name := range current.order {
			child := current.children[name]
			if pattern.MatchString(name) {
				return child
			}
			queue = append(queue, child)
		}
	}

	return nil
}

// speciesCounts returns the counts of the species whose lineage matches rank. Every species
// is kept when rank is nil. Species without a lineage only match a rank matching "Unknown".
func speciesCounts(ctx context.Context, lineage Lineage, t *taxa, rank *regexp.Regexp) (counts, error) {
	c := newCounts()
	for _, key := range t.order {
		if rank != nil {
			raw, ok, err := lineage.Lookup(ctx, key.id)
			if err != nil {
				return counts{}, err
			}
			if !ok {
				raw = report.UnknownValue
			}
			if !rank.MatchString(raw) {
				continue
			}
		}
		c.add(key.full, t.values[key])
	}

	return c, nil
}

type readRanks struct {
	read  string
	ranks []string
}

// groupSAM lists, for every read, the reported ranks its hits belong to.
func groupSAM(ctx context.Context, lineage Lineage, entries counts, alignment *report.Alignment, t *taxa) ([]readRanks, error) {
	species := make(map[string]string, len(t.order))
	for _, key := range t.order {
		if _, ok := species[key.id]; !ok {
			species[key.id] = key.full
		}
	}

	var (
		reads []readRanks
		index = make(map[string]int)
	)
	for _, key := range alignment.Keys {
		entry := alignment.Entries[key]
		mnemonic, ok := speciesOf(entry.Reference)
		if !ok {
			continue
		}
		// Ambiguous or retired mnemonics are not part of the report.
		full, ok := species[mnemonic]
		if !ok {
			continue
		}
		raw, ok, err := lineage.Lookup(ctx, mnemonic)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		for _, rank := range append(Ranks(raw), full) {
			if _, ok := entries.values[rank]; !ok {
				continue
			}
			i, seen := index[entry.Query]
			if !seen {
				i = len(reads)
				index[entry.Query] = i
				reads = append(reads, readRanks{read: entry.Query})
			}
			reads[i].ranks = append(reads[i].ranks, rank)
		}
	}

	return reads, nil
}

// speciesOf extracts the species mnemonic of a reference such as sp|P0A7E5|PYRG_ECOLI.
func speciesOf(reference string) (string, bool) {
	if i := strings.LastIndex(reference, "|"); i >= 0 {
		reference = reference[i+1:]
	}
	parts := strings.Split(reference, "_")
	if len(parts) < 2 {
		return "", false
	}

	return parts[1], true
}
