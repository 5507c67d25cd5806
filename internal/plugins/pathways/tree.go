package pathways

import (
	"context"
	"regexp"
	"strings"

	"github.com/askiada/paladin-plugins/internal/plugins/taxonomy"
	"github.com/askiada/paladin-plugins/internal/report"
)

var ecPattern = regexp.MustCompile(`\(EC ([0-9-]+\.[0-9-]+\.[0-9-]+\.[0-9-]+)\)`)

type species struct {
	id   string
	full string
}

// speciesEnzymes holds the read count of every EC number per species, in report order.
type speciesEnzymes struct {
	counts map[species]map[string]int
	order  []species
}

// collectEnzymes sums, per species, the counts of the entries whose protein name carries an
// EC number.
func collectEnzymes(rep *report.Report) *speciesEnzymes {
	se := &speciesEnzymes{counts: make(map[species]map[string]int)}
	rep.Each(func(entry *report.Entry) {
		match := ecPattern.FindStringSubmatch(entry.Protein)
		if match == nil {
			return
		}
		key := species{id: entry.SpeciesID, full: entry.SpeciesFull}
		if _, ok := se.counts[key]; !ok {
			se.counts[key] = make(map[string]int)
			se.order = append(se.order, key)
		}
		se.counts[key][match[1]] += entry.Count
	})

	return se
}

// node is a rank of the lineage tree with the enzyme counts of the species below it.
type node struct {
	name     string
	enzymes  map[string]int
	children map[string]*node
	order    []string
}

func newNode(name string) *node {
	return &node{name: name, enzymes: make(map[string]int), children: make(map[string]*node)}
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

func (n *node) attach(c *node) {
	if _, ok := n.children[c.name]; !ok {
		n.order = append(n.order, c.name)
	}
	n.children[c.name] = c
}

func (n *node) add(enzymes map[string]int) {
	for ec, count := range enzymes {
		n.enzymes[ec] += count
	}
}

// buildTree spreads the enzyme counts over the lineage of every species. Species level
// mnemonics get their own leaf below the lineage; group mnemonics (9xxxx) stop at the lineage.
func buildTree(ctx context.Context, lineage taxonomy.Lineage, se *speciesEnzymes) (*node, error) {
	root := newNode("all")
	for _, key := range se.order {
		raw, ok, err := lineage.Lookup(ctx, key.id)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if !strings.HasPrefix(key.id, "9") {
			raw += ";" + key.full
		}

		enzymes := se.counts[key]
		parent := root
		for _, rank := range strings.Split(raw, ";") {
			rank = strings.TrimSpace(rank)
			if rank == "" {
				rank = report.UnknownValue
			}
			parent = parent.child(rank)
			parent.add(enzymes)
		}
		root.add(enzymes)
	}

	return root, nil
}

// flatten returns a node whose children are the ranks level steps below n, n itself at level
// 0. A negative level collects the leaves.
func (n *node) flatten(level int) *node {
	flat := newNode("flat")
	if level < 0 && len(n.children) == 0 {
		level = 0
	}
	if level == 0 {
		flat.attach(n)

		return flat
	}
	for _, name := range n.order {
		for _, c := range n.children[name].flatten(level - 1).groups() {
			flat.attach(c)
		}
	}

	return flat
}

// search returns the first rank, depth first, whose name matches pattern. The result has no
// children when nothing matches.
func (n *node) search(pattern *regexp.Regexp) *node {
	if found := n.find(pattern); found != nil {
		return found
	}

	return newNode("")
}

func (n *node) find(pattern *regexp.Regexp) *node {
	if pattern.MatchString(n.name) {
		return n
	}
	for _, name := range n.order {
		if found := n.children[name].find(pattern); found != nil {
			return found
		}
	}

	return nil
}

func (n *node) groups() []*node {
	groups := make([]*node, 0, len(n.order))
	for _, name := range n.order {
		groups = append(groups, n.children[name])
	}

	return groups
}

// alignGroups gives every tree the groups of all the others, empty where missing.
func alignGroups(trees []*node) {
	for _, src := range trees {
		for _, name := range src.order {
			for _, dst := range trees {
				if _, ok := dst.children[name]; !ok {
					dst.attach(newNode(name))
				}
			}
		}
	}
}
