package pipeline

import (
	"sort"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"

	"github.com/askiada/paladin-plugins/internal/store"
	"github.com/askiada/paladin-plugins/pkg/plugin"
)

// Resolver orders plugins so that every dependency is initialised before the plugins requiring it.
type Resolver struct {
	graph    graph.Graph[string, *plugin.Definition]
	store    *store.DependencyStore
	position map[string]int
}

func definitionHash(def *plugin.Definition) string {
	return def.Name()
}

// Resolve builds the dependency graph of every plugin of reg. It fails when a dependency is not
// registered or when the dependencies form a cycle, in which case the error carries the cycle.
func Resolve(reg *plugin.Registry) (*Resolver, error) {
	if reg == nil {
		return nil, ErrRegistryMustBeSet
	}

	st := store.NewDependencyStore()
	g := graph.NewWithStore(definitionHash, st, graph.Directed(), graph.PreventCycles())

	defs := reg.Definitions()
	for _, def := range defs {
		err := g.AddVertex(def)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to add plugin %s", def.Name())
		}
	}

	for _, def := range defs {
		for _, dep := range def.Dependencies() {
			if !reg.Has(dep) {
				return nil, errors.Wrapf(ErrUnknownDependency, "%s requires %s", def.Name(), dep)
			}

			err := g.AddEdge(dep, def.Name())
			if errors.Is(err, graph.ErrEdgeCreatesCycle) {
				return nil, cycleError(g, dep, def.Name())
			}
			if err != nil {
				return nil, errors.Wrapf(err, "unable to link %s to %s", dep, def.Name())
			}
		}
	}

	order, err := graph.StableTopologicalSort(g, func(a, b string) bool { return a < b })
	if err != nil {
		return nil, errors.Wrap(err, "unable to sort plugins")
	}

	position := make(map[string]int, len(order))
	for i, name := range order {
		position[name] = i
	}

	return &Resolver{graph: g, store: st, position: position}, nil
}

func cycleError(g graph.Graph[string, *plugin.Definition], dependency, dependent string) error {
	path, err := graph.ShortestPath(g, dependent, dependency)
	if err != nil {
		return errors.Wrapf(ErrDependencyCycle, "%s -> %s", dependency, dependent)
	}

	return errors.Wrap(ErrDependencyCycle, strings.Join(append(path, dependent), " -> "))
}

// LoadOrder returns names and all their transitive dependencies, dependencies first. Plugins with
// no ordering constraint between them are sorted by name.
func (r *Resolver) LoadOrder(names ...string) ([]string, error) {
	closure := make(map[string]struct{})
	stack := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := r.position[name]; !ok {
			return nil, errors.Wrapf(ErrUnknownPlugin, "%q", name)
		}
		stack = append(stack, name)
	}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := closure[current]; ok {
			continue
		}
		closure[current] = struct{}{}
		stack = append(stack, r.store.Requires(current)...)
	}

	order := make([]string, 0, len(closure))
	for name := range closure {
		order = append(order, name)
	}
	sort.Slice(order, func(i, j int) bool {
		return r.position[order[i]] < r.position[order[j]]
	})

	return order, nil
}

// Requires returns the direct dependencies of name.
func (r *Resolver) Requires(name string) []string {
	return r.store.Requires(name)
}

// RequiredBy returns the plugins directly depending on name.
func (r *Resolver) RequiredBy(name string) []string {
	return r.store.Dependents(name)
}
