// Package store holds the in-memory graph store backing the plugin dependency graph.
package store

import (
	"sort"
	"sync"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"

	"github.com/askiada/paladin-plugins/pkg/plugin"
)

// DependencyStore is a graph.Store of plugin definitions keyed by name. An edge goes from a
// dependency to the plugin depending on it.
type DependencyStore struct {
	lock        sync.RWMutex
	definitions map[string]*plugin.Definition
	properties  map[string]*graph.VertexProperties

	// dependents maps a dependency to the plugins requiring it, requires is the reverse.
	dependents map[string]map[string]graph.Edge[string]
	requires   map[string]map[string]graph.Edge[string]
}

// NewDependencyStore creates an empty store.
func NewDependencyStore() *DependencyStore {
	return &DependencyStore{
		definitions: make(map[string]*plugin.Definition),
		properties:  make(map[string]*graph.VertexProperties),
		dependents:  make(map[string]map[string]graph.Edge[string]),
		requires:    make(map[string]map[string]graph.Edge[string]),
	}
}

func (s *DependencyStore) AddVertex(name string, def *plugin.Definition, p graph.VertexProperties) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.definitions[name]; ok {
		return graph.ErrVertexAlreadyExists
	}

	s.definitions[name] = def
	s.properties[name] = &p

	return nil
}

func (s *DependencyStore) ListVertices() ([]string, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	names := make([]string, 0, len(s.definitions))
	for name := range s.definitions {
		names = append(names, name)
	}

	return names, nil
}

func (s *DependencyStore) VertexCount() (int, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return len(s.definitions), nil
}

func (s *DependencyStore) Vertex(name string) (*plugin.Definition, graph.VertexProperties, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	def, ok := s.definitions[name]
	if !ok {
		return nil, graph.VertexProperties{}, graph.ErrVertexNotFound
	}

	return def, *s.properties[name], nil
}

func (s *DependencyStore) RemoveVertex(name string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.definitions[name]; !ok {
		return graph.ErrVertexNotFound
	}
	if len(s.requires[name]) > 0 || len(s.dependents[name]) > 0 {
		return graph.ErrVertexHasEdges
	}

	delete(s.requires, name)
	delete(s.dependents, name)
	delete(s.definitions, name)
	delete(s.properties, name)

	return nil
}

func (s *DependencyStore) AddEdge(dependency, dependent string, edge graph.Edge[string]) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.dependents[dependency]; !ok {
		s.dependents[dependency] = make(map[string]graph.Edge[string])
	}
	s.dependents[dependency][dependent] = edge

	if _, ok := s.requires[dependent]; !ok {
		s.requires[dependent] = make(map[string]graph.Edge[string])
	}
	s.requires[dependent][dependency] = edge

	return nil
}

func (s *DependencyStore) UpdateEdge(dependency, dependent string, edge graph.Edge[string]) error {
	if _, err := s.Edge(dependency, dependent); err != nil {
		return err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.dependents[dependency][dependent] = edge
	s.requires[dependent][dependency] = edge

	return nil
}

func (s *DependencyStore) RemoveEdge(dependency, dependent string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	delete(s.requires[dependent], dependency)
	delete(s.dependents[dependency], dependent)

	return nil
}

func (s *DependencyStore) Edge(dependency, dependent string) (graph.Edge[string], error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	edge, ok := s.dependents[dependency][dependent]
	if !ok {
		return graph.Edge[string]{}, graph.ErrEdgeNotFound
	}

	return edge, nil
}

func (s *DependencyStore) ListEdges() ([]graph.Edge[string], error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	res := make([]graph.Edge[string], 0)
	for _, edges := range s.dependents {
		for _, edge := range edges {
			res = append(res, edge)
		}
	}

	return res, nil
}

// Requires returns the direct dependencies of name, sorted.
func (s *DependencyStore) Requires(name string) []string {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return sortedKeys(s.requires[name])
}

// Dependents returns the plugins directly depending on name, sorted.
func (s *DependencyStore) Dependents(name string) []string {
	s.lock.RLock()
	defer s.lock.RUnlock()

	return sortedKeys(s.dependents[name])
}

// CreatesCycle reports whether adding an edge from dependency to dependent closes a cycle,
// walking the requirements of dependency without building a predecessor map.
func (s *DependencyStore) CreatesCycle(dependency, dependent string) (bool, error) {
	if _, _, err := s.Vertex(dependency); err != nil {
		return false, errors.Wrapf(err, "could not get plugin %s", dependency)
	}
	if _, _, err := s.Vertex(dependent); err != nil {
		return false, errors.Wrapf(err, "could not get plugin %s", dependent)
	}
	if dependency == dependent {
		return true, nil
	}

	s.lock.RLock()
	defer s.lock.RUnlock()

	stack := []string{dependency}
	visited := make(map[string]struct{})
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, ok := visited[current]; ok {
			continue
		}
		if current == dependent {
			return true, nil
		}
		visited[current] = struct{}{}

		for next := range s.requires[current] {
			stack = append(stack, next)
		}
	}

	return false, nil
}

func sortedKeys(m map[string]graph.Edge[string]) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys
}

var _ graph.Store[string, *plugin.Definition] = (*DependencyStore)(nil)
