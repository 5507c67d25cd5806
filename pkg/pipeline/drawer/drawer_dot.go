package drawer

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/template"
	"time"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/go-playground/colors.v1" //nolint

	"github.com/askiada/paladin-plugins/pkg/pipeline/measure"
	"github.com/askiada/paladin-plugins/pkg/pipeline/model"
)

// DOTDrawer writes the graph of a run in the graphviz DOT language.
type DOTDrawer struct {
	graph    graph.Graph[string, string]
	fileName string
}

// NewDOTDrawer creates a drawer writing to fileName.
func NewDOTDrawer(fileName string) *DOTDrawer {
	return &DOTDrawer{
		fileName: fileName,
		graph:    graph.New(graph.StringHash, graph.Directed()),
	}
}

// AddPlugin adds a vertex. Adding the same plugin twice is a no-op.
func (d *DOTDrawer) AddPlugin(key string) error {
	err := d.graph.AddVertex(key, graph.VertexAttribute("shape", "box"))
	if err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
		return errors.Wrapf(err, "unable to add vertex %s", key)
	}

	return nil
}

func (d *DOTDrawer) AddLink(parentKey, childKey string) error {
	err := d.graph.AddEdge(parentKey, childKey)
	if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
		return errors.Wrapf(err, "unable to add edge from %s to %s", parentKey, childKey)
	}

	return nil
}

func (d *DOTDrawer) AddDependencyLink(dependencyKey, pluginKey string) error {
	err := d.graph.AddEdge(dependencyKey, pluginKey, graph.EdgeAttribute("style", "dashed"))
	if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
		return errors.Wrapf(err, "unable to add dependency edge from %s to %s", dependencyKey, pluginKey)
	}

	return nil
}

// Draw creates the DOT file.
func (d *DOTDrawer) Draw() (err error) {
	file, err := os.Create(d.fileName)
	if err != nil {
		return errors.Wrapf(err, "unable to create file %s", d.fileName)
	}
	defer func() {
		err = multierr.Append(err, file.Close())
	}()

	err = dot(d.graph, file, GraphAttribute("rankdir", "LR"))
	if err != nil {
		return errors.Wrapf(err, "unable to write dot file %s", d.fileName)
	}

	return nil
}

func (d *DOTDrawer) SetTotalTime(key string, start time.Time) error {
	_, properties, err := d.graph.VertexWithProperties(key)
	if err != nil {
		return errors.Wrapf(err, "unable to get %s vertex properties", key)
	}

	properties.Attributes["xlabel"] = time.Since(start).Round(time.Millisecond).String()

	return nil
}

const maxRGB = 240

// AddMeasure labels every plugin with its total duration and fills it with a colour going from
// blue for the fastest main phase to red for the slowest.
func (d *DOTDrawer) AddMeasure(msr measure.Measure) error {
	var minValue, maxValue time.Duration
	first := true
	for _, mt := range msr.AllMetrics() {
		elapsed := mt.Duration(model.MainPhase)
		if elapsed == 0 {
			continue
		}
		if first || elapsed < minValue {
			minValue = elapsed
		}
		if first || elapsed > maxValue {
			maxValue = elapsed
		}
		first = false
	}

	for key, mt := range msr.AllMetrics() {
		_, properties, err := d.graph.VertexWithProperties(key)
		if errors.Is(err, graph.ErrVertexNotFound) {
			continue
		}
		if err != nil {
			return errors.Wrap(err, "unable to get vertex properties")
		}

		if total := mt.TotalDuration(); total > 0 {
			properties.Attributes["xlabel"] = total.String()
		}

		elapsed := mt.Duration(model.MainPhase)
		if elapsed == 0 {
			continue
		}

		colour, err := heat(elapsed, minValue, maxValue)
		if err != nil {
			return err
		}
		properties.Attributes["style"] = "filled"
		properties.Attributes["fillcolor"] = colour
		properties.Attributes["fontcolor"] = "white"
	}

	return nil
}

func heat(curr, minValue, maxValue time.Duration) (string, error) {
	fraction := 1.0
	if maxValue > minValue {
		fraction = float64(curr-minValue) / float64(maxValue-minValue)
	}

	red := maxRGB * fraction
	blue := maxRGB - red

	colour, err := colors.RGB(uint8(red), 0, uint8(blue)) //nolint
	if err != nil {
		return "", errors.Wrap(err, "unable to get colour")
	}

	return colour.ToHEX().String(), nil
}

//nolint:lll //this is a template
const dotTemplate = `strict {{.GraphType}} {
	{{range $k, $v := .Attributes}}
		{{$k}}="{{$v}}";
	{{end}}
	{{range $s := .Statements}}
		"{{.Source}}" {{if .Target}}{{$.EdgeOperator}} "{{.Target}}" [ {{range $k, $v := .EdgeAttributes}}{{$k}}="{{$v}}", {{end}} weight={{.EdgeWeight}} ]{{else}}[ {{range $k, $v := .HTMLAttributes}}{{$k}}={{$v}}, {{end}} {{range $k, $v := .SourceAttributes}}{{$k}}="{{$v}}", {{end}} weight={{.SourceWeight}} ]{{end}};
	{{end}}
	}
	`

type description struct {
	GraphType    string
	Attributes   map[string]string
	EdgeOperator string
	Statements   []statement
}

type statement struct {
	Source           string
	Target           string
	SourceAttributes map[string]string
	HTMLAttributes   map[string]string
	EdgeAttributes   map[string]string
	SourceWeight     int
	EdgeWeight       int
}

func dot(g graph.Graph[string, string], wrt io.Writer, options ...func(*description)) error {
	desc, err := generateDOT(g, options...)
	if err != nil {
		return errors.Wrap(err, "failed to generate DOT description")
	}

	return renderDOT(wrt, desc)
}

// GraphAttribute sets a top level attribute of the rendered graph.
func GraphAttribute(key, value string) func(*description) {
	return func(d *description) {
		d.Attributes[key] = value
	}
}

// generateDOT lists vertices then edges sorted by key so two runs of the same pipeline render
// the same file.
func generateDOT(gra graph.Graph[string, string], options ...func(*description)) (description, error) {
	desc := description{
		GraphType:    "digraph",
		Attributes:   make(map[string]string),
		EdgeOperator: "->",
		Statements:   make([]statement, 0),
	}

	for _, option := range options {
		option(&desc)
	}

	adjacencyMap, err := gra.AdjacencyMap()
	if err != nil {
		return desc, errors.Wrap(err, "unable to get adjacency map")
	}

	vertices := make([]string, 0, len(adjacencyMap))
	for vertex := range adjacencyMap {
		vertices = append(vertices, vertex)
	}
	sort.Strings(vertices)

	for _, vertex := range vertices {
		_, sourceProperties, err := gra.VertexWithProperties(vertex)
		if err != nil {
			return desc, errors.Wrap(err, "unable to get vertex properties")
		}

		attributes := make(map[string]string, len(sourceProperties.Attributes))
		htmlAttributes := make(map[string]string)
		for k, v := range sourceProperties.Attributes {
			if k == "xlabel" {
				htmlAttributes["label"] = fmt.Sprintf(`<%s <BR /> <FONT POINT-SIZE="10">%s</FONT>>`, vertex, v)

				continue
			}
			attributes[k] = v
		}

		desc.Statements = append(desc.Statements, statement{
			Source:           vertex,
			SourceWeight:     sourceProperties.Weight,
			SourceAttributes: attributes,
			HTMLAttributes:   htmlAttributes,
		})
	}

	for _, vertex := range vertices {
		targets := make([]string, 0, len(adjacencyMap[vertex]))
		for target := range adjacencyMap[vertex] {
			targets = append(targets, target)
		}
		sort.Strings(targets)

		for _, target := range targets {
			edge := adjacencyMap[vertex][target]
			desc.Statements = append(desc.Statements, statement{
				Source:         vertex,
				Target:         target,
				EdgeWeight:     edge.Properties.Weight,
				EdgeAttributes: edge.Properties.Attributes,
			})
		}
	}

	return desc, nil
}

func renderDOT(wrt io.Writer, desc description) error {
	tpl, err := template.New("dotTemplate").Parse(dotTemplate)
	if err != nil {
		return errors.Wrap(err, "failed to parse template")
	}

	err = tpl.Execute(wrt, desc)
	if err != nil {
		return errors.Wrap(err, "unable to execute template")
	}

	return nil
}

var _ Drawer = (*DOTDrawer)(nil)
