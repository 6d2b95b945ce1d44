// Package plant holds the static plant model: points, paths between them,
// locations linked to points and the vehicles that drive on them.
package plant

import (
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"fleetkernel/order"
)

type Point struct {
	Name string  `yaml:"name" json:"name"`
	X    float64 `yaml:"x" json:"x"`
	Y    float64 `yaml:"y" json:"y"`
	Type string  `yaml:"type" json:"type"` // halt, park
}

// Path connects two points. It is traversable forward, and backward when
// MaxReverseVelocity is positive.
type Path struct {
	Name               string `yaml:"name" json:"name"`
	Source             string `yaml:"source" json:"source"`
	Destination        string `yaml:"destination" json:"destination"`
	Length             int64  `yaml:"length" json:"length"`
	MaxVelocity        int    `yaml:"max_velocity" json:"max_velocity"`
	MaxReverseVelocity int    `yaml:"max_reverse_velocity" json:"max_reverse_velocity"`
	Locked             bool   `yaml:"locked" json:"locked"`
}

type Location struct {
	Name       string   `yaml:"name" json:"name"`
	Type       string   `yaml:"type" json:"type"`
	Links      []string `yaml:"links" json:"links"`
	Operations []string `yaml:"operations" json:"operations"`
}

// AllowsOperation reports whether op may be performed at the location. An
// empty operation list allows everything.
func (l Location) AllowsOperation(op string) bool {
	return len(l.Operations) == 0 || slices.Contains(l.Operations, op)
}

type Vehicle struct {
	Name          string   `yaml:"name" json:"name"`
	AcceptedTypes []string `yaml:"accepted_types" json:"accepted_types"`
	InitialPoint  string   `yaml:"initial_point" json:"initial_point"`
	Length        int      `yaml:"length" json:"length"`
}

// Accepts reports whether the vehicle may process orders of type typ.
func (v Vehicle) Accepts(typ string) bool {
	if len(v.AcceptedTypes) == 0 {
		return true
	}
	return slices.Contains(v.AcceptedTypes, order.TypeAny) || slices.Contains(v.AcceptedTypes, typ)
}

// Model is an immutable, validated plant model.
type Model struct {
	Name      string     `yaml:"name"`
	Points    []Point    `yaml:"points"`
	Paths     []Path     `yaml:"paths"`
	Locations []Location `yaml:"locations"`
	Vehicles  []Vehicle  `yaml:"vehicles"`

	points    map[string]*Point
	paths     map[string]*Path
	locations map[string]*Location
	vehicles  map[string]*Vehicle
	outgoing  map[string][]*Path
	incoming  map[string][]*Path
}

// Load reads and validates a YAML plant model.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plant model: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("plant model %s: %w", path, err)
	}
	return m, nil
}

func Parse(data []byte) (*Model, error) {
	m := &Model{}
	if err := yaml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse plant model: %w", err)
	}
	if err := m.index(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Model) index() error {
	m.points = make(map[string]*Point, len(m.Points))
	m.paths = make(map[string]*Path, len(m.Paths))
	m.locations = make(map[string]*Location, len(m.Locations))
	m.vehicles = make(map[string]*Vehicle, len(m.Vehicles))
	m.outgoing = make(map[string][]*Path)
	m.incoming = make(map[string][]*Path)

	seen := make(map[string]order.Kind)
	claim := func(name string, kind order.Kind) error {
		if name == "" {
			return fmt.Errorf("%s without a name", kind)
		}
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("name %q used by %s and %s", name, prev, kind)
		}
		seen[name] = kind
		return nil
	}

	for i := range m.Points {
		p := &m.Points[i]
		if err := claim(p.Name, order.KindPoint); err != nil {
			return err
		}
		m.points[p.Name] = p
	}
	for i := range m.Paths {
		p := &m.Paths[i]
		if err := claim(p.Name, order.KindPath); err != nil {
			return err
		}
		if m.points[p.Source] == nil || m.points[p.Destination] == nil {
			return fmt.Errorf("path %q connects unknown points %q and %q", p.Name, p.Source, p.Destination)
		}
		if p.Length <= 0 {
			p.Length = 1
		}
		m.paths[p.Name] = p
		m.outgoing[p.Source] = append(m.outgoing[p.Source], p)
		m.incoming[p.Destination] = append(m.incoming[p.Destination], p)
	}
	for i := range m.Locations {
		l := &m.Locations[i]
		if err := claim(l.Name, order.KindLocation); err != nil {
			return err
		}
		if len(l.Links) == 0 {
			return fmt.Errorf("location %q is not linked to any point", l.Name)
		}
		for _, link := range l.Links {
			if m.points[link] == nil {
				return fmt.Errorf("location %q linked to unknown point %q", l.Name, link)
			}
		}
		m.locations[l.Name] = l
	}
	for i := range m.Vehicles {
		v := &m.Vehicles[i]
		if err := claim(v.Name, order.KindVehicle); err != nil {
			return err
		}
		if v.InitialPoint != "" && m.points[v.InitialPoint] == nil {
			return fmt.Errorf("vehicle %q starts at unknown point %q", v.Name, v.InitialPoint)
		}
		m.vehicles[v.Name] = v
	}
	return nil
}

// Resolve maps a name to a typed reference.
func (m *Model) Resolve(name string) (order.Ref, error) {
	switch {
	case m.points[name] != nil:
		return order.Ref{Kind: order.KindPoint, Name: name}, nil
	case m.locations[name] != nil:
		return order.Ref{Kind: order.KindLocation, Name: name}, nil
	case m.paths[name] != nil:
		return order.Ref{Kind: order.KindPath, Name: name}, nil
	case m.vehicles[name] != nil:
		return order.Ref{Kind: order.KindVehicle, Name: name}, nil
	}
	return order.Ref{}, order.NewUnknownObjectError("", name)
}

func (m *Model) Point(name string) (Point, bool) {
	p, ok := m.points[name]
	if !ok {
		return Point{}, false
	}
	return *p, true
}

func (m *Model) Path(name string) (Path, bool) {
	p, ok := m.paths[name]
	if !ok {
		return Path{}, false
	}
	return *p, true
}

func (m *Model) Location(name string) (Location, bool) {
	l, ok := m.locations[name]
	if !ok {
		return Location{}, false
	}
	return *l, true
}

func (m *Model) Vehicle(name string) (Vehicle, bool) {
	v, ok := m.vehicles[name]
	if !ok {
		return Vehicle{}, false
	}
	return *v, true
}

// Edge is one traversable direction of a path.
type Edge struct {
	Path     string
	From, To string
	Length   int64
	Reverse  bool
}

// EdgesFrom lists every edge leaving point, skipping locked paths.
func (m *Model) EdgesFrom(point string) []Edge {
	var out []Edge
	for _, p := range m.outgoing[point] {
		if !p.Locked {
			out = append(out, Edge{Path: p.Name, From: p.Source, To: p.Destination, Length: p.Length})
		}
	}
	for _, p := range m.incoming[point] {
		if !p.Locked && p.MaxReverseVelocity > 0 {
			out = append(out, Edge{Path: p.Name, From: p.Destination, To: p.Source, Length: p.Length, Reverse: true})
		}
	}
	return out
}

// TargetPoints returns the points a destination can be reached at.
func (m *Model) TargetPoints(ref order.Ref) ([]string, error) {
	switch ref.Kind {
	case order.KindPoint:
		if m.points[ref.Name] == nil {
			return nil, order.NewUnknownObjectError(order.KindPoint, ref.Name)
		}
		return []string{ref.Name}, nil
	case order.KindLocation:
		l := m.locations[ref.Name]
		if l == nil {
			return nil, order.NewUnknownObjectError(order.KindLocation, ref.Name)
		}
		return slices.Clone(l.Links), nil
	}
	return nil, order.NewIllegalArgumentError("destination", "%s is not routable", ref)
}
