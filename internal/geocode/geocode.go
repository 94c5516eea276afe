// Package geocode resolves place names to coordinates. Resolution is
// strict: a name that cannot be resolved fails the whole request instead of
// being dropped from the route.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"routeopt/internal/geo"
)

var (
	ErrNotFound  = errors.New("geocode: place not found")
	ErrEmptyName = errors.New("geocode: empty place name")
	ErrDuplicate = errors.New("geocode: duplicate place name")
)

// Geocoder maps a place name to a coordinate.
type Geocoder interface {
	Geocode(ctx context.Context, name string) (geo.Coordinate, error)
}

// ResolveError lists every name that failed to resolve.
type ResolveError struct {
	Unresolved []string
	Causes     map[string]error
}

func (e *ResolveError) Error() string {
	return fmt.Sprintf("geocode: %d unresolved place(s): %s", len(e.Unresolved), strings.Join(e.Unresolved, ", "))
}

// Unwrap exposes the per-name causes to errors.Is.
func (e *ResolveError) Unwrap() []error {
	out := make([]error, 0, len(e.Causes))
	for _, n := range e.Unresolved {
		if err := e.Causes[n]; err != nil {
			out = append(out, err)
		}
	}
	return out
}

// Resolve geocodes every name in order. Names are trimmed; empty or
// duplicate names are rejected before any lookup.
func Resolve(ctx context.Context, g Geocoder, names []string) ([]geo.Point, error) {
	seen := make(map[string]struct{}, len(names))
	clean := make([]string, len(names))
	for i, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			return nil, fmt.Errorf("%w: position %d", ErrEmptyName, i)
		}
		key := strings.ToLower(n)
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("%w: %q", ErrDuplicate, n)
		}
		seen[key] = struct{}{}
		clean[i] = n
	}

	points := make([]geo.Point, 0, len(clean))
	var rerr *ResolveError
	for _, n := range clean {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := g.Geocode(ctx, n)
		if err == nil && !c.Valid() {
			err = fmt.Errorf("invalid coordinate (%v, %v)", c.Lat, c.Lng)
		}
		if err != nil {
			if rerr == nil {
				rerr = &ResolveError{Causes: map[string]error{}}
			}
			rerr.Unresolved = append(rerr.Unresolved, n)
			rerr.Causes[n] = err
			continue
		}
		points = append(points, geo.Point{Name: n, Coordinate: c})
	}
	if rerr != nil {
		return nil, rerr
	}
	return points, nil
}

// Place is one gazetteer entry.
type Place struct {
	Name string  `yaml:"name" json:"name"`
	Lat  float64 `yaml:"lat" json:"lat"`
	Lng  float64 `yaml:"lng" json:"lng"`
}

// Gazetteer is an in-memory, case-insensitive place table.
type Gazetteer struct {
	mu     sync.RWMutex
	places map[string]Place
}

// NewGazetteer builds a gazetteer from places. Later duplicates win.
func NewGazetteer(places ...Place) *Gazetteer {
	g := &Gazetteer{places: make(map[string]Place, len(places))}
	for _, p := range places {
		g.Add(p)
	}
	return g
}

// LoadGazetteer reads a YAML file of the form `places: [{name, lat, lng}]`.
func LoadGazetteer(path string) (*Gazetteer, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseGazetteer(b)
}

// ParseGazetteer decodes gazetteer YAML.
func ParseGazetteer(b []byte) (*Gazetteer, error) {
	var doc struct {
		Places []Place `yaml:"places"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("gazetteer: %w", err)
	}
	for i, p := range doc.Places {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("gazetteer: entry %d: %w", i, ErrEmptyName)
		}
		if !(geo.Coordinate{Lat: p.Lat, Lng: p.Lng}).Valid() {
			return nil, fmt.Errorf("gazetteer: %q has invalid coordinate (%v, %v)", p.Name, p.Lat, p.Lng)
		}
	}
	return NewGazetteer(doc.Places...), nil
}

func (g *Gazetteer) Add(p Place) {
	p.Name = strings.TrimSpace(p.Name)
	g.mu.Lock()
	g.places[strings.ToLower(p.Name)] = p
	g.mu.Unlock()
}

func (g *Gazetteer) Geocode(ctx context.Context, name string) (geo.Coordinate, error) {
	if err := ctx.Err(); err != nil {
		return geo.Coordinate{}, err
	}
	g.mu.RLock()
	p, ok := g.places[strings.ToLower(strings.TrimSpace(name))]
	g.mu.RUnlock()
	if !ok {
		return geo.Coordinate{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return geo.Coordinate{Lat: p.Lat, Lng: p.Lng}, nil
}

// Names returns the canonical names sorted alphabetically.
func (g *Gazetteer) Names() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, 0, len(g.places))
	for _, p := range g.places {
		out = append(out, p.Name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of places.
func (g *Gazetteer) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.places)
}
