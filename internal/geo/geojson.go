package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// RouteFeatureCollection renders a visiting order as GeoJSON: one Point
// feature per stop (properties name, seq) followed by the path LineString.
// Names in route that are not in points are skipped.
func RouteFeatureCollection(points []Point, route []string) *geojson.FeatureCollection {
	byName := make(map[string]Coordinate, len(points))
	for _, p := range points {
		byName[p.Name] = p.Coordinate
	}
	fc := geojson.NewFeatureCollection()
	line := make(orb.LineString, 0, len(route))
	seq := 0
	for _, name := range route {
		c, ok := byName[name]
		if !ok {
			continue
		}
		f := geojson.NewFeature(c.Orb())
		f.Properties["name"] = name
		f.Properties["seq"] = seq
		fc.Append(f)
		line = append(line, c.Orb())
		seq++
	}
	if len(line) >= 2 {
		f := geojson.NewFeature(line)
		f.Properties["kind"] = "route"
		fc.Append(f)
	}
	return fc
}
