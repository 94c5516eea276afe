// Command routeopt optimizes a single problem file and prints the result.
//
//	routeopt -problem examples/peru.yaml
//	routeopt -problem examples/square.yaml -geojson > route.geojson
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"routeopt/internal/geo"
	"routeopt/internal/geocode"
	"routeopt/internal/logging"
	"routeopt/internal/model"
	"routeopt/internal/runner"
)

// problem is the on-disk problem format.
type problem struct {
	Distance string                 `yaml:"distance"`
	SpeedKmh float64                `yaml:"speed_kmh"`
	Config   *model.ConfigOverrides `yaml:"config"`
	Points   []geo.Point            `yaml:"points"`
	Places   []string               `yaml:"places"`
}

func main() {
	var (
		problemPath = flag.String("problem", "", "YAML problem file (required)")
		gazetteer   = flag.String("gazetteer", "configs/gazetteer.yaml", "gazetteer for place names")
		asGeoJSON   = flag.Bool("geojson", false, "print the route as a GeoJSON FeatureCollection")
		verbose     = flag.Bool("v", false, "log run details to stderr")
	)
	flag.Parse()
	if *problemPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	env := "production"
	if *verbose {
		env = "development"
	}
	log, err := logging.New(env, "routeopt-cli")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	if !*verbose {
		log = zap.NewNop()
	}
	defer func() { _ = log.Sync() }()

	if err := run(*problemPath, *gazetteer, *asGeoJSON, log); err != nil {
		fmt.Fprintf(os.Stderr, "routeopt: %v\n", err)
		os.Exit(1)
	}
}

func run(problemPath, gazetteerPath string, asGeoJSON bool, log *zap.Logger) error {
	req, err := loadProblem(problemPath)
	if err != nil {
		return err
	}
	deps := runner.Deps{Log: log}
	if len(req.Places) > 0 {
		gz, err := geocode.LoadGazetteer(gazetteerPath)
		if err != nil {
			return fmt.Errorf("load gazetteer: %w", err)
		}
		deps.Geocoder = gz
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	mgr := runner.New(deps, runner.Options{})
	defer func() { _ = mgr.Shutdown(context.Background()) }()

	res, err := mgr.Run(ctx, "cli", req)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if asGeoJSON {
		return enc.Encode(geo.RouteFeatureCollection(res.Points, res.Result.Route))
	}
	return enc.Encode(res.Result)
}

func loadProblem(path string) (model.OptimizeRequest, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return model.OptimizeRequest{}, err
	}
	var p problem
	if err := yaml.Unmarshal(b, &p); err != nil {
		return model.OptimizeRequest{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return model.OptimizeRequest{
		Points:   p.Points,
		Places:   p.Places,
		Distance: p.Distance,
		SpeedKmh: p.SpeedKmh,
		Config:   p.Config,
	}, nil
}
