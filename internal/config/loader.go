package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"evergreen/internal/depgraph"
	"evergreen/internal/evgerr"
	"evergreen/internal/merger"
)

// MainService is the one component name every document must define,
// mirroring the teacher's own convention of a required root entry point.
const MainService = "main"

// Load parses path as a Document, validates it, and translates it into the
// merger.ServiceSpec map ready to seed the first deployment.
func Load(path string) (map[string]merger.ServiceSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, evgerr.Wrap(evgerr.KindInvalidConfig, path, "reading configuration file", err)
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, evgerr.Wrap(evgerr.KindInvalidConfig, path, "malformed YAML", err)
	}

	if _, ok := doc.Services[MainService]; !ok {
		return nil, evgerr.New(evgerr.KindInvalidConfig, path, fmt.Sprintf("missing required %q service", MainService))
	}

	specs := make(map[string]merger.ServiceSpec, len(doc.Services))
	g := depgraph.New()
	for name, def := range doc.Services {
		edges, err := parseDependencies(name, def.Dependencies)
		if err != nil {
			return nil, evgerr.Wrap(evgerr.KindInvalidConfig, path, "invalid dependency declaration", err)
		}
		g.AddNode(name)
		for _, e := range edges {
			g.AddEdge(name, e.To, e.Kind)
		}
		specs[name] = merger.ServiceSpec{
			Lifecycle:    lifecycleToMap(def.Lifecycle),
			Dependencies: edges,
			Parameters:   def.Params(),
		}
	}

	if err := g.Validate(); err != nil {
		return nil, evgerr.Wrap(evgerr.KindInvalidConfig, path, "cyclic dependency graph", err)
	}

	return specs, nil
}

func parseDependencies(owner string, raw []string) ([]depgraph.Edge, error) {
	edges := make([]depgraph.Edge, 0, len(raw))
	for _, dep := range raw {
		parts := strings.SplitN(dep, ":", 2)
		name := parts[0]
		kind := depgraph.Hard
		if len(parts) == 2 {
			switch strings.ToUpper(parts[1]) {
			case "HARD":
				kind = depgraph.Hard
			case "SOFT":
				kind = depgraph.Soft
			default:
				return nil, fmt.Errorf("service %s: unknown dependency kind %q in %q", owner, parts[1], dep)
			}
		}
		edges = append(edges, depgraph.Edge{To: name, Kind: kind})
	}
	return edges, nil
}

func lifecycleToMap(l Lifecycle) map[string]interface{} {
	m := make(map[string]interface{})
	add := func(name string, s *LifecycleStep) {
		if s == nil {
			return
		}
		m[name] = *s
	}
	add("install", l.Install)
	add("startup", l.Startup)
	add("run", l.Run)
	add("shutdown", l.Shutdown)
	add("recover", l.Recover)
	return m
}

// ParseTimeout parses a LifecycleStep's Timeout field, defaulting to 0
// (caller applies its own default) on empty or unparseable input.
func ParseTimeout(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
