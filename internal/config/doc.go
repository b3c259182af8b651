// Package config loads the on-disk YAML configuration format: a top-level
// "services" map, each entry a ServiceDef with lifecycle steps,
// dependencies, parameters, and environment. Load both
// validates the document (a missing "main" service or a cyclic dependency
// graph is InvalidConfig, fatal at launch) and translates it into the
// internal/merger.ServiceSpec shape used to seed the first merge.
package config
