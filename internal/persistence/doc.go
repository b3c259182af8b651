// Package persistence implements a single append-only transaction log of
// (path, value, timestamp) tuples recording every
// committed Config Tree mutation, with compaction (Compact) into a snapshot
// plus tail, and replay into an empty tree on startup before the input
// configuration is applied.
//
// The log format is a gopkg.in/yaml.v3 document stream (one YAML document
// per record, separated by "---"), the same library and general shape muster's
// config package used for its entity files, generalized here from many
// small files to one append stream plus a snapshot.
package persistence
