package persistence

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"evergreen/internal/configtree"
	"evergreen/internal/evgerr"
)

// Record is one committed mutation, the unit the transaction log appends.
type Record struct {
	Path  string              `yaml:"path"`
	Value interface{}         `yaml:"value,omitempty"`
	At    configtree.Timestamp `yaml:"at"`
	// Deleted distinguishes a tombstone (tree.Delete) from a write with a
	// legitimately absent/nil value.
	Deleted bool `yaml:"deleted,omitempty"`
}

// Store owns the on-disk transaction log and snapshot under root.
type Store struct {
	root string

	mu   sync.Mutex
	file *os.File
	enc  *yaml.Encoder
}

const (
	tlogName     = "tlog"
	snapshotName = "snapshot.yaml"
)

// Open opens (creating if necessary) the transaction log under
// <root>/config/, appending future records after any that already exist.
func Open(root string) (*Store, error) {
	dir := filepath.Join(root, "config")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, evgerr.Wrap(evgerr.KindResourceExhaustion, root, "creating config dir", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, tlogName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, evgerr.Wrap(evgerr.KindResourceExhaustion, root, "opening transaction log", err)
	}

	return &Store{root: root, file: f, enc: yaml.NewEncoder(f)}, nil
}

// Close flushes and closes the underlying log file.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Close(); err != nil {
		return err
	}
	return s.file.Close()
}

// Append records one committed write.
func (s *Store) Append(path string, value interface{}, at configtree.Timestamp) error {
	return s.appendRecord(Record{Path: path, Value: value, At: at})
}

// AppendDelete records one committed deletion.
func (s *Store) AppendDelete(path string, at configtree.Timestamp) error {
	return s.appendRecord(Record{Path: path, At: at, Deleted: true})
}

func (s *Store) appendRecord(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(r); err != nil {
		return evgerr.Wrap(evgerr.KindResourceExhaustion, s.root, "appending transaction record", err)
	}
	return s.file.Sync()
}

// AttachTo subscribes to every Config Tree mutation from the root down and
// appends a Record for each. Call once, before accepting external
// deployments, so every subsequent commit is durable.
func (s *Store) AttachTo(tree *configtree.Tree) configtree.Subscription {
	return tree.Subscribe("/", func(n configtree.Notification) {
		switch n.Kind {
		case configtree.EventChanged:
			_ = s.Append(n.Path, n.Value, n.At)
		case configtree.EventRemoved:
			_ = s.AppendDelete(n.Path, n.At)
		}
	})
}

// Replay reads the snapshot (if present) followed by the transaction log
// and applies every record into tree, in file order, using the tree's own
// last-writer-wins Write/Delete so a corrupt or stale tail record cannot
// regress state.
func Replay(root string, tree *configtree.Tree) error {
	snapPath := filepath.Join(root, "config", snapshotName)
	if recs, err := readRecords(snapPath); err == nil {
		applyRecords(tree, recs)
	} else if !os.IsNotExist(err) {
		return evgerr.Wrap(evgerr.KindInvalidConfig, root, "reading snapshot", err)
	}

	tlogPath := filepath.Join(root, "config", tlogName)
	recs, err := readRecords(tlogPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return evgerr.Wrap(evgerr.KindInvalidConfig, root, "reading transaction log", err)
	}
	applyRecords(tree, recs)
	return nil
}

func applyRecords(tree *configtree.Tree, recs []Record) {
	for _, r := range recs {
		if r.Deleted {
			_, _ = tree.Delete(r.Path, r.At)
		} else {
			_, _ = tree.Write(r.Path, r.Value, r.At)
		}
	}
}

func readRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var recs []Record
	dec := yaml.NewDecoder(bufio.NewReader(f))
	for {
		var r Record
		if err := dec.Decode(&r); err != nil {
			break
		}
		recs = append(recs, r)
	}
	return recs, nil
}

// Compact rewrites the transaction log as a full snapshot of tree's current
// leaves plus an empty tail, atomically via write-to-temp-then-rename.
func Compact(root string, tree *configtree.Tree) error {
	dir := filepath.Join(root, "config")
	snapPath := filepath.Join(dir, snapshotName)
	tmpPath := snapPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return evgerr.Wrap(evgerr.KindResourceExhaustion, root, "creating snapshot temp file", err)
	}
	enc := yaml.NewEncoder(f)
	writeLeaves(enc, tree)
	if err := enc.Close(); err != nil {
		f.Close()
		return evgerr.Wrap(evgerr.KindResourceExhaustion, root, "encoding snapshot", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return evgerr.Wrap(evgerr.KindResourceExhaustion, root, "syncing snapshot", err)
	}
	if err := f.Close(); err != nil {
		return evgerr.Wrap(evgerr.KindResourceExhaustion, root, "closing snapshot", err)
	}
	if err := os.Rename(tmpPath, snapPath); err != nil {
		return evgerr.Wrap(evgerr.KindResourceExhaustion, root, "renaming snapshot into place", err)
	}

	tlogPath := filepath.Join(dir, tlogName)
	if err := os.Truncate(tlogPath, 0); err != nil {
		return evgerr.Wrap(evgerr.KindResourceExhaustion, root, "truncating transaction log tail", err)
	}
	return nil
}

func writeLeaves(enc *yaml.Encoder, tree *configtree.Tree) {
	var walk func(path string)
	walk = func(path string) {
		n, ok := tree.Lookup(path)
		if !ok {
			return
		}
		if val, isLeaf := n.Value(); isLeaf {
			_ = enc.Encode(Record{Path: path, Value: val, At: n.ModifiedAt()})
			return
		}
		for _, name := range n.ChildNames() {
			walk(joinPath(path, name))
		}
	}
	walk("/")
}

func joinPath(base, name string) string {
	if base == "/" || base == "" {
		return "/" + name
	}
	return base + "/" + name
}
