// Package store persists and loads index snapshots.
//
// A snapshot lives in one directory (one per scope) and consists of:
//
//	embeddings.gob  embedding matrix
//	texts.jsonl     one chunk text per line
//	meta.json       source path and start line per chunk
//	nn.gob          fitted nearest-neighbor index
//	manifest.json   embedding model, dimension, chunk count
//
// A scope is usable only when every artifact is present and mutually
// consistent; anything else makes that scope unavailable without affecting
// other scopes.
package store

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/smartedupay/aicore/internal/log"
	"github.com/smartedupay/aicore/internal/vecindex"
)

const (
	embeddingsFile = "embeddings.gob"
	textsFile      = "texts.jsonl"
	metaFile       = "meta.json"
	indexFile      = "nn.gob"
	manifestFile   = "manifest.json"
	graphFile      = "knowledge_graph.json"
)

// ErrInconsistent indicates artifacts in a scope directory disagree with each
// other or with the manifest.
var ErrInconsistent = errors.New("inconsistent index artifacts")

// ChunkMeta locates a chunk in its source file.
type ChunkMeta struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
}

// Manifest records how a snapshot was produced, checked at load time so a
// snapshot embedded under one model is never queried under another.
type Manifest struct {
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
	Chunks    int       `json:"chunks"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot is a fully loaded, validated scope.
type Snapshot struct {
	Embeddings [][]float32
	Texts      []string
	Meta       []ChunkMeta
	Index      *vecindex.Index
	Manifest   Manifest
}

// textRecord is a texts.jsonl line.
type textRecord struct {
	ID   int    `json:"id"`
	Text string `json:"text"`
}

// Store reads and writes snapshots under a scope directory.
type Store struct {
	dir    string
	logger log.Logger
}

// New returns a Store rooted at dir.
func New(dir string, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{dir: dir, logger: logger}
}

// Dir returns the scope directory.
func (s *Store) Dir() string { return s.dir }

// Save writes the snapshot atomically, each artifact through a temp file and
// rename, so a crash mid-save leaves either the old artifact or none.
func (s *Store) Save(snap *Snapshot) error {
	if len(snap.Texts) != len(snap.Embeddings) || len(snap.Meta) != len(snap.Embeddings) {
		return fmt.Errorf("%w: %d embeddings, %d texts, %d meta entries",
			ErrInconsistent, len(snap.Embeddings), len(snap.Texts), len(snap.Meta))
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	if err := s.writeGob(embeddingsFile, snap.Embeddings); err != nil {
		return err
	}
	if err := s.writeTexts(snap.Texts); err != nil {
		return err
	}
	if err := s.writeJSON(metaFile, snap.Meta); err != nil {
		return err
	}
	if err := s.writeGob(indexFile, snap.Index); err != nil {
		return err
	}
	if err := s.writeJSON(manifestFile, snap.Manifest); err != nil {
		return err
	}

	s.logger.Info("index saved", "dir", s.dir, "chunks", len(snap.Texts), "model", snap.Manifest.Model)
	return nil
}

// Load reads the scope. ok is false when the scope is absent or unusable;
// err carries the reason for logging but callers treat both the same way.
func (s *Store) Load() (snap *Snapshot, ok bool, err error) {
	snap = &Snapshot{}

	if err := s.readJSON(manifestFile, &snap.Manifest); err != nil {
		return nil, false, err
	}
	if err := s.readGob(embeddingsFile, &snap.Embeddings); err != nil {
		return nil, false, err
	}
	if snap.Texts, err = s.readTexts(); err != nil {
		return nil, false, err
	}
	if err := s.readJSON(metaFile, &snap.Meta); err != nil {
		return nil, false, err
	}
	var ix vecindex.Index
	if err := s.readGob(indexFile, &ix); err != nil {
		return nil, false, err
	}
	snap.Index = &ix

	if err := s.validate(snap); err != nil {
		return nil, false, err
	}
	return snap, true, nil
}

func (s *Store) validate(snap *Snapshot) error {
	n := len(snap.Embeddings)
	if len(snap.Texts) != n || len(snap.Meta) != n || snap.Index.Len() != n {
		return fmt.Errorf("%w in %s: %d embeddings, %d texts, %d meta, %d indexed",
			ErrInconsistent, s.dir, n, len(snap.Texts), len(snap.Meta), snap.Index.Len())
	}
	if snap.Manifest.Chunks != n {
		return fmt.Errorf("%w in %s: manifest says %d chunks, found %d",
			ErrInconsistent, s.dir, snap.Manifest.Chunks, n)
	}
	if n > 0 && (len(snap.Embeddings[0]) != snap.Manifest.Dimension || snap.Index.Dimension != snap.Manifest.Dimension) {
		return fmt.Errorf("%w in %s: manifest dimension %d, embeddings %d, index %d",
			ErrInconsistent, s.dir, snap.Manifest.Dimension, len(snap.Embeddings[0]), snap.Index.Dimension)
	}
	return nil
}

// CheckModel rejects a snapshot embedded under a different model or width
// than the live embedder produces.
func (snap *Snapshot) CheckModel(model string, dimension int) error {
	if snap.Manifest.Model != model || snap.Manifest.Dimension != dimension {
		return fmt.Errorf("%w: index built with %s/%d, embedder is %s/%d",
			ErrInconsistent, snap.Manifest.Model, snap.Manifest.Dimension, model, dimension)
	}
	return nil
}

// SaveGraph writes the knowledge graph beside the index artifacts. The graph
// is informational and does not gate scope availability.
func (s *Store) SaveGraph(graph any) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	return s.writeJSON(graphFile, graph)
}

// LoadGraph decodes the knowledge graph into v.
func (s *Store) LoadGraph(v any) error {
	return s.readJSON(graphFile, v)
}

func (s *Store) writeAtomic(name string, write func(*os.File) error) error {
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", name, err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		return fmt.Errorf("rename %s: %w", name, err)
	}
	return nil
}

func (s *Store) writeGob(name string, v any) error {
	return s.writeAtomic(name, func(f *os.File) error {
		return gob.NewEncoder(f).Encode(v)
	})
}

func (s *Store) writeJSON(name string, v any) error {
	return s.writeAtomic(name, func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

func (s *Store) writeTexts(texts []string) error {
	return s.writeAtomic(textsFile, func(f *os.File) error {
		w := bufio.NewWriter(f)
		enc := json.NewEncoder(w)
		for i, t := range texts {
			if err := enc.Encode(textRecord{ID: i, Text: t}); err != nil {
				return err
			}
		}
		return w.Flush()
	})
}

func (s *Store) readGob(name string, v any) error {
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (s *Store) readJSON(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (s *Store) readTexts() ([]string, error) {
	f, err := os.Open(filepath.Join(s.dir, textsFile))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", textsFile, err)
	}
	defer f.Close()

	var texts []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var rec textRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return nil, fmt.Errorf("decode %s line %d: %w", textsFile, len(texts)+1, err)
		}
		texts = append(texts, rec.Text)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", textsFile, err)
	}
	return texts, nil
}
