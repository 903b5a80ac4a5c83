package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"toolgate/internal/embedding"
	"toolgate/internal/logging"
	"toolgate/pkg/models"
)

// Index holds the current universe of selectable tools and skills with
// their description embeddings. Readers (the selector, on every turn) get
// an immutable snapshot; registration swaps in a fresh snapshot
// atomically, so a concurrent reload never exposes a half-updated view.
//
// The index holds no persistent state. The plugin registry rebuilds it
// from scratch on process start and on hot-reload.
type Index struct {
	embedder embedding.Embedder

	// writeMu serializes writers only; readers go through the pointer.
	writeMu sync.Mutex
	current atomic.Pointer[snapshot]
}

// snapshot is an immutable view of the index. entries maps id to
// descriptor; ordered is sorted by id for deterministic listing.
type snapshot struct {
	entries map[string]models.CatalogEntry
	ordered []models.CatalogEntry
}

// New creates an empty index. The embedder fills in vectors for entries
// registered without one.
func New(embedder embedding.Embedder) *Index {
	idx := &Index{embedder: embedder}
	idx.current.Store(&snapshot{entries: map[string]models.CatalogEntry{}})
	return idx
}

// Register upserts the given entries. An entry with an id already present
// replaces the old one. Entries arriving without an embedding get one
// computed from their description; if embedding fails the entry is still
// registered (it stays reachable through the core set, it just never
// ranks by similarity).
func (idx *Index) Register(ctx context.Context, entries ...models.CatalogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	// Compute missing vectors before taking the write lock; the embedding
	// round trip must not stall readers or other writers.
	var missing []models.CatalogEntry
	var texts []string
	for _, e := range entries {
		if len(e.Vector()) == 0 && e.EntryDescription() != "" {
			missing = append(missing, e)
			texts = append(texts, e.EntryDescription())
		}
	}
	if len(missing) > 0 {
		vecs, err := idx.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			logging.Error("catalog: embedding %d descriptions failed: %v", len(missing), err)
		} else {
			for i, e := range missing {
				setVector(e, vecs[i])
			}
		}
	}

	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	next := idx.cloneLocked()
	for _, e := range entries {
		if e.EntryID() == "" {
			return fmt.Errorf("catalog entry with empty id")
		}
		next.entries[e.EntryID()] = e
	}
	next.reorder()
	idx.current.Store(next)
	return nil
}

// Remove drops the entries with the given ids. Absent ids are a no-op.
func (idx *Index) Remove(ids ...string) {
	if len(ids) == 0 {
		return
	}
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	next := idx.cloneLocked()
	for _, id := range ids {
		delete(next.entries, id)
	}
	next.reorder()
	idx.current.Store(next)
}

// Get returns the entry with the given id.
func (idx *Index) Get(id string) (models.CatalogEntry, bool) {
	e, ok := idx.current.Load().entries[id]
	return e, ok
}

// Tool returns the tool descriptor with the given id, or false when the id
// is absent or names a skill.
func (idx *Index) Tool(id string) (*models.ToolDescriptor, bool) {
	e, ok := idx.current.Load().entries[id]
	if !ok {
		return nil, false
	}
	t, ok := e.(*models.ToolDescriptor)
	return t, ok
}

// All returns every entry, sorted by id. The returned slice is shared with
// the snapshot and must not be mutated.
func (idx *Index) All() []models.CatalogEntry {
	return idx.current.Load().ordered
}

// Len returns the number of registered entries.
func (idx *Index) Len() int {
	return len(idx.current.Load().entries)
}

func (idx *Index) cloneLocked() *snapshot {
	cur := idx.current.Load()
	next := &snapshot{entries: make(map[string]models.CatalogEntry, len(cur.entries)+1)}
	for id, e := range cur.entries {
		next.entries[id] = e
	}
	return next
}

func (s *snapshot) reorder() {
	s.ordered = make([]models.CatalogEntry, 0, len(s.entries))
	for _, e := range s.entries {
		s.ordered = append(s.ordered, e)
	}
	sort.Slice(s.ordered, func(i, j int) bool {
		return s.ordered[i].EntryID() < s.ordered[j].EntryID()
	})
}

func setVector(e models.CatalogEntry, vec []float32) {
	switch d := e.(type) {
	case *models.ToolDescriptor:
		d.Embedding = vec
	case *models.SkillDescriptor:
		d.Embedding = vec
	}
}
