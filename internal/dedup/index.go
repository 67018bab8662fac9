package dedup

import (
	"sync"

	"github.com/google/uuid"

	"github.com/gioe/aiq/internal/question"
)

// Entry is one question known to the index.
type Entry struct {
	ID   uuid.UUID
	Type question.QuestionType
	Hash string

	// Embedding is nil when it could not be computed; the entry then only
	// takes part in exact matching.
	Embedding []float32
}

// View is the read side of the index used by Check.
type View interface {
	LookupHash(hash string) (uuid.UUID, bool)
	Entries(t question.QuestionType) []Entry
}

// Index holds the exact-hash map and per-type embeddings of active
// questions. Reads take a shared lock; Add, Remove and Claim take the
// exclusive lock.
type Index struct {
	mu     sync.RWMutex
	hashes map[string]uuid.UUID
	byType map[question.QuestionType][]Entry
	types  map[uuid.UUID]question.QuestionType
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		hashes: make(map[string]uuid.UUID),
		byType: make(map[question.QuestionType][]Entry),
		types:  make(map[uuid.UUID]question.QuestionType),
	}
}

// Add inserts e, replacing an entry with the same ID.
func (x *Index) Add(e Entry) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.add(e)
}

func (x *Index) add(e Entry) {
	if _, ok := x.types[e.ID]; ok {
		x.remove(e.ID)
	}
	x.hashes[e.Hash] = e.ID
	x.byType[e.Type] = append(x.byType[e.Type], e)
	x.types[e.ID] = e.Type
}

// Remove deletes the entry with id, if present.
func (x *Index) Remove(id uuid.UUID) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.remove(id)
}

func (x *Index) remove(id uuid.UUID) {
	t, ok := x.types[id]
	if !ok {
		return
	}
	delete(x.types, id)
	entries := x.byType[t]
	for i, e := range entries {
		if e.ID != id {
			continue
		}
		if x.hashes[e.Hash] == id {
			delete(x.hashes, e.Hash)
		}
		x.byType[t] = append(entries[:i:i], entries[i+1:]...)
		return
	}
}

// Len returns the number of entries.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.types)
}

// LookupHash returns the ID of the question with the given text hash.
func (x *Index) LookupHash(hash string) (uuid.UUID, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	id, ok := x.hashes[hash]
	return id, ok
}

// Entries returns a snapshot of the entries of type t.
func (x *Index) Entries(t question.QuestionType) []Entry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]Entry, len(x.byType[t]))
	copy(out, x.byType[t])
	return out
}

// lockedView reads the index while the caller holds the write lock.
type lockedView struct{ x *Index }

func (v lockedView) LookupHash(hash string) (uuid.UUID, bool) {
	id, ok := v.x.hashes[hash]
	return id, ok
}

func (v lockedView) Entries(t question.QuestionType) []Entry { return v.x.byType[t] }
