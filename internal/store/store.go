package store

import (
	log "FolioDb/internal/logger"
	"FolioDb/internal/store/transaction"
	"fmt"
	"strings"
	"sync"
)

// Store is an in-memory document store. Documents live at
// collection/docID paths (arbitrarily nested, the owning collection is
// everything before the final separator) and every collection keeps its
// documents in commit order for snapshot listeners.
//
// The store guards its maps with a single mutex so the HTTP server can
// share it across requests. It adds no locking between transactions:
// two transactions staging conflicting writes to the same path will
// both apply.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*Collection
}

func New() *Store {
	return &Store{
		collections: make(map[string]*Collection),
	}
}

// Doc resolves a document path to its handle, creating an empty
// (non-existent) document on first reference.
func (s *Store) Doc(path string) (*Document, error) {
	collectionPath, id, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	collection := s.collection(collectionPath)
	doc, ok := collection.byID[id]
	if !ok {
		doc = &Document{
			collection: collection,
			path:       path,
			listeners:  make(map[string]ChangeListener),
		}
		collection.byID[id] = doc
	}
	return doc, nil
}

// Collection resolves a collection path to its handle.
func (s *Store) Collection(path string) (*Collection, error) {
	if err := validatePath(path); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collection(path), nil
}

// ResolveDocument satisfies transaction.DocumentStore.
func (s *Store) ResolveDocument(path string) (transaction.DocumentHandle, error) {
	doc, err := s.Doc(path)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ResolveCollection satisfies transaction.DocumentStore.
func (s *Store) ResolveCollection(path string) (transaction.CollectionHandle, error) {
	collection, err := s.Collection(path)
	if err != nil {
		return nil, err
	}
	return collection, nil
}

// Get reads the current snapshot of a document.
func (s *Store) Get(path string) (transaction.Snapshot, error) {
	doc, err := s.Doc(path)
	if err != nil {
		return transaction.Snapshot{}, err
	}

	data, exists := doc.CurrentData()
	return transaction.Snapshot{Ref: doc, Data: data, Exists: exists}, nil
}

// Set writes a document outside any caller transaction. It runs through
// a single-operation transaction so listeners observe the same event
// stream for direct and transactional writes.
func (s *Store) Set(path string, data map[string]any, opts ...transaction.SetOption) error {
	doc, err := s.Doc(path)
	if err != nil {
		return err
	}
	return transaction.New(s).Set(doc, data, opts...).Commit()
}

// Update applies a partial payload to a document outside any caller
// transaction.
func (s *Store) Update(path string, partial map[string]any) error {
	doc, err := s.Doc(path)
	if err != nil {
		return err
	}

	tx, err := transaction.New(s).Update(doc, partial)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// Delete removes a document outside any caller transaction.
func (s *Store) Delete(path string) error {
	doc, err := s.Doc(path)
	if err != nil {
		return err
	}
	return transaction.New(s).Delete(doc).Commit()
}

// RunTransaction runs fn against a fresh transaction and commits it when
// fn returns nil. When fn reports an error the transaction is discarded
// uncommitted and the error returned unchanged.
func (s *Store) RunTransaction(fn func(tx *transaction.Transaction) error) error {
	tx := transaction.New(s)
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) collection(path string) *Collection {
	collection, ok := s.collections[path]
	if !ok {
		collection = &Collection{
			store:     s,
			path:      path,
			byID:      make(map[string]*Document),
			listeners: make(map[string]BatchListener),
		}
		s.collections[path] = collection
		log.Get("store").Debug("Created collection %s", path)
	}
	return collection
}

// splitPath breaks a document path into its owning collection path and
// document ID. A document path needs at least two segments.
func splitPath(path string) (collectionPath, id string, err error) {
	if err := validatePath(path); err != nil {
		return "", "", err
	}

	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "", "", fmt.Errorf("store: invalid document path %q: missing collection", path)
	}
	return path[:idx], path[idx+1:], nil
}

func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("store: path cannot be empty")
	}
	for _, segment := range strings.Split(path, "/") {
		if segment == "" {
			return fmt.Errorf("store: invalid path %q: empty segment", path)
		}
	}
	return nil
}

// copyData makes a shallow, top-level copy of document data.
func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}
