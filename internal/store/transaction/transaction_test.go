package transaction

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
)

// fakeDoc implements DocumentHandle and records every commit and
// notification it receives.
type fakeDoc struct {
	path      string
	data      map[string]any
	exists    bool
	commitErr error
	oldIndex  int

	commits []committedOp
	notices []notice
}

type committedOp struct {
	kind OperationKind
	data map[string]any
}

type notice struct {
	kind      OperationKind
	oldIndex  int
	fromCache bool
}

func (d *fakeDoc) Path() string { return d.path }

func (d *fakeDoc) CurrentData() (map[string]any, bool) {
	if !d.exists {
		return nil, false
	}
	out := make(map[string]any, len(d.data))
	for k, v := range d.data {
		out[k] = v
	}
	return out, true
}

func (d *fakeDoc) StageAsSet(base, payload map[string]any, merge bool) map[string]any {
	if !merge {
		out := make(map[string]any, len(payload))
		for k, v := range payload {
			out[k] = v
		}
		return out
	}
	return d.StageAsUpdate(base, payload)
}

func (d *fakeDoc) StageAsUpdate(base, partial map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(partial))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range partial {
		out[k] = v
	}
	return out
}

func (d *fakeDoc) CommitChange(kind OperationKind, data map[string]any) (ChangeDescriptor, error) {
	if d.commitErr != nil {
		return ChangeDescriptor{}, d.commitErr
	}
	d.commits = append(d.commits, committedOp{kind: kind, data: data})
	return ChangeDescriptor{Doc: d, Data: data, Kind: kind, OldIndex: d.oldIndex}, nil
}

func (d *fakeDoc) NotifyChange(kind OperationKind, oldIndex int, fromCache bool) {
	d.notices = append(d.notices, notice{kind: kind, oldIndex: oldIndex, fromCache: fromCache})
}

// fakeCollection implements CollectionHandle and records each batch.
type fakeCollection struct {
	batches [][]ChangeDescriptor
}

func (c *fakeCollection) NotifyBatchChange(changes []ChangeDescriptor) {
	c.batches = append(c.batches, changes)
}

// fakeStore resolves paths to pre-registered handles.
type fakeStore struct {
	docs        map[string]*fakeDoc
	collections map[string]*fakeCollection
}

func newFakeStore(docs ...*fakeDoc) *fakeStore {
	s := &fakeStore{
		docs:        make(map[string]*fakeDoc),
		collections: make(map[string]*fakeCollection),
	}
	for _, d := range docs {
		s.docs[d.path] = d
	}
	return s
}

func (s *fakeStore) ResolveDocument(path string) (DocumentHandle, error) {
	d, ok := s.docs[path]
	if !ok {
		return nil, fmt.Errorf("no document at %s", path)
	}
	return d, nil
}

func (s *fakeStore) ResolveCollection(path string) (CollectionHandle, error) {
	c, ok := s.collections[path]
	if !ok {
		c = &fakeCollection{}
		s.collections[path] = c
	}
	return c, nil
}

func TestReadBeforeWrite(t *testing.T) {
	doc := &fakeDoc{path: "users/alice", data: map[string]any{"name": "Alice"}, exists: true}
	tx := New(newFakeStore(doc))

	snap, err := tx.Get(doc)
	if err != nil {
		t.Fatalf("Get before any write failed: %v", err)
	}
	if !snap.Exists || snap.Data["name"] != "Alice" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	tx.Set(doc, map[string]any{"name": "Bob"})

	if _, err := tx.Get(doc); err == nil {
		t.Fatal("expected Get after Set to fail")
	} else {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Fatalf("expected ValidationError, got %T: %v", err, err)
		}
	}
}

func TestStagedOverwriteKeepsOriginalKind(t *testing.T) {
	// Document absent before the transaction: a second Set to the same
	// path must leave one staged slot, value B, kind still Added.
	doc := &fakeDoc{path: "users/carol", oldIndex: -1}
	store := newFakeStore(doc)
	tx := New(store)

	tx.Set(doc, map[string]any{"v": "A"}).Set(doc, map[string]any{"v": "B"})

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if len(doc.commits) != 1 {
		t.Fatalf("expected 1 committed operation, got %d", len(doc.commits))
	}
	if doc.commits[0].kind != Added {
		t.Errorf("expected kind added, got %s", doc.commits[0].kind)
	}
	if doc.commits[0].data["v"] != "B" {
		t.Errorf("expected staged value B, got %v", doc.commits[0].data["v"])
	}
}

func TestSetOnExistingDocumentIsModified(t *testing.T) {
	doc := &fakeDoc{path: "users/alice", data: map[string]any{"name": "Alice"}, exists: true}
	tx := New(newFakeStore(doc))

	tx.Set(doc, map[string]any{"name": "Alicia"})
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if len(doc.commits) != 1 || doc.commits[0].kind != Modified {
		t.Fatalf("expected one modified commit, got %+v", doc.commits)
	}
}

func TestSetMergeVersusReplace(t *testing.T) {
	existing := map[string]any{"a": 0, "c": 3}

	t.Run("merge", func(t *testing.T) {
		doc := &fakeDoc{path: "items/x", data: existing, exists: true}
		tx := New(newFakeStore(doc))
		tx.Set(doc, map[string]any{"a": 1, "b": 2}, MergeAll)
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
		want := map[string]any{"a": 1, "b": 2, "c": 3}
		if !reflect.DeepEqual(doc.commits[0].data, want) {
			t.Errorf("expected merged data %v, got %v", want, doc.commits[0].data)
		}
	})

	t.Run("replace", func(t *testing.T) {
		doc := &fakeDoc{path: "items/x", data: existing, exists: true}
		tx := New(newFakeStore(doc))
		tx.Set(doc, map[string]any{"a": 1, "b": 2})
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit failed: %v", err)
		}
		want := map[string]any{"a": 1, "b": 2}
		if !reflect.DeepEqual(doc.commits[0].data, want) {
			t.Errorf("expected replacement data %v, got %v", want, doc.commits[0].data)
		}
	})
}

func TestDeleteDominatesPriorWrites(t *testing.T) {
	doc := &fakeDoc{path: "users/alice", data: map[string]any{"name": "Alice"}, exists: true}
	tx := New(newFakeStore(doc))

	tx.Set(doc, map[string]any{"name": "Alicia"}).Delete(doc)

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if len(doc.commits) != 1 {
		t.Fatalf("expected 1 committed operation, got %d", len(doc.commits))
	}
	if doc.commits[0].kind != Removed {
		t.Errorf("expected kind removed, got %s", doc.commits[0].kind)
	}
	if doc.commits[0].data != nil {
		t.Errorf("expected absent staged value, got %v", doc.commits[0].data)
	}
}

func TestCommitGroupsChangesByCollection(t *testing.T) {
	p1 := &fakeDoc{path: "c1/a", oldIndex: -1}
	p2 := &fakeDoc{path: "c2/b", oldIndex: -1}
	p3 := &fakeDoc{path: "c1/c", oldIndex: -1}
	store := newFakeStore(p1, p2, p3)
	tx := New(store)

	tx.Set(p1, map[string]any{"n": 1}).
		Set(p2, map[string]any{"n": 2}).
		Set(p3, map[string]any{"n": 3})

	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	c1 := store.collections["c1"]
	c2 := store.collections["c2"]
	if len(c1.batches) != 1 || len(c2.batches) != 1 {
		t.Fatalf("expected one batch per collection, got c1=%d c2=%d", len(c1.batches), len(c2.batches))
	}
	if got := len(c1.batches[0]); got != 2 {
		t.Fatalf("expected 2 changes in c1 batch, got %d", got)
	}
	if c1.batches[0][0].Doc.Path() != "c1/a" || c1.batches[0][1].Doc.Path() != "c1/c" {
		t.Errorf("c1 batch out of order: %s then %s",
			c1.batches[0][0].Doc.Path(), c1.batches[0][1].Doc.Path())
	}
	if len(c2.batches[0]) != 1 || c2.batches[0][0].Doc.Path() != "c2/b" {
		t.Errorf("unexpected c2 batch: %+v", c2.batches[0])
	}

	// Per-document notifications fire with fromCache always false.
	for _, doc := range []*fakeDoc{p1, p2, p3} {
		if len(doc.notices) != 1 {
			t.Fatalf("%s: expected 1 notification, got %d", doc.path, len(doc.notices))
		}
		if doc.notices[0].fromCache {
			t.Errorf("%s: notification flagged as from cache", doc.path)
		}
	}
}

func TestCommitFailureTriggersRollback(t *testing.T) {
	boom := errors.New("disk on fire")
	ok := &fakeDoc{path: "c1/a", oldIndex: -1}
	bad := &fakeDoc{path: "c1/b", oldIndex: -1, commitErr: boom}
	store := newFakeStore(ok, bad)
	tx := New(store)

	tx.Set(ok, map[string]any{"n": 1}).Set(bad, map[string]any{"n": 2})

	err := tx.Commit()
	if !errors.Is(err, boom) {
		t.Fatalf("expected the underlying commit error, got %v", err)
	}
	if tx.Status() != RolledBack {
		t.Errorf("expected status rolled back, got %s", tx.Status())
	}

	// No undo of the document committed before the failure, and no
	// notifications at all.
	if len(ok.commits) != 1 {
		t.Errorf("expected first document to stay committed, got %d commits", len(ok.commits))
	}
	if len(ok.notices) != 0 || len(store.collections) != 0 {
		t.Errorf("expected no notifications after a failed commit")
	}

	// A second Rollback is a no-op, and the transaction refuses to
	// commit again.
	tx.Rollback()
	if tx.Status() != RolledBack {
		t.Errorf("expected status to stay rolled back, got %s", tx.Status())
	}
	if err := tx.Commit(); !errors.Is(err, ErrNotActive) {
		t.Errorf("expected ErrNotActive on re-commit, got %v", err)
	}
}

func TestEmptyTransactionCommits(t *testing.T) {
	store := newFakeStore()
	tx := New(store)

	if err := tx.Commit(); err != nil {
		t.Fatalf("empty Commit failed: %v", err)
	}
	if tx.Status() != Committed {
		t.Errorf("expected status committed, got %s", tx.Status())
	}
	if len(store.collections) != 0 {
		t.Errorf("expected zero collection notifications, got %d", len(store.collections))
	}
}

func TestUpdateFieldPathFormNotImplemented(t *testing.T) {
	doc := &fakeDoc{path: "users/alice", data: map[string]any{"age": 30}, exists: true}
	tx := New(newFakeStore(doc))

	if _, err := tx.Update(doc, "age", 31); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented for field-path form, got %v", err)
	}
	if _, err := tx.Update(doc, map[string]any{"age": 31}, "extra", 1); !errors.Is(err, ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented for extra pairs, got %v", err)
	}

	// The rejected call staged nothing and left reads permitted.
	if _, err := tx.Get(doc); err != nil {
		t.Fatalf("Get after rejected update failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if len(doc.commits) != 0 {
		t.Errorf("expected no committed operations, got %d", len(doc.commits))
	}
}

func TestUpdateStagesModified(t *testing.T) {
	// Updates assume the document exists; even on an absent document the
	// staged kind is modified.
	doc := &fakeDoc{path: "users/ghost", oldIndex: -1}
	tx := New(newFakeStore(doc))

	if _, err := tx.Update(doc, map[string]any{"seen": true}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if len(doc.commits) != 1 || doc.commits[0].kind != Modified {
		t.Fatalf("expected one modified commit, got %+v", doc.commits)
	}
}

func TestConcurrentTransactions(t *testing.T) {
	// Independent transactions must be safe to create and commit in
	// parallel; they share no state beyond the logger registry.
	const workers = 8
	var wg sync.WaitGroup
	errCh := make(chan error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			doc := &fakeDoc{path: fmt.Sprintf("c/%d", n), oldIndex: -1}
			tx := New(newFakeStore(doc))
			tx.Set(doc, map[string]any{"n": n})
			if err := tx.Commit(); err != nil {
				errCh <- err
			}
		}(i)
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Errorf("concurrent commit failed: %v", err)
	}
}

func TestUpdateOverlaysBase(t *testing.T) {
	doc := &fakeDoc{path: "users/alice", data: map[string]any{"name": "Alice", "age": 30}, exists: true}
	tx := New(newFakeStore(doc))

	if _, err := tx.Update(doc, map[string]any{"age": 31}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	want := map[string]any{"name": "Alice", "age": 31}
	if !reflect.DeepEqual(doc.commits[0].data, want) {
		t.Errorf("expected %v, got %v", want, doc.commits[0].data)
	}
}
