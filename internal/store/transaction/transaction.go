package transaction

import (
	log "FolioDb/internal/logger"
	"strings"

	"github.com/google/uuid"
)

// Transaction stages reads, writes, merges and deletes against document
// paths and applies them atomically on Commit. Reads must all happen
// before the first write. A transaction is single-use: once committed or
// rolled back it refuses further commits.
//
// There is no locking between concurrent transactions touching the same
// path; two transactions can stage conflicting writes and both will
// apply at the store layer. Correctness across transactions is the
// store's responsibility.
type Transaction struct {
	id     string
	store  DocumentStore
	state  State
	status Status
	logger *log.Logger

	// staged writes keyed by document path, with paths kept in first
	// insertion order. A later write to a path overwrites its slot but
	// never moves it.
	paths  []string
	staged map[string]stagedWrite
}

// stagedWrite is one pending operation. data is nil and exists false for
// a delete. hadPrior records whether the document existed before this
// transaction first touched the path, so the operation kind stays
// derived from the pre-transaction state no matter how often the slot is
// overwritten.
type stagedWrite struct {
	data     map[string]any
	exists   bool
	kind     OperationKind
	hadPrior bool
}

func New(store DocumentStore) *Transaction {
	return &Transaction{
		id:     uuid.NewString(),
		store:  store,
		state:  Reading,
		status: Active,
		logger: log.Get("store"),
		staged: make(map[string]stagedWrite),
	}
}

func (tx *Transaction) ID() string {
	return tx.id
}

func (tx *Transaction) State() State {
	return tx.state
}

func (tx *Transaction) Status() Status {
	return tx.status
}

// Get returns the current, pre-transaction snapshot of the document.
// Staged-but-uncommitted data from this same transaction is not
// reflected; the read bypasses the staging buffer entirely.
func (tx *Transaction) Get(doc DocumentHandle) (Snapshot, error) {
	if tx.state == Writing {
		return Snapshot{}, ErrReadAfterWrite
	}

	data, exists := doc.CurrentData()
	return Snapshot{Ref: doc, Data: data, Exists: exists}, nil
}

// Set stages a full write of data to the document. With MergeAll the
// payload is merged over the current value, top-level keys only;
// otherwise the payload replaces it.
func (tx *Transaction) Set(doc DocumentHandle, data map[string]any, opts ...SetOption) *Transaction {
	tx.state = Writing

	merge := false
	for _, opt := range opts {
		if opt.Merge {
			merge = true
		}
	}

	path := doc.Path()
	base, hadPrior := tx.baseData(doc)

	kind := Added
	if hadPrior {
		kind = Modified
	}

	staged := doc.StageAsSet(base, data, merge)
	tx.stage(path, stagedWrite{data: staged, exists: true, kind: kind, hadPrior: hadPrior})

	tx.logger.Debug("Transaction %s staged %s for %s", tx.id, kind, path)
	return tx
}

// Update stages a partial update. dataOrField must be a whole-document
// partial payload (map form); the field-path/value call form is not
// implemented and fails rather than silently succeeding. Updates assume
// the target document exists, so the staged kind is always Modified; no
// existence check happens at staging time.
func (tx *Transaction) Update(doc DocumentHandle, dataOrField any, fieldsAndValues ...any) (*Transaction, error) {
	partial, ok := dataOrField.(map[string]any)
	if !ok || len(fieldsAndValues) > 0 {
		return tx, ErrNotImplemented
	}

	tx.state = Writing

	path := doc.Path()
	base, hadPrior := tx.baseData(doc)

	staged := doc.StageAsUpdate(base, partial)
	tx.stage(path, stagedWrite{data: staged, exists: true, kind: Modified, hadPrior: hadPrior})

	tx.logger.Debug("Transaction %s staged update for %s", tx.id, path)
	return tx, nil
}

// Delete stages removal of the document, unconditionally overwriting any
// prior staged value for the path.
func (tx *Transaction) Delete(doc DocumentHandle) *Transaction {
	tx.state = Writing

	path := doc.Path()
	_, hadPrior := tx.baseData(doc)

	tx.stage(path, stagedWrite{data: nil, exists: false, kind: Removed, hadPrior: hadPrior})

	tx.logger.Debug("Transaction %s staged removal of %s", tx.id, path)
	return tx
}

// Commit applies every staged operation in first-insertion order, groups
// the resulting change descriptors by owning collection, fires each
// document's own change notification in staging order, then fires one
// batched notification per collection. Any failure triggers Rollback and
// the original error is returned unchanged; documents committed before
// the failure are not undone.
func (tx *Transaction) Commit() error {
	if tx.status != Active {
		return ErrNotActive
	}

	tx.logger.Info("Committing transaction %s with %d staged operations", tx.id, len(tx.paths))

	byCollection := make(map[string][]ChangeDescriptor)
	var collectionOrder []string

	for _, path := range tx.paths {
		doc, err := tx.store.ResolveDocument(path)
		if err != nil {
			tx.Rollback()
			return err
		}

		staged := tx.staged[path]
		change, err := doc.CommitChange(staged.kind, staged.data)
		if err != nil {
			tx.logger.Error("Transaction %s failed to commit %s: %v", tx.id, path, err)
			tx.Rollback()
			return err
		}

		collectionPath := parentPath(path)
		if _, seen := byCollection[collectionPath]; !seen {
			collectionOrder = append(collectionOrder, collectionPath)
		}
		byCollection[collectionPath] = append(byCollection[collectionPath], change)
	}

	for _, collectionPath := range collectionOrder {
		collection, err := tx.store.ResolveCollection(collectionPath)
		if err != nil {
			tx.Rollback()
			return err
		}

		changes := byCollection[collectionPath]
		for _, change := range changes {
			change.Doc.NotifyChange(change.Kind, change.OldIndex, false)
		}
		collection.NotifyBatchChange(changes)
	}

	tx.status = Committed
	tx.logger.Info("Transaction %s committed", tx.id)
	return nil
}

// Rollback signals that the commit failed. It performs no compensating
// undo of documents already committed; the store owns any such recovery.
// Calling it again after the transaction left the Active state is a
// no-op.
func (tx *Transaction) Rollback() {
	if tx.status != Active {
		return
	}

	tx.status = RolledBack
	tx.logger.Info("Transaction %s rolled back", tx.id)
}

// baseData returns the data a new staged operation builds on: the staged
// value when the path was already touched, otherwise a copy of the
// document's stored data. The boolean reports pre-transaction existence,
// not the presence of staged data.
func (tx *Transaction) baseData(doc DocumentHandle) (map[string]any, bool) {
	if staged, ok := tx.staged[doc.Path()]; ok {
		return staged.data, staged.hadPrior
	}

	data, exists := doc.CurrentData()
	return data, exists
}

// stage records a write for path, keeping the path's first-insertion
// position when the slot already exists.
func (tx *Transaction) stage(path string, write stagedWrite) {
	if _, ok := tx.staged[path]; !ok {
		tx.paths = append(tx.paths, path)
	}
	tx.staged[path] = write
}

// parentPath is the owning collection of a document path: everything
// before the final separator.
func parentPath(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return ""
	}
	return path[:idx]
}
