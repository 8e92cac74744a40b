package transaction

import "errors"

// OperationKind classifies a staged or committed document change.
type OperationKind int

const (
	Added OperationKind = iota
	Modified
	Removed
)

func (k OperationKind) String() string {
	switch k {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// State is the read/write phase of a transaction. The transition is one
// way: the first staged write moves the transaction from Reading to
// Writing and reads are rejected from then on.
type State int

const (
	Reading State = iota
	Writing
)

func (s State) String() string {
	switch s {
	case Reading:
		return "reading"
	case Writing:
		return "writing"
	default:
		return "unknown"
	}
}

// Status tracks the transaction lifecycle across commit and rollback.
type Status int

const (
	Active Status = iota
	Committed
	RolledBack
)

func (s Status) String() string {
	switch s {
	case Active:
		return "active"
	case Committed:
		return "committed"
	case RolledBack:
		return "rolled back"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time view of a document.
type Snapshot struct {
	Ref    DocumentHandle
	Data   map[string]any
	Exists bool
}

// ChangeDescriptor is the result of committing one staged path: the
// resulting snapshot data, the effective change kind, and the document's
// index within its collection's ordered view before the change (-1 when
// the document was not present).
type ChangeDescriptor struct {
	Doc      DocumentHandle
	Data     map[string]any
	Kind     OperationKind
	OldIndex int
}

// SetOption controls how Set treats existing document data.
type SetOption struct {
	Merge bool
}

// MergeAll makes Set merge the payload over existing data, top-level
// keys only, instead of replacing the document.
var MergeAll = SetOption{Merge: true}

// DocumentHandle is the capability a transaction needs from a document.
// CurrentData must return a shallow copy; the transaction mutates what
// it is given.
type DocumentHandle interface {
	Path() string
	CurrentData() (map[string]any, bool)
	StageAsSet(base, payload map[string]any, merge bool) map[string]any
	StageAsUpdate(base, partial map[string]any) map[string]any
	CommitChange(kind OperationKind, data map[string]any) (ChangeDescriptor, error)
	NotifyChange(kind OperationKind, oldIndex int, fromCache bool)
}

// CollectionHandle receives one batched notification per commit covering
// every change in that collection, in staging order.
type CollectionHandle interface {
	NotifyBatchChange(changes []ChangeDescriptor)
}

// DocumentStore resolves paths to handles.
type DocumentStore interface {
	ResolveDocument(path string) (DocumentHandle, error)
	ResolveCollection(path string) (CollectionHandle, error)
}

// ValidationError reports a misuse of the transaction API detected at
// staging time. It surfaces immediately and mutates no transaction state.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

var (
	// ErrReadAfterWrite is returned by Get once any write has been staged.
	ErrReadAfterWrite = &ValidationError{Msg: "transaction: reads must precede writes"}

	// ErrNotImplemented is returned by Update when called with the
	// field-path/value argument form.
	ErrNotImplemented = errors.New("transaction: field-path updates are not implemented")

	// ErrNotActive is returned by Commit on an already committed or
	// rolled back transaction.
	ErrNotActive = errors.New("transaction: transaction is not active")
)
