package repl

import (
	log "FolioDb/internal/logger"
	"FolioDb/internal/store"
	"FolioDb/internal/store/transaction"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
)

var (
	pathColor = color.New(color.FgCyan)
	okColor   = color.New(color.FgGreen)
	goneColor = color.New(color.FgYellow)
)

// Executor runs parsed commands against a store. Between begin and
// commit/rollback the writes go through one shared transaction, so the
// REPL surfaces the engine's real staging rules (reads before writes,
// delete dominance, per-collection notification batches).
type Executor struct {
	store *store.Store
	tx    *transaction.Transaction

	// AllowTransactions gates begin/commit/rollback. The HTTP /exec
	// endpoint turns it off since its executors live for one request.
	AllowTransactions bool
}

func NewExecutor(st *store.Store) *Executor {
	return &Executor{store: st, AllowTransactions: true}
}

// Execute parses and runs one command line, returning the output text.
func (e *Executor) Execute(line string) (string, error) {
	cmd, err := Parse(line)
	if err != nil {
		return "", err
	}

	log.Get("repl").Debug("Executing command: %s", cmd.Verb)

	switch cmd.Verb {
	case Help:
		return helpText(), nil
	case Begin:
		return e.begin()
	case Commit:
		return e.commit()
	case Rollback:
		return e.rollback()
	case Get:
		return e.get(cmd.Path)
	case List:
		return e.list(cmd.Path)
	case Set:
		return e.set(cmd.Path, cmd.Payload, false)
	case Merge:
		return e.set(cmd.Path, cmd.Payload, true)
	case Update:
		return e.update(cmd.Path, cmd.Payload)
	case Delete:
		return e.delete(cmd.Path)
	default:
		return "", fmt.Errorf("unknown command %q", cmd.Verb)
	}
}

func (e *Executor) begin() (string, error) {
	if !e.AllowTransactions {
		return "", fmt.Errorf("transactions are not available here; use the /tx endpoint")
	}
	if e.tx != nil {
		return "", fmt.Errorf("transaction %s is already open", e.tx.ID())
	}
	e.tx = transaction.New(e.store)
	return okColor.Sprintf("Transaction %s started", e.tx.ID()), nil
}

func (e *Executor) commit() (string, error) {
	if e.tx == nil {
		return "", fmt.Errorf("no open transaction")
	}
	tx := e.tx
	e.tx = nil
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return okColor.Sprintf("Transaction %s committed", tx.ID()), nil
}

func (e *Executor) rollback() (string, error) {
	if e.tx == nil {
		return "", fmt.Errorf("no open transaction")
	}
	tx := e.tx
	e.tx = nil
	tx.Rollback()
	return goneColor.Sprintf("Transaction %s rolled back", tx.ID()), nil
}

func (e *Executor) get(path string) (string, error) {
	var snap transaction.Snapshot
	var err error
	if e.tx != nil {
		var doc *store.Document
		doc, err = e.store.Doc(path)
		if err == nil {
			snap, err = e.tx.Get(doc)
		}
	} else {
		snap, err = e.store.Get(path)
	}
	if err != nil {
		return "", err
	}
	return formatSnapshot(path, snap), nil
}

func (e *Executor) list(path string) (string, error) {
	coll, err := e.store.Collection(path)
	if err != nil {
		return "", err
	}

	snaps := coll.Snapshot()
	if len(snaps) == 0 {
		return "Empty collection", nil
	}

	var sb strings.Builder
	for _, snap := range snaps {
		sb.WriteString(formatSnapshot(snap.Ref.Path(), snap))
		sb.WriteString("\n")
	}
	sb.WriteString(fmt.Sprintf("%d document(s)", len(snaps)))
	return sb.String(), nil
}

func (e *Executor) set(path string, payload map[string]any, merge bool) (string, error) {
	if e.tx != nil {
		doc, err := e.store.Doc(path)
		if err != nil {
			return "", err
		}
		if merge {
			e.tx.Set(doc, payload, transaction.MergeAll)
		} else {
			e.tx.Set(doc, payload)
		}
		return fmt.Sprintf("Staged set for %s", pathColor.Sprint(path)), nil
	}

	var err error
	if merge {
		err = e.store.Set(path, payload, transaction.MergeAll)
	} else {
		err = e.store.Set(path, payload)
	}
	if err != nil {
		return "", err
	}
	return okColor.Sprintf("Set %s", path), nil
}

func (e *Executor) update(path string, payload map[string]any) (string, error) {
	if e.tx != nil {
		doc, err := e.store.Doc(path)
		if err != nil {
			return "", err
		}
		if _, err := e.tx.Update(doc, payload); err != nil {
			return "", err
		}
		return fmt.Sprintf("Staged update for %s", pathColor.Sprint(path)), nil
	}

	if err := e.store.Update(path, payload); err != nil {
		return "", err
	}
	return okColor.Sprintf("Updated %s", path), nil
}

func (e *Executor) delete(path string) (string, error) {
	if e.tx != nil {
		doc, err := e.store.Doc(path)
		if err != nil {
			return "", err
		}
		e.tx.Delete(doc)
		return fmt.Sprintf("Staged delete for %s", pathColor.Sprint(path)), nil
	}

	if err := e.store.Delete(path); err != nil {
		return "", err
	}
	return goneColor.Sprintf("Deleted %s", path), nil
}

func formatSnapshot(path string, snap transaction.Snapshot) string {
	if !snap.Exists {
		return fmt.Sprintf("%s: %s", pathColor.Sprint(path), goneColor.Sprint("(absent)"))
	}

	data, err := json.MarshalIndent(snap.Data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%s: %v", pathColor.Sprint(path), snap.Data)
	}
	return fmt.Sprintf("%s: %s", pathColor.Sprint(path), data)
}

func helpText() string {
	return strings.TrimSpace(`
Commands:
  get <path>              read a document
  list <collection>       list a collection's documents in commit order
  set <path> <json>       write a document (replace)
  merge <path> <json>     write a document (merge top-level keys)
  update <path> <json>    partial update of an existing document
  delete <path>           remove a document
  begin                   open a transaction
  commit                  apply the open transaction
  rollback                discard the open transaction
  help                    this text
  exit                    leave the REPL
`)
}
