package server

import (
	"FolioDb/internal/config"
	l "FolioDb/internal/logger"
	"FolioDb/internal/repl"
	"FolioDb/internal/store"
	"FolioDb/internal/store/transaction"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	jsonpatch "github.com/evanphx/json-patch"
)

var logger *l.Logger
var st *store.Store

type execRequest struct {
	Command string `json:"command"`
}

type execResponse struct {
	Success bool   `json:"success"`
	Result  string `json:"result"`
}

type txOp struct {
	Op    string         `json:"op"` // set | update | delete
	Path  string         `json:"path"`
	Data  map[string]any `json:"data,omitempty"`
	Merge bool           `json:"merge,omitempty"`
}

type txRequest struct {
	Ops []txOp `json:"ops"`
}

type txResponse struct {
	Success bool `json:"success"`
	Applied int  `json:"applied"`
}

// StartServer serves the document API over HTTP until the listener
// fails. The store is shared with whatever else the process runs (REPL,
// tests); all request handling goes through the same transaction engine.
func StartServer(cfg *config.Config, s *store.Store) {
	logger = l.New("server", cfg.LogDir, l.ParseLevel(cfg.LogLevel))
	st = s

	mux := http.NewServeMux()

	// Health & readiness
	mux.HandleFunc("/health", health)

	// Single REPL command in autocommit mode
	// POST /exec {"command": "set users/alice {...}"}
	mux.HandleFunc("/exec", execHandler)

	// Document CRUD
	// GET    /docs/{path}              -> read snapshot
	// PUT    /docs/{path}[?merge=true] -> set (replace or merge)
	// PATCH  /docs/{path}              -> RFC 7386 merge patch
	// DELETE /docs/{path}              -> remove
	mux.HandleFunc("/docs/", docResourceHandler)

	// GET /collections/{path} -> ordered listing
	mux.HandleFunc("/collections/", collectionHandler)

	// POST /tx -> staged operations applied in one transaction
	mux.HandleFunc("/tx", txHandler)

	// Optional metrics endpoint
	mux.HandleFunc("/metrics", metricsHandler)

	server := &http.Server{Addr: cfg.Addr, Handler: mux}
	err := server.ListenAndServe()
	if err != nil {
		panic(err)
	}
}

// health returns 200 OK for liveness checks
func health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// execHandler runs one REPL command in autocommit mode
func execHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		logger.Error("Invalid method used: %s", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req execRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("Failed to decode request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	executor := repl.NewExecutor(st)
	executor.AllowTransactions = false

	result, err := executor.Execute(req.Command)
	if err != nil {
		logger.Error("Failed to execute command: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, execResponse{Success: true, Result: result})
}

// docResourceHandler handles /docs/{path}
func docResourceHandler(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/docs/")

	switch r.Method {
	case http.MethodGet:
		snap, err := st.Get(path)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !snap.Exists {
			http.Error(w, fmt.Sprintf("no document at %s", path), http.StatusNotFound)
			return
		}
		writeJSON(w, snap.Data)

	case http.MethodPut:
		var data map[string]any
		if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
			logger.Error("Failed to decode document body: %v", err)
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		var err error
		if r.URL.Query().Get("merge") == "true" {
			err = st.Set(path, data, transaction.MergeAll)
		} else {
			err = st.Set(path, data)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodPatch:
		patchDocument(w, r, path)

	case http.MethodDelete:
		if err := st.Delete(path); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// patchDocument applies an RFC 7386 merge patch to an existing document.
// Unlike the engine's own top-level merge, a merge patch is recursive
// and removes keys set to null, which is what HTTP clients expect from
// PATCH.
func patchDocument(w http.ResponseWriter, r *http.Request, path string) {
	snap, err := st.Get(path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if !snap.Exists {
		http.Error(w, fmt.Sprintf("no document at %s", path), http.StatusNotFound)
		return
	}

	var patch json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	current, err := json.Marshal(snap.Data)
	if err != nil {
		logger.Error("Failed to marshal document %s: %v", path, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	merged, err := jsonpatch.MergePatch(current, patch)
	if err != nil {
		logger.Error("Merge patch failed for %s: %v", path, err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var result map[string]any
	if err := json.Unmarshal(merged, &result); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := st.Set(path, result); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, result)
}

// collectionHandler handles GET /collections/{path}
func collectionHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		logger.Error("Invalid method used: %s", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/collections/")
	coll, err := st.Collection(path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	type docEntry struct {
		Path string         `json:"path"`
		Data map[string]any `json:"data"`
	}
	entries := make([]docEntry, 0)
	for _, snap := range coll.Snapshot() {
		entries = append(entries, docEntry{Path: snap.Ref.Path(), Data: snap.Data})
	}
	writeJSON(w, entries)
}

// txHandler applies a batch of operations in a single transaction
func txHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		logger.Error("Invalid method used: %s", r.Method)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req txRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("Failed to decode transaction body: %v", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	err := st.RunTransaction(func(tx *transaction.Transaction) error {
		for _, op := range req.Ops {
			doc, err := st.Doc(op.Path)
			if err != nil {
				return err
			}
			switch op.Op {
			case "set":
				if op.Merge {
					tx.Set(doc, op.Data, transaction.MergeAll)
				} else {
					tx.Set(doc, op.Data)
				}
			case "update":
				if _, err := tx.Update(doc, op.Data); err != nil {
					return err
				}
			case "delete":
				tx.Delete(doc)
			default:
				return fmt.Errorf("unknown operation %q", op.Op)
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("Transaction failed: %v", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, txResponse{Success: true, Applied: len(req.Ops)})
}

// metricsHandler is a placeholder for Prometheus or other metrics
func metricsHandler(w http.ResponseWriter, r *http.Request) {
	http.Error(w, "Not Implemented", http.StatusNotImplemented)
}

func writeJSON(w http.ResponseWriter, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		logger.Error("Failed to marshal response: %v", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
