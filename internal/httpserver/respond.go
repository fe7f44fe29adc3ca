package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/vaultgraph/vaultd/internal/dag"
	"github.com/vaultgraph/vaultd/internal/store"
)

func jsonDecode(r io.Reader, v interface{}) error {
	decoder := json.NewDecoder(r)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// respondStoreError maps a volumes/store-layer error to the status table
// in the external interface contract: VolumeNotFound -> 404, everything
// else -> 500.
func respondStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "vault: volume not found")
		return
	}
	respondError(w, http.StatusInternalServerError, err.Error())
}

// respondDAGError maps a DAG admission/enumeration error to its HTTP
// status per the error kind table: ManifestInvalid and ManifestExists
// (and the related admission-invariant failures) surface 400,
// SnapshotNotFound surfaces 404, everything else is 500.
func respondDAGError(w http.ResponseWriter, err error) {
	var missingParent *dag.MissingParentError
	switch {
	case errors.Is(err, dag.ErrSnapshotNotFound):
		respondError(w, http.StatusNotFound, "vault: snapshot not found")
	case errors.As(err, &missingParent):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, dag.ErrManifestInvalid),
		errors.Is(err, dag.ErrManifestExists),
		errors.Is(err, dag.ErrWrongSizeTotal),
		errors.Is(err, dag.ErrInvalidGeneration),
		errors.Is(err, dag.ErrInvalidSize):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
