// Package httpserver wires the volume registry, DAG engine, and auth
// resolver to the versioned HTTP surface.
package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/vaultgraph/vaultd/internal/auth"
	"github.com/vaultgraph/vaultd/internal/dag"
	"github.com/vaultgraph/vaultd/internal/manifest"
	"github.com/vaultgraph/vaultd/internal/store"
	"github.com/vaultgraph/vaultd/internal/vaultkey"
	"github.com/vaultgraph/vaultd/internal/vaultobserve"
	"github.com/vaultgraph/vaultd/internal/volumes"
)

// Server holds the collaborators wired to the HTTP surface.
type Server struct {
	registry  *volumes.Registry
	dagEngine *dag.Engine
	resolver  *auth.Resolver
	db        store.Store
	events    *vaultobserve.EventPublisher
}

func New(registry *volumes.Registry, dagEngine *dag.Engine, resolver *auth.Resolver, db store.Store, events *vaultobserve.EventPublisher) *Server {
	return &Server{
		registry:  registry,
		dagEngine: dagEngine,
		resolver:  resolver,
		db:        db,
		events:    events,
	}
}

// Router builds the chi router for the /api/v1 surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)

	r.Route("/api/v1/volume/{pubkey}", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/", s.handleCreateVolume)
			r.Get("/", s.handleGetVolume)
			r.Patch("/", s.handleEditVolume)
			r.Delete("/", s.handleDeleteVolume)
			r.Post("/snapshot", s.handleUploadSnapshot)
			r.Get("/snapshots", s.handleListSnapshots)
		})

		r.Get("/{hash}", s.handleGetSnapshot)
	})

	return r
}

type accountKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		account, err := s.resolver.Resolve(r)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "vault: unauthenticated")
			return
		}
		ctx := context.WithValue(r.Context(), accountKey{}, account)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func callerAccount(r *http.Request) uuid.UUID {
	account, _ := r.Context().Value(accountKey{}).(uuid.UUID)
	return account
}

func pathPubkey(r *http.Request) (vaultkey.PublicKey, error) {
	return vaultkey.PublicKeyFromHex(chi.URLParam(r, "pubkey"))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"ok": false, "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
}

func (s *Server) handleCreateVolume(w http.ResponseWriter, r *http.Request) {
	pubkey, err := pathPubkey(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "vault: invalid pubkey")
		return
	}
	if _, err := s.registry.Create(r.Context(), pubkey, callerAccount(r)); err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"pubkey": pubkey.String()})
}

func (s *Server) handleGetVolume(w http.ResponseWriter, r *http.Request) {
	pubkey, err := pathPubkey(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "vault: invalid pubkey")
		return
	}
	projection, err := s.registry.Get(r.Context(), pubkey)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"account": projection.Account,
		"writer":  projection.Writer,
	})
}

func (s *Server) handleEditVolume(w http.ResponseWriter, r *http.Request) {
	pubkey, err := pathPubkey(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "vault: invalid pubkey")
		return
	}
	var edit volumes.EditRequest
	if err := decodeJSON(w, r, &edit); err != nil {
		respondError(w, http.StatusBadRequest, "vault: malformed edit body")
		return
	}
	v, err := s.registry.Edit(r.Context(), pubkey, edit)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"account": v.Account,
		"writer":  v.Writer,
		"locked":  v.Locked,
	})
}

func (s *Server) handleDeleteVolume(w http.ResponseWriter, r *http.Request) {
	pubkey, err := pathPubkey(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "vault: invalid pubkey")
		return
	}
	if err := s.registry.Delete(r.Context(), pubkey, callerAccount(r)); err != nil {
		if errors.Is(err, volumes.ErrForbidden) {
			respondError(w, http.StatusForbidden, "vault: not the owning account")
			return
		}
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"deleted": true})
}

// maxEnvelopeBytes bounds the raw envelope body read. Real backups can
// be large, but the envelope itself is metadata only; the blob lives in
// the object store.
const maxEnvelopeBytes = 1 << 20

func (s *Server) handleUploadSnapshot(w http.ResponseWriter, r *http.Request) {
	pubkey, err := pathPubkey(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "vault: invalid pubkey")
		return
	}
	volume, err := s.registry.Lookup(r.Context(), pubkey)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if volume.Locked {
		respondError(w, http.StatusForbidden, "vault: volume is locked")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEnvelopeBytes+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "vault: could not read envelope")
		return
	}
	if len(body) > maxEnvelopeBytes {
		respondError(w, http.StatusBadRequest, "vault: envelope too large")
		return
	}

	hash, err := s.dagEngine.Admit(r.Context(), volume, body)
	if err != nil {
		respondDAGError(w, err)
		return
	}

	if s.events != nil {
		ev := vaultobserve.SnapshotAdmittedEvent{
			VolumePubkey: pubkey.String(),
			Hash:         hash.String(),
			AdmittedAt:   time.Now().UTC(),
		}
		// Admission already verified the envelope, so this cannot fail.
		if mb, _, splitErr := manifest.Split(body); splitErr == nil {
			if m, decErr := manifest.Decode(mb); decErr == nil {
				ev.Generation = m.Generation
				ev.Size = m.Size
			}
		}
		// Publication is best-effort and retried with backoff; keep it off
		// the response path.
		go s.events.PublishSnapshotAdmitted(context.WithoutCancel(r.Context()), ev)
	}

	w.Header().Set("Location", hash.String())
	w.WriteHeader(http.StatusTemporaryRedirect)
}

func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	pubkey, err := pathPubkey(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "vault: invalid pubkey")
		return
	}
	volume, err := s.registry.Lookup(r.Context(), pubkey)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	var parentHash *vaultkey.Hash
	if raw := r.URL.Query().Get("parent"); raw != "" {
		h, err := vaultkey.HashFromHex(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "vault: invalid parent hash")
			return
		}
		parentHash = &h
	}
	root := r.URL.Query().Get("root") == "true"

	hashes, err := s.dagEngine.List(r.Context(), volume.ID, parentHash, root)
	if err != nil {
		respondDAGError(w, err)
		return
	}
	out := make([]string, len(hashes))
	for i, h := range hashes {
		out[i] = h.String()
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	pubkey, err := pathPubkey(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "vault: invalid pubkey")
		return
	}
	hash, err := vaultkey.HashFromHex(chi.URLParam(r, "hash"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "vault: invalid hash")
		return
	}
	volume, err := s.registry.Lookup(r.Context(), pubkey)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	envelope, err := s.dagEngine.FetchByHash(r.Context(), volume.ID, hash)
	if err != nil {
		respondDAGError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(envelope)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, 64*1024)
	defer r.Body.Close()
	return jsonDecode(r.Body, v)
}
