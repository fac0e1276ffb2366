// Package httpapi serves the development backend: tables, objects, the realtime
// websocket and the push function, over the same routes as the hosted service.
package httpapi

import (
	"context"
	"duo-lab/contract"
	"duo-lab/domain"
	"duo-lab/errors"
	"duo-lab/infrastructure/rest"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	stderrors "errors"

	"github.com/felixge/httpsnoop"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

const maxUploadSize = 10 << 20

// Blobs is the object storage the server exposes.
type Blobs interface {
	contract.BlobStore
	Verify(bucket, path, token string) error
	Open(bucket, path string) ([]byte, string, error)
}

var servedTables = append([]domain.Table{domain.TableMessages, domain.TableProfiles}, domain.DataTables...)

type Server struct {
	log      *slog.Logger
	store    contract.RemoteStore
	blobs    Blobs
	realtime http.Handler
	push     contract.PushProvider
	apiKey   string
	validate *validator.Validate
	node     func() domain.NodeHealth
}

// NewServer wires the handlers. push may be nil when no provider is configured,
// apiKey empty disables the key check.
func NewServer(log *slog.Logger, store contract.RemoteStore, blobs Blobs, realtime http.Handler, push contract.PushProvider, apiKey string) *Server {
	return &Server{
		log:      log,
		store:    store,
		blobs:    blobs,
		realtime: realtime,
		push:     push,
		apiKey:   apiKey,
		validate: validator.New(),
	}
}

// WithHealth adds the last process sample to the /health response.
func (s *Server) WithHealth(node func() domain.NodeHealth) *Server {
	s.node = node
	return s
}

// Handler returns the router wrapped in CORS and access logging.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.health).Methods(http.MethodGet)
	// Signed links carry their own authorization.
	r.HandleFunc("/storage/v1/object/sign/{bucket}/{path:.+}", s.getSignedObject).Methods(http.MethodGet)

	api := r.NewRoute().Subrouter()
	api.Use(s.requireAPIKey)
	api.HandleFunc("/rest/v1/{table}", s.selectRows).Methods(http.MethodGet)
	api.HandleFunc("/rest/v1/{table}", s.insertRow).Methods(http.MethodPost)
	api.HandleFunc("/rest/v1/{table}", s.updateRow).Methods(http.MethodPatch)
	api.HandleFunc("/rest/v1/{table}", s.deleteRow).Methods(http.MethodDelete)
	api.HandleFunc("/storage/v1/object/sign/{bucket}/{path:.+}", s.signObject).Methods(http.MethodPost)
	api.HandleFunc("/storage/v1/object/{bucket}/{path:.+}", s.uploadObject).Methods(http.MethodPost, http.MethodPut)
	api.HandleFunc("/functions/v1/"+domain.PushFunction, s.sendPush).Methods(http.MethodPost)
	api.Handle("/realtime/v1/websocket", s.realtime).Methods(http.MethodGet)

	return corsMiddleware(s.logRequests(r))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type, prefer, x-upsert")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.log.Debug("Handled", "method", r.Method, "path", r.URL.Path, "status", m.Code, "duration", m.Duration)
	})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("apikey")
		if key == "" {
			key = r.URL.Query().Get("apikey")
		}
		if key == "" {
			key = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if key != s.apiKey {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "invalid api key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

type healthResponse struct {
	Status string             `json:"status"`
	Node   *domain.NodeHealth `json:"node,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.node != nil {
		node := s.node()
		resp.Node = &node
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case stderrors.Is(err, errors.ErrInvalidRow), stderrors.Is(err, errors.ErrInvalidQuery),
		stderrors.Is(err, errors.ErrInvalidBlobPath):
		status = http.StatusBadRequest
	case stderrors.Is(err, errors.ErrBlobNotFound):
		status = http.StatusNotFound
	case stderrors.Is(err, errors.ErrBlobExists):
		status = http.StatusConflict
	case stderrors.Is(err, errors.ErrInvalidSignature), stderrors.Is(err, errors.ErrSignedURLExpired):
		status = http.StatusForbidden
	}
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, map[string]string{"message": err.Error()})
}

func (s *Server) table(w http.ResponseWriter, r *http.Request) (domain.Table, bool) {
	table := domain.Table(mux.Vars(r)["table"])
	if !lo.Contains(servedTables, table) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": fmt.Sprintf("relation %q does not exist", table)})
		return "", false
	}
	return table, true
}

func decodeRow(r *http.Request) (domain.Row, error) {
	var row domain.Row
	if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidRow, err)
	}
	return row, nil
}

// matchedID reads the primary key filter PATCH and DELETE require.
func matchedID(r *http.Request, table domain.Table) (string, error) {
	param := r.URL.Query().Get(table.PrimaryKey())
	f, err := domain.ParseFilter(table.PrimaryKey(), param)
	if err != nil || f.Op != domain.OpEq {
		return "", fmt.Errorf("%w: %s=eq.<value> is required", errors.ErrInvalidQuery, table.PrimaryKey())
	}
	return f.Values[0], nil
}

func (s *Server) selectRows(w http.ResponseWriter, r *http.Request) {
	table, ok := s.table(w, r)
	if !ok {
		return
	}
	query, err := rest.ParseValues(r.URL.Query())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rows, err := s.store.Select(r.Context(), table, query)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if rows == nil {
		rows = []domain.Row{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// insertRow inserts, or upserts when the request asks to merge duplicates.
func (s *Server) insertRow(w http.ResponseWriter, r *http.Request) {
	table, ok := s.table(w, r)
	if !ok {
		return
	}
	row, err := decodeRow(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.Contains(r.Header.Get("Prefer"), "resolution=merge-duplicates") {
		var conflict []string
		if onConflict := r.URL.Query().Get("on_conflict"); onConflict != "" {
			conflict = strings.Split(onConflict, ",")
		}
		err = s.store.Upsert(r.Context(), table, row, conflict...)
	} else {
		err = s.store.Insert(r.Context(), table, row)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) updateRow(w http.ResponseWriter, r *http.Request) {
	table, ok := s.table(w, r)
	if !ok {
		return
	}
	id, err := matchedID(r, table)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	patch, err := decodeRow(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.Update(r.Context(), table, patch, id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteRow(w http.ResponseWriter, r *http.Request) {
	table, ok := s.table(w, r)
	if !ok {
		return
	}
	id, err := matchedID(r, table)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.store.Delete(r.Context(), table, id); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) uploadObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadSize))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"message": err.Error()})
		return
	}
	upsert := r.Header.Get("x-upsert") == "true"
	if err := s.blobs.UploadBlob(r.Context(), vars["bucket"], vars["path"], data, upsert); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"Key": vars["bucket"] + "/" + vars["path"]})
}

type signRequest struct {
	ExpiresIn int64 `json:"expiresIn" validate:"gt=0"`
}

func (s *Server) signObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	var body signRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	if err := s.validate.Struct(body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	signed, err := s.blobs.SignedURL(r.Context(), vars["bucket"], vars["path"], time.Duration(body.ExpiresIn)*time.Second)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"signedURL": signed})
}

func (s *Server) getSignedObject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.blobs.Verify(vars["bucket"], vars["path"], r.URL.Query().Get("token")); err != nil {
		s.fail(w, r, err)
		return
	}
	data, contentType, err := s.blobs.Open(vars["bucket"], vars["path"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = w.Write(data)
}

// sendPush answers 200 with the provider response, or 400 with {"error": ...}.
func (s *Server) sendPush(w http.ResponseWriter, r *http.Request) {
	var body domain.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := s.validate.Struct(body); err != nil {
		s.log.Debug("Push request rejected", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errors.ErrMissingDeliveryID.Error()})
		return
	}
	if s.push == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "push provider configuration missing"})
		return
	}
	data, err := s.push.Deliver(r.Context(), body.TargetUserID, domain.PushTitle, body.Content)
	if err != nil {
		s.log.Warn("Push delivery failed", "target", body.TargetUserID, "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Serve runs srv until ctx is done, then shuts it down.
func Serve(ctx context.Context, log *slog.Logger, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		log.Info("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	}
}
