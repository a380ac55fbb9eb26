package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	capflow "github.com/capflow/capflow-go"
	"github.com/capflow/capflow-go/workflow"
	"github.com/go-chi/chi/v5"
)

// IdentityResolver supplies the acting identity for a request. The engine
// trusts but does not compute this; real deployments plug their session or
// token layer in here.
type IdentityResolver interface {
	Resolve(r *http.Request) (workflow.Actor, error)
}

// HeaderIdentity resolves the actor from trusted gateway headers
type HeaderIdentity struct{}

// Resolve implements IdentityResolver
func (HeaderIdentity) Resolve(r *http.Request) (workflow.Actor, error) {
	userID := r.Header.Get("X-User-Id")
	role := r.Header.Get("X-User-Role")
	if userID == "" || role == "" {
		return workflow.Actor{}, errors.New("missing identity headers")
	}
	return workflow.Actor{
		UserID: userID,
		Role:   workflow.Role(role),
		Name:   r.Header.Get("X-User-Name"),
	}, nil
}

// BlobStore stores document bytes outside the engine; the engine keeps the
// returned reference only
type BlobStore interface {
	Put(ctx context.Context, workflowID, filename string, data []byte) (string, error)
}

// Server serves the REST surface over a client
type Server struct {
	client   *capflow.Client
	identity IdentityResolver
	blobs    BlobStore
	logger   *slog.Logger
}

// ServerOption configures the server
type ServerOption func(*Server)

// WithIdentityResolver replaces the default header-based resolver
func WithIdentityResolver(resolver IdentityResolver) ServerOption {
	return func(s *Server) {
		s.identity = resolver
	}
}

// WithBlobStore enables inline document upload to an external blob store
func WithBlobStore(blobs BlobStore) ServerOption {
	return func(s *Server) {
		s.blobs = blobs
	}
}

// WithServerLogger sets the server logger
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates the REST server
func NewServer(client *capflow.Client, opts ...ServerOption) *Server {
	s := &Server{
		client:   client,
		identity: HeaderIdentity{},
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Routes returns the chi router for the full surface
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealthz)

	r.Route("/workflows", func(r chi.Router) {
		r.Post("/", s.handleSubmit)
		r.Get("/", s.handleList)
		r.Get("/{id}", s.handleGet)
		r.Get("/{id}/actions", s.handleAllowedActions)
		r.Post("/{id}/actions", s.handleExecute)
		r.Post("/{id}/pause", s.handlePause)
		r.Post("/{id}/resume", s.handleResume)
		r.Get("/{id}/overdue", s.handleOverdue)
		r.Post("/{id}/participants", s.handleAssignParticipant)
		r.Get("/{id}/participants/{role}", s.handleResolveParticipant)
		r.Post("/{id}/documents", s.handleAttachDocument)
		r.Post("/{id}/documents/{documentId}/review", s.handleReviewDocument)
	})

	r.Get("/notifications", s.handleListNotifications)
	r.Post("/notifications/{id}/read", s.handleMarkRead)

	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type submitRequest struct {
	IssuerCompany  string `json:"issuerCompany"`
	InstrumentType string `json:"instrumentType"`
	Currency       string `json:"currency"`
	TargetAmount   int64  `json:"targetAmount"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.resolve(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if !s.decode(w, r, &req) {
		return
	}

	wf, err := s.client.Submit(r.Context(), workflow.Intent{
		IssuerCompany:  req.IssuerCompany,
		InstrumentType: req.InstrumentType,
		Currency:       req.Currency,
		TargetAmount:   req.TargetAmount,
	}, actor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wf)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if since := r.URL.Query().Get("changedSince"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("bad_request", "changedSince must be RFC3339"))
			return
		}
		workflows, err := s.client.ChangedSince(r.Context(), ts)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, workflows)
		return
	}

	actor, ok := s.resolve(w, r)
	if !ok {
		return
	}
	workflows, err := s.client.ListForParticipant(r.Context(), actor.UserID, actor.Role)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workflows)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	wf, err := s.client.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleAllowedActions(w http.ResponseWriter, r *http.Request) {
	wf, err := s.client.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	graph := s.client.Graph()
	writeJSON(w, http.StatusOK, map[string]any{
		"stage":     wf.CurrentStage,
		"ownerRole": graph.OwnerRole(wf.CurrentStage),
		"actions":   graph.AllowedActions(wf.CurrentStage),
	})
}

type executeRequest struct {
	Action         workflow.Action  `json:"action"`
	Payload        workflow.Payload `json:"payload"`
	IdempotencyKey string           `json:"idempotencyKey,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.resolve(w, r)
	if !ok {
		return
	}

	var req executeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Action == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("bad_request", "action required"))
		return
	}

	wf, err := s.client.Execute(r.Context(), chi.URLParam(r, "id"), req.Action, actor, req.Payload, req.IdempotencyKey)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.resolve(w, r)
	if !ok {
		return
	}

	var req struct {
		Notes string `json:"notes,omitempty"`
	}
	if r.ContentLength > 0 && !s.decode(w, r, &req) {
		return
	}

	wf, err := s.client.Pause(r.Context(), chi.URLParam(r, "id"), actor, req.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.resolve(w, r)
	if !ok {
		return
	}

	wf, err := s.client.Resume(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleOverdue(w http.ResponseWriter, r *http.Request) {
	overdue, err := s.client.IsOverdue(r.Context(), chi.URLParam(r, "id"), time.Now().UTC())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"overdue": overdue})
}

type participantRequest struct {
	Role    workflow.Role `json:"role"`
	UserID  string        `json:"userId"`
	Name    string        `json:"name,omitempty"`
	Replace bool          `json:"replace,omitempty"`
}

func (s *Server) handleAssignParticipant(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.resolve(w, r); !ok {
		return
	}

	var req participantRequest
	if !s.decode(w, r, &req) {
		return
	}

	participant := workflow.Participant{Role: req.Role, UserID: req.UserID, Name: req.Name}
	var wf *workflow.Workflow
	var err error
	if req.Replace {
		wf, err = s.client.ReplaceParticipant(r.Context(), chi.URLParam(r, "id"), req.Role, participant)
	} else {
		wf, err = s.client.AssignParticipant(r.Context(), chi.URLParam(r, "id"), req.Role, participant)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleResolveParticipant(w http.ResponseWriter, r *http.Request) {
	participant, err := s.client.ResolveParticipant(r.Context(),
		chi.URLParam(r, "id"), workflow.Role(chi.URLParam(r, "role")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participant)
}

type attachDocumentRequest struct {
	Stage    workflow.Stage        `json:"stage"`
	Type     workflow.DocumentType `json:"type"`
	FileRef  string                `json:"fileRef,omitempty"`
	FileName string                `json:"fileName,omitempty"`
	// Content is base64-encoded bytes pushed through to the blob store
	// when one is configured; otherwise FileRef must point at the external
	// document service.
	Content string `json:"content,omitempty"`
}

func (s *Server) handleAttachDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.resolve(w, r)
	if !ok {
		return
	}

	var req attachDocumentRequest
	if !s.decode(w, r, &req) {
		return
	}

	workflowID := chi.URLParam(r, "id")
	fileRef := req.FileRef
	if req.Content != "" && s.blobs != nil {
		data, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("bad_request", "content must be base64"))
			return
		}
		fileRef, err = s.blobs.Put(r.Context(), workflowID, req.FileName, data)
		if err != nil {
			s.logger.Error("blob store upload failed", "error", err, "workflowId", workflowID)
			writeJSON(w, http.StatusBadGateway, errorBody("blob_store_error", "document upload failed"))
			return
		}
	}

	wf, err := s.client.AttachDocument(r.Context(), workflowID, req.Stage, req.Type, fileRef, actor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, wf)
}

func (s *Server) handleReviewDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.resolve(w, r)
	if !ok {
		return
	}

	var req struct {
		Decision workflow.DocumentStatus `json:"decision"`
	}
	if !s.decode(w, r, &req) {
		return
	}

	wf, err := s.client.ReviewDocument(r.Context(),
		chi.URLParam(r, "id"), chi.URLParam(r, "documentId"), req.Decision, actor)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.resolve(w, r)
	if !ok {
		return
	}

	notifications, err := s.client.ListNotifications(r.Context(), actor.UserID, actor.Role)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, notifications)
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.resolve(w, r); !ok {
		return
	}

	if err := s.client.MarkNotificationRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) (workflow.Actor, bool) {
	actor, err := s.identity.Resolve(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorBody("unauthenticated", err.Error()))
		return workflow.Actor{}, false
	}
	return actor, true
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("bad_request", "malformed JSON body"))
		return false
	}
	return true
}

// statusFor maps the engine's error taxonomy to distinct status codes
func statusFor(err error) int {
	switch workflow.Code(err) {
	case "not_found":
		return http.StatusNotFound
	case "unauthorized":
		return http.StatusForbidden
	case "invalid_transition":
		return http.StatusConflict
	case "conflict":
		return http.StatusPreconditionFailed
	case "validation_error":
		return http.StatusUnprocessableEntity
	case "terminal":
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorBody(workflow.Code(err), err.Error()))
}

func errorBody(code, message string) map[string]string {
	return map[string]string{"code": code, "message": message}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The status line is already out; an encode failure here has no remedy.
	_ = json.NewEncoder(w).Encode(body)
}
