// Package api exposes the approval engine over HTTP. These are the thin
// reference handlers; they own nothing but translation between the wire and
// the engine's contracts. Authentication happens upstream: the gateway is
// expected to attach the verified identity headers consumed here.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thc1006/stagegate/internal/approval"
)

// Identity headers attached by the upstream gateway.
const (
	HeaderUserID    = "X-User-Id"
	HeaderUserName  = "X-User-Name"
	HeaderUserRoles = "X-User-Roles"
)

// Server wires the HTTP routes of the engine.
type Server struct {
	reader *approval.Reader
	router *approval.Router
	logger *slog.Logger
	mux    *mux.Router
}

// NewServer builds the route table. gatherer may be nil to disable the
// metrics endpoint.
func NewServer(reader *approval.Reader, router *approval.Router, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		reader: reader,
		router: router,
		logger: logger.With("component", "http"),
		mux:    mux.NewRouter(),
	}

	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/approvals", s.handleListPending).Methods(http.MethodGet)
	api.HandleFunc("/approvals/{kind}/{id}", s.handleGetDetail).Methods(http.MethodGet)
	api.HandleFunc("/approvals/{kind}/{id}/decision", s.handleDecide).Methods(http.MethodPost)

	s.mux.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	if gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	var filter approval.Filter

	if v := r.URL.Query().Get("kind"); v != "" {
		kind, err := approval.ParseKind(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Kind = &kind
	}
	if v := r.URL.Query().Get("project_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "project_id must be numeric")
			return
		}
		filter.ProjectID = &id
	}
	filter.Search = r.URL.Query().Get("q")

	items, err := s.reader.ListPending(r.Context(), filter)
	if err != nil {
		s.internalError(w, r, "list pending approvals", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}

func (s *Server) handleGetDetail(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, err := approval.ParseKind(vars["kind"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	detail, err := s.reader.GetDetail(r.Context(), kind, vars["id"])
	if err != nil {
		s.internalError(w, r, "load approval detail", err)
		return
	}
	if detail == nil {
		s.writeError(w, http.StatusNotFound, "approval request not found")
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

// decisionBody is the wire form of a decision.
type decisionBody struct {
	Decision     string `json:"decision"`
	Remarks      string `json:"remarks,omitempty"`
	VersionToken string `json:"version_token,omitempty"`
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	kind, err := approval.ParseKind(vars["kind"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var body decisionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	decision, err := approval.ParseDecision(body.Decision)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	actor := actorFromHeaders(r)
	result, err := s.router.Decide(r.Context(), actor, approval.DecisionRequest{
		Kind:         kind,
		RequestID:    vars["id"],
		Decision:     decision,
		Remarks:      body.Remarks,
		VersionToken: body.VersionToken,
	})
	if err != nil {
		// Only cancellation reaches this branch.
		if errors.Is(err, r.Context().Err()) {
			return
		}
		s.internalError(w, r, "decide approval", err)
		return
	}
	s.writeJSON(w, statusForOutcome(result.Outcome), result)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// actorFromHeaders reads the verified identity the gateway attached.
func actorFromHeaders(r *http.Request) approval.Actor {
	var actor approval.Actor
	if v := r.Header.Get(HeaderUserID); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			actor.UserID = id
		}
	}
	actor.DisplayName = r.Header.Get(HeaderUserName)
	if roles := r.Header.Get(HeaderUserRoles); roles != "" {
		for _, role := range strings.Split(roles, ",") {
			if role = strings.TrimSpace(role); role != "" {
				actor.Roles = append(actor.Roles, role)
			}
		}
	}
	return actor
}

// statusForOutcome maps the decision taxonomy onto HTTP status codes.
func statusForOutcome(outcome approval.Outcome) int {
	switch outcome {
	case approval.OutcomeSuccess:
		return http.StatusOK
	case approval.OutcomeForbidden:
		return http.StatusForbidden
	case approval.OutcomeNotFound:
		return http.StatusNotFound
	case approval.OutcomeAlreadyDecided:
		return http.StatusConflict
	case approval.OutcomeValidationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, r.Context().Err()) && r.Context().Err() != nil {
		return
	}
	s.logger.Error(op, "path", r.URL.Path, "error", err)
	s.writeError(w, http.StatusInternalServerError, "internal error")
}
