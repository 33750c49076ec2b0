// Package server exposes workbook sessions over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/argument-tutor/internal/evaluator"
	"github.com/sells-group/argument-tutor/internal/history"
	"github.com/sells-group/argument-tutor/internal/model"
	"github.com/sells-group/argument-tutor/internal/workbook"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ctxKey struct{}

// Server routes workbook actions to sessions.
type Server struct {
	sessions *Sessions
	router   chi.Router
}

// New builds the router. An empty allowedOrigins list allows any origin.
func New(sessions *Sessions, allowedOrigins []string) *Server {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	s := &Server{sessions: sessions}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/sessions", s.createSession)
	r.Route("/sessions/{id}", func(api chi.Router) {
		api.Use(s.sessionCtx)
		api.Get("/", s.getSession)
		api.Delete("/", s.deleteSession)
		api.Put("/claim", s.selectClaim)
		api.Post("/evidence", s.submitStep(model.StepEvidence))
		api.Post("/evidence/unlock", s.unlock(model.StepEvidence))
		api.Post("/reasoning", s.submitStep(model.StepReasoning))
		api.Post("/reasoning/unlock", s.unlock(model.StepReasoning))
		api.Post("/submit", s.submitFinal)
		api.Get("/history", s.listHistory)
		api.Get("/history/export", s.exportHistory)
	})

	s.router = r
	return s
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) sessionCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.sessions.Get(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func session(r *http.Request) *workbook.Session {
	return r.Context().Value(ctxKey{}).(*workbook.Session)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	id, sess := s.sessions.Create()
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":      id,
		"session": sess.Snapshot(r.Context()),
	})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, session(r).Snapshot(r.Context()))
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Delete(r.Context(), id); err != nil {
		zap.L().Error("delete session failed", zap.String("session_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "could not delete session history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) selectClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Claim     string `json:"claim"`
		ClearText bool   `json:"clear_text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	claim, ok := model.ParseClaim(req.Claim)
	if !ok {
		writeError(w, http.StatusBadRequest, "bad_request", "claim must be agree, disagree or none")
		return
	}

	sess := session(r)
	var err error
	if req.ClearText {
		err = sess.SelectClaimClearingText(claim)
	} else {
		err = sess.SelectClaim(claim)
	}
	if err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot(r.Context()))
}

func (s *Server) submitStep(step model.Step) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
			return
		}

		sess := session(r)
		var (
			res *model.EvaluationResult
			err error
		)
		if step == model.StepReasoning {
			res, err = sess.SubmitReasoning(r.Context(), req.Text)
		} else {
			res, err = sess.SubmitEvidence(r.Context(), req.Text)
		}
		if err != nil {
			writeActionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"result":  res,
			"session": sess.Snapshot(r.Context()),
		})
	}
}

func (s *Server) unlock(step model.Step) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := session(r)
		var err error
		if step == model.StepReasoning {
			err = sess.UnlockReasoningForEdit()
		} else {
			err = sess.UnlockEvidenceForEdit()
		}
		if err != nil {
			writeActionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sess.Snapshot(r.Context()))
	}
}

func (s *Server) submitFinal(w http.ResponseWriter, r *http.Request) {
	sess := session(r)
	if err := sess.SubmitFinal(); err != nil {
		writeActionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Snapshot(r.Context()))
}

// listHistory returns records for ?claim= (default: the current claim),
// optionally narrowed to ?step=.
func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	sess := session(r)

	claim := sess.Claim()
	if q := r.URL.Query().Get("claim"); q != "" {
		c, ok := model.ParseClaim(q)
		if !ok {
			writeError(w, http.StatusBadRequest, "bad_request", "claim must be agree or disagree")
			return
		}
		claim = c
	}

	records := sess.History(r.Context(), claim)
	if q := r.URL.Query().Get("step"); q != "" {
		step, ok := model.ParseStep(q)
		if !ok {
			writeError(w, http.StatusBadRequest, "bad_request", "step must be evidence or reasoning")
			return
		}
		records = model.FilterByStep(records, step)
	}
	if records == nil {
		records = []model.AttemptRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"claim":   claim,
		"records": records,
	})
}

func (s *Server) exportHistory(w http.ResponseWriter, r *http.Request) {
	sess := session(r)
	var records []model.AttemptRecord
	for _, c := range model.Claims {
		records = append(records, sess.History(r.Context(), c)...)
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="attempts.xlsx"`)
	if err := history.WriteXLSX(w, records); err != nil {
		zap.L().Error("history export failed", zap.String("session_id", chi.URLParam(r, "id")), zap.Error(err))
	}
}

// writeActionError maps workbook and evaluator errors to HTTP statuses.
func writeActionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workbook.ErrBusy):
		writeError(w, http.StatusTooManyRequests, "busy", err.Error())
		return
	case workbook.IsIllegal(err):
		writeError(w, http.StatusConflict, "illegal_action", err.Error())
		return
	}

	if kind, ok := evaluator.KindOf(err); ok {
		status := http.StatusBadGateway
		if kind == evaluator.KindConfiguration {
			status = http.StatusInternalServerError
		}
		writeError(w, status, string(kind), err.Error())
		return
	}

	zap.L().Error("workbook action failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal", err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, map[string]string{"error": msg, "kind": kind})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
