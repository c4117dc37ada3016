package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leapstack-labs/leaprest/pkg/adapter"
	"github.com/leapstack-labs/leaprest/pkg/compiler"
	"github.com/leapstack-labs/leaprest/pkg/core"
	"github.com/leapstack-labs/leaprest/pkg/request"
)

const (
	sessionName = "leaprest"
	maxBodySize = 10 << 20
)

type requestIDKey struct{}

// requestID tags every request with an id, reusing the caller's
// X-Request-Id when present.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			slog.String("id", requestIDFrom(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)))
	})
}

// ---------- Sessions ----------

type sessionBody struct {
	Role string `json:"role"`
}

func (s *Server) role(r *http.Request) string {
	session, err := s.sessionStore.Get(r, sessionName)
	if err == nil {
		if role, ok := session.Values["role"].(string); ok && role != "" {
			return role
		}
	}
	return s.cfg.AnonRole
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionBody{Role: s.role(r)})
}

func (s *Server) setSession(w http.ResponseWriter, r *http.Request) {
	var body sessionBody
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodySize)).Decode(&body); err != nil || body.Role == "" {
		writeJSON(w, http.StatusBadRequest, core.ErrorBody{Message: "expected a JSON body with a role"})
		return
	}
	session, _ := s.sessionStore.Get(r, sessionName)
	session.Values["role"] = body.Role
	if err := session.Save(r, w); err != nil {
		s.writeError(w, r, fmt.Errorf("failed to save session: %w", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) clearSession(w http.ResponseWriter, r *http.Request) {
	session, _ := s.sessionStore.Get(r, sessionName)
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		s.writeError(w, r, fmt.Errorf("failed to clear session: %w", err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---------- REST ----------

func (s *Server) handleREST(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cat := s.Catalog()

	var body *string
	if r.Body != nil {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
		if err != nil {
			s.writeError(w, r, &core.ParseError{Kind: core.ParseInvalidBody, Message: "Failed to read request body", Details: err.Error()})
			return
		}
		if len(data) > 0 {
			b := string(data)
			body = &b
		}
	}

	role := s.role(r)
	in := request.Input{
		Method:  r.Method,
		URI:     r.URL.RequestURI(),
		Root:    s.cfg.Root,
		Schema:  s.cfg.Schema,
		Role:    role,
		Headers: headerPairs(r.Header),
		Env: []core.Pair{
			{Key: "role", Value: role},
			{Key: "request.method", Value: r.Method},
			{Key: "request.path", Value: r.URL.Path},
			{Key: "request.id", Value: requestIDFrom(ctx)},
		},
		Body: body,
	}
	if s.cfg.MaxRows > 0 {
		in.MaxRows = &s.cfg.MaxRows
	}

	req, err := request.Parse(cat, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	env, err := compiler.EnvStatement(cat.Dialect().Name(), req.Env)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var res *adapter.Result
	if req.Query.Kind.IsMutation() && !cat.Dialect().Config().SupportsMutationCTE {
		ts, err := compiler.NewTwoStage(cat, req, nil)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err = s.cfg.Adapter.RunTwoStage(ctx, env, ts)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	} else {
		main, err := compiler.MainStatement(cat, req, nil)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		res, err = s.cfg.Adapter.Run(ctx, env, main)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	s.writeResult(w, r, req, res)
}

func (s *Server) writeResult(w http.ResponseWriter, r *http.Request, req *core.ApiRequest, res *adapter.Result) {
	status := http.StatusOK
	switch {
	case req.Method == http.MethodPost:
		status = http.StatusCreated
	case !req.ReturnRepresentation():
		status = http.StatusNoContent
	}
	if res.ResponseStatus != nil {
		if n, err := strconv.Atoi(*res.ResponseStatus); err == nil {
			status = n
		}
	}

	h := w.Header()
	if res.ResponseHeaders != nil {
		var extra []map[string]string
		if err := json.Unmarshal([]byte(*res.ResponseHeaders), &extra); err != nil {
			s.logger.Warn("ignoring malformed response headers", slog.String("id", requestIDFrom(r.Context())), slog.Any("error", err))
		}
		for _, m := range extra {
			for k, v := range m {
				h.Set(k, v)
			}
		}
	}
	h.Set("Content-Range", contentRange(req, res))

	if !req.ReturnRepresentation() || req.Method == http.MethodHead {
		w.WriteHeader(status)
		return
	}
	h.Set("Content-Type", req.Accept.MIME())
	w.WriteHeader(status)
	_, _ = io.WriteString(w, res.Body)
}

// contentRange renders the row window of a response, e.g. 0-9/42 or */*.
func contentRange(req *core.ApiRequest, res *adapter.Result) string {
	total := "*"
	if res.TotalResultSet != nil {
		total = strconv.FormatInt(*res.TotalResultSet, 10)
	}
	if res.PageTotal == 0 {
		return "*/" + total
	}
	var lower int64
	if q := req.Query; q != nil && q.Offset != nil {
		lower, _ = strconv.ParseInt(q.Offset.Value, 10, 64)
	}
	return fmt.Sprintf("%d-%d/%s", lower, lower+res.PageTotal-1, total)
}

func headerPairs(h http.Header) []core.Pair {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]core.Pair, 0, len(keys))
	for _, k := range keys {
		for _, v := range h[k] {
			pairs = append(pairs, core.Pair{Key: k, Value: v})
		}
	}
	return pairs
}

// ---------- Errors ----------

// pgStatus maps PostgreSQL error classes to HTTP statuses.
var pgStatus = map[string]int{
	"23503": http.StatusConflict,   // foreign_key_violation
	"23505": http.StatusConflict,   // unique_violation
	"23502": http.StatusBadRequest, // not_null_violation
	"23514": http.StatusBadRequest, // check_violation
	"22P02": http.StatusBadRequest, // invalid_text_representation
	"42501": http.StatusForbidden,  // insufficient_privilege
	"P0001": http.StatusBadRequest, // raise_exception
}

func errorResponse(err error) (int, core.ErrorBody) {
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &pgErr):
		status, ok := pgStatus[pgErr.Code]
		if !ok {
			status = http.StatusInternalServerError
		}
		return status, core.ErrorBody{Message: pgErr.Message, Details: pgErr.Detail, Hint: pgErr.Hint}
	case errors.Is(err, adapter.ErrConstraintsFailed):
		return http.StatusForbidden, core.ErrorBody{Message: "new row violates row-level security policy"}
	default:
		return core.HTTPStatus(err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("id", requestIDFrom(r.Context())), slog.Any("error", err))
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
