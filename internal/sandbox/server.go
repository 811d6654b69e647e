package sandbox

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"secopsmcp/internal/action"
	"secopsmcp/internal/oauth"
	"secopsmcp/internal/scope"
)

const (
	maxBodySize = 1 << 20
	tokenTTL    = 30 * time.Minute

	casesPrefix     = "/api/1p/external/v1/cases"
	caseAlertPrefix = "/api/1p/external/v1.0/cases"
)

// Credentials are the secrets the sandbox accepts.
type Credentials struct {
	AppKey       string
	ClientID     string
	ClientSecret string
}

// Server serves the fake SOAR and Falcon APIs from a Store.
type Server struct {
	store  *Store
	creds  Credentials
	logger *slog.Logger
}

func NewServer(store *Store, creds Credentials, logger *slog.Logger) *Server {
	return &Server{store: store, creds: creds, logger: logger}
}

// Handler returns the routed API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	soar := func(pattern string, h http.HandlerFunc) { mux.Handle(pattern, s.requireAppKey(h)) }
	soar("GET "+scope.ScopesPath, s.handleScopes)
	soar("GET /api/1p/external/v1/integrations/{product}/integrationInstances", s.handleInstances)
	soar("POST "+action.ExecutePath, s.handleExecute)
	soar("GET "+casesPrefix, s.handleListCases)
	soar("GET "+casesPrefix+"/{id}", s.handleGetCase)
	soar("PATCH "+casesPrefix+"/{id}", s.handlePatchCase)
	soar("GET "+casesPrefix+"/{id}/comments", s.handleComments)
	soar("POST "+casesPrefix+"/{id}/comments", s.handleAddComment)
	soar("GET "+caseAlertPrefix+"/{id}/caseAlerts", s.handleCaseAlerts)
	soar("GET "+caseAlertPrefix+"/{id}/alerts/{alert}/involvedEvents", s.handleInvolvedEvents)
	soar("POST /api/external/v1/case-overview/GetAlertsEntities", s.handleAlertEntities)
	soar("POST /api/external/v1/entities/GetEntityData", s.handleEntityData)
	soar("POST /api/external/v1.0/entity-search/entities", s.handleEntitySearch)
	soar("GET /sandbox/executions", s.handleExecutions)

	mux.HandleFunc("POST "+oauth.TokenPath, s.handleToken)
	mux.Handle("GET /alerts/queries/alerts/v2", s.requireBearer(s.handleAlertQuery))
	mux.Handle("POST /alerts/entities/alerts/v2", s.requireBearer(s.handleAlertEntitiesFalcon))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("sandbox backend starting", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("sandbox backend shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("sandbox server: %w", err)
	}
}

// --- auth ---

func (s *Server) requireAppKey(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !secretEqual(r.Header.Get("AppKey"), s.creds.AppKey) {
			writeError(w, http.StatusUnauthorized, "Invalid AppKey")
			return
		}
		next(w, r)
	})
}

func (s *Server) requireBearer(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeFalconError(w, http.StatusUnauthorized, "access denied, authorization failed")
			return
		}
		valid, err := s.store.TokenValid(r.Context(), token)
		if err != nil {
			s.internal(w, err)
			return
		}
		if !valid {
			writeFalconError(w, http.StatusUnauthorized, "access denied, invalid bearer token")
			return
		}
		next(w, r)
	})
}

func secretEqual(got, want string) bool {
	return want != "" && subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

// --- SOAR settings and actions ---

func (s *Server) handleScopes(w http.ResponseWriter, r *http.Request) {
	names, err := s.store.Scopes(r.Context())
	if err != nil {
		s.internal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleInstances(w http.ResponseWriter, r *http.Request) {
	insts, err := s.store.Instances(r.Context(), r.PathValue("product"))
	if err != nil {
		s.internal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"integration_instances": insts})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var env action.Envelope
	if !decodeBody(w, r, &env) {
		return
	}
	if env.ActionName == "" || env.Properties.IntegrationInstance == "" {
		writeError(w, http.StatusBadRequest, "actionName and properties.IntegrationInstance are required")
		return
	}
	if !json.Valid([]byte(env.Properties.ScriptParametersEntityFields)) {
		writeError(w, http.StatusBadRequest, "ScriptParametersEntityFields must be a JSON document")
		return
	}
	if !s.activeInstance(r.Context(), env.Properties.IntegrationInstance) {
		writeError(w, http.StatusBadRequest, "Integration instance "+env.Properties.IntegrationInstance+" is not active")
		return
	}

	entities, _ := json.Marshal(env.TargetEntities)
	rec := Execution{
		Instance:       env.Properties.IntegrationInstance,
		Provider:       env.ActionProvider,
		ActionName:     env.ActionName,
		IsPredefined:   env.IsPredefinedScope,
		TargetEntities: entities,
		Parameters:     env.Properties.ScriptParametersEntityFields,
	}
	if env.CaseID != nil {
		rec.CaseID = fmt.Sprint(env.CaseID)
	}
	if env.Scope != nil {
		rec.Scope = *env.Scope
	}
	rec, err := s.store.RecordExecution(r.Context(), rec)
	if err != nil {
		s.internal(w, err)
		return
	}

	s.logger.Info("manual action executed", "action", rec.ActionName, "instance", rec.Instance, "case", rec.CaseID)
	writeJSON(w, http.StatusOK, map[string]any{
		"id":                  rec.ID,
		"actionName":          rec.ActionName,
		"integrationInstance": rec.Instance,
		"status":              "Completed",
		"resultValue":         true,
	})
}

func (s *Server) activeInstance(ctx context.Context, id string) bool {
	var active bool
	err := s.store.db.QueryRowContext(ctx,
		`SELECT is_active FROM integration_instances WHERE identifier = ?`, id).Scan(&active)
	return err == nil && active
}

func (s *Server) handleExecutions(w http.ResponseWriter, r *http.Request) {
	execs, err := s.store.Executions(r.Context())
	if err != nil {
		s.internal(w, err)
		return
	}
	if execs == nil {
		execs = []Execution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"executions": execs})
}

// --- cases ---

func (s *Server) caseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "case id must be numeric")
		return 0, false
	}
	if _, err := s.store.Case(r.Context(), id); err != nil {
		s.storeError(w, err)
		return 0, false
	}
	return id, true
}

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	cases, err := s.store.Cases(r.Context())
	if err != nil {
		s.internal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cases": cases, "nextPageToken": ""})
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	id, ok := s.caseID(w, r)
	if !ok {
		return
	}
	c, err := s.store.Case(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handlePatchCase(w http.ResponseWriter, r *http.Request) {
	id, ok := s.caseID(w, r)
	if !ok {
		return
	}
	var body struct {
		Priority string `json:"Priority"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if !strings.HasPrefix(body.Priority, "Priority") {
		writeError(w, http.StatusBadRequest, "invalid Priority "+strconv.Quote(body.Priority))
		return
	}
	if err := s.store.SetPriority(r.Context(), id, body.Priority); err != nil {
		s.storeError(w, err)
		return
	}
	c, err := s.store.Case(r.Context(), id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	id, ok := s.caseID(w, r)
	if !ok {
		return
	}
	comments, err := s.store.Comments(r.Context(), id)
	if err != nil {
		s.internal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"caseComments": comments})
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	id, ok := s.caseID(w, r)
	if !ok {
		return
	}
	var body struct {
		Comment string `json:"Comment"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if strings.TrimSpace(body.Comment) == "" {
		writeError(w, http.StatusBadRequest, "Comment is required")
		return
	}
	c, err := s.store.AddComment(r.Context(), id, body.Comment)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCaseAlerts(w http.ResponseWriter, r *http.Request) {
	id, ok := s.caseID(w, r)
	if !ok {
		return
	}
	alerts, err := s.store.Alerts(r.Context(), id)
	if err != nil {
		s.internal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"caseAlerts": alerts})
}

func (s *Server) handleInvolvedEvents(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.caseID(w, r); !ok {
		return
	}
	alert := r.PathValue("alert")
	writeJSON(w, http.StatusOK, map[string]any{
		"involvedEvents": []map[string]any{
			{"id": alert + "-evt-1", "name": "ProcessRollup", "product": "EDR"},
			{"id": alert + "-evt-2", "name": "NetworkConnect", "product": "EDR"},
		},
	})
}

func (s *Server) handleAlertEntities(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CaseID                string   `json:"caseId"`
		AlertGroupIdentifiers []string `json:"alertGroupIdentifiers"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	out := make([]map[string]any, 0, len(body.AlertGroupIdentifiers))
	for _, g := range body.AlertGroupIdentifiers {
		out = append(out, map[string]any{
			"alertGroupIdentifier": g,
			"entities": []map[string]any{
				{"identifier": "WS-0042", "type": "HOSTNAME"},
				{"identifier": "JDOE", "type": "USERUNIQNAME"},
			},
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEntityData(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EntityIdentifier  string `json:"EntityIdentifier"`
		EntityType        string `json:"EntityType"`
		EntityEnvironment string `json:"EntityEnvironment"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.EntityIdentifier == "" || body.EntityType == "" {
		writeError(w, http.StatusBadRequest, "EntityIdentifier and EntityType are required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identifier":   body.EntityIdentifier,
		"type":         body.EntityType,
		"environment":  body.EntityEnvironment,
		"isSuspicious": false,
		"isInternal":   true,
		"cases":        []any{},
	})
}

// handleEntitySearch has no entity table behind it; a term comes back as a
// single matching entity of the first requested type.
func (s *Server) handleEntitySearch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Term         *string  `json:"Term"`
		Type         []string `json:"Type"`
		IsSuspicious *bool    `json:"IsSuspicious"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	entities := []any{}
	if body.Term != nil && *body.Term != "" {
		typ := "HOSTNAME"
		if len(body.Type) > 0 {
			typ = body.Type[0]
		}
		entities = append(entities, map[string]any{
			"identifier":   *body.Term,
			"type":         typ,
			"environment":  defaultEnvironment,
			"isSuspicious": body.IsSuspicious != nil && *body.IsSuspicious,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"objectsList": entities, "metadata": map[string]any{"totalNumberOfObjects": len(entities)}})
}

// --- Falcon ---

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := r.ParseForm(); err != nil {
		writeFalconError(w, http.StatusBadRequest, "invalid form body")
		return
	}
	if !secretEqual(r.PostForm.Get("client_id"), s.creds.ClientID) ||
		!secretEqual(r.PostForm.Get("client_secret"), s.creds.ClientSecret) {
		writeFalconError(w, http.StatusBadRequest, "access denied, invalid client credentials")
		return
	}
	token, err := s.store.IssueToken(r.Context(), s.creds.ClientID, tokenTTL)
	if err != nil {
		s.internal(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"expires_in":   int(tokenTTL.Seconds()),
	})
}

var hostnameFilter = regexp.MustCompile(`device\.hostname:\*"\*([^*"]+)\*"`)

func (s *Server) handleAlertQuery(w http.ResponseWriter, r *http.Request) {
	m := hostnameFilter.FindStringSubmatch(r.URL.Query().Get("filter"))
	if m == nil {
		writeFalconError(w, http.StatusBadRequest, "filter must select device.hostname")
		return
	}
	ids, err := s.store.FalconAlertIDs(r.Context(), m[1])
	if err != nil {
		s.internal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"meta":      map[string]any{"pagination": map[string]any{"total": len(ids)}},
		"resources": ids,
		"errors":    []any{},
	})
}

func (s *Server) handleAlertEntitiesFalcon(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CompositeIDs []string `json:"composite_ids"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	docs, err := s.store.FalconAlerts(r.Context(), body.CompositeIDs)
	if err != nil {
		s.internal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resources": docs, "errors": []any{}})
}

// --- helpers ---

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "case not found")
		return
	}
	s.internal(w, err)
}

func (s *Server) internal(w http.ResponseWriter, err error) {
	s.logger.Error("sandbox request failed", "err", err)
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"errorCode": status, "errorMessage": msg, "message": msg})
}

func writeFalconError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{
		"errors":    []map[string]any{{"code": status, "message": msg}},
		"resources": []any{},
	})
}
