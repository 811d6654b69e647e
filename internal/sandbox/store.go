// Package sandbox is a local stand-in for the SOAR platform and the Falcon
// OAuth2 API, persisted in SQLite. It serves development and end-to-end
// tests; it implements only what the tools call.
package sandbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned for unknown cases.
var ErrNotFound = errors.New("not found")

// Store holds the sandbox backend state.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the database at dbPath. ":memory:" keeps everything
// in process.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	dsn := ":memory:"
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
		}
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection: SQLite serialises writers, and :memory: databases
	// are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// --- SOAR settings ---

func (s *Store) AddScope(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO scopes (name) VALUES (?)`, name)
	return err
}

func (s *Store) Scopes(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM scopes ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Instance is one configured integration instance.
type Instance struct {
	Identifier  string `json:"identifier"`
	Integration string `json:"integration"`
	Environment string `json:"environment"`
	IsActive    bool   `json:"isActive"`
}

const defaultEnvironment = "Default Environment"

// AddInstance stores inst, generating an identifier when it has none.
func (s *Store) AddInstance(ctx context.Context, inst Instance) (Instance, error) {
	if inst.Identifier == "" {
		inst.Identifier = uuid.NewString()
	}
	if inst.Environment == "" {
		inst.Environment = defaultEnvironment
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO integration_instances (identifier, integration, environment, is_active)
		 VALUES (?, ?, ?, ?)`,
		inst.Identifier, inst.Integration, inst.Environment, inst.IsActive,
	)
	return inst, err
}

// Instances lists the instances of integration in insertion order.
func (s *Store) Instances(ctx context.Context, integration string) ([]Instance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identifier, integration, environment, is_active FROM integration_instances
		 WHERE integration = ? COLLATE NOCASE ORDER BY rowid`, integration)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Instance{}
	for rows.Next() {
		var inst Instance
		if err := rows.Scan(&inst.Identifier, &inst.Integration, &inst.Environment, &inst.IsActive); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// Execution is one recorded manual action run.
type Execution struct {
	ID             string          `json:"id"`
	CaseID         string          `json:"caseId"`
	Instance       string          `json:"integrationInstance"`
	Provider       string          `json:"actionProvider"`
	ActionName     string          `json:"actionName"`
	Scope          string          `json:"scope,omitempty"`
	IsPredefined   bool            `json:"isPredefinedScope"`
	TargetEntities json.RawMessage `json:"targetEntities"`
	Parameters     string          `json:"scriptParametersEntityFields"`
	CreatedAt      time.Time       `json:"createdAt"`
}

func (s *Store) RecordExecution(ctx context.Context, e Execution) (Execution, error) {
	e.ID = uuid.NewString()
	e.CreatedAt = time.Now().UTC()
	if len(e.TargetEntities) == 0 {
		e.TargetEntities = json.RawMessage("[]")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (id, case_id, instance, provider, action_name, scope, is_predefined, target_entities, parameters, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CaseID, e.Instance, e.Provider, e.ActionName, e.Scope, e.IsPredefined,
		string(e.TargetEntities), e.Parameters, e.CreatedAt,
	)
	return e, err
}

// Executions returns recorded runs, oldest first.
func (s *Store) Executions(ctx context.Context) ([]Execution, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, case_id, instance, provider, action_name, scope, is_predefined, target_entities, parameters, created_at
		 FROM executions ORDER BY created_at, rowid`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		var e Execution
		var entities string
		if err := rows.Scan(&e.ID, &e.CaseID, &e.Instance, &e.Provider, &e.ActionName, &e.Scope,
			&e.IsPredefined, &entities, &e.Parameters, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.TargetEntities = json.RawMessage(entities)
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Cases ---

type Case struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Priority  string    `json:"priority"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createTime"`
}

type CaseAlert struct {
	ID                   int64  `json:"id"`
	CaseID               int64  `json:"caseId"`
	AlertGroupIdentifier string `json:"alertGroupIdentifier"`
	Name                 string `json:"name"`
}

type Comment struct {
	ID        int64     `json:"id"`
	CaseID    int64     `json:"caseId"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"createTime"`
}

func (s *Store) AddCase(ctx context.Context, title, priority string) (Case, error) {
	if priority == "" {
		priority = "PriorityMedium"
	}
	c := Case{Title: title, Priority: priority, Status: "Opened", CreatedAt: time.Now().UTC()}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO cases (title, priority, status, created_at) VALUES (?, ?, ?, ?)`,
		c.Title, c.Priority, c.Status, c.CreatedAt)
	if err != nil {
		return Case{}, err
	}
	c.ID, err = res.LastInsertId()
	return c, err
}

func (s *Store) Cases(ctx context.Context) ([]Case, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, priority, status, created_at FROM cases ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Case{}
	for rows.Next() {
		var c Case
		if err := rows.Scan(&c.ID, &c.Title, &c.Priority, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) Case(ctx context.Context, id int64) (Case, error) {
	var c Case
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, priority, status, created_at FROM cases WHERE id = ?`, id,
	).Scan(&c.ID, &c.Title, &c.Priority, &c.Status, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Case{}, ErrNotFound
	}
	return c, err
}

func (s *Store) SetPriority(ctx context.Context, id int64, priority string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE cases SET priority = ? WHERE id = ?`, priority, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) AddAlert(ctx context.Context, caseID int64, groupID, name string) (CaseAlert, error) {
	a := CaseAlert{CaseID: caseID, AlertGroupIdentifier: groupID, Name: name}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO case_alerts (case_id, alert_group_identifier, name) VALUES (?, ?, ?)`,
		caseID, groupID, name)
	if err != nil {
		return CaseAlert{}, err
	}
	a.ID, err = res.LastInsertId()
	return a, err
}

func (s *Store) Alerts(ctx context.Context, caseID int64) ([]CaseAlert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, case_id, alert_group_identifier, name FROM case_alerts WHERE case_id = ? ORDER BY id`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []CaseAlert{}
	for rows.Next() {
		var a CaseAlert
		if err := rows.Scan(&a.ID, &a.CaseID, &a.AlertGroupIdentifier, &a.Name); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) AddComment(ctx context.Context, caseID int64, text string) (Comment, error) {
	if _, err := s.Case(ctx, caseID); err != nil {
		return Comment{}, err
	}
	c := Comment{CaseID: caseID, Comment: text, CreatedAt: time.Now().UTC()}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO case_comments (case_id, comment, created_at) VALUES (?, ?, ?)`,
		caseID, text, c.CreatedAt)
	if err != nil {
		return Comment{}, err
	}
	c.ID, err = res.LastInsertId()
	return c, err
}

func (s *Store) Comments(ctx context.Context, caseID int64) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, case_id, comment, created_at FROM case_comments WHERE case_id = ? ORDER BY id`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Comment{}
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.CaseID, &c.Comment, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// --- OAuth2 and endpoint alerts ---

// IssueToken stores a fresh bearer token valid for ttl.
func (s *Store) IssueToken(ctx context.Context, clientID string, ttl time.Duration) (string, error) {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tokens (token, client_id, expires_at) VALUES (?, ?, ?)`,
		token, clientID, time.Now().Add(ttl).UTC())
	return token, err
}

// TokenValid reports whether token was issued and has not expired.
func (s *Store) TokenValid(ctx context.Context, token string) (bool, error) {
	var expires time.Time
	err := s.db.QueryRowContext(ctx, `SELECT expires_at FROM tokens WHERE token = ?`, token).Scan(&expires)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return time.Now().Before(expires), nil
}

// ExpireTokens invalidates every issued token.
func (s *Store) ExpireTokens(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tokens`)
	return err
}

// AddFalconAlert stores an alert document; hostname is read from
// device.hostname.
func (s *Store) AddFalconAlert(ctx context.Context, compositeID string, doc map[string]any) error {
	hostname := ""
	if dev, ok := doc["device"].(map[string]any); ok {
		hostname, _ = dev["hostname"].(string)
	}
	status, _ := doc["status"].(string)
	if status == "" {
		status = "new"
	}
	doc["status"] = status
	doc["composite_id"] = compositeID
	payload, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO falcon_alerts (composite_id, hostname, status, payload) VALUES (?, ?, ?, ?)`,
		compositeID, hostname, status, string(payload))
	return err
}

// FalconAlertIDs returns ids of alerts with status "new" whose hostname
// contains host, case-insensitively.
func (s *Store) FalconAlertIDs(ctx context.Context, host string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT composite_id FROM falcon_alerts
		 WHERE status = 'new' AND lower(hostname) LIKE '%' || lower(?) || '%'
		 ORDER BY composite_id`, host)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FalconAlerts returns the stored documents for ids, skipping unknown ones.
func (s *Store) FalconAlerts(ctx context.Context, ids []string) ([]map[string]any, error) {
	out := []map[string]any{}
	for _, id := range ids {
		var payload string
		err := s.db.QueryRowContext(ctx, `SELECT payload FROM falcon_alerts WHERE composite_id = ?`, id).Scan(&payload)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var doc map[string]any
		if err := json.Unmarshal([]byte(payload), &doc); err != nil {
			return nil, fmt.Errorf("alert %s: %w", id, err)
		}
		out = append(out, doc)
	}
	return out, nil
}
