package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/collinmckay/vulnsuite/internal/exploits"
)

var (
	// ErrNotFound covers both a missing entity and one owned by another
	// user. Callers must not be able to tell the two apart.
	ErrNotFound      = errors.New("not found")
	ErrDuplicateName = errors.New("name already exists")
	ErrInvalidName   = errors.New("invalid name")
)

const projectColumns = `id, name, created_by, nessus_file_name, nessus_file_path,
	scope_ips, off_limit_ips, allowed_exploits,
	analysis_status, analysis_result, analysis_output_dir,
	created_at, last_analysis`

// --- Projects ---

// CreateProject validates and stores a new project. The id is generated
// here; unrecognized exploit labels are dropped silently.
func (db *DB) CreateProject(p *Project) error {
	if p.Name == "" || strings.ContainsFunc(p.Name, unicode.IsSpace) {
		return ErrInvalidName
	}
	p.AllowedExploits = exploits.Filter(p.AllowedExploits)

	var existing int
	err := db.QueryRow(
		`SELECT COUNT(*) FROM projects WHERE created_by = ? AND name = ?`,
		p.CreatedBy, p.Name,
	).Scan(&existing)
	if err != nil {
		return fmt.Errorf("check project name: %w", err)
	}
	if existing > 0 {
		return ErrDuplicateName
	}

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	_, err = db.Exec(
		`INSERT INTO projects (id, name, created_by, nessus_file_name, nessus_file_path,
			scope_ips, off_limit_ips, allowed_exploits, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.CreatedBy, p.NessusFileName, p.NessusFilePath,
		marshalStrings(p.ScopeIPs), marshalStrings(p.OffLimitIPs), marshalStrings(p.AllowedExploits),
		p.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrDuplicateName
		}
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (db *DB) GetProject(ownerKey, id string) (*Project, error) {
	row := db.QueryRow(
		`SELECT `+projectColumns+` FROM projects WHERE id = ? AND created_by = ?`,
		id, ownerKey,
	)
	p, err := scanProject(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (db *DB) ListProjects(ownerKey string) ([]Project, error) {
	return db.listProjects(
		`SELECT `+projectColumns+` FROM projects WHERE created_by = ? ORDER BY created_at DESC`,
		ownerKey,
	)
}

// ListAnalyzedProjects returns the owner's projects whose analysis has
// completed, most recently analyzed first.
func (db *DB) ListAnalyzedProjects(ownerKey string) ([]Project, error) {
	return db.listProjects(
		`SELECT `+projectColumns+` FROM projects
		 WHERE created_by = ? AND analysis_status = 'completed'
		 ORDER BY last_analysis DESC`,
		ownerKey,
	)
}

func (db *DB) listProjects(query string, args ...any) ([]Project, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// DeleteProject removes the store record only. File cleanup is the
// storage layer's follow-up step; callers must invoke both.
func (db *DB) DeleteProject(ownerKey, id string) error {
	res, err := db.Exec(`DELETE FROM projects WHERE id = ? AND created_by = ?`, id, ownerKey)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetAnalysisResult records a successful analysis run. Only the result
// fields are touched.
func (db *DB) SetAnalysisResult(id, result string, completedAt time.Time, outputDir string) error {
	_, err := db.Exec(
		`UPDATE projects SET analysis_status = 'completed', analysis_result = ?,
			last_analysis = ?, analysis_output_dir = ?
		 WHERE id = ?`,
		result, completedAt, outputDir, id,
	)
	if err != nil {
		return fmt.Errorf("set analysis result: %w", err)
	}
	return nil
}

// ListProjectRefs scans the whole store for the sweeper.
func (db *DB) ListProjectRefs() ([]ProjectRef, error) {
	rows, err := db.Query(`SELECT created_by, id, nessus_file_path FROM projects`)
	if err != nil {
		return nil, fmt.Errorf("list project refs: %w", err)
	}
	defer rows.Close()

	var refs []ProjectRef
	for rows.Next() {
		var ref ProjectRef
		if err := rows.Scan(&ref.OwnerKey, &ref.ProjectID, &ref.NessusFilePath); err != nil {
			return nil, fmt.Errorf("scan project ref: %w", err)
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// --- Users ---

func (db *DB) CreateUser(u *User) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now()
	}
	res, err := db.Exec(
		`INSERT INTO users (username, password_hash, user_key, created_at) VALUES (?, ?, ?, ?)`,
		u.Username, u.PasswordHash, u.UserKey, u.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrDuplicateName
		}
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID, _ = res.LastInsertId()
	return nil
}

func (db *DB) GetUserByUsername(username string) (*User, error) {
	return db.getUser(`SELECT id, username, password_hash, user_key, created_at, last_login, last_logout, last_active
		FROM users WHERE username = ?`, username)
}

func (db *DB) GetUserByKey(userKey string) (*User, error) {
	return db.getUser(`SELECT id, username, password_hash, user_key, created_at, last_login, last_logout, last_active
		FROM users WHERE user_key = ?`, userKey)
}

func (db *DB) getUser(query string, arg any) (*User, error) {
	u := &User{}
	err := db.QueryRow(query, arg).Scan(
		&u.ID, &u.Username, &u.PasswordHash, &u.UserKey,
		&u.CreatedAt, &u.LastLogin, &u.LastLogout, &u.LastActive,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (db *DB) UpdatePassword(userKey, passwordHash string) error {
	res, err := db.Exec(
		`UPDATE users SET password_hash = ?, password_updated_at = ? WHERE user_key = ?`,
		passwordHash, time.Now(), userKey,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) TouchLogin(username string) error {
	_, err := db.Exec(
		`UPDATE users SET last_login = ?, last_active = ? WHERE username = ?`,
		time.Now(), time.Now(), username,
	)
	return err
}

func (db *DB) TouchLogout(userKey string) error {
	_, err := db.Exec(
		`UPDATE users SET last_logout = ?, last_active = ? WHERE user_key = ?`,
		time.Now(), time.Now(), userKey,
	)
	return err
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*Project, error) {
	p := &Project{}
	var scopeIPs, offLimitIPs, allowedExploits string
	err := row.Scan(
		&p.ID, &p.Name, &p.CreatedBy, &p.NessusFileName, &p.NessusFilePath,
		&scopeIPs, &offLimitIPs, &allowedExploits,
		&p.AnalysisStatus, &p.AnalysisResult, &p.AnalysisOutputDir,
		&p.CreatedAt, &p.LastAnalysis,
	)
	if err != nil {
		return nil, err
	}
	p.ScopeIPs = unmarshalStrings(scopeIPs)
	p.OffLimitIPs = unmarshalStrings(offLimitIPs)
	p.AllowedExploits = unmarshalStrings(allowedExploits)
	return p, nil
}

func marshalStrings(values []string) string {
	if values == nil {
		values = []string{}
	}
	data, _ := json.Marshal(values)
	return string(data)
}

func unmarshalStrings(data string) []string {
	values := []string{}
	if data != "" {
		json.Unmarshal([]byte(data), &values)
	}
	return values
}
