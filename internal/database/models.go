package database

import "time"

type User struct {
	ID           int64      `json:"-"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	UserKey      string     `json:"userKey"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	LastLogout   *time.Time `json:"lastLogout,omitempty"`
	LastActive   *time.Time `json:"lastActive,omitempty"`
}

type Project struct {
	ID                string     `json:"id"`
	Name              string     `json:"name"`
	CreatedBy         string     `json:"createdBy"`
	NessusFileName    string     `json:"nessusFileName,omitempty"`
	NessusFilePath    string     `json:"nessusFilePath,omitempty"`
	ScopeIPs          []string   `json:"scopeIPs"`
	OffLimitIPs       []string   `json:"offLimitIPs"`
	AllowedExploits   []string   `json:"allowedExploits"`
	AnalysisStatus    string     `json:"analysisStatus,omitempty"`
	AnalysisResult    string     `json:"analysisResult,omitempty"`
	AnalysisOutputDir string     `json:"analysisOutputDir,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	LastAnalysis      *time.Time `json:"lastAnalysis,omitempty"`
}

// ProjectRef is the minimal ownership record the storage sweeper needs
// to distinguish live files from orphans.
type ProjectRef struct {
	OwnerKey       string
	ProjectID      string
	NessusFilePath string
}
