package database

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    user_key TEXT NOT NULL UNIQUE,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    last_login DATETIME,
    last_logout DATETIME,
    last_active DATETIME,
    password_updated_at DATETIME
);

CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_by TEXT NOT NULL REFERENCES users(user_key) ON DELETE CASCADE,
    nessus_file_name TEXT DEFAULT '',
    nessus_file_path TEXT DEFAULT '',
    scope_ips TEXT NOT NULL DEFAULT '[]',
    off_limit_ips TEXT NOT NULL DEFAULT '[]',
    allowed_exploits TEXT NOT NULL DEFAULT '[]',
    analysis_status TEXT DEFAULT '',
    analysis_result TEXT DEFAULT '',
    analysis_output_dir TEXT DEFAULT '',
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    last_analysis DATETIME,
    UNIQUE(created_by, name)
);

CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(created_by);
CREATE INDEX IF NOT EXISTS idx_projects_status ON projects(analysis_status);
`
