package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS applications (
	id               TEXT PRIMARY KEY,
	job_title        TEXT NOT NULL,
	company          TEXT NOT NULL,
	company_location TEXT NOT NULL DEFAULT '',
	applied_at       DATETIME NOT NULL,
	responded_at     DATETIME,
	response         TEXT NOT NULL DEFAULT 'No Response',
	external_job_id  TEXT NOT NULL DEFAULT '',
	website          TEXT NOT NULL DEFAULT '',
	description      TEXT NOT NULL DEFAULT '',
	wages            TEXT NOT NULL DEFAULT '',
	employment_type  TEXT NOT NULL DEFAULT '',
	location_type    TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL,
	updated_at       DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS status_checks (
	id             TEXT PRIMARY KEY,
	application_id TEXT NOT NULL REFERENCES applications(id) ON DELETE CASCADE,
	checked_at     DATETIME NOT NULL,
	notes          TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS email_credentials (
	id                    TEXT PRIMARY KEY,
	address               TEXT NOT NULL,
	host                  TEXT NOT NULL,
	port                  INTEGER NOT NULL DEFAULT 993,
	use_tls               INTEGER NOT NULL DEFAULT 1,
	reject_unauthorized   INTEGER NOT NULL DEFAULT 1,
	search_timeframe_days INTEGER NOT NULL DEFAULT 90,
	search_folders        TEXT NOT NULL DEFAULT '["INBOX"]',
	last_import_at        DATETIME,
	created_at            DATETIME NOT NULL,
	updated_at            DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_applications_external_job_id ON applications(external_job_id);
CREATE INDEX IF NOT EXISTS idx_applications_company_title ON applications(company COLLATE NOCASE, job_title COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_applications_website ON applications(website);
CREATE INDEX IF NOT EXISTS idx_status_checks_application ON status_checks(application_id);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}
