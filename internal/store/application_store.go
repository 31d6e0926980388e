package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/beastmp/job-tracking/internal/model"
)

const applicationColumns = `id, job_title, company, company_location, applied_at,
	responded_at, response, external_job_id, website, description, wages,
	employment_type, location_type, created_at, updated_at`

// CreateApplication inserts a new application record. A missing ID or
// response status is filled with defaults.
func (s *SQLiteStore) CreateApplication(ctx context.Context, app *model.Application) error {
	if app.ID == "" {
		app.ID = uuid.New().String()
	}
	if app.Response == "" {
		app.Response = model.ResponseNone
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO applications (
			id, job_title, company, company_location, applied_at,
			responded_at, response, external_job_id, website, description,
			wages, employment_type, location_type, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		app.ID, app.JobTitle, app.Company, app.CompanyLocation,
		app.AppliedAt.UTC(), nullableTime(app.RespondedAt), app.Response,
		app.ExternalJobID, app.Website, app.Description,
		app.Wages, app.EmploymentType, app.LocationType,
		app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting application %s: %w", app.ID, err)
	}

	return nil
}

// UpdateApplication replaces every mutable field of an existing record.
func (s *SQLiteStore) UpdateApplication(ctx context.Context, app *model.Application) error {
	app.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE applications SET
			job_title = ?, company = ?, company_location = ?, applied_at = ?,
			responded_at = ?, response = ?, external_job_id = ?, website = ?,
			description = ?, wages = ?, employment_type = ?, location_type = ?,
			updated_at = ?
		WHERE id = ?`,
		app.JobTitle, app.Company, app.CompanyLocation, app.AppliedAt.UTC(),
		nullableTime(app.RespondedAt), app.Response, app.ExternalJobID,
		app.Website, app.Description, app.Wages, app.EmploymentType,
		app.LocationType, app.UpdatedAt, app.ID,
	)
	if err != nil {
		return fmt.Errorf("updating application %s: %w", app.ID, err)
	}

	return requireRow(res, app.ID)
}

// GetApplicationByID retrieves a single application with its status checks.
func (s *SQLiteStore) GetApplicationByID(ctx context.Context, id string) (*model.Application, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT "+applicationColumns+" FROM applications WHERE id = ?", id)

	app, err := scanApplication(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting application %s: %w", id, err)
	}

	checks, err := s.GetStatusChecks(ctx, id)
	if err != nil {
		return nil, err
	}
	app.StatusChecks = checks

	return &app, nil
}

// GetApplications retrieves applications matching the provided filter,
// ordered by application date ascending.
func (s *SQLiteStore) GetApplications(ctx context.Context, opts ApplicationFilter) ([]model.Application, error) {
	var conditions []string
	var args []interface{}

	if opts.Company != nil {
		conditions = append(conditions, "company = ? COLLATE NOCASE")
		args = append(args, *opts.Company)
	}
	if opts.Response != nil {
		conditions = append(conditions, "response = ?")
		args = append(args, *opts.Response)
	}

	query := "SELECT " + applicationColumns + " FROM applications"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY applied_at ASC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", opts.Offset)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying applications: %w", err)
	}
	defer rows.Close()

	var apps []model.Application
	for rows.Next() {
		app, err := scanApplicationRows(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}

	return apps, rows.Err()
}

// DeleteApplication removes an application; its status checks cascade.
func (s *SQLiteStore) DeleteApplication(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM applications WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting application %s: %w", id, err)
	}
	return requireRow(res, id)
}

// UpdateResponse sets the response status and timestamp for a record.
func (s *SQLiteStore) UpdateResponse(ctx context.Context, id, response string, respondedAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE applications SET response = ?, responded_at = ?, updated_at = ?
		WHERE id = ?`,
		response, respondedAt.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating response for %s: %w", id, err)
	}
	return requireRow(res, id)
}

// UpdateEnrichment writes the scraped page fields onto a record.
func (s *SQLiteStore) UpdateEnrichment(ctx context.Context, id string, e Enrichment) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE applications SET
			description = ?, wages = ?, employment_type = ?, location_type = ?,
			updated_at = ?
		WHERE id = ?`,
		e.Description, e.Wages, e.EmploymentType, e.LocationType,
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating enrichment for %s: %w", id, err)
	}
	return requireRow(res, id)
}

// ListPendingEnrichment returns applications that carry a website but no
// description yet, oldest first. This is the reconciliation source for the
// enrichment queue after a restart.
func (s *SQLiteStore) ListPendingEnrichment(ctx context.Context) ([]model.Application, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT "+applicationColumns+` FROM applications
		 WHERE website != '' AND description = ''
		 ORDER BY applied_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying pending enrichments: %w", err)
	}
	defer rows.Close()

	var apps []model.Application
	for rows.Next() {
		app, err := scanApplicationRows(rows)
		if err != nil {
			return nil, err
		}
		apps = append(apps, app)
	}

	return apps, rows.Err()
}

// AddStatusCheck appends a status-check event to an application. Re-adding
// a check with the same application and timestamp is a no-op, so repeated
// imports of the same mailbox stay idempotent.
func (s *SQLiteStore) AddStatusCheck(ctx context.Context, check model.StatusCheck) error {
	if check.ID == "" {
		check.ID = uuid.New().String()
	}

	var existing int
	err := s.db.GetContext(ctx, &existing,
		"SELECT COUNT(*) FROM status_checks WHERE application_id = ? AND checked_at = ?",
		check.ApplicationID, check.CheckedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("checking status history: %w", err)
	}
	if existing > 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO status_checks (id, application_id, checked_at, notes)
		VALUES (?, ?, ?, ?)`,
		check.ID, check.ApplicationID, check.CheckedAt.UTC(), check.Notes,
	)
	if err != nil {
		return fmt.Errorf("inserting status check: %w", err)
	}

	return nil
}

// GetStatusChecks retrieves the status history for an application,
// oldest first.
func (s *SQLiteStore) GetStatusChecks(ctx context.Context, applicationID string) ([]model.StatusCheck, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT id, application_id, checked_at, notes FROM status_checks
		WHERE application_id = ? ORDER BY checked_at ASC`, applicationID)
	if err != nil {
		return nil, fmt.Errorf("querying status checks: %w", err)
	}
	defer rows.Close()

	var checks []model.StatusCheck
	for rows.Next() {
		var c model.StatusCheck
		if err := rows.Scan(&c.ID, &c.ApplicationID, &c.CheckedAt, &c.Notes); err != nil {
			return nil, fmt.Errorf("scanning status check: %w", err)
		}
		checks = append(checks, c)
	}

	return checks, rows.Err()
}

// scanApplication scans an application from a single sqlx.Row.
func scanApplication(row *sqlx.Row) (model.Application, error) {
	var (
		app         model.Application
		respondedAt sql.NullTime
	)

	err := row.Scan(
		&app.ID, &app.JobTitle, &app.Company, &app.CompanyLocation,
		&app.AppliedAt, &respondedAt, &app.Response, &app.ExternalJobID,
		&app.Website, &app.Description, &app.Wages, &app.EmploymentType,
		&app.LocationType, &app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		return model.Application{}, err
	}

	if respondedAt.Valid {
		t := respondedAt.Time
		app.RespondedAt = &t
	}

	return app, nil
}

// scanApplicationRows scans an application from a sqlx.Rows result set.
func scanApplicationRows(rows *sqlx.Rows) (model.Application, error) {
	var (
		app         model.Application
		respondedAt sql.NullTime
	)

	err := rows.Scan(
		&app.ID, &app.JobTitle, &app.Company, &app.CompanyLocation,
		&app.AppliedAt, &respondedAt, &app.Response, &app.ExternalJobID,
		&app.Website, &app.Description, &app.Wages, &app.EmploymentType,
		&app.LocationType, &app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		return model.Application{}, fmt.Errorf("scanning application row: %w", err)
	}

	if respondedAt.Valid {
		t := respondedAt.Time
		app.RespondedAt = &t
	}

	return app, nil
}

// nullableTime converts an optional time to its SQL representation.
func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// requireRow converts a zero-rows-affected update into ErrNotFound.
func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
