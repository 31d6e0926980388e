package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/beastmp/job-tracking/internal/model"
)

const credentialColumns = `id, address, host, port, use_tls, reject_unauthorized,
	search_timeframe_days, search_folders, last_import_at, created_at, updated_at`

// CreateCredential inserts a new email credential configuration. The
// password is never stored here; it lives in the system keyring.
func (s *SQLiteStore) CreateCredential(ctx context.Context, cred *model.EmailCredential) error {
	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}
	cred.Normalize()

	folders, err := json.Marshal(cred.SearchFolders)
	if err != nil {
		return fmt.Errorf("marshaling search folders: %w", err)
	}

	now := time.Now().UTC()
	cred.CreatedAt = now
	cred.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO email_credentials (
			id, address, host, port, use_tls, reject_unauthorized,
			search_timeframe_days, search_folders, last_import_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cred.ID, cred.Address, cred.Host, cred.Port,
		boolToInt(cred.UseTLS), boolToInt(cred.RejectUnauthorized),
		cred.SearchTimeframeDays, string(folders),
		nullableTime(cred.LastImportAt), cred.CreatedAt, cred.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting credential %s: %w", cred.ID, err)
	}

	return nil
}

// UpdateCredential replaces the mutable fields of a credential config.
func (s *SQLiteStore) UpdateCredential(ctx context.Context, cred *model.EmailCredential) error {
	cred.Normalize()

	folders, err := json.Marshal(cred.SearchFolders)
	if err != nil {
		return fmt.Errorf("marshaling search folders: %w", err)
	}

	cred.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE email_credentials SET
			address = ?, host = ?, port = ?, use_tls = ?,
			reject_unauthorized = ?, search_timeframe_days = ?,
			search_folders = ?, updated_at = ?
		WHERE id = ?`,
		cred.Address, cred.Host, cred.Port, boolToInt(cred.UseTLS),
		boolToInt(cred.RejectUnauthorized), cred.SearchTimeframeDays,
		string(folders), cred.UpdatedAt, cred.ID,
	)
	if err != nil {
		return fmt.Errorf("updating credential %s: %w", cred.ID, err)
	}

	return requireRow(res, cred.ID)
}

// GetCredentialByID retrieves a single credential configuration.
func (s *SQLiteStore) GetCredentialByID(ctx context.Context, id string) (*model.EmailCredential, error) {
	row := s.db.QueryRowxContext(ctx,
		"SELECT "+credentialColumns+" FROM email_credentials WHERE id = ?", id)

	cred, err := scanCredential(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting credential %s: %w", id, err)
	}

	return &cred, nil
}

// GetCredentials retrieves all credential configurations.
func (s *SQLiteStore) GetCredentials(ctx context.Context) ([]model.EmailCredential, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT "+credentialColumns+" FROM email_credentials ORDER BY address")
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}
	defer rows.Close()

	var creds []model.EmailCredential
	for rows.Next() {
		cred, err := scanCredential(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning credential row: %w", err)
		}
		creds = append(creds, cred)
	}

	return creds, rows.Err()
}

// DeleteCredential removes a credential configuration.
func (s *SQLiteStore) DeleteCredential(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM email_credentials WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting credential %s: %w", id, err)
	}
	return requireRow(res, id)
}

// SetLastImport records the completion time of a successful sync.
func (s *SQLiteStore) SetLastImport(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE email_credentials SET last_import_at = ?, updated_at = ?
		WHERE id = ?`,
		at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("setting last import for %s: %w", id, err)
	}
	return requireRow(res, id)
}

// scanCredential scans a credential using the given row scan function.
func scanCredential(scan func(dest ...interface{}) error) (model.EmailCredential, error) {
	var (
		cred         model.EmailCredential
		useTLS       int
		rejectUnauth int
		folders      string
		lastImport   sql.NullTime
	)

	err := scan(
		&cred.ID, &cred.Address, &cred.Host, &cred.Port,
		&useTLS, &rejectUnauth, &cred.SearchTimeframeDays,
		&folders, &lastImport, &cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		return model.EmailCredential{}, err
	}

	cred.UseTLS = useTLS != 0
	cred.RejectUnauthorized = rejectUnauth != 0

	if folders != "" {
		if err := json.Unmarshal([]byte(folders), &cred.SearchFolders); err != nil {
			return model.EmailCredential{}, fmt.Errorf("unmarshaling search folders: %w", err)
		}
	}

	if lastImport.Valid {
		t := lastImport.Time
		cred.LastImportAt = &t
	}

	return cred, nil
}
