package model

import "time"

// Defaults and bounds for credential search configuration.
const (
	DefaultSearchTimeframeDays = 90
	MinSearchTimeframeDays     = 1
	MaxSearchTimeframeDays     = 365
)

// EmailCredential is the stored configuration for one IMAP account. The
// password itself never lives here; it is written to the system keyring
// under the credential's ID and is never echoed back by any API response.
type EmailCredential struct {
	ID      string `json:"id" db:"id"`
	Address string `json:"address" db:"address"`
	Host    string `json:"host" db:"host"`
	Port    int    `json:"port" db:"port"`
	UseTLS  bool   `json:"use_tls" db:"use_tls"`

	// RejectUnauthorized mirrors the TLS verification switch: when false,
	// certificate errors from the mail server are ignored.
	RejectUnauthorized bool `json:"reject_unauthorized" db:"reject_unauthorized"`

	// SearchTimeframeDays bounds how far back a scan reaches (1-365).
	SearchTimeframeDays int `json:"search_timeframe_days" db:"search_timeframe_days"`

	// SearchFolders is the ordered list of mailbox folders to scan.
	SearchFolders []string `json:"search_folders" db:"-"`

	// LastImportAt is when a sync last completed for this account.
	LastImportAt *time.Time `json:"last_import_at" db:"last_import_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Normalize clamps the timeframe into its allowed range and applies the
// INBOX default when no folders are configured.
func (c *EmailCredential) Normalize() {
	if c.SearchTimeframeDays < MinSearchTimeframeDays {
		c.SearchTimeframeDays = DefaultSearchTimeframeDays
	}
	if c.SearchTimeframeDays > MaxSearchTimeframeDays {
		c.SearchTimeframeDays = MaxSearchTimeframeDays
	}
	if len(c.SearchFolders) == 0 {
		c.SearchFolders = []string{"INBOX"}
	}
}
