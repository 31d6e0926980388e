// Package mailbox connects to IMAP servers and produces parsed messages
// for the ingestion pipeline.
package mailbox

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/beastmp/job-tracking/internal/model"
)

// ConnectionError indicates that dialing, TLS negotiation, or
// authentication against the mailbox server failed. Scans abort with no
// partial results when this is returned.
type ConnectionError struct {
	Addr    string
	Message string
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mailbox connection (%s): %s", e.Addr, e.Message)
}

// IsConnectionError reports whether err (or any error in its chain) is a
// ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// Client opens IMAP sessions for one email credential. The password is
// supplied separately because credentials never carry their secret.
type Client struct {
	cred     model.EmailCredential
	password string
}

// NewClient creates a mailbox client for the given credential.
func NewClient(cred model.EmailCredential, password string) *Client {
	return &Client{cred: cred, password: password}
}

func (c *Client) addr() string {
	return net.JoinHostPort(c.cred.Host, strconv.Itoa(c.cred.Port))
}

// connect dials the IMAP server, negotiates TLS, and authenticates.
// The caller is responsible for calling Logout on the returned client.
func (c *Client) connect(_ context.Context) (*imapclient.Client, error) {
	addr := c.addr()

	tlsConfig := &tls.Config{
		ServerName:         c.cred.Host,
		InsecureSkipVerify: !c.cred.RejectUnauthorized,
	}
	options := &imapclient.Options{TLSConfig: tlsConfig}

	var client *imapclient.Client
	var err error

	if c.cred.UseTLS {
		client, err = imapclient.DialTLS(addr, options)
	} else {
		client, err = imapclient.DialStartTLS(addr, options)
	}
	if err != nil {
		return nil, &ConnectionError{Addr: addr, Message: err.Error()}
	}

	if err := client.Login(c.cred.Address, c.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &ConnectionError{
			Addr: addr,
			Message: fmt.Sprintf(
				"authentication failed for %s: %v", c.cred.Address, err,
			),
		}
	}

	return client, nil
}

// ListFolders returns the names of all selectable folders visible to the
// account. An empty mailbox yields an empty slice, not an error.
func (c *Client) ListFolders(ctx context.Context) ([]string, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	mailboxes, err := client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}

	folders := make([]string, 0, len(mailboxes))
	for _, mbox := range mailboxes {
		if hasAttr(mbox.Attrs, imap.MailboxAttrNoSelect) {
			continue
		}
		folders = append(folders, mbox.Mailbox)
	}

	return folders, nil
}

// Scan connects to the server and returns a forward-only iterator over
// the messages received since the given date, walking folders in the
// order given. Connection and authentication failures surface here;
// per-folder failures are recorded on the scanner and skipped.
func (c *Client) Scan(
	ctx context.Context, since time.Time, folders []string,
) (*Scanner, error) {
	client, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	return &Scanner{
		ctx:        ctx,
		client:     client,
		since:      since,
		folders:    folders,
		folderErrs: make(map[string]string),
	}, nil
}

func hasAttr(attrs []imap.MailboxAttr, want imap.MailboxAttr) bool {
	for _, attr := range attrs {
		if attr == want {
			return true
		}
	}
	return false
}
