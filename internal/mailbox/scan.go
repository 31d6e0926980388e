package mailbox

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/mail"
)

// maxPartBytes caps how much of a single MIME part is read. Message
// bodies beyond this are truncated rather than buffered whole.
const maxPartBytes = 1 << 20

// bodySectionPeek fetches the full body without setting \Seen. The same
// descriptor is used to locate the section in fetched buffers.
var bodySectionPeek = &imap.FetchItemBodySection{Peek: true}

// Scanner is a lazy, forward-only iterator over the messages of a scan.
// It owns the IMAP connection handed to it by Client.Scan and walks the
// requested folders in order, streaming one message at a time:
//
//	sc, err := client.Scan(ctx, since, folders)
//	if err != nil { ... }
//	defer sc.Close()
//	for sc.Scan() {
//		msg := sc.Message()
//		...
//	}
//	if err := sc.Err(); err != nil { ... }
//
// A folder that fails to open or search is recorded in FolderErrors and
// skipped; it does not end the scan.
type Scanner struct {
	ctx     context.Context
	client  *imapclient.Client
	since   time.Time
	folders []string

	folderIdx  int
	current    string
	fetchCmd   *imapclient.FetchCommand
	msg        Message
	err        error
	scanned    int
	folderErrs map[string]string
}

// Scan advances to the next message. It returns false when all folders
// are exhausted or the context is done.
func (s *Scanner) Scan() bool {
	for {
		if s.err != nil {
			return false
		}
		if err := s.ctx.Err(); err != nil {
			s.err = err
			s.closeFetch()
			return false
		}

		if s.fetchCmd == nil {
			if !s.nextFolder() {
				return false
			}
			continue
		}

		data := s.fetchCmd.Next()
		if data == nil {
			s.closeFetch()
			continue
		}

		buf, err := data.Collect()
		if err != nil {
			// Skip messages the server could not deliver whole.
			continue
		}

		s.msg = messageFromBuffer(s.current, buf)
		return true
	}
}

// Message returns the message produced by the most recent call to Scan.
func (s *Scanner) Message() Message {
	return s.msg
}

// Err returns the error that ended the scan early, if any. Per-folder
// failures are reported via FolderErrors instead.
func (s *Scanner) Err() error {
	return s.err
}

// FoldersScanned returns how many folders were successfully opened and
// searched.
func (s *Scanner) FoldersScanned() int {
	return s.scanned
}

// FolderErrors returns the folders that failed to open or search, keyed
// by folder name.
func (s *Scanner) FolderErrors() map[string]string {
	return s.folderErrs
}

// Close releases the fetch in flight and logs out of the server.
func (s *Scanner) Close() error {
	s.closeFetch()
	return s.client.Logout().Wait()
}

// nextFolder selects and searches folders until one yields messages or
// the folder list runs out. It reports whether iteration can continue.
func (s *Scanner) nextFolder() bool {
	for s.folderIdx < len(s.folders) {
		folder := s.folders[s.folderIdx]
		s.folderIdx++

		if _, err := s.client.Select(folder, nil).Wait(); err != nil {
			s.folderErrs[folder] = err.Error()
			continue
		}

		criteria := &imap.SearchCriteria{Since: s.since}
		searchData, err := s.client.UIDSearch(criteria, nil).Wait()
		if err != nil {
			s.folderErrs[folder] = err.Error()
			continue
		}
		s.scanned++

		uids := searchData.AllUIDs()
		if len(uids) == 0 {
			continue
		}

		// Oldest first, so later updates overwrite earlier state.
		sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })

		fetchOpts := &imap.FetchOptions{
			Envelope:    true,
			UID:         true,
			BodySection: []*imap.FetchItemBodySection{bodySectionPeek},
		}

		s.current = folder
		s.fetchCmd = s.client.Fetch(imap.UIDSetNum(uids...), fetchOpts)
		return true
	}

	return false
}

func (s *Scanner) closeFetch() {
	if s.fetchCmd == nil {
		return
	}
	if err := s.fetchCmd.Close(); err != nil {
		s.folderErrs[s.current] = err.Error()
	}
	s.fetchCmd = nil
}

// messageFromBuffer builds a Message from a fetched buffer, parsing the
// MIME body into text and HTML parts.
func messageFromBuffer(
	folder string, buf *imapclient.FetchMessageBuffer,
) Message {
	msg := Message{
		Folder: folder,
		UID:    uint32(buf.UID),
	}

	if buf.Envelope != nil {
		msg.MessageID = buf.Envelope.MessageID
		msg.Subject = buf.Envelope.Subject
		msg.Date = buf.Envelope.Date

		if len(buf.Envelope.From) > 0 {
			from := buf.Envelope.From[0]
			msg.From = from.Name
			msg.FromAddress = from.Addr()
		}
	}

	if raw := buf.FindBodySection(bodySectionPeek); raw != nil {
		msg.TextBody, msg.HTMLBody = parseBody(raw)
	}

	return msg
}

// parseBody parses a raw RFC 2822 message using go-message and extracts
// the first text/plain and text/html inline parts.
func parseBody(raw []byte) (textBody, htmlBody string) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil {
		// If parsing fails, treat the whole thing as plain text.
		return string(raw), ""
	}
	defer mr.Close()

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := h.ContentType()
		body, readErr := io.ReadAll(io.LimitReader(part.Body, maxPartBytes))
		if readErr != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/plain"):
			if textBody == "" {
				textBody = string(body)
			}
		case strings.HasPrefix(contentType, "text/html"):
			if htmlBody == "" {
				htmlBody = string(body)
			}
		}
	}

	return textBody, htmlBody
}
