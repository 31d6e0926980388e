package mailbox

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// Message holds the parsed content of one mailbox message.
type Message struct {
	Folder      string
	UID         uint32
	MessageID   string
	Subject     string
	From        string // display name of the first sender, if any
	FromAddress string // addr-spec of the first sender
	Date        time.Time
	TextBody    string
	HTMLBody    string
}

// Text returns the plain-text body, falling back to a text rendering of
// the HTML body when no text/plain part was present.
func (m Message) Text() string {
	if m.TextBody != "" {
		return m.TextBody
	}
	return htmlToText(m.HTMLBody)
}

// SourceID identifies the message across scans. It prefers the RFC 5322
// Message-ID and falls back to the folder-scoped UID when the header is
// missing.
func (m Message) SourceID() string {
	if m.MessageID != "" {
		return m.MessageID
	}
	return fmt.Sprintf("%s/%d", m.Folder, m.UID)
}

// htmlToText extracts the visible text of an HTML document, collapsing
// all whitespace runs to single spaces.
func htmlToText(htmlBody string) string {
	if htmlBody == "" {
		return ""
	}

	z := html.NewTokenizer(strings.NewReader(htmlBody))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			words := strings.Fields(b.String())
			return strings.Join(words, " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if tag := string(name); tag == "script" || tag == "style" {
				if skip > 0 {
					skip--
				}
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			t := strings.TrimSpace(string(z.Text()))
			if t != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(t)
			}
		}
	}
}
