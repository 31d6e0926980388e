// Package classify maps scanned mailbox messages to candidate items.
//
// The rules here are a replaceable heuristic: anything implementing
// Classifier can be swapped in, and the fixture set in the package tests
// documents the shapes the default rules recognize.
package classify

import (
	"strings"

	"github.com/beastmp/job-tracking/internal/mailbox"
	"github.com/beastmp/job-tracking/internal/model"
)

// Classifier turns one mailbox message into at most one candidate item.
// Implementations must be pure: no I/O, deterministic for the same
// message content. Returning nil discards the message.
type Classifier interface {
	Classify(msg mailbox.Message) *model.CandidateItem
}

// RuleClassifier classifies messages with fixed phrase tables over the
// subject and body. Responses are checked before status updates and
// applications because rejection and offer mails routinely quote the
// "thank you for applying" boilerplate of the mails they answer.
type RuleClassifier struct{}

// NewRuleClassifier creates the default phrase-table classifier.
func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

// responsePhrases maps response statuses to the phrases that signal
// them. A message matching phrases from more than one status is
// ambiguous and gets discarded rather than guessed.
var responsePhrases = []struct {
	value   string
	phrases []string
}{
	{model.ResponseOffer, []string{
		"pleased to offer",
		"excited to offer",
		"extend an offer",
		"offer of employment",
		"your offer letter",
	}},
	{model.ResponseWithdrawn, []string{
		"withdrawn your application",
		"application has been withdrawn",
		"you withdrew",
	}},
	{model.ResponseAssessment, []string{
		"online assessment",
		"coding challenge",
		"take-home assignment",
		"complete the assessment",
		"hackerrank",
		"codility",
	}},
	{model.ResponseInterview, []string{
		"invite you to interview",
		"invite you to an interview",
		"schedule an interview",
		"schedule your interview",
		"interview invitation",
		"would like to interview you",
	}},
	{model.ResponseRejected, []string{
		"not moving forward",
		"not to move forward",
		"will not be moving forward",
		"decided to move forward with other",
		"regret to inform",
		"unfortunately",
		"pursue other candidates",
		"other qualified candidates",
		"no longer under consideration",
	}},
}

var statusUpdatePhrases = []string{
	"application was viewed",
	"application is under review",
	"application is being reviewed",
	"update on your application",
	"your application status",
	"application status update",
	"still reviewing your application",
	"is reviewing your application",
}

var applicationPhrases = []string{
	"application was sent to",
	"application was submitted",
	"application has been submitted",
	"application received",
	"we received your application",
	"we have received your application",
	"thank you for applying",
	"thanks for applying",
	"successfully applied",
}

// Classify applies the phrase tables and extracts candidate fields.
func (c *RuleClassifier) Classify(msg mailbox.Message) *model.CandidateItem {
	if msg.Date.IsZero() {
		return nil
	}

	content := strings.ToLower(msg.Subject + "\n" + msg.Text())

	if value, ok := matchResponse(content); ok {
		return buildCandidate(msg, model.CandidateResponse, value)
	}
	if matchAny(content, statusUpdatePhrases) {
		return buildCandidate(msg, model.CandidateStatusUpdate, "")
	}
	if matchAny(content, applicationPhrases) {
		return buildCandidate(msg, model.CandidateApplication, "")
	}

	return nil
}

// matchResponse reports the single response status whose phrases match
// the content. Zero matches or matches across two statuses return false.
func matchResponse(content string) (string, bool) {
	matched := ""
	for _, group := range responsePhrases {
		if !matchAny(content, group.phrases) {
			continue
		}
		if matched != "" {
			return "", false
		}
		matched = group.value
	}
	return matched, matched != ""
}

func matchAny(content string, phrases []string) bool {
	for _, phrase := range phrases {
		if strings.Contains(content, phrase) {
			return true
		}
	}
	return false
}

// buildCandidate extracts the structured fields for a typed candidate.
// Extraction failures discard the message: an application needs both a
// company and a title to create a record, and updates or responses need
// either an external id or a company+title pair to ever match one.
func buildCandidate(
	msg mailbox.Message,
	typ model.CandidateType,
	responseValue string,
) *model.CandidateItem {
	text := msg.Text()
	company := extractCompany(msg, text)
	title := extractTitle(msg.Subject, text)
	externalID := extractExternalID(msg, text)

	if typ == model.CandidateApplication {
		if company == "" || title == "" {
			return nil
		}
	} else if externalID == "" && (company == "" || title == "") {
		return nil
	}

	item := &model.CandidateItem{
		Type:            typ,
		JobTitle:        title,
		Company:         company,
		CompanyLocation: extractLocation(text, company),
		Date:            msg.Date.UTC(),
		ResponseValue:   responseValue,
		ExternalJobID:   externalID,
		SourceMessageID: msg.SourceID(),
	}

	switch typ {
	case model.CandidateApplication:
		item.Website = extractWebsite(msg, text)
	case model.CandidateStatusUpdate:
		item.Notes = strings.TrimSpace(msg.Subject)
	}

	return item
}
