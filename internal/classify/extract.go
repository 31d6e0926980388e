package classify

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/beastmp/job-tracking/internal/mailbox"
)

var companySubjectPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)application (?:was )?(?:sent|submitted) to ([^,!.]+)`),
	regexp.MustCompile(`(?i)(?:thank you|thanks) for applying (?:to|at) ([^,!.]+)`),
	regexp.MustCompile(`(?i)your application (?:to|at|with) ([^,!.]+?)(?: for .+)?$`),
	regexp.MustCompile(`(?i)your interest in (?:joining )?([^,!.]+)`),
	regexp.MustCompile(`(?i) at ([^,!.]+)$`),
}

var companyBodyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)application was sent to ([^,!.\n]+)`),
	regexp.MustCompile(`(?im)^company\s*[:\-]\s*(.+)$`),
	regexp.MustCompile(`(?i)your interest in (?:joining )?([^,!.\n]+)`),
	regexp.MustCompile(`(?i)position (?:at|with) ([^,!.\n]+)`),
}

var titlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)for (?:the )?(.+?) (?:position|role|opening)`),
	regexp.MustCompile(`(?i)(?:application|applying|applied|received|interest) for (.+?)(?: at | with |[,!.]|$)`),
	regexp.MustCompile(`(?i)for (.+?) at `),
}

var titleBodyPattern = regexp.MustCompile(`(?im)^(?:position|role|job title)\s*[:\-]\s*(.+)$`)

var linkedinJobPattern = regexp.MustCompile(`linkedin\.com/jobs/view/(\d+)`)

var externalIDPatterns = []*regexp.Regexp{
	linkedinJobPattern,
	regexp.MustCompile(`greenhouse\.io/[\w-]+/jobs/(\d+)`),
	regexp.MustCompile(`jobs\.lever\.co/[\w-]+/([0-9a-fA-F-]{16,})`),
	regexp.MustCompile(`(?i)job\s*(?:id|ref(?:erence)?)\s*[:#]?\s*([A-Za-z0-9_-]{3,})`),
}

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

// postingLinkPrefixes identify URLs that point at an actual job posting
// rather than tracking or unsubscribe links.
var postingLinkPrefixes = []string{
	"linkedin.com/jobs/view/",
	"greenhouse.io/",
	"jobs.lever.co/",
	"myworkdayjobs.com/",
	"indeed.com/viewjob",
}

// jobBoards are sender names that identify the platform, not the
// employer. A display name containing one of these never yields a
// company.
var jobBoards = []string{
	"linkedin", "indeed", "glassdoor", "ziprecruiter", "monster",
	"workday", "greenhouse", "lever", "smartrecruiters", "jobvite",
	"icims", "no-reply", "noreply", "do-not-reply",
}

// senderNoise are trailing display-name words that describe the sending
// department rather than the employer.
var senderNoise = map[string]bool{
	"careers":       true,
	"recruiting":    true,
	"recruitment":   true,
	"talent":        true,
	"acquisition":   true,
	"team":          true,
	"hiring":        true,
	"jobs":          true,
	"hr":            true,
	"notifications": true,
}

// extractCompany finds the employer name, trying the subject, then the
// body, then the sender's display name.
func extractCompany(msg mailbox.Message, text string) string {
	for _, re := range companySubjectPatterns {
		if m := re.FindStringSubmatch(msg.Subject); m != nil {
			if company := cleanCompany(m[1]); company != "" {
				return company
			}
		}
	}
	for _, re := range companyBodyPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if company := cleanCompany(m[1]); company != "" {
				return company
			}
		}
	}
	return companyFromSender(msg.From)
}

func cleanCompany(s string) string {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	if lower := strings.ToLower(s); strings.HasPrefix(lower, "the ") {
		s = s[len("the "):]
	}
	for _, suffix := range []string{" team", " careers", " recruiting"} {
		if lower := strings.ToLower(s); strings.HasSuffix(lower, suffix) {
			s = s[:len(s)-len(suffix)]
		}
	}
	s = strings.TrimSpace(s)
	if len(s) < 2 || len(s) > 80 {
		return ""
	}
	return s
}

// companyFromSender derives the employer from a display name such as
// "Acme Careers" or "Acme via LinkedIn". Platform senders yield nothing.
func companyFromSender(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	if idx := strings.Index(strings.ToLower(name), " via "); idx >= 0 {
		name = name[:idx]
	}

	lower := strings.ToLower(name)
	for _, board := range jobBoards {
		if strings.Contains(lower, board) {
			return ""
		}
	}

	words := strings.Fields(name)
	for len(words) > 1 {
		last := strings.ToLower(strings.Trim(words[len(words)-1], ",.-"))
		if !senderNoise[last] {
			break
		}
		words = words[:len(words)-1]
	}

	return cleanCompany(strings.Join(words, " "))
}

// extractTitle finds the position name, trying the subject line first.
func extractTitle(subject, text string) string {
	for _, re := range titlePatterns {
		if m := re.FindStringSubmatch(subject); m != nil {
			if title := cleanTitle(m[1]); title != "" {
				return title
			}
		}
	}
	if m := titleBodyPattern.FindStringSubmatch(text); m != nil {
		if title := cleanTitle(m[1]); title != "" {
			return title
		}
	}
	for _, re := range titlePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			if title := cleanTitle(m[1]); title != "" {
				return title
			}
		}
	}
	return ""
}

func cleanTitle(s string) string {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	if lower := strings.ToLower(s); strings.HasPrefix(lower, "the ") {
		s = s[len("the "):]
	}
	s = strings.TrimSpace(s)
	if len(s) < 2 || len(s) > 100 {
		return ""
	}
	return s
}

// extractExternalID pulls a job-board posting id from links or an
// explicit "Job ID:" marker.
func extractExternalID(msg mailbox.Message, text string) string {
	for _, re := range externalIDPatterns {
		if id := firstMatch(re, msg.HTMLBody, text); id != "" {
			return id
		}
	}
	return ""
}

// extractWebsite finds the posting URL for an application candidate.
// LinkedIn postings are canonicalized to shed tracking parameters.
func extractWebsite(msg mailbox.Message, text string) string {
	if id := firstMatch(linkedinJobPattern, msg.HTMLBody, text); id != "" {
		return "https://www.linkedin.com/jobs/view/" + id + "/"
	}

	for _, link := range extractLinks(msg.HTMLBody) {
		if isPostingLink(link) {
			return link
		}
	}

	for _, link := range urlPattern.FindAllString(text, -1) {
		if isPostingLink(link) {
			return strings.TrimRight(link, ".,)")
		}
	}

	return ""
}

// extractLocation looks for the "Company · Location" line that job-board
// confirmations carry under the position name.
func extractLocation(text, company string) string {
	if company == "" {
		return ""
	}

	re := regexp.MustCompile(
		`(?i)` + regexp.QuoteMeta(company) + `\s*[·|]\s*([^·|\n]+)`,
	)
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}

	loc := m[1]
	for _, stop := range []string{" applied", " posted", " view", " your"} {
		if idx := strings.Index(strings.ToLower(loc), stop); idx >= 0 {
			loc = loc[:idx]
		}
	}

	loc = strings.TrimSpace(loc)
	if len(loc) > 60 {
		return ""
	}
	return loc
}

func firstMatch(re *regexp.Regexp, sources ...string) string {
	for _, src := range sources {
		if src == "" {
			continue
		}
		if m := re.FindStringSubmatch(src); m != nil {
			return m[1]
		}
	}
	return ""
}

func isPostingLink(link string) bool {
	lower := strings.ToLower(link)
	for _, prefix := range postingLinkPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// extractLinks returns the href of every anchor in an HTML body.
func extractLinks(htmlBody string) []string {
	if htmlBody == "" {
		return nil
	}

	z := html.NewTokenizer(strings.NewReader(htmlBody))
	var links []string
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return links
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}

		name, hasAttr := z.TagName()
		if string(name) != "a" || !hasAttr {
			continue
		}

		for {
			key, val, more := z.TagAttr()
			if string(key) == "href" {
				links = append(links, string(val))
			}
			if !more {
				break
			}
		}
	}
}
