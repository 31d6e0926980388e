package enrich

import (
	"encoding/json"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/beastmp/job-tracking/internal/store"
)

// parsePage extracts job fields from an HTML document. It prefers the
// JSON-LD JobPosting block most job boards embed, then Open Graph and
// meta descriptions, then keyword heuristics over the visible text.
func parsePage(r io.Reader) store.Enrichment {
	doc, err := html.Parse(r)
	if err != nil {
		return store.Enrichment{}
	}

	var p pageData
	p.walk(doc)

	e := p.posting
	if e.Description == "" {
		e.Description = p.ogDescription
	}
	if e.Description == "" {
		e.Description = p.metaDescription
	}

	text := p.text.String()
	if e.EmploymentType == "" {
		e.EmploymentType = matchKeyword(text, employmentTypes)
	}
	if e.LocationType == "" {
		e.LocationType = matchKeyword(text, locationTypes)
	}
	if e.Wages == "" {
		e.Wages = matchWages(text)
	}

	return e
}

// pageData accumulates what one pass over the document tree finds.
type pageData struct {
	posting         store.Enrichment
	ogDescription   string
	metaDescription string
	text            strings.Builder
}

func (p *pageData) walk(n *html.Node) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "meta":
			p.meta(n)
		case "script":
			if attrVal(n, "type") == "application/ld+json" && n.FirstChild != nil {
				p.jsonLD(n.FirstChild.Data)
			}
			return
		case "style", "noscript":
			return
		}
	}

	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			if p.text.Len() > 0 {
				p.text.WriteByte(' ')
			}
			p.text.WriteString(t)
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.walk(c)
	}
}

func (p *pageData) meta(n *html.Node) {
	content := attrVal(n, "content")
	if content == "" {
		return
	}
	switch {
	case attrVal(n, "property") == "og:description":
		p.ogDescription = content
	case attrVal(n, "name") == "description":
		p.metaDescription = content
	}
}

// jsonLD parses a schema.org JobPosting block.
func (p *pageData) jsonLD(raw string) {
	var posting struct {
		Type            string `json:"@type"`
		Description     string `json:"description"`
		EmploymentType  any    `json:"employmentType"`
		JobLocationType string `json:"jobLocationType"`
		BaseSalary      *struct {
			Currency string `json:"currency"`
			Value    *struct {
				MinValue json.Number `json:"minValue"`
				MaxValue json.Number `json:"maxValue"`
				Value    json.Number `json:"value"`
				UnitText string      `json:"unitText"`
			} `json:"value"`
		} `json:"baseSalary"`
	}

	if err := json.Unmarshal([]byte(raw), &posting); err != nil {
		return
	}
	if !strings.EqualFold(posting.Type, "JobPosting") {
		return
	}

	if p.posting.Description == "" && posting.Description != "" {
		p.posting.Description = htmlFragmentText(posting.Description)
	}
	if p.posting.EmploymentType == "" {
		p.posting.EmploymentType = employmentTypeString(posting.EmploymentType)
	}
	if p.posting.LocationType == "" &&
		strings.EqualFold(posting.JobLocationType, "TELECOMMUTE") {
		p.posting.LocationType = "Remote"
	}
	if p.posting.Wages == "" && posting.BaseSalary != nil &&
		posting.BaseSalary.Value != nil {
		v := posting.BaseSalary.Value
		p.posting.Wages = salaryString(
			v.MinValue, v.MaxValue, v.Value, v.UnitText, posting.BaseSalary.Currency,
		)
	}
}

func attrVal(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// htmlFragmentText flattens an HTML fragment (JSON-LD descriptions are
// HTML) into whitespace-normalized text.
func htmlFragmentText(fragment string) string {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}

	var b strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				if b.Len() > 0 {
					b.WriteByte(' ')
				}
				b.WriteString(t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(doc)

	return b.String()
}

func employmentTypeString(v any) string {
	switch t := v.(type) {
	case string:
		return normalizeEmployment(t)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				if norm := normalizeEmployment(s); norm != "" {
					return norm
				}
			}
		}
	}
	return ""
}

func normalizeEmployment(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FULL_TIME", "FULLTIME", "FULL-TIME":
		return "Full-time"
	case "PART_TIME", "PARTTIME", "PART-TIME":
		return "Part-time"
	case "CONTRACTOR", "CONTRACT":
		return "Contract"
	case "INTERN", "INTERNSHIP":
		return "Internship"
	case "TEMPORARY":
		return "Temporary"
	}
	return ""
}

func salaryString(minVal, maxVal, val json.Number, unit, currency string) string {
	amount := ""
	switch {
	case minVal != "" && maxVal != "":
		amount = minVal.String() + "-" + maxVal.String()
	case val != "":
		amount = val.String()
	case minVal != "":
		amount = minVal.String()
	default:
		return ""
	}

	if strings.EqualFold(currency, "USD") {
		amount = "$" + amount
	} else if currency != "" {
		amount = amount + " " + currency
	}

	if unit != "" {
		amount += "/" + strings.ToLower(unit)
	}

	return amount
}

type keyword struct {
	phrase string
	value  string
}

var employmentTypes = []keyword{
	{"full-time", "Full-time"},
	{"full time", "Full-time"},
	{"part-time", "Part-time"},
	{"part time", "Part-time"},
	{"internship", "Internship"},
	{"temporary", "Temporary"},
	{"contract", "Contract"},
}

var locationTypes = []keyword{
	{"remote", "Remote"},
	{"hybrid", "Hybrid"},
	{"on-site", "On-site"},
	{"onsite", "On-site"},
	{"in-office", "On-site"},
}

// matchKeyword returns the value of the first phrase found in text.
// Table order is the priority order.
func matchKeyword(text string, table []keyword) string {
	lower := strings.ToLower(text)
	for _, kw := range table {
		if strings.Contains(lower, kw.phrase) {
			return kw.value
		}
	}
	return ""
}

var wagesRangePattern = regexp.MustCompile(
	`\$\s?\d[\d,]*(?:\.\d+)?\s*[kK]?\s*(?:-|–|to)\s*\$?\s?\d[\d,]*(?:\.\d+)?\s*[kK]?(?:\s*(?:per|/|a)\s*(?:hour|hr|year|yr|annum|month|week))?`,
)

var wagesRatePattern = regexp.MustCompile(
	`\$\s?\d[\d,]*(?:\.\d+)?\s*[kK]?\s*(?:per|/|an?)\s*(?:hour|hr|year|yr|annum|month|week)`,
)

// matchWages finds a salary-looking figure in the page text. A bare
// dollar amount is not enough; it must be a range or carry a rate unit.
func matchWages(text string) string {
	if m := wagesRangePattern.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	if m := wagesRatePattern.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	return ""
}
