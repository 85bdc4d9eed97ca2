package analyzer

import (
	"sort"

	"github.com/JakeFAU/leadpipe/internal/lead"
)

type issue = lead.Issue

const (
	codeUnreachable     = "unreachable"
	codeNoTLS           = "no_ssl"
	codeTLSExpiring     = "ssl_expiring"
	codePageUnavailable = "page_unavailable"
	codeSlowLoading     = "slow_loading"
	codeSluggish        = "sluggish_loading"
	codeNoMobile        = "no_mobile"
	codeNoViewport      = "no_viewport"
	codeNoTitle         = "no_title"
	codeNoDescription   = "no_meta_description"
	codeH1Count         = "h1_count"
	codeNoHeadings      = "no_headings"
	codeNoContactForm   = "no_contact_form"
	codeNoSocial        = "no_social"
)

type template struct {
	severity    lead.Severity
	description string
	suggestion  string
}

var catalog = map[string]template{
	codeUnreachable: {lead.SeverityCritical,
		"The website could not be reached",
		"Restore hosting and DNS so the site is reachable, or build a new site"},
	codeNoTLS: {lead.SeverityCritical,
		"The website does not serve a valid HTTPS certificate",
		"Install a TLS certificate and redirect all traffic to HTTPS"},
	codeTLSExpiring: {lead.SeverityMedium,
		"The TLS certificate expires within two weeks",
		"Renew the TLS certificate and automate renewal"},
	codePageUnavailable: {lead.SeverityHigh,
		"The home page returned an error",
		"Fix the server errors on the home page"},
	codeSlowLoading: {lead.SeverityHigh,
		"The page loads slowly",
		"Optimize images, enable caching and serve static assets from a CDN"},
	codeSluggish: {lead.SeverityMedium,
		"The page takes more than two seconds to load",
		"Trim page weight and defer non-critical scripts"},
	codeNoMobile: {lead.SeverityHigh,
		"The website is not adapted for mobile devices",
		"Introduce a responsive layout"},
	codeNoViewport: {lead.SeverityMedium,
		"The page has responsive styles but no viewport meta tag",
		"Add a viewport meta tag so phones render the responsive layout"},
	codeNoTitle: {lead.SeverityMedium,
		"The page has no title",
		"Add a descriptive page title"},
	codeNoDescription: {lead.SeverityMedium,
		"The page has no meta description",
		"Add a meta description and Open Graph tags"},
	codeH1Count: {lead.SeverityLow,
		"The page should have exactly one h1 heading",
		"Use a single h1 for the main page heading"},
	codeNoHeadings: {lead.SeverityLow,
		"The page has no section headings",
		"Structure content with h2 and h3 headings"},
	codeNoContactForm: {lead.SeverityLow,
		"There is no contact form",
		"Add a contact form so visitors can reach the business"},
	codeNoSocial: {lead.SeverityLow,
		"There are no social media links",
		"Link the business's social media profiles"},
}

func issueFor(code string) lead.Issue {
	t := catalog[code]
	return lead.Issue{Code: code, Severity: t.severity, Description: t.description}
}

// SuggestionFor returns the improvement text for an issue code.
func SuggestionFor(code string) string {
	return catalog[code].suggestion
}

func sortIssues(issues []lead.Issue) {
	sort.SliceStable(issues, func(i, j int) bool {
		ri, rj := issues[i].Severity.Rank(), issues[j].Severity.Rank()
		if ri != rj {
			return ri < rj
		}
		return issues[i].Code < issues[j].Code
	})
}

func issuesOf(findings []finding) []lead.Issue {
	out := make([]lead.Issue, 0, len(findings))
	for _, f := range findings {
		out = append(out, f.issue)
	}
	sortIssues(out)
	return out
}

// belowThreshold keeps issues from checks scoring under threshold, plus the
// unweighted findings.
func belowThreshold(findings []finding, checks lead.CheckScores, threshold int) []lead.Issue {
	scores := map[check]int{
		checkTLS:         checks.TLS,
		checkPerformance: checks.Performance,
		checkMobile:      checks.Mobile,
		checkSEO:         checks.SEO,
	}
	var out []lead.Issue
	for _, f := range findings {
		if s, weighted := scores[f.check]; weighted && s >= threshold {
			continue
		}
		out = append(out, f.issue)
	}
	return out
}

// suggestionsFor orders suggestions by severity, then code.
func suggestionsFor(issues []lead.Issue) []string {
	sorted := append([]lead.Issue(nil), issues...)
	sortIssues(sorted)
	out := make([]string, 0, len(sorted))
	seen := make(map[string]bool)
	for _, is := range sorted {
		s := SuggestionFor(is.Code)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
