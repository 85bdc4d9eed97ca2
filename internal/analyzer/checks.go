package analyzer

import (
	"bytes"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

type check string

const (
	checkTLS         check = "tls"
	checkPerformance check = "performance"
	checkMobile      check = "mobile"
	checkSEO         check = "seo"
	// checkExtra findings are reported but carry no weight.
	checkExtra check = "extra"
)

// finding ties an issue to the check that raised it.
type finding struct {
	check check
	issue issue
}

func parseDocument(body []byte) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}
	return doc
}

// metaContent finds a meta tag by name, case-insensitively.
func metaContent(doc *goquery.Document, name string) (string, bool) {
	var (
		content string
		found   bool
	)
	doc.Find("meta[name]").EachWithBreak(func(_ int, m *goquery.Selection) bool {
		n, _ := m.Attr("name")
		if strings.EqualFold(strings.TrimSpace(n), name) {
			content, _ = m.Attr("content")
			found = true
			return false
		}
		return true
	})
	return content, found
}

var performanceBands = []struct {
	under time.Duration
	score int
}{
	{time.Second, 100},
	{2 * time.Second, 85},
	{3 * time.Second, 70},
	{5 * time.Second, 55},
	{10 * time.Second, 40},
}

func scorePerformance(d time.Duration, findings []finding) (int, []finding) {
	score := 25
	for _, b := range performanceBands {
		if d < b.under {
			score = b.score
			break
		}
	}
	switch {
	case score <= 55:
		findings = append(findings, finding{check: checkPerformance, issue: issueFor(codeSlowLoading)})
	case score <= 70:
		findings = append(findings, finding{check: checkPerformance, issue: issueFor(codeSluggish)})
	}
	return score, findings
}

var responsiveHint = regexp.MustCompile(`(?i)@media|col-(?:xs|sm|md|lg|xl)-\d+|\bresponsive\b|\bmobile\b`)

func scoreMobile(doc *goquery.Document, findings []finding) (int, []finding) {
	if _, ok := metaContent(doc, "viewport"); ok {
		return 100, findings
	}
	html, _ := doc.Html()
	if responsiveHint.MatchString(html) {
		return 50, append(findings, finding{check: checkMobile, issue: issueFor(codeNoViewport)})
	}
	return 0, append(findings, finding{check: checkMobile, issue: issueFor(codeNoMobile)})
}

func scoreSEO(doc *goquery.Document, findings []finding) (int, []finding) {
	score := 0
	if strings.TrimSpace(doc.Find("title").First().Text()) != "" {
		score += 35
	} else {
		findings = append(findings, finding{check: checkSEO, issue: issueFor(codeNoTitle)})
	}
	if desc, _ := metaContent(doc, "description"); strings.TrimSpace(desc) != "" {
		score += 35
	} else {
		findings = append(findings, finding{check: checkSEO, issue: issueFor(codeNoDescription)})
	}
	if doc.Find("h1").Length() == 1 {
		score += 20
	} else {
		findings = append(findings, finding{check: checkSEO, issue: issueFor(codeH1Count)})
	}
	if doc.Find("h2, h3").Length() > 0 {
		score += 10
	} else {
		findings = append(findings, finding{check: checkSEO, issue: issueFor(codeNoHeadings)})
	}
	return score, findings
}

var (
	contactWords = []string{"contact", "feedback", "message", "email", "phone", "обратн", "связ", "контакт"}
	socialHosts  = regexp.MustCompile(`(?i)(facebook\.com|vk\.com|instagram\.com|twitter\.com|x\.com|linkedin\.com|youtube\.com|t\.me|telegram\.me|wa\.me)`)
)

func extraFindings(doc *goquery.Document) []finding {
	var out []finding
	hasForm := false
	doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		html, _ := goquery.OuterHtml(form)
		lower := strings.ToLower(html)
		for _, w := range contactWords {
			if strings.Contains(lower, w) {
				hasForm = true
				return false
			}
		}
		return true
	})
	if !hasForm {
		out = append(out, finding{check: checkExtra, issue: issueFor(codeNoContactForm)})
	}
	hasSocial := false
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		hasSocial = socialHosts.MatchString(href)
		return !hasSocial
	})
	if !hasSocial {
		out = append(out, finding{check: checkExtra, issue: issueFor(codeNoSocial)})
	}
	return out
}

// CMS markers come first so the first CMS detected wins.
var techMarkers = []struct {
	name    string
	cms     bool
	markers []string
}{
	{"WordPress", true, []string{"wp-content", "wp-includes"}},
	{"Joomla", true, []string{"com_content", "joomla"}},
	{"Drupal", true, []string{"drupal", "sites/default/files"}},
	{"1C-Bitrix", true, []string{"/bitrix/", "bx-core"}},
	{"Tilda", true, []string{"tildacdn", "tilda-blocks"}},
	{"Wix", true, []string{"wixsite", "static.wixstatic.com"}},
	{"Shopify", true, []string{"cdn.shopify", "shopify.theme"}},
	{"OpenCart", true, []string{"route=common", "catalog/view/theme"}},
	{"MODX", true, []string{"modx"}},
	{"Next.js", false, []string{"__next_data__", "/_next/"}},
	{"React", false, []string{"data-reactroot", "react-dom"}},
	{"Vue.js", false, []string{"data-v-", "vue.min.js", "__vue__"}},
	{"Angular", false, []string{"ng-version"}},
	{"Bootstrap", false, []string{"bootstrap.min.css", "bootstrap.css"}},
	{"jQuery", false, []string{"jquery"}},
}

func detectTechnologies(html string) ([]string, string) {
	lower := strings.ToLower(html)
	var (
		techs []string
		cms   string
	)
	for _, t := range techMarkers {
		for _, m := range t.markers {
			if strings.Contains(lower, m) {
				techs = append(techs, t.name)
				if t.cms && cms == "" {
					cms = t.name
				}
				break
			}
		}
	}
	sort.Strings(techs)
	return techs, cms
}
