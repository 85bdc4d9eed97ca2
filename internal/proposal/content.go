package proposal

import (
	"strings"

	"github.com/JakeFAU/leadpipe/internal/lead"
)

type projectType string

const (
	projectNewSite   projectType = "new_website"
	projectRedesign  projectType = "redesign"
	projectECommerce projectType = "ecommerce"
	projectLanding   projectType = "landing"
)

var projectMarkers = []struct {
	project projectType
	words   []string
}{
	{projectECommerce, []string{"магазин", "shop", "ecommerce", "e-commerce", "товар", "корзин", "store"}},
	{projectLanding, []string{"лендинг", "landing", "одностранич", "one-page"}},
	{projectRedesign, []string{"редизайн", "redesign", "обновить", "переделать", "улучшить", "refresh"}},
}

func detectProjectType(l lead.Lead) projectType {
	text := strings.ToLower(l.OriginalRequest + " " + l.NeedsDescription)
	for _, m := range projectMarkers {
		for _, w := range m.words {
			if strings.Contains(text, w) {
				return m.project
			}
		}
	}
	return projectNewSite
}

var valueProps = map[projectType]map[string]any{
	projectNewSite: {
		"headline": "I build modern, fast websites that turn visitors into clients. You get:",
		"points": []string{
			"a unique design tailored to your audience",
			"a responsive layout that works on every phone",
			"search engine optimization from day one",
			"fast page loads",
			"a simple admin panel to manage content",
		},
	},
	projectRedesign: {
		"headline": "I can refresh your website and make it work harder for you:",
		"points": []string{
			"a modern design",
			"a clearer user experience",
			"faster page loads",
			"a layout adapted for mobile devices",
			"existing content and search rankings preserved",
		},
	},
	projectECommerce: {
		"headline": "I build online stores that sell. Development includes:",
		"points": []string{
			"a product catalog with filters and search",
			"cart and checkout",
			"payment system integration",
			"customer accounts",
			"CRM and inventory integration",
			"search-optimized product pages",
		},
	},
	projectLanding: {
		"headline": "I build landing pages with high conversion:",
		"points": []string{
			"persuasive design and copy",
			"A/B testing",
			"CRM and analytics integration",
			"fast loading",
			"a layout adapted for mobile devices",
		},
	},
}

var subjects = map[projectType]string{
	projectRedesign:  "Redesign and improvements for your website",
	projectECommerce: "Building your online store",
	projectLanding:   "A high-converting landing page",
}

func subjectFor(p projectType, company string) string {
	if s, ok := subjects[p]; ok {
		return s
	}
	if company = strings.TrimSpace(company); company != "" {
		return "A website for " + company
	}
	return "A website for your business"
}

type sourceKind string

const (
	kindTelegram    sourceKind = "telegram"
	kindFreelance   sourceKind = "freelance"
	kindForum       sourceKind = "forum"
	kindClassifieds sourceKind = "classifieds"
)

// sourceKindOf guesses where the lead came from by its source URL.
func sourceKindOf(sourceURL string) sourceKind {
	u := strings.ToLower(sourceURL)
	switch {
	case strings.Contains(u, "t.me") || strings.Contains(u, "telegram"):
		return kindTelegram
	case strings.Contains(u, "fl.ru") || strings.Contains(u, "kwork") || strings.Contains(u, "freelance"):
		return kindFreelance
	case strings.Contains(u, "avito") || strings.Contains(u, "board"):
		return kindClassifieds
	case strings.Contains(u, "forum") || strings.Contains(u, "searchengines"):
		return kindForum
	default:
		return ""
	}
}

func introFor(k sourceKind) string {
	switch k {
	case kindTelegram:
		return "I saw your request in a Telegram channel and would like to offer my help."
	case kindFreelance:
		return "I came across your project on a freelance platform and I am confident I can help."
	case kindForum:
		return "I read your post on the forum and have a solution to suggest."
	case kindClassifieds:
		return "I saw your listing and would like to offer a collaboration."
	default:
		return "I noticed your request and would like to offer my services."
	}
}

type portfolioItem = map[string]any

var portfolio = map[string][]portfolioItem{
	"e-commerce": {
		{"name": "Clothing online store", "result": "conversion up 35%"},
		{"name": "Home goods marketplace", "result": "sales doubled in three months"},
	},
	"services": {
		{"name": "Law firm website", "result": "50% more inquiries"},
		{"name": "IT company corporate site", "result": "bounce rate down 40%"},
	},
	"restaurant": {
		{"name": "Restaurant site with online booking", "result": "bookings up 60%"},
		{"name": "Food delivery service", "result": "checkout twice as fast"},
	},
	"real_estate": {
		{"name": "Property catalog", "result": "45% more viewing requests"},
		{"name": "Real estate agency website", "result": "organic traffic up 80%"},
	},
}

var defaultPortfolio = []portfolioItem{
	{"name": "Corporate website", "result": "a smoother user experience"},
	{"name": "Service landing page", "result": "high conversion"},
}

func portfolioFor(industry string) []portfolioItem {
	if items, ok := portfolio[strings.ToLower(industry)]; ok {
		return items
	}
	return defaultPortfolio
}
