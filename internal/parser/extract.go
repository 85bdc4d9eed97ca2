package parser

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/nyaruka/phonenumbers"
)

// DefaultKeywords is used when a source configures none.
var DefaultKeywords = []string{
	"нужен сайт",
	"создать сайт",
	"разработка сайта",
	"сделать сайт",
	"заказать сайт",
	"ищу веб-разработчика",
	"ищу разработчика сайта",
	"нужен интернет-магазин",
	"создать интернет-магазин",
	"разработка интернет-магазина",
	"лендинг",
	"нужен лендинг",
	"редизайн сайта",
	"обновить сайт",
	"переделать сайт",
	"доработка сайта",
	"верстка сайта",
	"landing page",
	"need website",
	"need a website",
	"create website",
	"web developer needed",
	"looking for web developer",
	"website development",
	"e-commerce website",
	"online store",
	"web design",
	"website redesign",
}

// DefaultRegion is used to interpret phone numbers written without a country code.
const DefaultRegion = "RU"

var (
	emailPattern   = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phonePattern   = regexp.MustCompile(`\+?[0-9(][0-9\s\-().]{8,}[0-9]`)
	handlePattern  = regexp.MustCompile(`@([a-zA-Z][a-zA-Z0-9_]{4,31})|t\.me/([a-zA-Z][a-zA-Z0-9_]{4,31})`)
	websitePattern = regexp.MustCompile("https?://[^\\s<>\"{}|\\\\^`\\[\\]]+|www\\.[^\\s<>\"{}|\\\\^`\\[\\]]+")
	budgetPattern  = regexp.MustCompile(`(?i)(?:бюджет|budget)[:\s]*(?:до|от|up to|from)?\s*[$€₽]?\s*[0-9][0-9\s.,]*\s*(?:тыс|к|k|руб|₽|usd|\$|euro|eur|€)?|[$€₽]\s*[0-9][0-9\s.,]*[0-9]|[0-9][0-9\s.,]*\s*(?:тыс|к|k|руб|₽|usd|\$|euro|eur|€)`)
	vagueBudget    = regexp.MustCompile(`(?i)бюджет|budget|договорн|negotiable`)
	spaceRun       = regexp.MustCompile(`\s+`)
)

// Hosts whose links identify a messenger account rather than a business website.
var messengerHosts = []string{
	"t.me", "telegram.me", "telegram.org", "wa.me", "whatsapp.com",
	"vk.com", "vk.me", "instagram.com", "facebook.com", "fb.com",
}

// ExtractEmail returns the first email in text, lowercased, or "".
func ExtractEmail(text string) string {
	return strings.ToLower(emailPattern.FindString(text))
}

// ExtractPhone returns the first valid phone number in text in E.164 form,
// or "". Candidates the phone library rejects are skipped.
func ExtractPhone(text, region string) string {
	if region == "" {
		region = DefaultRegion
	}
	for _, candidate := range phonePattern.FindAllString(text, -1) {
		digits := strings.TrimSpace(candidate)
		num, err := phonenumbers.Parse(digits, region)
		if err != nil || !phonenumbers.IsValidNumber(num) {
			continue
		}
		return phonenumbers.Format(num, phonenumbers.E164)
	}
	return ""
}

// ExtractHandle returns the first messenger handle in text as "@name", or "".
// The local part of an email address is not a handle.
func ExtractHandle(text string) string {
	for _, m := range handlePattern.FindAllStringSubmatchIndex(text, -1) {
		var name string
		switch {
		case m[2] >= 0:
			// "@name" directly after a word character is an email domain
			if m[0] > 0 && isWordByte(text[m[0]-1]) {
				continue
			}
			name = text[m[2]:m[3]]
		case m[4] >= 0:
			name = text[m[4]:m[5]]
		default:
			continue
		}
		return "@" + name
	}
	return ""
}

func isWordByte(b byte) bool {
	return b == '.' || b == '_' || b == '-' ||
		(b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// ExtractWebsite returns the first URL in text that is not a messenger link, or "".
func ExtractWebsite(text string) string {
	for _, raw := range websitePattern.FindAllString(text, -1) {
		site := strings.TrimRight(raw, ".,;:!?)")
		if isMessenger(site) {
			continue
		}
		if strings.HasPrefix(site, "www.") {
			site = "https://" + site
		}
		return site
	}
	return ""
}

func isMessenger(site string) bool {
	host := lead.NormalizeWebsite(site)
	if i := strings.IndexAny(host, "/?#"); i >= 0 {
		host = host[:i]
	}
	for _, m := range messengerHosts {
		if host == m || strings.HasSuffix(host, "."+m) {
			return true
		}
	}
	return false
}

// ExtractBudget returns the budget mention in text, or "". A bare mention of
// a budget without a number is returned as-is so callers can tell vague from absent.
func ExtractBudget(text string) string {
	if m := budgetPattern.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	if m := vagueBudget.FindString(text); m != "" {
		return m
	}
	return ""
}

// MatchesKeywords reports whether text contains any keyword, case-insensitively.
// An empty keyword list matches everything.
func MatchesKeywords(text string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	lower := strings.ToLower(text)
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" && strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

var urgencyLexicon = []struct {
	level   lead.Urgency
	markers []string
}{
	{lead.UrgencyHigh, []string{"срочно", "asap", "urgent", "как можно скорее", "сегодня", "завтра", "today", "tomorrow"}},
	{lead.UrgencyMedium, []string{"быстро", "скоро", "на этой неделе", "в ближайшее время", "this week", "soon"}},
	{lead.UrgencyLow, []string{"в течение месяца", "на следующей неделе", "next week", "next month"}},
}

// Negated phrases contain high markers ("не срочно" holds "срочно"), so they
// are cut out before the lexicon runs and count as low urgency.
var negatedUrgency = []string{
	"не очень срочно", "не так срочно", "не срочно", "несрочно", "не горит", "не торопимся", "не спешим",
	"not urgent", "not in a rush", "not in a hurry", "no rush", "no hurry",
}

// EstimateUrgency matches text against the urgency lexicon. When several
// levels match, the most urgent wins.
func EstimateUrgency(text string) lead.Urgency {
	lower := CleanText(strings.ToLower(text))
	negated := false
	for _, n := range negatedUrgency {
		if strings.Contains(lower, n) {
			negated = true
			lower = strings.ReplaceAll(lower, n, " ")
		}
	}
	for _, level := range urgencyLexicon {
		for _, m := range level.markers {
			if strings.Contains(lower, m) {
				return level.level
			}
		}
	}
	if negated {
		return lead.UrgencyLow
	}
	return lead.UrgencyUnknown
}

// CleanText collapses whitespace, including non-breaking spaces.
func CleanText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// Truncate shortens s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// Enrich fills contact and request fields of p from text, leaving fields the
// parser already set untouched.
func Enrich(p *lead.ParsedLead, text string) {
	if p.Email == "" {
		p.Email = ExtractEmail(text)
	}
	if p.Phone == "" {
		p.Phone = ExtractPhone(text, DefaultRegion)
	}
	if p.Handle == "" {
		p.Handle = ExtractHandle(text)
	}
	if p.Website == "" {
		p.Website = ExtractWebsite(text)
	}
	if p.BudgetMentioned == "" {
		p.BudgetMentioned = ExtractBudget(text)
	}
	if p.Urgency == "" || p.Urgency == lead.UrgencyUnknown {
		p.Urgency = EstimateUrgency(text)
	}
	if p.OriginalRequest == "" {
		p.OriginalRequest = Truncate(text, 2000)
	}
	if p.NeedsDescription == "" {
		p.NeedsDescription = Truncate(text, 500)
	}
}
