package qualifier

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	amountPattern = regexp.MustCompile(`(?i)(\d[\d\s\x{00a0}.,]*\d|\d)\s*(?:(тыс\.?|тысяч\p{L}*|thousand|млн|million|k|к|m)(?:\P{L}|$))?`)
	vaguePattern  = regexp.MustCompile(`(?i)бюджет|budget|договорн|negotiable|обсудим|по договоренности`)
)

// parseBudget returns the largest amount mentioned in s. vague is true when
// s mentions a budget without any number.
func parseBudget(s string) (amount float64, vague bool) {
	for _, m := range amountPattern.FindAllStringSubmatch(s, -1) {
		v, ok := parseNumber(m[1])
		if !ok {
			continue
		}
		switch suffix := strings.ToLower(strings.TrimSuffix(m[2], ".")); {
		case suffix == "k" || suffix == "к" || strings.HasPrefix(suffix, "тыс") || suffix == "thousand":
			v *= 1_000
		case suffix == "m" || suffix == "млн" || suffix == "million":
			v *= 1_000_000
		}
		amount = max(amount, v)
	}
	if amount == 0 && vaguePattern.MatchString(s) {
		vague = true
	}
	return amount, vague
}

// parseNumber reads a number written with space, dot or comma thousand
// separators and an optional decimal part.
func parseNumber(raw string) (float64, bool) {
	s := strings.Join(strings.Fields(raw), "")
	lastDot, lastComma := strings.LastIndex(s, "."), strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		dec := max(lastDot, lastComma)
		s = strings.NewReplacer(".", "", ",", "").Replace(s[:dec]) + "." + s[dec+1:]
	case lastDot >= 0 || lastComma >= 0:
		sep := "."
		if lastComma >= 0 {
			sep = ","
		}
		parts := strings.Split(s, sep)
		if isGrouped(parts) {
			s = strings.Join(parts, "")
		} else {
			s = strings.Join(parts[:len(parts)-1], "") + "." + parts[len(parts)-1]
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// isGrouped reports whether parts look like thousand groups: every part after
// the first has exactly three digits.
func isGrouped(parts []string) bool {
	if len(parts) < 2 || parts[0] == "" || len(parts[0]) > 3 {
		return false
	}
	for _, p := range parts[1:] {
		if len(p) != 3 {
			return false
		}
	}
	return true
}

// budgetScore maps a budget mention onto its capped sub-score.
func budgetScore(mention string) int {
	if strings.TrimSpace(mention) == "" {
		return 0
	}
	amount, vague := parseBudget(mention)
	switch {
	case amount >= 10_000:
		return 30
	case amount >= 5_000:
		return 25
	case amount >= 1_000:
		return 18
	case amount >= 300:
		return 10
	case amount > 0:
		return 5
	case vague:
		return 2
	default:
		return 0
	}
}

func contactScore(channels int) int {
	switch {
	case channels >= 3:
		return 20
	case channels == 2:
		return 15
	case channels == 1:
		return 10
	default:
		return 0
	}
}

var industryKeywords = []struct {
	industry string
	keywords []string
}{
	{"e-commerce", []string{"интернет-магазин", "магазин", "shop", "товар", "продаж", "e-commerce", "marketplace", "online store"}},
	{"restaurant", []string{"ресторан", "кафе", "кофейн", "доставка еды", "restaurant", "cafe", "coffee", "bakery", "пекарн"}},
	{"healthcare", []string{"клиника", "стоматолог", "врач", "clinic", "dental", "medical"}},
	{"real_estate", []string{"недвижимость", "квартир", "аренд", "real estate", "property"}},
	{"education", []string{"обучение", "курс", "школа", "education", "training", "course", "school"}},
	{"beauty", []string{"салон", "красот", "косметик", "beauty", "spa", "wellness"}},
	{"auto", []string{"автосервис", "авто", "машин", "car service", "auto"}},
	{"fitness", []string{"фитнес", "спорт", "gym", "fitness"}},
	{"services", []string{"услуг", "сервис", "консалтинг", "юрист", "service", "consulting", "law firm"}},
	{"manufacturing", []string{"производств", "завод", "фабрик", "manufacturing", "factory"}},
	{"tech", []string{"технолог", "software", "приложение", "startup", "стартап", "saas"}},
}

// detectIndustry returns the first industry whose keywords appear in text.
func detectIndustry(text string) string {
	lower := strings.ToLower(text)
	for _, row := range industryKeywords {
		for _, k := range row.keywords {
			if strings.Contains(lower, k) {
				return row.industry
			}
		}
	}
	return ""
}

var disqualifiers = []struct {
	pattern *regexp.Regexp
	note    string
}{
	{regexp.MustCompile(`(?i)бесплатно|\bfree of charge\b|\bfor free\b|(?:без|no)\s*(?:оплаты|payment)`), "unpaid work requested"},
	{regexp.MustCompile(`(?i)тестов(?:ое|ый)\s*задани|test\s*(?:task|assignment)`), "test task requested"},
	{regexp.MustCompile(`(?i)(?:очень\s*)?маленький\s*бюджет|small budget`), "budget described as small"},
	{regexp.MustCompile(`(?i)крипт|crypto`), "crypto project"},
	{regexp.MustCompile(`(?i)казино|casino|betting|ставк`), "gambling project"},
	{regexp.MustCompile(`(?i)адалт|adult|porn|xxx`), "adult content"},
}

// redFlags lists disqualification notes matching text. They never change the score.
func redFlags(text string) []string {
	var out []string
	for _, d := range disqualifiers {
		if d.pattern.MatchString(text) {
			out = append(out, d.note)
		}
	}
	return out
}
