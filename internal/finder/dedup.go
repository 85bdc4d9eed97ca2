package finder

import (
	"strings"
	"unicode"

	"github.com/JakeFAU/leadpipe/internal/lead"
)

// tokenSet lowercases text and splits it into a set of letter/digit tokens.
// Tokens shorter than two runes carry no signal and are dropped.
func tokenSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < 2 {
			continue
		}
		set[f] = struct{}{}
	}
	return set
}

// jaccard is |a∩b| / |a∪b|. Two empty sets are not similar.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for t := range small {
		if _, ok := large[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

// candidate is a lead kept in the fuzzy-match window with its precomputed tokens.
type candidate struct {
	lead   lead.Lead
	tokens map[string]struct{}
}

// window holds recent leads for near-duplicate detection, oldest first.
type window struct {
	threshold float64
	items     []candidate
}

func newWindow(threshold float64, recent []lead.Lead) *window {
	w := &window{threshold: threshold}
	for _, l := range recent {
		w.add(l)
	}
	return w
}

func (w *window) add(l lead.Lead) {
	w.items = append(w.items, candidate{lead: l, tokens: tokenSet(l.OriginalRequest)})
}

// replace swaps in a fresher copy of a lead already in the window.
func (w *window) replace(l lead.Lead) {
	for i := range w.items {
		if w.items[i].lead.ID == l.ID {
			w.items[i] = candidate{lead: l, tokens: tokenSet(l.OriginalRequest)}
			return
		}
	}
	w.add(l)
}

// match returns the most similar lead at or above the threshold. Ties go to
// the oldest entry.
func (w *window) match(request string) (lead.Lead, bool) {
	tokens := tokenSet(request)
	if len(tokens) == 0 {
		return lead.Lead{}, false
	}
	var (
		best  lead.Lead
		score float64
		found bool
	)
	for _, c := range w.items {
		s := jaccard(tokens, c.tokens)
		if s >= w.threshold && s > score {
			best, score, found = c.lead, s, true
		}
	}
	return best, found
}
