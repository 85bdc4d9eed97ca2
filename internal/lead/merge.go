package lead

import "strings"

// FillContact copies fields of p into the blank fields of l. Populated fields
// are never overwritten. It reports whether l changed.
func (l *Lead) FillContact(p ParsedLead) bool {
	changed := false
	fill := func(dst *string, src string) {
		if strings.TrimSpace(*dst) == "" && strings.TrimSpace(src) != "" {
			*dst = src
			changed = true
		}
	}
	fill(&l.Company, p.Company)
	fill(&l.Email, p.Email)
	fill(&l.Phone, p.Phone)
	fill(&l.Handle, p.Handle)
	fill(&l.Website, p.Website)
	fill(&l.OriginalRequest, p.OriginalRequest)
	fill(&l.NeedsDescription, p.NeedsDescription)
	fill(&l.BudgetMentioned, p.BudgetMentioned)
	fill(&l.SourceURL, p.SourceURL)
	if blankName(l.Name) && !blankName(p.Name) {
		l.Name = p.Name
		changed = true
	}
	if blankUrgency(l.Urgency) && !blankUrgency(p.Urgency) {
		l.Urgency = p.Urgency
		changed = true
	}
	return changed
}

// ApplyScore writes a qualification result onto l. The status follows the
// funnel from l's current status and is otherwise left alone.
func (l *Lead) ApplyScore(u ScoreUpdate) {
	score := u.Score
	l.QualificationScore = &score
	l.Urgency = u.Urgency
	if u.Status != "" && CanTransition(l.Status, u.Status) {
		l.Status = u.Status
	}
	l.Hot = u.Hot
	if u.Industry != "" {
		l.Industry = u.Industry
	}
	l.AIUnavailable = u.AIUnavailable
	l.QualificationNotes = u.Notes
	at := u.QualifiedAt
	l.QualifiedAt = &at
}

// UnknownName is the placeholder name for a lead whose author is not known.
const UnknownName = "Unknown"

func blankName(name string) bool {
	name = strings.TrimSpace(name)
	return name == "" || name == UnknownName
}

func blankUrgency(u Urgency) bool {
	return u == "" || u == UrgencyUnknown
}
