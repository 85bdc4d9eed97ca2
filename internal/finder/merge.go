package finder

import (
	"strings"

	"github.com/JakeFAU/leadpipe/internal/lead"
)

// mergeResult describes what a duplicate would contribute to an existing lead.
type mergeResult struct {
	lead          lead.Lead
	changed       bool
	websiteFilled bool
}

// mergeInto previews lead.FillContact against existing. The store repeats the
// fill against the current row, so the preview only decides whether to write.
func mergeInto(existing lead.Lead, incoming lead.ParsedLead) mergeResult {
	res := mergeResult{lead: existing}
	res.changed = res.lead.FillContact(incoming)
	res.websiteFilled = websiteFilled(existing, res.lead)
	return res
}

func websiteFilled(before, after lead.Lead) bool {
	return strings.TrimSpace(before.Website) == "" && strings.TrimSpace(after.Website) != ""
}

// normalizeParsed canonicalizes the dedup keys of a parsed lead.
func normalizeParsed(p lead.ParsedLead) lead.ParsedLead {
	p.Email = lead.NormalizeEmail(p.Email)
	p.Handle = lead.NormalizeHandle(p.Handle)
	p.SourceURL = strings.TrimSpace(p.SourceURL)
	p.Website = strings.TrimSpace(p.Website)
	p.Name = strings.TrimSpace(p.Name)
	if p.Urgency == "" {
		p.Urgency = lead.UrgencyUnknown
	}
	return p
}

// newLead builds a fresh lead from a parsed record.
func newLead(id, sourceID string, p lead.ParsedLead) lead.Lead {
	name := p.Name
	if name == "" {
		name = lead.UnknownName
	}
	return lead.Lead{
		ID:               id,
		SourceID:         sourceID,
		SourceURL:        p.SourceURL,
		Name:             name,
		Company:          p.Company,
		Email:            p.Email,
		Phone:            p.Phone,
		Handle:           p.Handle,
		Website:          p.Website,
		OriginalRequest:  p.OriginalRequest,
		NeedsDescription: p.NeedsDescription,
		BudgetMentioned:  p.BudgetMentioned,
		Urgency:          p.Urgency,
		Status:           lead.StatusNew,
		FoundAt:          p.FoundAt,
	}
}
