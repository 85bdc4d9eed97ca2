// Package proposal drafts outreach messages for qualified leads.
package proposal

import (
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/JakeFAU/leadpipe/internal/analyzer"
	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/osteele/liquid"
)

//go:embed templates/*.liquid
var templateFS embed.FS

// ErrUnknownChannel is returned for a channel without a template.
var ErrUnknownChannel = errors.New("unknown proposal channel")

// maxIssues caps how many website issues a proposal mentions.
const maxIssues = 3

// Sender identifies who signs proposals.
type Sender struct {
	Name     string
	Company  string
	Contacts string
}

// Generator renders proposals from liquid templates.
type Generator struct {
	templates map[lead.ProposalChannel]*liquid.Template
	sender    Sender
	ids       lead.IDGenerator
	clock     lead.Clock
}

// New parses the channel templates.
func New(sender Sender, ids lead.IDGenerator, clock lead.Clock) (*Generator, error) {
	engine := liquid.NewEngine()
	engine.RegisterFilter("severity_mark", severityMark)

	g := &Generator{
		templates: make(map[lead.ProposalChannel]*liquid.Template),
		sender:    sender,
		ids:       ids,
		clock:     clock,
	}
	for _, ch := range []lead.ProposalChannel{lead.ChannelEmail, lead.ChannelTelegram} {
		src, err := templateFS.ReadFile("templates/" + string(ch) + ".liquid")
		if err != nil {
			return nil, fmt.Errorf("read %s template: %w", ch, err)
		}
		tpl, perr := engine.ParseString(string(src))
		if perr != nil {
			return nil, fmt.Errorf("parse %s template: %w", ch, perr)
		}
		g.templates[ch] = tpl
	}
	return g, nil
}

// Draft renders a draft proposal for l. The analysis is used only when it
// belongs to the lead's current website.
func (g *Generator) Draft(l lead.Lead, analysis *lead.WebsiteAnalysis, channel lead.ProposalChannel) (lead.Proposal, error) {
	tpl, ok := g.templates[channel]
	if !ok {
		return lead.Proposal{}, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
	if analysis != nil && !analysis.Matches(l.Website) {
		analysis = nil
	}

	project := detectProjectType(l)
	content, rerr := tpl.RenderString(g.bindings(l, analysis, project))
	if rerr != nil {
		return lead.Proposal{}, fmt.Errorf("render %s proposal: %w", channel, rerr)
	}
	id, err := g.ids.NewID()
	if err != nil {
		return lead.Proposal{}, fmt.Errorf("proposal id: %w", err)
	}

	p := lead.Proposal{
		ID:        id,
		LeadID:    l.ID,
		Channel:   channel,
		Status:    lead.ProposalDraft,
		Content:   tidy(content),
		CreatedAt: g.clock.Now(),
	}
	if channel == lead.ChannelEmail {
		p.Subject = subjectFor(project, l.Company)
	}
	return p, nil
}

func (g *Generator) bindings(l lead.Lead, analysis *lead.WebsiteAnalysis, project projectType) liquid.Bindings {
	greeting := "Hello!"
	if name := strings.TrimSpace(l.Name); name != "" && name != lead.UnknownName {
		greeting = "Hello, " + name + "!"
	}

	b := liquid.Bindings{
		"greeting":  greeting,
		"intro":     introFor(sourceKindOf(l.SourceURL)),
		"site_down": false,
		"issues":    []map[string]any{},
		"score":     0,
		"low_score": false,
		"value":     valueProps[project],
		"portfolio": portfolioFor(l.Industry),
		"sender": map[string]any{
			"name":     g.sender.Name,
			"company":  g.sender.Company,
			"contacts": g.sender.Contacts,
		},
	}
	if analysis == nil {
		return b
	}
	if unreachable(analysis) {
		b["site_down"] = true
		return b
	}
	issues := make([]map[string]any, 0, maxIssues)
	for _, is := range analysis.Issues {
		if len(issues) == maxIssues {
			break
		}
		issues = append(issues, map[string]any{
			"severity":    string(is.Severity),
			"description": is.Description,
			"suggestion":  analyzer.SuggestionFor(is.Code),
		})
	}
	b["issues"] = issues
	b["score"] = analysis.OverallScore
	b["low_score"] = analysis.OverallScore < 60
	return b
}

func unreachable(a *lead.WebsiteAnalysis) bool {
	for _, is := range a.Issues {
		if is.Code == "unreachable" {
			return true
		}
	}
	return false
}

func severityMark(severity string) string {
	switch lead.Severity(severity) {
	case lead.SeverityCritical:
		return "[!!!]"
	case lead.SeverityHigh:
		return "[!!]"
	case lead.SeverityMedium:
		return "[!]"
	default:
		return "[-]"
	}
}

var blankRun = regexp.MustCompile(`\n{3,}`)

func tidy(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(blankRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
