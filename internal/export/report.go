package export

import (
	"sort"
	"time"

	"contextflow/api/internal/model"
)

// Report is the template data for a project report.
type Report struct {
	Name          string
	GeneratedAt   time.Time
	Revision      string
	Contexts      []ReportContext
	Relationships []ReportRelationship
	Groups        []ReportGroup
	Teams         []ReportTeam
	UserNeeds     []ReportNeed
	FlowStages    []model.FlowStageMarker
}

type ReportContext struct {
	Name           string
	Purpose        string
	Classification string
	Evolution      string
	Team           string
	Legacy         bool
	Issues         []model.Issue
}

type ReportRelationship struct {
	Downstream  string
	Upstream    string
	Pattern     string
	Description string
}

type ReportGroup struct {
	Label    string
	Contexts []string
}

type ReportTeam struct {
	Name     string
	Topology string
	Contexts []string
}

type ReportNeed struct {
	Name     string
	Users    []string
	Contexts []string
}

// BuildReport resolves ids to names and sorts every section by name.
// References to entities that no longer exist are skipped.
func BuildReport(p model.Project, revision string, now time.Time) Report {
	contextNames := make(map[string]string, len(p.Contexts))
	for _, c := range p.Contexts {
		contextNames[c.ID] = c.Name
	}
	teamNames := make(map[string]string, len(p.Teams))
	for _, t := range p.Teams {
		teamNames[t.ID] = t.Name
	}
	userNames := make(map[string]string, len(p.Users))
	for _, u := range p.Users {
		userNames[u.ID] = u.Name
	}

	r := Report{Name: p.Name, GeneratedAt: now, Revision: revision}

	teamContexts := map[string][]string{}
	for _, c := range p.Contexts {
		rc := ReportContext{
			Name:      c.Name,
			Purpose:   deref(c.Purpose),
			Evolution: string(c.EvolutionStage),
			Legacy:    c.IsLegacy != nil && *c.IsLegacy,
			Issues:    c.Issues,
		}
		if c.StrategicClassification != nil {
			rc.Classification = string(*c.StrategicClassification)
		}
		if c.TeamID != nil {
			rc.Team = teamNames[*c.TeamID]
			teamContexts[*c.TeamID] = append(teamContexts[*c.TeamID], c.Name)
		}
		r.Contexts = append(r.Contexts, rc)
	}
	sort.Slice(r.Contexts, func(i, j int) bool { return r.Contexts[i].Name < r.Contexts[j].Name })

	for _, rel := range p.Relationships {
		from, okFrom := contextNames[rel.FromContextID]
		to, okTo := contextNames[rel.ToContextID]
		if !okFrom || !okTo {
			continue
		}
		r.Relationships = append(r.Relationships, ReportRelationship{
			Downstream:  from,
			Upstream:    to,
			Pattern:     string(rel.Pattern),
			Description: deref(rel.Description),
		})
	}
	sort.Slice(r.Relationships, func(i, j int) bool {
		if r.Relationships[i].Upstream != r.Relationships[j].Upstream {
			return r.Relationships[i].Upstream < r.Relationships[j].Upstream
		}
		return r.Relationships[i].Downstream < r.Relationships[j].Downstream
	})

	for _, g := range p.Groups {
		r.Groups = append(r.Groups, ReportGroup{Label: g.Label, Contexts: names(g.ContextIDs, contextNames)})
	}
	sort.Slice(r.Groups, func(i, j int) bool { return r.Groups[i].Label < r.Groups[j].Label })

	for _, t := range p.Teams {
		rt := ReportTeam{Name: t.Name, Contexts: teamContexts[t.ID]}
		if t.TopologyType != nil {
			rt.Topology = string(*t.TopologyType)
		}
		sort.Strings(rt.Contexts)
		r.Teams = append(r.Teams, rt)
	}
	sort.Slice(r.Teams, func(i, j int) bool { return r.Teams[i].Name < r.Teams[j].Name })

	needUsers := map[string][]string{}
	for _, c := range p.UserNeedConnections {
		needUsers[c.UserNeedID] = append(needUsers[c.UserNeedID], c.UserID)
	}
	needContexts := map[string][]string{}
	for _, c := range p.NeedContextConnections {
		needContexts[c.UserNeedID] = append(needContexts[c.UserNeedID], c.ContextID)
	}
	for _, n := range p.UserNeeds {
		r.UserNeeds = append(r.UserNeeds, ReportNeed{
			Name:     n.Name,
			Users:    names(needUsers[n.ID], userNames),
			Contexts: names(needContexts[n.ID], contextNames),
		})
	}
	sort.Slice(r.UserNeeds, func(i, j int) bool { return r.UserNeeds[i].Name < r.UserNeeds[j].Name })

	r.FlowStages = append(r.FlowStages, p.ViewConfig.FlowStages...)
	sort.Slice(r.FlowStages, func(i, j int) bool { return r.FlowStages[i].Position < r.FlowStages[j].Position })
	return r
}

func names(ids []string, lookup map[string]string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if name, ok := lookup[id]; ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
