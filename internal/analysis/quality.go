package analysis

import (
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// Quality picks up the non-blocking residue: build warnings and warn-level
// log chatter. These never block anything, so severity stays low and
// confidence grows only with repetition.
type Quality struct{}

func (a *Quality) Name() string { return "quality" }

func (a *Quality) Accepts(ct record.CollectorType) bool {
	return ct == record.CollectorBuildDiagnostics || ct == record.CollectorRuntimeLog
}

func (a *Quality) Analyze(records []record.ObservationRecord) []record.Finding {
	type group struct {
		count    int
		first    string
		scopes   map[string]struct{}
		evidence map[string]struct{}
	}
	groups := make(map[string]*group)

	add := func(key, desc, scope, recID string) {
		g, ok := groups[key]
		if !ok {
			g = &group{first: desc, scopes: make(map[string]struct{}), evidence: make(map[string]struct{})}
			groups[key] = g
		}
		g.count++
		if scope != "" {
			g.scopes[scope] = struct{}{}
		}
		g.evidence[recID] = struct{}{}
	}

	for _, rec := range records {
		for _, d := range rec.Payload.Diagnostics {
			if d.Blocking {
				continue // blocking diagnostics belong to the error-pattern analyzer
			}
			add("diag|"+d.Code, d.Message, d.File, rec.ID)
		}
		for _, line := range rec.Payload.LogLines {
			if line.Level != "warn" {
				continue
			}
			add("log|"+line.Source+"|"+line.Message, line.Message, line.Source, rec.ID)
		}
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var findings []record.Finding
	for _, key := range keys {
		g := groups[key]

		confidence := 0.5 + 0.05*float64(g.count-1)
		if confidence > 0.8 {
			confidence = 0.8
		}

		scopes := make([]string, 0, len(g.scopes))
		for s := range g.scopes {
			scopes = append(scopes, s)
		}
		sort.Strings(scopes)
		if len(scopes) == 0 {
			scopes = []string{"project"}
		}

		findings = append(findings, newFinding(
			record.IssueQualityDefect,
			record.SeverityLow,
			scopes,
			fmt.Sprintf("%d occurrence(s): %s", g.count, g.first),
			evidenceIDs(g.evidence),
			confidence,
		))
	}
	return findings
}
