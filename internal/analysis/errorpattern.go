package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// ErrorPattern detects build-blocking diagnostics and runtime errors.
// Blocking diagnostics are grouped by code; runtime error lines are grouped
// by (source, message).
type ErrorPattern struct{}

func (a *ErrorPattern) Name() string { return "error-pattern" }

func (a *ErrorPattern) Accepts(ct record.CollectorType) bool {
	return ct == record.CollectorBuildDiagnostics || ct == record.CollectorRuntimeLog
}

// dependencyMarkers identify diagnostics caused by a missing dependency
// rather than a plain compile error.
var dependencyMarkers = []string{
	"undefined reference",
	"missing dependency",
	"cannot find",
	"unresolved import",
}

func (a *ErrorPattern) Analyze(records []record.ObservationRecord) []record.Finding {
	var findings []record.Finding
	findings = append(findings, a.analyzeDiagnostics(records)...)
	findings = append(findings, a.analyzeLogErrors(records)...)
	return findings
}

type diagGroup struct {
	diags    []record.Diagnostic
	evidence map[string]struct{}
}

func (a *ErrorPattern) analyzeDiagnostics(records []record.ObservationRecord) []record.Finding {
	groups := make(map[string]*diagGroup)
	for _, rec := range records {
		for _, d := range rec.Payload.Diagnostics {
			if !d.Blocking {
				continue // non-blocking diagnostics belong to the quality analyzer
			}
			g, ok := groups[d.Code]
			if !ok {
				g = &diagGroup{evidence: make(map[string]struct{})}
				groups[d.Code] = g
			}
			g.diags = append(g.diags, d)
			g.evidence[rec.ID] = struct{}{}
		}
	}

	codes := make([]string, 0, len(groups))
	for code := range groups {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var findings []record.Finding
	for _, code := range codes {
		g := groups[code]
		issue := record.IssueCompileError
		if isDependencyDiagnostic(g.diags) {
			issue = record.IssueMissingDependency
		}

		// A compiler diagnostic with a location is reproducible evidence.
		confidence := 0.7
		if located(g.diags) {
			confidence = 0.95
		}

		findings = append(findings, newFinding(
			issue,
			record.SeverityCritical, // blocking diagnostics block the build
			diagScopes(g.diags),
			fmt.Sprintf("%d blocking diagnostic(s) with code %s: %s", len(g.diags), code, g.diags[0].Message),
			evidenceIDs(g.evidence),
			confidence,
		))
	}
	return findings
}

func (a *ErrorPattern) analyzeLogErrors(records []record.ObservationRecord) []record.Finding {
	type logGroup struct {
		lines    []record.LogLine
		evidence map[string]struct{}
	}
	groups := make(map[string]*logGroup)
	for _, rec := range records {
		for _, line := range rec.Payload.LogLines {
			if line.Level != "error" && line.Level != "fatal" {
				continue
			}
			key := line.Source + "|" + line.Message
			g, ok := groups[key]
			if !ok {
				g = &logGroup{evidence: make(map[string]struct{})}
				groups[key] = g
			}
			g.lines = append(g.lines, line)
			g.evidence[rec.ID] = struct{}{}
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
		first := g.lines[0]

		// Confidence from signal clarity: a single ambiguous log line stays
		// at or below 0.5; a stack trace makes the error reproducible.
		confidence := 0.45
		switch {
		case hasStack(g.lines):
			confidence = 0.9
		case len(g.lines) > 1:
			confidence = 0.6
		}

		scope := []string{first.Source}
		if first.Source == "" {
			scope = []string{"runtime"}
		}
		findings = append(findings, newFinding(
			record.IssueRuntimeError,
			record.SeverityHigh, // runtime errors are user-facing defects
			scope,
			fmt.Sprintf("%d runtime error(s): %s", len(g.lines), first.Message),
			evidenceIDs(g.evidence),
			confidence,
		))
	}
	return findings
}

func isDependencyDiagnostic(diags []record.Diagnostic) bool {
	for _, d := range diags {
		msg := strings.ToLower(d.Message)
		for _, marker := range dependencyMarkers {
			if strings.Contains(msg, marker) {
				return true
			}
		}
	}
	return false
}

func located(diags []record.Diagnostic) bool {
	for _, d := range diags {
		if d.File == "" || d.Line == 0 {
			return false
		}
	}
	return true
}

func hasStack(lines []record.LogLine) bool {
	for _, l := range lines {
		if l.StackTrace != "" {
			return true
		}
	}
	return false
}

func diagScopes(diags []record.Diagnostic) []string {
	seen := make(map[string]struct{})
	var scopes []string
	for _, d := range diags {
		file := d.File
		if file == "" {
			file = "build"
		}
		if _, ok := seen[file]; ok {
			continue
		}
		seen[file] = struct{}{}
		scopes = append(scopes, file)
	}
	sort.Strings(scopes)
	return scopes
}

func evidenceIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
