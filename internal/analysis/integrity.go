package analysis

import (
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/remedyd/internal/record"
)

// ResourceIntegrity turns invalid resource references into findings. The
// resource-graph check is deterministic, so confidence is uniformly high.
type ResourceIntegrity struct{}

func (a *ResourceIntegrity) Name() string { return "resource-integrity" }

func (a *ResourceIntegrity) Accepts(ct record.CollectorType) bool {
	return ct == record.CollectorResourceIntegrity
}

func (a *ResourceIntegrity) Analyze(records []record.ObservationRecord) []record.Finding {
	type broken struct {
		ref      record.ResourceRef
		evidence string
	}
	var refs []broken
	for _, rec := range records {
		for _, ref := range rec.Payload.Resources {
			if ref.Valid {
				continue
			}
			refs = append(refs, broken{ref: ref, evidence: rec.ID})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ref.Path < refs[j].ref.Path })

	var findings []record.Finding
	for _, b := range refs {
		// A reference something else depends on blocks launch; an orphaned
		// broken resource is a leak, not a blocker.
		sev := record.SeverityHigh
		if b.ref.ReferencedBy != "" {
			sev = record.SeverityCritical
		}

		scope := []string{b.ref.Path}
		if b.ref.ReferencedBy != "" {
			scope = append(scope, b.ref.ReferencedBy)
		}
		findings = append(findings, newFinding(
			record.IssueBrokenReference,
			sev,
			scope,
			fmt.Sprintf("resource %s is %s (referenced by %s)", b.ref.Path, b.ref.Reason, b.ref.ReferencedBy),
			[]string{b.evidence},
			0.95,
		))
	}
	return findings
}
