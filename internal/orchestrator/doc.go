// Package orchestrator drives the remediation loop.
//
// One run executes up to the configured iteration cap. Each iteration is
// gather -> analyze -> decide -> gate -> implement -> learn, under a
// per-iteration wall-clock budget. Deferred conflicts, timed-out approvals,
// and rolled-back findings carry over to the next iteration with their
// original identifiers. The run ends when an iteration produces no
// actionable work, the cap is reached, or the operator stops it.
package orchestrator
