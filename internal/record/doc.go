// Package record defines the immutable data model shared by every pipeline
// stage: observations, findings, decisions, implementation records, and
// learning records.
//
// # Ownership
//
// Each record type is produced by exactly one stage and consumed read-only by
// the stages downstream of it. Records are value types; downstream code holds
// references by id and never mutates what it received. The correlation id is
// the single field threaded through all five types, so one issue can be
// traced from the raw observation that surfaced it to the learned outcome of
// its fix.
package record
