// Package storage persists the channel monitor's durable state in SQLite:
// the subscriber ledger, the append-only mention ledger and the per-day
// counter table.
//
// Every event-applying method performs its ledger write and its counter
// bump inside one transaction, and counter bumps use a single
// INSERT ... ON CONFLICT DO UPDATE statement so concurrent events for the
// same date never lose updates.
package storage
