// Package history is the durable lifecycle store for accepted submissions.
//
// Every danmaku the provider accepts is recorded with status PENDING; the
// reconciliation monitor later transitions records to VERIFIED (seen in a live
// listing) or LOST (absent from an authoritative listing). Records are never
// deleted: they are the audit trail and the basis for skip-on-rerun
// deduplication.
package history
