// Package merge joins the five source tables into one Integrated Record
// per job.
//
// The join is an outer union of job ids: a job present in any source gets a
// record, and a source that contributed nothing leaves nil fields and a
// false provenance flag. Sources with several rows for the same job are
// reduced deterministically before the join: the row with the most recent
// source timestamp supplies the scalar fields, ties fall to the later row
// in file order, and note texts are kept as an ordered collection rather
// than reduced away.
//
// Null handling is deliberate. Missing values stay nil unless one of the
// enumerated backfill rules (see Rules) substitutes a default, and every
// substitution is recorded on the record's provenance so downstream
// consumers can tell a measured value from a defaulted one.
//
// Merge is pure: no I/O, no clock, no randomness. The same tables always
// produce the same records in the same order.
package merge
