// Package execution defines the append-only attempt ledger.
//
// Every processing attempt of a work item is recorded as an [Execution]
// row carrying provenance (input hash, model version, prompt hash) and the
// terminal outcome. Retries link to the attempt they replace via RetryOf,
// so the full history of an item is a walkable chain.
//
// The item's ActiveExecutionID points at the execution whose output is
// the current result. Promotion is guarded: only a succeeded execution of
// the same item can become active, which makes "active but failed" states
// unrepresentable.
package execution
