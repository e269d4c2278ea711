// Package ember is the module root. It holds the shared Fatal marker every
// component's fatal integrity error satisfies, so host code can do a single
// errors.As(err, &fatalErr) regardless of which component raised it.
package ember

// Fatal is satisfied by every *FatalError type in this module (state,
// record, save, progression, tick, bufferpool). A fatal error means an
// integrity invariant was violated and aborts the operation. Only some
// fatal paths record a telemetry error before panicking (non-finite
// resource values, buffer-pool exhaustion); the others, such as duplicate
// ids, out-of-range indices, digest mismatch and hydrate from an earlier
// step, reach the caller without a telemetry record.
type Fatal interface {
	error
	FatalError() bool
}
