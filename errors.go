package spn

import "errors"

// Error taxonomy of the engine. Every failure aborts the whole top-level call;
// there are no partial or degraded results. Errors are wrapped with context
// naming the offending node or distribution family, so callers can match with
// errors.Is and still read a descriptive message.
var (
	// ErrConfiguration marks construction-time failures: invalid scopes,
	// invalid weight vectors, mismatched child scopes, zero children.
	ErrConfiguration = errors.New("invalid circuit configuration")

	// ErrParameter marks evaluation-time parameter-retrieval failures: a
	// conditional node with no override and no parameter source, or a
	// malformed parameter shape.
	ErrParameter = errors.New("parameter retrieval failed")

	// ErrSupport marks evaluation-time support violations: an observed value
	// lies outside a leaf distribution's support.
	ErrSupport = errors.New("data outside distribution support")

	// ErrBounds marks sampling-time instance ids outside the data batch.
	ErrBounds = errors.New("instance id out of bounds")
)
