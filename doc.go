// Package spn evaluates probabilistic circuits (sum-product networks).
//
// A circuit is a DAG of sum nodes (mixtures), product nodes (independence
// factorizations) and distribution leaves, optionally batched into layers.
// The package computes per-instance log-likelihoods with missing-data
// marginalization, structurally marginalizes circuits down to a sub-scope,
// and samples missing values conditioned on observed ones, including exact
// conditional draws from joint Gaussian leaves.
//
// All traversals are driven through a DispatchContext, which memoizes
// per-node results (shared sub-circuits of a DAG are evaluated once),
// carries per-node parameter overrides for conditional leaves, and accepts
// substitute per-kind implementations for experimentation. Numeric results
// are produced by a pluggable backend; the default is a plain dense array,
// and a gradient-tracking backend supports reverse-mode differentiation of
// the evaluation.
package spn
