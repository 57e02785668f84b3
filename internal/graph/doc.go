// Package graph builds the validated dependency DAG over a declaration.
//
// Edges come from two places: explicit depends_on lists, and implicit
// references inferred by static analysis of attribute expressions
// (${node.output}). Reference targets are checked against the provider
// schema registry, and the edge set is rejected if it contains a cycle.
// Building is a pure transformation with no side effects.
package graph
