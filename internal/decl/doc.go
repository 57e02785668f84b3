// Package decl loads and compiles declarations: the CUE files describing the
// desired set of resource nodes. Compilation produces ResourceSpec values;
// validation checks each spec against the provider schema registry and
// reports every violation with a stable E-code and source position.
//
// Cross-node checks (reference resolution, cycles) belong to the graph
// builder, not here.
package decl
