// Package core defines the shared language of the LeapREST system.
//
// This package contains:
//   - Schema entities (Schema, Relation, Column, ForeignKey)
//   - The request tree produced by the parser and resolved by the planner
//   - Compiled statements and their parameters
//   - Dialect configuration (pure data)
//   - The error taxonomy shared by every stage
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
