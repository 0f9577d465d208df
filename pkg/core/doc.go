// Package core defines the shared language of the leapmigrate system.
//
// This package contains:
//   - Lineage entities (Node, Edge, Relationship, NodeType)
//   - Provenance records and the arena that interns them
//   - Merge inputs and results (FileDescriptor, FileLineages, MergeResult)
//   - Migration plan results (MigrationPlan, MigrationGroup, Wave)
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
