// Package core defines the domain model and collaborator interfaces for the
// requirement coverage reconciliation engine.
//
// # Architecture Overview
//
// The core package provides:
//   - Domain types (WorkItem, RequirementWorkItem, AlignedStep, CoverageRow, etc.)
//   - Collaborator interfaces for upstream fetches (work items, steps, run results, tables)
//   - Constants for outcomes, run statuses and responsibility labels
//   - Small shared helpers used by more than one reconciliation stage
//
// # Design Principles
//
//  1. Collaborators are injected; the reconciliation packages never talk HTTP
//  2. Small, focused interfaces (1-3 methods)
//  3. context.Context as first parameter on every blocking call
//  4. Raw upstream payload shapes are normalized before they reach this package
//
// Everything here is derived per report invocation. Nothing is persisted.
package core
