// Package ast provides the abstract syntax tree for triage stage definitions.
//
// A stage definition is data, not code: an explicit tree of enumerated node
// kinds that the engine interprets against a per-run fact store. All nodes
// keep their source location for error reporting.
//
// # Core Types
//
// Stage: root node holding metadata, bounds, probe bindings, magic
// signatures, classifiers, rules and (for the finalization stage) outcome
// declarations, the otherwise fallback and dispatch rules.
//
// ConditionNode: a simple test (field op value) or an all/any/not combinator.
//
// Action: one effect of a matched rule (signal, tag, risk_hint, score, run,
// emit, defer, set_outcome, promote_outcome) with typed parameters.
//
// # Structure
//
//	Stage
//	├── Bounds (read/scan bytes, depth, members, fail mode)
//	├── Probes ([]*ProbeBinding, explicit "after" dependencies)
//	├── Magic ([]*MagicSignature)
//	├── Classify ([]*Classifier)
//	├── Rules ([]*Rule)
//	│   ├── Conditions (*ConditionNode)
//	│   └── Actions ([]*Action)
//	└── Outcomes / Otherwise / Dispatch (finalization only)
//
// # Immutability
//
// AST nodes are treated as immutable after construction. The compiler
// checks them once and the engine shares them read-only across runs.
package ast
