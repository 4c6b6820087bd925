// Package pipeline wires together the leaf components — scanner, planner,
// ledger, chunker, embedding queue, embedder supervisor, and vector store —
// into the single driver the CLI and the watch loop call into. Nothing in
// internal/pipeline is itself a specified component (§4 of the design);
// it is the orchestration glue §2's data-flow diagram describes informally.
package pipeline
