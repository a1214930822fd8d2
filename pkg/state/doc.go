// Package state defines persistence-facing contracts for snapshot graphs of
// an object document, plus a small resolver that checkpoints a live document
// into a Store and restores it later.
//
// Responsibilities:
//   - Store only loads/saves a single graph for a single Ref.
//   - Resolver writes documents to graphs (objgraph.Writer) before saving
//     and rebuilds documents from loaded graphs (objgraph.Reader).
//   - The objgraph package stays persistence-agnostic; byte encodings and
//     backends live behind Store implementations supplied by consumers.
//
// Data flow:
//
//	Document -> Writer -> Graph -> Store.Save
//	Store.Load -> Graph -> Reader -> Document
//
// Concurrency control:
//
//	Meta.ETag is a blake3 digest of the graph content (see ETag). Saving
//	with a non-empty Meta.ETag fails with ErrETagMismatch when the stored
//	snapshot changed in between.
package state
