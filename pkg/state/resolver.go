package state

import (
	"context"
	"fmt"

	objgraph "github.com/goliatone/go-objgraph"
	"github.com/google/uuid"
)

// Resolver checkpoints documents into a Store and rebuilds them from it.
type Resolver struct {
	Store Store

	// Types resolves node type names on Restore.
	Types *objgraph.TypeRegistry

	// Filter, when set, limits which properties Checkpoint writes.
	Filter objgraph.Filter
}

// Mutator edits a loaded graph in place.
type Mutator func(*objgraph.Graph) error

// Checkpoint writes the whole document under its root and saves the graph.
// ref.Document defaults to the document id.
func (r Resolver) Checkpoint(ctx context.Context, ref Ref, doc *objgraph.Document, meta Meta) (Meta, error) {
	if r.Store == nil {
		return Meta{}, fmt.Errorf("state: store is required")
	}
	if doc == nil {
		return Meta{}, fmt.Errorf("state: document is required")
	}
	if ref.Document == uuid.Nil {
		ref.Document = doc.ID()
	}
	if ref.Document != doc.ID() {
		return Meta{}, fmt.Errorf("state: ref document %s does not match document %s", ref.Document, doc.ID())
	}

	var opts []objgraph.WriterOption
	if r.Filter != nil {
		opts = append(opts, objgraph.WithFilter(r.Filter))
	}
	w := objgraph.NewWriter(nil, opts...)
	w.AddObjectToGraph(doc.Root(), ref.Label)

	saved, err := r.Store.Save(ctx, ref, w.Graph(), meta)
	if err != nil {
		return Meta{}, fmt.Errorf("state: save %q: %w", ref.Domain, err)
	}
	return saved, nil
}

// Restore loads the snapshot for ref and rebuilds it as a new document whose
// root carries the stored root id. Objects of unknown types are dropped and
// logged through the document logger.
func (r Resolver) Restore(ctx context.Context, ref Ref, opts ...objgraph.DocumentOption) (*objgraph.Document, Meta, error) {
	if r.Store == nil {
		return nil, Meta{}, fmt.Errorf("state: store is required")
	}
	if r.Types == nil {
		return nil, Meta{}, fmt.Errorf("state: type registry is required")
	}
	graph, meta, ok, err := r.Store.Load(ctx, ref)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("state: load %q: %w", ref.Domain, err)
	}
	if !ok {
		return nil, Meta{}, fmt.Errorf("%w: %s/%s", ErrSnapshotNotFound, ref.Domain, ref.Document)
	}
	root := graph.GetNode(ref.Document)
	if root == nil {
		return nil, meta, fmt.Errorf("%w: root node %s missing from snapshot", ErrSnapshotNotFound, ref.Document)
	}

	docOpts := append([]objgraph.DocumentOption{}, opts...)
	doc := objgraph.NewDocument(append(docOpts, objgraph.WithDocumentID(ref.Document))...)
	reader := objgraph.NewReader(graph, doc, r.Types, objgraph.ReaderRegistered)
	reader.ApplyPropertiesToObject(root, doc.Root())
	return doc, meta, nil
}

// Mutate loads one snapshot, applies fn and saves the result. A non-empty
// meta.ETag must match the loaded snapshot. A missing snapshot starts from an
// empty graph.
func (r Resolver) Mutate(ctx context.Context, ref Ref, meta Meta, fn Mutator) (*objgraph.Graph, Meta, error) {
	if r.Store == nil {
		return nil, Meta{}, fmt.Errorf("state: store is required")
	}
	if fn == nil {
		return nil, Meta{}, fmt.Errorf("state: mutator is required")
	}

	graph, loadedMeta, ok, err := r.Store.Load(ctx, ref)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("state: load %q: %w", ref.Domain, err)
	}
	if !ok {
		graph = objgraph.NewGraph()
		loadedMeta = Meta{}
	}

	if meta.ETag != "" && loadedMeta.ETag != "" && meta.ETag != loadedMeta.ETag {
		return nil, loadedMeta, fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, meta.ETag, loadedMeta.ETag)
	}

	if err := fn(graph); err != nil {
		return nil, loadedMeta, err
	}

	savedMeta, err := r.Store.Save(ctx, ref, graph, mergeMeta(loadedMeta, meta))
	if err != nil {
		return nil, loadedMeta, fmt.Errorf("state: save %q: %w", ref.Domain, err)
	}
	return graph, savedMeta, nil
}
