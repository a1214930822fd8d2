package state

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	objgraph "github.com/goliatone/go-objgraph"
	"github.com/google/uuid"
	"lukechampine.com/blake3"
)

var ErrETagMismatch = errors.New("state: etag mismatch")

var ErrSnapshotNotFound = errors.New("state: snapshot not found")

// Ref identifies one persisted snapshot of one document. Label selects a
// named checkpoint; empty means the latest one.
type Ref struct {
	Domain   string
	Document uuid.UUID
	Label    string
}

// Meta is storage-owned metadata used for audit and concurrency control.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Store loads/saves one graph for a single reference.
type Store interface {
	Load(ctx context.Context, ref Ref) (graph *objgraph.Graph, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, graph *objgraph.Graph, meta Meta) (Meta, error)
}

// Identifier returns the canonical storage key: domain/document[/label].
func (r Ref) Identifier() (string, error) {
	domain := strings.TrimSpace(r.Domain)
	if domain == "" {
		return "", fmt.Errorf("state: domain is required")
	}
	if r.Document == uuid.Nil {
		return "", fmt.Errorf("state: document id is required")
	}
	if label := strings.TrimSpace(r.Label); label != "" {
		if strings.Contains(label, "/") {
			return "", fmt.Errorf("state: label %q must not contain '/'", label)
		}
		return fmt.Sprintf("%s/%s/%s", domain, r.Document, label), nil
	}
	return fmt.Sprintf("%s/%s", domain, r.Document), nil
}

// ETag digests the content of graph. Node order and property order inside
// the graph do not matter; names, types, versions and values do.
func ETag(graph *objgraph.Graph) string {
	if graph == nil {
		return ""
	}
	nodes := graph.Nodes()
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].ID.String() < nodes[j].ID.String()
	})

	h := blake3.New(32, nil)
	for _, node := range nodes {
		fmt.Fprintf(h, "%s|%s|%d|%q\n", node.ID, node.Type, node.Version, node.Name)
		props := make([]objgraph.NodeProperty, len(node.Properties))
		copy(props, node.Properties)
		sort.Slice(props, func(i, j int) bool { return props[i].Name < props[j].Name })
		for _, prop := range props {
			fmt.Fprintf(h, "\t%q=%s:%v\n", prop.Name, prop.Value.Kind(), prop.Value.Interface())
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.SnapshotID != "" {
		out.SnapshotID = override.SnapshotID
	}
	if override.ETag != "" {
		out.ETag = override.ETag
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}

func cloneMeta(meta Meta) Meta {
	out := meta
	if meta.Extra == nil {
		return out
	}
	out.Extra = make(map[string]string, len(meta.Extra))
	for k, v := range meta.Extra {
		out.Extra[k] = v
	}
	return out
}
