package objgraph

import "github.com/uber-go/tally/v4"

const (
	metricObjectsCreated       = "objects_created"
	metricObjectsDestroyed     = "objects_destroyed"
	metricObjectsAdded         = "objects_added"
	metricObjectsRemoved       = "objects_removed"
	metricObjectsMoved         = "objects_moved"
	metricUnknownTypeInstances = "reader_unknown_type_instances"
	metricPatchOperations      = "patch_operations_applied"
	metricGraphNodesWritten    = "writer_nodes_written"
)

func scopeOrNoop(scope tally.Scope) tally.Scope {
	if scope == nil {
		return tally.NoopScope
	}
	return scope
}
