package feedback

import (
	"context"

	"go.uber.org/zap"

	"dma/backend/internal/graph"
)

// ConflictDetector flags whether new content contradicts an existing fact.
// The production implementation asks the generator model; tests stub it.
type ConflictDetector interface {
	DetectConflict(ctx context.Context, newContent, oldContent string) (bool, error)
}

// ResolveContradictions checks a freshly created node against existing
// active nodes that share entities with it. Each detected conflict creates a
// SUPERSEDES edge from the new node to the old fact and marks the old node
// stale, atomically. Nothing is deleted; both sides stay traceable.
func (m *Manager) ResolveContradictions(ctx context.Context, newNodeID, newContent string, overlapping []*graph.MemoryNode, detector ConflictDetector) []string {
	var superseded []string
	for _, old := range overlapping {
		if old.ID == newNodeID || old.Status != graph.StatusActive {
			continue
		}

		conflicts, err := detector.DetectConflict(ctx, newContent, old.Content)
		if err != nil {
			// detector degraded: leave both facts active rather than guess
			m.logger.Warn("Conflict detection failed, skipping",
				zap.String("old_id", old.ID),
				zap.Error(err),
			)
			continue
		}
		if !conflicts {
			continue
		}

		if err := m.store.SupersedeNode(ctx, newNodeID, old.ID); err != nil {
			m.logger.Error("Failed to supersede contradicted node",
				zap.String("new_id", newNodeID),
				zap.String("old_id", old.ID),
				zap.Error(err),
			)
			continue
		}
		superseded = append(superseded, old.ID)
	}
	return superseded
}
