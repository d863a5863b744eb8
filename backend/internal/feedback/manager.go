// Package feedback turns usage outcomes into score updates and keeps the
// graph bounded: cited nodes gain importance, ignored nodes decay, and
// contradicted or low-value nodes move through the one-directional
// active -> stale -> pruned lifecycle.
package feedback

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"dma/backend/internal/graph"
	"dma/backend/pkg/errors"
	"dma/backend/pkg/logger"
)

// Config holds the feedback update parameters
type Config struct {
	Eta           float64 // reinforcement rate for cited nodes
	UnusedDecay   float64 // decay rate for retrieved-but-unused nodes
	StaleFloor    float64 // importance below which a decayed node goes stale
	UpdateRetries int     // bounded retries on version conflicts
}

// Manager applies usage feedback to node scores
type Manager struct {
	store  graph.Store
	config Config
	logger *zap.Logger
}

// NewManager creates a feedback manager over the given store
func NewManager(store graph.Store, config Config) *Manager {
	return &Manager{
		store:  store,
		config: config,
		logger: logger.Get(),
	}
}

// Apply records the outcome of one generation turn: every retrieved node is
// either reinforced (it was cited in the response) or slightly decayed (it
// was retrieved but unused). Nodes update independently and in parallel;
// each mutation is a versioned compare-and-swap on its own record, never a
// shared counter.
func (m *Manager) Apply(ctx context.Context, retrievedIDs []string, usedIDs map[string]bool) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, id := range retrievedIDs {
		id := id
		group.Go(func() error {
			return m.reinforce(groupCtx, id, usedIDs[id])
		})
	}
	return group.Wait()
}

// reinforce nudges one node's importance toward 1 when used, or decays it
// when unused. A decayed node whose importance falls below the stale floor
// transitions to stale in the same mutation. Version conflicts retry with a
// fresh read up to the configured bound.
func (m *Manager) reinforce(ctx context.Context, id string, used bool) error {
	var lastErr error
	for attempt := 0; attempt < m.config.UpdateRetries; attempt++ {
		node, err := m.store.GetNode(ctx, id)
		if err != nil {
			if errors.IsNotFound(err) {
				// pruned between retrieval and feedback; nothing to update
				return nil
			}
			return err
		}

		importance := node.Importance
		if used {
			importance += m.config.Eta * (1 - importance)
		} else {
			importance -= m.config.UnusedDecay * importance
		}

		mut := graph.NodeMutation{Importance: &importance}
		if !used && node.Status == graph.StatusActive && importance < m.config.StaleFloor {
			stale := graph.StatusStale
			mut.Status = &stale
		}

		err = m.store.UpdateNode(ctx, id, node.Version, mut)
		if err == nil {
			m.logger.Debug("Feedback applied",
				zap.String("node_id", id),
				zap.Bool("used", used),
				zap.Float64("importance", importance),
			)
			return nil
		}
		if !errors.IsConflict(err) {
			return err
		}
		lastErr = err
	}
	return errors.NewBaseError(errors.ErrorTypeStore,
		fmt.Sprintf("feedback update retries exhausted for node %s", id), lastErr)
}

// MarkIrrelevant transitions an active node to stale on a persistent
// irrelevance signal, without waiting for importance decay.
func (m *Manager) MarkIrrelevant(ctx context.Context, id string) error {
	var lastErr error
	for attempt := 0; attempt < m.config.UpdateRetries; attempt++ {
		node, err := m.store.GetNode(ctx, id)
		if err != nil {
			return err
		}
		if node.Status != graph.StatusActive {
			return nil
		}
		stale := graph.StatusStale
		err = m.store.UpdateNode(ctx, id, node.Version, graph.NodeMutation{Status: &stale})
		if err == nil {
			return nil
		}
		if !errors.IsConflict(err) {
			return err
		}
		lastErr = err
	}
	return errors.NewBaseError(errors.ErrorTypeStore,
		fmt.Sprintf("stale transition retries exhausted for node %s", id), lastErr)
}
