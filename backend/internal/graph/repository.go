// Package graph implements the memory graph store on Neo4j. Cypher is the
// wire contract: combined vector-similarity and exact entity-match lookups go
// through the same declarative query surface so the store implementation can
// change without touching callers.
package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"dma/backend/pkg/errors"
	"dma/backend/pkg/logger"
)

const vectorIndexName = "memory_embedding_idx"

var _ Store = (*Repository)(nil)

// Repository handles all Neo4j operations for the memory graph
type Repository struct {
	driver         neo4j.DriverWithContext
	database       string
	embeddingDim   int
	encoderVersion string
	logger         *zap.Logger
}

// NewRepository creates a new memory graph repository
func NewRepository(driver neo4j.DriverWithContext, database string, embeddingDim int, encoderVersion string) *Repository {
	return &Repository{
		driver:         driver,
		database:       database,
		embeddingDim:   embeddingDim,
		encoderVersion: encoderVersion,
		logger:         logger.Get(),
	}
}

// Close closes the Neo4j driver connection
func (r *Repository) Close() error {
	return r.driver.Close(context.Background())
}

// EnsureSchema creates the uniqueness constraints, lookup indexes and the
// vector index the store depends on. Safe to call on every startup.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	session := r.writeSession(ctx)
	defer session.Close(ctx)

	statements := []string{
		`CREATE CONSTRAINT memory_id_unique IF NOT EXISTS FOR (m:Memory) REQUIRE m.id IS UNIQUE`,
		`CREATE CONSTRAINT entity_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE`,
		`CREATE INDEX memory_content_hash IF NOT EXISTS FOR (m:Memory) ON (m.content_hash)`,
		`CREATE INDEX memory_status IF NOT EXISTS FOR (m:Memory) ON (m.status)`,
		fmt.Sprintf(`CREATE VECTOR INDEX %s IF NOT EXISTS
			FOR (m:Memory) ON (m.embedding)
			OPTIONS {indexConfig: {
				`+"`vector.dimensions`"+`: %d,
				`+"`vector.similarity_function`"+`: 'cosine'
			}}`, vectorIndexName, r.embeddingDim),
	}

	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return errors.NewStoreUnavailable(r.database, fmt.Errorf("schema setup failed: %w", err))
		}
	}

	r.logger.Info("Graph schema ensured",
		zap.String("database", r.database),
		zap.Int("embedding_dim", r.embeddingDim),
	)
	return nil
}

func (r *Repository) readSession(ctx context.Context) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: r.database,
	})
}

func (r *Repository) writeSession(ctx context.Context) neo4j.SessionWithContext {
	return r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: r.database,
	})
}
