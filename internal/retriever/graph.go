package retriever

import (
	"context"

	"github.com/weknora-chat/ragstream/internal/logger"
	"github.com/weknora-chat/ragstream/internal/types"
	"github.com/neo4j/neo4j-go-driver/v6/neo4j"
)

// Neo4jGraphEnricher is the optional entity-graph enrichment hook
// (SPEC_FULL.md §C.3), grounded on handler/system.go's neo4jDriver field
// and getGraphDatabaseEngine recognizing a configured driver as "Neo4j".
// It looks up entities mentioned by each passage's source document and
// appends any directly-linked entity names to the passage's metadata so
// the ReAct engine's final answer can cite relationships the text itself
// doesn't spell out.
type Neo4jGraphEnricher struct {
	driver neo4j.DriverWithContext
}

func NewNeo4jGraphEnricher(driver neo4j.DriverWithContext) *Neo4jGraphEnricher {
	return &Neo4jGraphEnricher{driver: driver}
}

const relatedEntityQuery = `
MATCH (d:Document {id: $documentID})-[:MENTIONS]->(e:Entity)-[:RELATED_TO]->(linked:Entity)
RETURN DISTINCT linked.name AS name
LIMIT 5
`

func (g *Neo4jGraphEnricher) Enrich(ctx context.Context, passages []types.Passage) []types.Passage {
	if g.driver == nil {
		return passages
	}
	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	for i, p := range passages {
		if p.DocumentID == "" {
			continue
		}
		names, err := g.relatedEntities(ctx, session, p.DocumentID)
		if err != nil {
			logger.Warnf(ctx, "graph enrichment failed for document %s: %v", p.DocumentID, err)
			continue
		}
		if len(names) == 0 {
			continue
		}
		if passages[i].Metadata == nil {
			passages[i].Metadata = map[string]any{}
		}
		passages[i].Metadata["related_entities"] = names
	}
	return passages
}

func (g *Neo4jGraphEnricher) relatedEntities(ctx context.Context, session neo4j.SessionWithContext, documentID string) ([]string, error) {
	result, err := session.Run(ctx, relatedEntityQuery, map[string]any{"documentID": documentID})
	if err != nil {
		return nil, err
	}
	var names []string
	for result.Next(ctx) {
		if name, ok := result.Record().Get("name"); ok {
			if s, ok := name.(string); ok {
				names = append(names, s)
			}
		}
	}
	return names, result.Err()
}
