// Package graph projects the concept graph of an extractor version into a
// Neo4j database for traversal queries. The relational store stays the
// source of truth; every projection replaces the version's subgraph.
package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/JaimeStill/lexis/internal/concepts"
	"github.com/JaimeStill/lexis/internal/config"
	"github.com/JaimeStill/lexis/pkg/lifecycle"
)

var schema = []string{
	`CREATE CONSTRAINT concept_id_unique IF NOT EXISTS FOR (c:Concept) REQUIRE c.id IS UNIQUE`,
	`CREATE INDEX concept_version_idx IF NOT EXISTS FOR (c:Concept) ON (c.extractor_version)`,
}

const (
	mergeNodes = `
UNWIND $nodes AS n
MERGE (c:Concept {id: n.id})
SET c += n`

	mergeLinks = `
UNWIND $links AS l
MATCH (a:Concept {id: l.a})
MATCH (b:Concept {id: l.b})
MERGE (a)-[r:CO_DEFINED]-(b)
SET r.extractor_version = l.extractor_version, r.synced_at = l.synced_at`

	pruneLinks = `
MATCH (:Concept {extractor_version: $version})-[r:CO_DEFINED]-()
WHERE r.synced_at <> $synced_at
DELETE r`

	pruneNodes = `
MATCH (c:Concept {extractor_version: $version})
WHERE c.synced_at <> $synced_at
DETACH DELETE c`
)

// Projector writes concept graphs to Neo4j.
type Projector struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// New creates a Projector for cfg. It returns nil when no graph store is
// configured. No connection is made until Start or first use.
func New(cfg *config.GraphConfig, logger *slog.Logger) (*Projector, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	auth := neo4j.BasicAuth(cfg.User, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.PoolSize
		c.SocketConnectTimeout = 10 * time.Second
	})
	if err != nil {
		return nil, fmt.Errorf("init neo4j driver: %w", err)
	}

	return &Projector{
		driver:   driver,
		database: cfg.Database,
		logger:   logger.With("system", "graph"),
	}, nil
}

// Start verifies connectivity and ensures the schema on startup, and closes
// the driver on shutdown.
func (p *Projector) Start(lc *lifecycle.Coordinator) error {
	p.logger.Info("starting graph projector", "database", p.database)

	lc.OnStartup("graph", func() error {
		ctx := lc.Context()
		if err := p.driver.VerifyConnectivity(ctx); err != nil {
			p.logger.Error("neo4j connectivity failed", "error", err)
			return fmt.Errorf("neo4j verify connectivity: %w", err)
		}
		p.ensureSchema(ctx)
		p.logger.Info("graph connection established")
		return nil
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		if err := p.driver.Close(context.Background()); err != nil {
			p.logger.Error("neo4j close failed", "error", err)
			return
		}
		p.logger.Info("graph connection closed")
	})

	return nil
}

// Ping verifies the driver can reach the graph store. /readyz reports it.
func (p *Projector) Ping(ctx context.Context) error {
	return p.driver.VerifyConnectivity(ctx)
}

// Project replaces the subgraph of version with nodes and links. Concepts
// and edges of version absent from the input are removed.
func (p *Projector) Project(ctx context.Context, version string, nodes []concepts.Concept, links []concepts.Link) error {
	syncedAt := time.Now().UTC().Format(time.RFC3339Nano)
	nodeRecs, linkRecs := Records(version, syncedAt, nodes, links)

	session := p.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: p.database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		steps := []struct {
			cypher string
			params map[string]any
			skip   bool
		}{
			{mergeNodes, map[string]any{"nodes": nodeRecs}, len(nodeRecs) == 0},
			{mergeLinks, map[string]any{"links": linkRecs}, len(linkRecs) == 0},
			{pruneLinks, map[string]any{"version": version, "synced_at": syncedAt}, false},
			{pruneNodes, map[string]any{"version": version, "synced_at": syncedAt}, false},
		}
		for _, s := range steps {
			if s.skip {
				continue
			}
			res, err := tx.Run(ctx, s.cypher, s.params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("project graph %s: %w", version, err)
	}

	p.logger.Info("graph projected", "extractor_version", version, "concepts", len(nodeRecs), "links", len(linkRecs))
	return nil
}

// Records converts concepts and links to Cypher parameter maps. Links whose
// endpoints are not among nodes are dropped.
func Records(version, syncedAt string, nodes []concepts.Concept, links []concepts.Link) ([]map[string]any, []map[string]any) {
	known := make(map[string]bool, len(nodes))
	nodeRecs := make([]map[string]any, 0, len(nodes))
	for _, c := range nodes {
		id := c.ID.String()
		known[id] = true
		nodeRecs = append(nodeRecs, map[string]any{
			"id":                id,
			"name":              c.Name,
			"normalized_name":   c.NormalizedName,
			"lemma":             c.Lemma,
			"definition":        c.Definition,
			"extractor_version": version,
			"synced_at":         syncedAt,
		})
	}

	linkRecs := make([]map[string]any, 0, len(links))
	for _, l := range links {
		a, b := l.A.String(), l.B.String()
		if !known[a] || !known[b] {
			continue
		}
		linkRecs = append(linkRecs, map[string]any{
			"a":                 a,
			"b":                 b,
			"extractor_version": version,
			"synced_at":         syncedAt,
		})
	}
	return nodeRecs, linkRecs
}

func (p *Projector) ensureSchema(ctx context.Context) {
	session := p.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: p.database,
	})
	defer session.Close(ctx)

	for _, stmt := range schema {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			p.logger.Warn("neo4j schema init failed (continuing)", "error", err)
			continue
		}
		_, _ = res.Consume(ctx)
	}
}
