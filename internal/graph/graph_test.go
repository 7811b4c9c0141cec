package graph_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/internal/concepts"
	"github.com/JaimeStill/lexis/internal/config"
	"github.com/JaimeStill/lexis/internal/graph"
)

func TestNewDisabledWithoutURI(t *testing.T) {
	p, err := graph.New(&config.GraphConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p != nil {
		t.Error("expected nil projector without a uri")
	}
}

func TestRecords(t *testing.T) {
	a := concepts.Concept{ID: uuid.New(), Name: "Widget", NormalizedName: "widget", Lemma: "widget"}
	b := concepts.Concept{ID: uuid.New(), Name: "Device", NormalizedName: "device"}
	ab, _ := concepts.NewLink(a.ID, b.ID)
	dangling, _ := concepts.NewLink(a.ID, uuid.New())

	nodes, links := graph.Records("v1", "t0", []concepts.Concept{a, b}, []concepts.Link{ab, dangling})

	if len(nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(nodes))
	}
	if nodes[0]["id"] != a.ID.String() || nodes[0]["normalized_name"] != "widget" {
		t.Errorf("node = %v", nodes[0])
	}
	for _, n := range nodes {
		if n["extractor_version"] != "v1" || n["synced_at"] != "t0" {
			t.Errorf("node stamp = %v", n)
		}
	}

	if len(links) != 1 {
		t.Fatalf("links = %d, want dangling edge dropped", len(links))
	}
	if links[0]["a"] != ab.A.String() || links[0]["b"] != ab.B.String() {
		t.Errorf("link = %v", links[0])
	}
}
