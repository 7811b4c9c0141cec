package index_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/JaimeStill/lexis/internal/index"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(t *testing.T, h http.Handler) *index.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return index.New(srv.URL, "documents", 2, 5*time.Second, 1000, 10, discard())
}

func ptr(s string) *string { return &s }

func TestScanFollowsCursor(t *testing.T) {
	pages := map[string]struct {
		ids  []string
		next string
	}{
		"*":  {[]string{"1", "2"}, "c1"},
		"c1": {[]string{"3"}, "c2"},
		"c2": {nil, "c2"},
	}

	var sawSort, sawQuery string
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/documents/select" {
			t.Errorf("path = %s", r.URL.Path)
		}
		sawSort = r.URL.Query().Get("sort")
		sawQuery = r.URL.Query().Get("q")
		p := pages[r.URL.Query().Get("cursorMark")]

		docs := make([]index.Document, 0, len(p.ids))
		for _, id := range p.ids {
			docs = append(docs, index.Document{ID: id, Website: "eur-lex"})
		}
		json.NewEncoder(w).Encode(map[string]any{
			"response":       map[string]any{"docs": docs},
			"nextCursorMark": p.next,
		})
	}))

	cur := client.Scan(context.Background(), "eur-lex")
	var ids []string
	for d := range cur.All() {
		ids = append(ids, d.ID)
	}

	if err := cur.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	if len(ids) != 3 || ids[0] != "1" || ids[2] != "3" {
		t.Errorf("ids = %v", ids)
	}
	if sawSort != "id asc" {
		t.Errorf("sort = %q, want id asc", sawSort)
	}
	if sawQuery != `website:"eur-lex"` {
		t.Errorf("q = %q", sawQuery)
	}
}

func TestScanStopsEarly(t *testing.T) {
	calls := 0
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(map[string]any{
			"response":       map[string]any{"docs": []index.Document{{ID: "a"}, {ID: "b"}}},
			"nextCursorMark": "more",
		})
	}))

	for range client.Scan(context.Background(), "w").All() {
		break
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestScanError(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))

	cur := client.Scan(context.Background(), "w")
	for range cur.All() {
		t.Fatal("no documents expected")
	}
	if !errors.Is(cur.Err(), index.ErrRequestFailed) {
		t.Errorf("Err = %v, want ErrRequestFailed", cur.Err())
	}
}

func TestGet(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "known" {
			json.NewEncoder(w).Encode(map[string]any{"doc": index.Document{ID: "known", Title: ptr("Directive")}})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"doc": nil})
	}))

	doc, err := client.Get(context.Background(), "known")
	if err != nil || doc.Title == nil || *doc.Title != "Directive" {
		t.Errorf("Get(known) = %+v, %v", doc, err)
	}
	if _, err := client.Get(context.Background(), "missing"); !errors.Is(err, index.ErrNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}
}

func TestUpdateUsesAtomicSet(t *testing.T) {
	var body []map[string]any
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
	}))

	if err := client.Update(context.Background(), "doc-1", index.Fields{"score": 0.5}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if len(body) != 1 || body[0]["id"] != "doc-1" {
		t.Fatalf("body = %v", body)
	}
	set, ok := body[0]["score"].(map[string]any)
	if !ok || set["set"] != 0.5 {
		t.Errorf("score = %v, want {set: 0.5}", body[0]["score"])
	}
}

func TestDeleteAndCommit(t *testing.T) {
	var cmds []map[string]any
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cmd map[string]any
		json.NewDecoder(r.Body).Decode(&cmd)
		cmds = append(cmds, cmd)
	}))

	if err := client.Delete(context.Background(), "doc-1"); err != nil {
		t.Fatal(err)
	}
	if err := client.Commit(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := cmds[0]["delete"]; !ok {
		t.Errorf("first command = %v, want delete", cmds[0])
	}
	if _, ok := cmds[1]["commit"]; !ok {
		t.Errorf("second command = %v, want commit", cmds[1])
	}
}

func TestScanSendsFilterQueries(t *testing.T) {
	var fq []string
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fq = r.URL.Query()["fq"]
		json.NewEncoder(w).Encode(map[string]any{
			"response":       map[string]any{"docs": []index.Document{}},
			"nextCursorMark": "*",
		})
	}))

	cur := client.Scan(context.Background(), "w", index.Missing("plaintext"))
	for range cur.All() {
	}
	if err := cur.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if len(fq) != 1 || fq[0] != "-plaintext:[* TO *]" {
		t.Errorf("fq = %v", fq)
	}
}
