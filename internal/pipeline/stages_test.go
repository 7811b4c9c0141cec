package pipeline_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/internal/annotation"
	"github.com/JaimeStill/lexis/internal/artifacts"
	"github.com/JaimeStill/lexis/internal/concepts"
	"github.com/JaimeStill/lexis/internal/docsync"
	"github.com/JaimeStill/lexis/internal/documents"
	"github.com/JaimeStill/lexis/internal/index"
	"github.com/JaimeStill/lexis/internal/nlp"
	"github.com/JaimeStill/lexis/internal/pipeline"
	"github.com/JaimeStill/lexis/internal/websites"
	"github.com/JaimeStill/lexis/pkg/storage"
)

func sp(b, e int) annotation.Span { return annotation.Span{Begin: b, End: e} }

func ptr[T any](v T) *T { return &v }

// solr is an in-memory index collection named "docs".
type solr struct {
	mu      sync.Mutex
	docs    []index.Document
	updates []map[string]any
	commits int
	// brokenAfterFirstPage makes every page after the first fail.
	brokenAfterFirstPage bool
}

func (s *solr) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch r.URL.Path {
	case "/docs/select":
		missingPlaintext := slices.Contains(r.URL.Query()["fq"], index.Missing("plaintext"))
		out := []index.Document{}
		for _, d := range s.docs {
			if missingPlaintext && d.Plaintext != nil {
				continue
			}
			out = append(out, d)
		}
		mark := r.URL.Query().Get("cursorMark")
		if s.brokenAfterFirstPage && mark != "*" {
			http.Error(w, "shard unavailable", http.StatusInternalServerError)
			return
		}
		next := "done"
		if mark == "done" {
			out = nil
		}
		json.NewEncoder(w).Encode(map[string]any{
			"response":       map[string]any{"docs": out},
			"nextCursorMark": next,
		})
	case "/docs/update":
		var body any
		json.NewDecoder(r.Body).Decode(&body)
		switch v := body.(type) {
		case map[string]any:
			if _, ok := v["commit"]; ok {
				s.commits++
			}
		case []any:
			for _, item := range v {
				if m, ok := item.(map[string]any); ok {
					s.updates = append(s.updates, m)
				}
			}
		}
		w.Write([]byte(`{}`))
	default:
		http.NotFound(w, r)
	}
}

func newIndex(t *testing.T, s *solr) *index.Client {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return index.New(srv.URL, "docs", 50, 5*time.Second, 1000, 100, discard())
}

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{objects: map[string][]byte{}}
}

func (b *fakeBlobs) put(bucket, key string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[bucket+"/"+key] = data
}

func (b *fakeBlobs) has(bucket, key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[bucket+"/"+key]
	return ok
}

func (b *fakeBlobs) List(_ context.Context, bucket, prefix string) ([]storage.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []storage.Object
	for k := range b.objects {
		if key, ok := strings.CutPrefix(k, bucket+"/"); ok && strings.HasPrefix(key, prefix) {
			out = append(out, storage.Object{Bucket: bucket, Key: key})
		}
	}
	slices.SortFunc(out, func(a, b storage.Object) int { return strings.Compare(a.Key, b.Key) })
	return out, nil
}

func (b *fakeBlobs) Download(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[bucket+"/"+key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (b *fakeBlobs) Delete(_ context.Context, bucket, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.objects[bucket+"/"+key]; !ok {
		return storage.ErrNotFound
	}
	delete(b.objects, bucket+"/"+key)
	return nil
}

func (b *fakeBlobs) Upload(_ context.Context, bucket, key string, r io.Reader, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	b.put(bucket, key, data)
	return nil
}

func (b *fakeBlobs) Create(ctx context.Context, bucket, key string, r io.Reader, contentType string) error {
	if b.has(bucket, key) {
		return storage.ErrExists
	}
	return b.Upload(ctx, bucket, key, r, contentType)
}

// fakeServices answers every NLP endpoint with the widget sentence.
type fakeServices struct {
	mu         sync.Mutex
	converted  []string
	classified int
	crawlErr   error
}

const widgetText = "A widget is a small device.\n"

func (f *fakeServices) Convert(_ context.Context, content []byte, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.converted = append(f.converted, contentType)
	return widgetText, nil
}

func (f *fakeServices) Segment(context.Context, string) (annotation.Segmentation, error) {
	return annotation.Segmentation{
		Paragraphs: []annotation.Span{sp(0, 28)},
		Sentences:  []annotation.Span{sp(0, 28)},
	}, nil
}

func (f *fakeServices) Definitions(context.Context, string, []annotation.Span) ([]annotation.Scored, error) {
	return []annotation.Scored{{Span: sp(0, 28), Score: 0.95}}, nil
}

func (f *fakeServices) Terms(context.Context, string) (annotation.TermAnalysis, error) {
	return annotation.TermAnalysis{
		Tokens: []annotation.Token{
			{Span: sp(2, 8), Lemma: "widget"},
			{Span: sp(20, 26), Lemma: "device"},
		},
		Relevance: []annotation.Scored{
			{Span: sp(2, 8), Score: 0.9},
			{Span: sp(20, 26), Score: 0.7},
		},
	}, nil
}

func (f *fakeServices) Classify(context.Context, string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classified++
	return 0.8, nil
}

func (f *fakeServices) Crawl(context.Context, string, string) (string, error) {
	if f.crawlErr != nil {
		return "", f.crawlErr
	}
	return "job-1", nil
}

// fakeDocuments is a relational store keyed by id.
type fakeDocuments struct {
	mu      sync.Mutex
	pending map[documents.Need][]uuid.UUID
	content map[uuid.UUID]*documents.Content
	docs    map[uuid.UUID]*documents.Document
	scores  map[uuid.UUID]float64
	created []documents.CreateCommand
	states  []documents.SyncState
	expired []uuid.UUID
}

func newFakeDocuments() *fakeDocuments {
	return &fakeDocuments{
		pending: map[documents.Need][]uuid.UUID{},
		content: map[uuid.UUID]*documents.Content{},
		docs:    map[uuid.UUID]*documents.Document{},
		scores:  map[uuid.UUID]float64{},
	}
}

func (f *fakeDocuments) Create(_ context.Context, cmd documents.CreateCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, cmd)
	return nil
}

func (f *fakeDocuments) Update(context.Context, uuid.UUID, documents.Fields, bool) error {
	return nil
}

func (f *fakeDocuments) Expire(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, id)
	return nil
}

func (f *fakeDocuments) Find(_ context.Context, id uuid.UUID) (*documents.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[id]
	if !ok {
		return nil, documents.ErrNotFound
	}
	return d, nil
}

func (f *fakeDocuments) Content(_ context.Context, id uuid.UUID) (*documents.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.content[id]
	if !ok {
		return nil, documents.ErrNotFound
	}
	return c, nil
}

func (f *fakeDocuments) SyncStates(context.Context, uuid.UUID) ([]documents.SyncState, error) {
	return f.states, nil
}

func (f *fakeDocuments) Pending(_ context.Context, _ uuid.UUID, need documents.Need, _ string) ([]uuid.UUID, error) {
	return f.pending[need], nil
}

func (f *fakeDocuments) SetScore(_ context.Context, id uuid.UUID, score float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores[id] = score
	return nil
}

// recordingStore counts every write made through the concepts Tx.
type recordingStore struct {
	mu       sync.Mutex
	concepts map[string]concepts.Concept
	writes   int
	marked   []uuid.UUID
}

func newRecordingStore() *recordingStore {
	return &recordingStore{concepts: map[string]concepts.Concept{}}
}

func (s *recordingStore) InTx(_ context.Context, fn func(concepts.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(recordingTx{s})
}

type recordingTx struct{ s *recordingStore }

func (t recordingTx) UpsertConcept(_ context.Context, in concepts.ConceptInput) (concepts.Concept, bool, error) {
	t.s.writes++
	key := in.NormalizedName + "@" + in.ExtractorVersion
	if c, ok := t.s.concepts[key]; ok {
		return c, false, nil
	}
	c := concepts.Concept{ID: uuid.New(), Name: in.Name, NormalizedName: in.NormalizedName, ExtractorVersion: in.ExtractorVersion}
	t.s.concepts[key] = c
	return c, true, nil
}

func (t recordingTx) FindConcept(_ context.Context, name, version string) (*concepts.Concept, error) {
	c, ok := t.s.concepts[name+"@"+version]
	if !ok {
		return nil, concepts.ErrNotFound
	}
	return &c, nil
}

func (t recordingTx) UpsertDefined(context.Context, concepts.Defined) (uuid.UUID, bool, error) {
	t.s.writes++
	return uuid.New(), true, nil
}

func (t recordingTx) UpsertOccurrence(context.Context, concepts.Occurrence) (uuid.UUID, bool, error) {
	t.s.writes++
	return uuid.New(), true, nil
}

func (t recordingTx) Link(context.Context, concepts.Link) error {
	t.s.writes++
	return nil
}

func (t recordingTx) Worklog(context.Context, concepts.WorklogEntry) error {
	t.s.writes++
	return nil
}

func (t recordingTx) Accept(context.Context, concepts.Acceptance) error {
	t.s.writes++
	return nil
}

func (t recordingTx) UpsertObligation(context.Context, concepts.ObligationInput) (uuid.UUID, error) {
	t.s.writes++
	return uuid.New(), nil
}

func (t recordingTx) MarkAnnotated(_ context.Context, id uuid.UUID, _ string) error {
	t.s.writes++
	t.s.marked = append(t.s.marked, id)
	return nil
}

type fixture struct {
	site     websites.Website
	docs     *fakeDocuments
	solr     *solr
	services *fakeServices
	blobs    *fakeBlobs
	store    *recordingStore
	stages   map[string]pipeline.Stage
}

func newFixture(t *testing.T, maxContent int64) *fixture {
	t.Helper()
	f := &fixture{
		site:     websites.Website{ID: uuid.New(), Name: "eur-lex", URL: "https://eur-lex.example"},
		docs:     newFakeDocuments(),
		solr:     &solr{},
		services: &fakeServices{},
		blobs:    newFakeBlobs(),
		store:    newRecordingStore(),
	}

	idx := newIndex(t, f.solr)
	logger := discard()
	rt := &pipeline.Runtime{
		Documents: f.docs,
		Index:     idx,
		Services:  f.services,
		Blobs:     f.blobs,
		Extractor: annotation.NewExtractor(f.services, nil, annotation.Options{MaxContentBytes: maxContent}, logger),
		Resolver:  concepts.NewResolver(f.store, concepts.Options{ExtractorVersion: "v1"}, logger),
		Artifacts: artifacts.New(f.blobs, logger),
		Sync:      docsync.New(f.docs, idx, docsync.Options{Staleness: time.Hour}, logger),
		Settings:  pipeline.Settings{ExtractorVersion: "v1", Workers: 2},
		Logger:    logger,
	}

	f.stages = map[string]pipeline.Stage{}
	for _, st := range pipeline.Stages(rt) {
		f.stages[st.Name()] = st
	}
	return f
}

func (f *fixture) run(t *testing.T, name string) pipeline.Tally {
	t.Helper()
	st, ok := f.stages[name]
	if !ok {
		t.Fatalf("stage %s not configured", name)
	}
	tally, err := st.Run(context.Background(), f.site)
	if err != nil {
		t.Fatalf("%s stage error = %v", name, err)
	}
	return tally
}

func TestStagesOrder(t *testing.T) {
	rt := &pipeline.Runtime{Logger: discard()}
	var names []string
	for _, st := range pipeline.Stages(rt) {
		names = append(names, st.Name())
	}
	want := []string{"scrape", "index", "plaintext", "sync", "score", "annotate"}
	if !slices.Equal(names, want) {
		t.Errorf("stages = %v, want %v", names, want)
	}

	rt.Settings.Export = true
	all := pipeline.Stages(rt)
	if all[len(all)-1].Name() != "export" {
		t.Errorf("export stage missing when enabled")
	}
}

func TestAnnotateOversizedCreatesNoRecords(t *testing.T) {
	f := newFixture(t, 16)
	id := uuid.New()
	f.docs.pending[documents.NeedAnnotation] = []uuid.UUID{id}
	f.docs.content[id] = &documents.Content{ID: id, Plaintext: ptr(widgetText)}

	tally := f.run(t, pipeline.StageAnnotate)

	if tally != (pipeline.Tally{Skipped: 1}) {
		t.Errorf("tally = %+v, want one skipped", tally)
	}
	if f.store.writes != 0 {
		t.Errorf("writes = %d, want none for an oversized document", f.store.writes)
	}
	if f.blobs.has(storage.BucketArtifacts, artifacts.Key(id, "v1", "json.gz")) {
		t.Error("artifact written for an oversized document")
	}
}

func TestAnnotatePersistsAndWritesArtifact(t *testing.T) {
	f := newFixture(t, 1<<20)
	id := uuid.New()
	f.docs.pending[documents.NeedAnnotation] = []uuid.UUID{id}
	f.docs.content[id] = &documents.Content{ID: id, ContentHTML: ptr("<p>A widget is a small device.</p>")}

	tally := f.run(t, pipeline.StageAnnotate)

	if tally != (pipeline.Tally{Processed: 1}) {
		t.Errorf("tally = %+v", tally)
	}
	if !slices.Equal(f.services.converted, []string{"text/html"}) {
		t.Errorf("converted = %v, want html conversion", f.services.converted)
	}
	if len(f.store.concepts) != 2 {
		t.Errorf("concepts = %d, want widget and device", len(f.store.concepts))
	}
	if !slices.Equal(f.store.marked, []uuid.UUID{id}) {
		t.Errorf("marked = %v", f.store.marked)
	}
	if !f.blobs.has(storage.BucketArtifacts, artifacts.Key(id, "v1", "json.gz")) {
		t.Error("artifact not written")
	}
}

func TestAnnotateWithoutContentIsSkipped(t *testing.T) {
	f := newFixture(t, 1<<20)
	id := uuid.New()
	f.docs.pending[documents.NeedAnnotation] = []uuid.UUID{id}
	f.docs.content[id] = &documents.Content{ID: id}

	if tally := f.run(t, pipeline.StageAnnotate); tally != (pipeline.Tally{Skipped: 1}) {
		t.Errorf("tally = %+v", tally)
	}
}

func TestAnnotateIsolatesDocumentFailures(t *testing.T) {
	f := newFixture(t, 1<<20)
	good, missing := uuid.New(), uuid.New()
	f.docs.pending[documents.NeedAnnotation] = []uuid.UUID{good, missing}
	f.docs.content[good] = &documents.Content{ID: good, Plaintext: ptr(widgetText)}

	tally := f.run(t, pipeline.StageAnnotate)
	if tally.Processed != 1 || tally.Failed != 1 {
		t.Errorf("tally = %+v, want one processed and one failed", tally)
	}
}

func TestScoreStoresAndPushesScore(t *testing.T) {
	f := newFixture(t, 0)
	id := uuid.New()
	f.docs.pending[documents.NeedScore] = []uuid.UUID{id}
	f.docs.content[id] = &documents.Content{ID: id, Plaintext: ptr(widgetText)}

	if tally := f.run(t, pipeline.StageScore); tally != (pipeline.Tally{Processed: 1}) {
		t.Errorf("tally = %+v", tally)
	}
	if f.docs.scores[id] != 0.8 {
		t.Errorf("score = %v", f.docs.scores[id])
	}
	if len(f.solr.updates) != 1 {
		t.Fatalf("index updates = %d", len(f.solr.updates))
	}
	set, _ := f.solr.updates[0]["score"].(map[string]any)
	if set["set"] != 0.8 {
		t.Errorf("pushed = %v", f.solr.updates[0])
	}
}

func TestScrapeWithoutCrawler(t *testing.T) {
	f := newFixture(t, 0)
	f.services.crawlErr = fmt.Errorf("crawl: %w", nlp.ErrNotConfigured)

	if tally := f.run(t, pipeline.StageScrape); tally != (pipeline.Tally{Skipped: 1}) {
		t.Errorf("tally = %+v", tally)
	}
}

func TestScrapeFailureFailsStage(t *testing.T) {
	f := newFixture(t, 0)
	f.services.crawlErr = nlp.ErrServiceFailed

	if _, err := f.stages[pipeline.StageScrape].Run(context.Background(), f.site); err == nil {
		t.Error("expected stage failure")
	}
}

func TestIngestIndexesCrawlerItems(t *testing.T) {
	f := newFixture(t, 0)
	item, _ := json.Marshal(index.Document{ID: "a1", Title: ptr("Directive")})
	f.blobs.put(storage.BucketCrawlerItems, "eur-lex/a1.json", item)
	f.blobs.put(storage.BucketCrawlerItems, "eur-lex/bad.json", []byte("{"))
	f.blobs.put(storage.BucketCrawlerItems, "other/b1.json", item)

	tally := f.run(t, pipeline.StageIndex)

	if tally.Processed != 1 || tally.Failed != 1 {
		t.Errorf("tally = %+v", tally)
	}
	if len(f.solr.updates) != 1 || f.solr.updates[0]["website"] != "eur-lex" {
		t.Errorf("indexed = %v", f.solr.updates)
	}
	if f.solr.commits != 1 {
		t.Errorf("commits = %d", f.solr.commits)
	}
	if f.blobs.has(storage.BucketCrawlerItems, "eur-lex/a1.json") {
		t.Error("indexed item not consumed")
	}
	if !f.blobs.has(storage.BucketCrawlerItems, "eur-lex/bad.json") {
		t.Error("malformed item must be kept")
	}
	if !f.blobs.has(storage.BucketCrawlerItems, "other/b1.json") {
		t.Error("other website's item consumed")
	}
}

func TestPlaintextConvertsDocumentsWithoutText(t *testing.T) {
	f := newFixture(t, 0)
	f.solr.docs = []index.Document{
		{ID: "a1", Website: "eur-lex", ContentHTML: ptr("<p>x</p>")},
		{ID: "a2", Website: "eur-lex", Plaintext: ptr("done")},
		{ID: "a3", Website: "eur-lex"},
		{ID: "a4", Website: "eur-lex", ContentType: ptr("application/pdf")},
	}
	f.blobs.put(storage.BucketCrawlerItems, pipeline.SourceKey("a4", "pdf"), []byte("not a pdf"))

	tally := f.run(t, pipeline.StagePlaintext)

	if tally.Processed != 1 || tally.Skipped != 2 {
		t.Errorf("tally = %+v, want a1 converted, a3 and a4 skipped", tally)
	}
	if len(f.solr.updates) != 1 || f.solr.updates[0]["id"] != "a1" {
		t.Fatalf("updates = %v", f.solr.updates)
	}
	set, _ := f.solr.updates[0]["plaintext"].(map[string]any)
	if set["set"] != widgetText {
		t.Errorf("plaintext update = %v", f.solr.updates[0])
	}
	if f.solr.commits != 1 {
		t.Errorf("commits = %d", f.solr.commits)
	}
}

func TestSyncCreatesIndexedDocuments(t *testing.T) {
	f := newFixture(t, 0)
	ids := []uuid.UUID{uuid.New(), uuid.New()}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })
	for _, id := range ids {
		f.solr.docs = append(f.solr.docs, index.Document{ID: id.String(), Website: "eur-lex", Title: ptr("t")})
	}

	tally := f.run(t, pipeline.StageSync)

	if tally.Processed != 2 || tally.Failed != 0 {
		t.Errorf("tally = %+v", tally)
	}
	if len(f.docs.created) != 2 || f.docs.created[0].WebsiteID != f.site.ID {
		t.Errorf("created = %+v", f.docs.created)
	}
}

func TestSyncBrokenScanExpiresNothing(t *testing.T) {
	f := newFixture(t, 0)
	f.solr.brokenAfterFirstPage = true

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return strings.Compare(a.String(), b.String()) })

	stale := time.Now().Add(-40 * 24 * time.Hour)
	f.solr.docs = []index.Document{{ID: ids[0].String(), Website: "eur-lex", Title: ptr("first")}}
	for _, id := range ids {
		f.docs.states = append(f.docs.states, documents.SyncState{ID: id, Title: ptr("first"), UpdatedAt: stale})
	}

	_, err := f.stages[pipeline.StageSync].Run(context.Background(), f.site)

	if !errors.Is(err, index.ErrRequestFailed) {
		t.Fatalf("err = %v, want the scan failure", err)
	}
	if len(f.docs.expired) != 0 {
		t.Errorf("expired = %v, want none", f.docs.expired)
	}
}
