package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadpipe/internal/config"
	"github.com/JakeFAU/leadpipe/internal/finder"
	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/JakeFAU/leadpipe/internal/proposal"
	"github.com/JakeFAU/leadpipe/internal/qualifier"
	"github.com/JakeFAU/leadpipe/internal/storage/memory"
	"github.com/JakeFAU/leadpipe/internal/worker"
)

type fakeSearcher struct {
	mu      sync.Mutex
	trigger string
	types   []lead.SourceType
	summary finder.Summary
	err     error
}

func (f *fakeSearcher) Search(_ context.Context, trigger string, types []lead.SourceType) (finder.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trigger = trigger
	f.types = types
	return f.summary, f.err
}

type fakeProcessor struct {
	store *memory.Store
	score int
	err   error
}

func (f *fakeProcessor) Process(ctx context.Context, leadID string) (qualifier.Result, error) {
	if _, err := f.store.GetLead(ctx, leadID); err != nil {
		return qualifier.Result{}, err
	}
	res := qualifier.Result{Score: f.score, Status: lead.StatusQualified, Hot: true, Urgency: lead.UrgencyHigh}
	if _, err := f.store.UpdateLeadScore(ctx, leadID, res.Update(apiNow)); err != nil {
		return qualifier.Result{}, err
	}
	return res, f.err
}

type fakeEnqueuer struct {
	ids []string
	err error
}

func (f *fakeEnqueuer) EnqueueLeads(_ context.Context, ids []string) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.ids = append(f.ids, ids...)
	return len(ids), nil
}

type fakeIDGen struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeIDGen) NewID() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ids) == 0 {
		return "", errors.New("no ids")
	}
	id := f.ids[0]
	f.ids = f.ids[1:]
	return id, nil
}

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

var apiNow = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

type harness struct {
	store    *memory.Store
	searcher *fakeSearcher
	proc     *fakeProcessor
	enqueuer *fakeEnqueuer
	server   *Server
}

func newHarness(t *testing.T, cfg config.Config) *harness {
	t.Helper()
	store := memory.NewStore()
	ids := &fakeIDGen{ids: []string{"id-1", "id-2", "id-3"}}
	drafter, err := proposal.New(proposal.Sender{Name: "Ivan"}, ids, fakeClock{now: apiNow})
	require.NoError(t, err)
	h := &harness{
		store:    store,
		searcher: &fakeSearcher{},
		proc:     &fakeProcessor{store: store, score: 72},
		enqueuer: &fakeEnqueuer{},
	}
	h.server = NewServer(Deps{
		Store:     store,
		Searcher:  h.searcher,
		Processor: h.proc,
		Enqueuer:  h.enqueuer,
		Drafter:   drafter,
		IDs:       ids,
		Clock:     fakeClock{now: apiNow},
	}, cfg, zap.NewNop())
	return h
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (h *harness) seedLead(t *testing.T, l lead.Lead) {
	t.Helper()
	_, err := h.store.UpsertLead(context.Background(), l)
	require.NoError(t, err)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestServer_Health(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.Config{})
	rec := h.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = h.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "# HELP")
}

func TestServer_RequestIDIsEchoed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.Config{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, "req-42", rec.Header().Get("X-Request-ID"))
}

func TestServer_APIKeyGuardsV1Only(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "secret"}})

	rec := h.do(t, http.MethodGet, "/v1/leads", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/leads?api_key=secret", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/sources", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/sources", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec = httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/sources", nil)
	req.Header.Set("Authorization", "Bearer secre")
	rec = httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_ListLeadsFilters(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.Config{})
	high, low := 80, 30
	h.seedLead(t, lead.Lead{ID: "a", Name: "A", Status: lead.StatusQualified, QualificationScore: &high})
	h.seedLead(t, lead.Lead{ID: "b", Name: "B", Status: lead.StatusQualifying, QualificationScore: &low})
	h.seedLead(t, lead.Lead{ID: "c", Name: "C"})

	rec := h.do(t, http.MethodGet, "/v1/leads?min_score=50", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Leads []lead.Lead `json:"leads"`
		Count int         `json:"count"`
	}](t, rec)
	require.Equal(t, 1, body.Count)
	require.Equal(t, "a", body.Leads[0].ID)

	rec = h.do(t, http.MethodGet, "/v1/leads?status=new", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"id":"c"`)
	require.NotContains(t, rec.Body.String(), `"id":"a"`)

	rec = h.do(t, http.MethodGet, "/v1/leads?status=bogus", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/leads?limit=abc", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_GetLeadAndAnalysis(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.Config{})
	h.seedLead(t, lead.Lead{ID: "lead-1", Name: "Anna", Website: "https://crumbs.example"})

	rec := h.do(t, http.MethodGet, "/v1/leads/lead-1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Anna", decode[lead.Lead](t, rec).Name)

	rec = h.do(t, http.MethodGet, "/v1/leads/missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/leads/lead-1/analysis", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, h.store.SaveAnalysis(context.Background(), "lead-1", lead.WebsiteAnalysis{URL: "https://crumbs.example", OverallScore: 44}))
	rec = h.do(t, http.MethodGet, "/v1/leads/lead-1/analysis", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 44, decode[lead.WebsiteAnalysis](t, rec).OverallScore)
}

func TestServer_QualifyLead(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.Config{})
	h.seedLead(t, lead.Lead{ID: "lead-1", Name: "Anna"})

	rec := h.do(t, http.MethodPost, "/v1/leads/lead-1/qualify", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[struct {
		Lead   lead.Lead        `json:"lead"`
		Result qualifier.Result `json:"result"`
	}](t, rec)
	require.Equal(t, 72, body.Result.Score)
	require.NotNil(t, body.Lead.QualificationScore)
	require.Equal(t, 72, *body.Lead.QualificationScore)
	require.True(t, body.Lead.Hot)

	rec = h.do(t, http.MethodPost, "/v1/leads/missing/qualify", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_QualifyLeadPublishFailureStillReturnsScore(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.Config{})
	h.proc.err = fmt.Errorf("%w: %w", worker.ErrPublish, errors.New("topic down"))
	h.seedLead(t, lead.Lead{ID: "lead-1", Name: "Anna"})

	rec := h.do(t, http.MethodPost, "/v1/leads/lead-1/qualify", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "topic down")
}

func TestServer_QualifyNewQueuesOnlyNewLeads(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.Config{})
	h.seedLead(t, lead.Lead{ID: "a", Name: "A"})
	h.seedLead(t, lead.Lead{ID: "b", Name: "B", Status: lead.StatusContacted})

	rec := h.do(t, http.MethodPost, "/v1/leads/qualify-new", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Equal(t, []string{"a"}, h.enqueuer.ids)
	require.Equal(t, 1, decode[map[string]int](t, rec)["queued"])

	h.enqueuer.err = errors.New("queue closed")
	rec = h.do(t, http.MethodPost, "/v1/leads/qualify-new", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_SetStatusFollowsFunnel(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.Config{})
	h.seedLead(t, lead.Lead{ID: "lead-1", Name: "Anna", Status: lead.StatusQualified})

	rec := h.do(t, http.MethodPost, "/v1/leads/lead-1/status", statusRequest{Status: "contacted"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, lead.StatusContacted, decode[lead.Lead](t, rec).Status)

	rec = h.do(t, http.MethodPost, "/v1/leads/lead-1/status", statusRequest{Status: "qualified"})
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/leads/lead-1/status", statusRequest{Status: "lost"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/leads/lead-1/status", statusRequest{Reopen: true})
	require.Equal(t, http.StatusOK, rec.Code)
	got, err := h.store.GetLead(context.Background(), "lead-1")
	require.NoError(t, err)
	require.Equal(t, lead.StatusQualifying, got.Status)

	rec = h.do(t, http.MethodPost, "/v1/leads/lead-1/status", statusRequest{Status: "spam"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/leads/lead-1/status", statusRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/leads/missing/status", statusRequest{Status: "won"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_DraftAndListProposals(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.Config{})
	h.seedLead(t, lead.Lead{ID: "lead-1", Name: "Anna", Company: "Crumbs", SourceURL: "https://t.me/web/1", OriginalRequest: "need a landing page"})

	rec := h.do(t, http.MethodPost, "/v1/leads/lead-1/proposals", proposalRequest{Channel: "telegram"})
	require.Equal(t, http.StatusCreated, rec.Code)
	p := decode[lead.Proposal](t, rec)
	require.Equal(t, "id-1", p.ID)
	require.Equal(t, lead.ChannelTelegram, p.Channel)
	require.Equal(t, lead.ProposalDraft, p.Status)
	require.NotEmpty(t, p.Content)

	rec = h.do(t, http.MethodPost, "/v1/leads/lead-1/proposals", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Equal(t, lead.ChannelEmail, decode[lead.Proposal](t, rec).Channel)

	rec = h.do(t, http.MethodPost, "/v1/leads/lead-1/proposals", proposalRequest{Channel: "fax"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/v1/leads/lead-1/proposals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[struct {
		Proposals []lead.Proposal `json:"proposals"`
	}](t, rec)
	require.Len(t, list.Proposals, 2)

	rec = h.do(t, http.MethodGet, "/v1/leads/missing/proposals", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_CreateAndToggleSource(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.Config{})

	rec := h.do(t, http.MethodPost, "/v1/sources", map[string]any{
		"name":            "Web freelance",
		"source_type":     "telegram_channel",
		"search_keywords": []string{"need website"},
		"config":          map[string]string{"channels": "web_freelance"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	src := decode[lead.Source](t, rec)
	require.Equal(t, "id-1", src.ID)
	require.True(t, src.Active)
	require.Equal(t, apiNow, src.CreatedAt)

	rec = h.do(t, http.MethodPost, "/v1/sources/id-1/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, decode[lead.Source](t, rec).Active)

	active, err := h.store.GetActiveSources(context.Background())
	require.NoError(t, err)
	require.Empty(t, active)

	rec = h.do(t, http.MethodGet, "/v1/sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Web freelance")

	rec = h.do(t, http.MethodPost, "/v1/sources", map[string]any{"name": "x", "source_type": "fax"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/sources", map[string]any{"source_type": "forum"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodPost, "/v1/sources/missing/toggle", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_SearchPassesTypesAndReturnsSummary(t *testing.T) {
	t.Parallel()

	h := newHarness(t, config.Config{})
	h.searcher.summary = finder.Summary{Found: 3, Created: 2, Duplicates: 1, LeadIDs: []string{"a", "b"}}

	rec := h.do(t, http.MethodPost, "/v1/search", searchRequest{SourceTypes: []string{"forum"}})
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[finder.Summary](t, rec)
	require.Equal(t, 2, summary.Created)
	require.Equal(t, finder.TriggerManual, h.searcher.trigger)
	require.Equal(t, []lead.SourceType{lead.SourceForum}, h.searcher.types)

	rec = h.do(t, http.MethodPost, "/v1/search", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, h.searcher.types)

	rec = h.do(t, http.MethodPost, "/v1/search", searchRequest{SourceTypes: []string{"fax"}})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	h.searcher.err = errors.New("db down")
	rec = h.do(t, http.MethodPost, "/v1/search", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	handler := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestServer_TimeoutMiddleware(t *testing.T) {
	t.Parallel()

	handler := timeoutMiddleware(10 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
