package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/JakeFAU/leadpipe/internal/qualifier"
	"github.com/JakeFAU/leadpipe/internal/queue/memory"
	memstore "github.com/JakeFAU/leadpipe/internal/storage/memory"
)

func TestWorker_ProcessAnalyzesQualifiesAndPublishes(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := seededStore(t, lead.Lead{ID: "lead-1", Name: "Anna", Website: "https://crumbs.example", SourceID: "tg"})
	queue := memory.NewQueue(4)
	analyzer := &fakeAnalyzer{overall: 30}
	qual := &fakeQualifier{result: qualifier.Result{Score: 72, Status: lead.StatusQualified, Hot: true, Industry: "restaurant"}}
	publisher := newFakePublisher()
	clock := &fakeClock{now: time.Unix(100, 0).UTC()}

	w := New(queue, store, analyzer, qual, publisher, clock, Config{HotTopic: "lead.hot"}, zap.NewNop())
	go w.Run(ctx)

	require.NoError(t, queue.Enqueue(ctx, lead.Task{LeadID: "lead-1"}))

	require.Eventually(t, func() bool {
		l, err := store.GetLead(ctx, "lead-1")
		return err == nil && l.QualificationScore != nil
	}, time.Second, 10*time.Millisecond)

	l, err := store.GetLead(ctx, "lead-1")
	require.NoError(t, err)
	require.Equal(t, 72, *l.QualificationScore)
	require.Equal(t, lead.StatusQualified, l.Status)
	require.True(t, l.Hot)

	stored, err := store.GetAnalysis(ctx, "lead-1")
	require.NoError(t, err)
	require.Equal(t, 30, stored.OverallScore)
	require.Equal(t, 1, analyzer.callCount())
	require.NotNil(t, qual.lastAnalysis())

	require.Eventually(t, func() bool { return publisher.count() == 1 }, time.Second, 10*time.Millisecond)
	msg := publisher.messages[0]
	require.Equal(t, "lead.hot", msg.topic)
	event, ok := msg.payload.(lead.HotLeadEvent)
	require.True(t, ok)
	require.Equal(t, lead.HotLeadEvent{LeadID: "lead-1", Name: "Anna", Score: 72, Industry: "restaurant", SourceID: "tg", At: clock.now}, event)
}

func TestWorker_ProcessReusesMatchingAnalysis(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := seededStore(t, lead.Lead{ID: "lead-1", Website: "https://crumbs.example"})
	require.NoError(t, store.SaveAnalysis(ctx, "lead-1", lead.WebsiteAnalysis{URL: "https://crumbs.example/", OverallScore: 80}))

	analyzer := &fakeAnalyzer{overall: 10}
	qual := &fakeQualifier{result: qualifier.Result{Score: 40, Status: lead.StatusQualifying}}
	w := New(memory.NewQueue(1), store, analyzer, qual, nil, &fakeClock{now: time.Unix(5, 0)}, Config{}, nil)

	res, err := w.Process(ctx, "lead-1")
	require.NoError(t, err)
	require.Equal(t, 40, res.Score)
	require.Zero(t, analyzer.callCount())
	require.Equal(t, 80, qual.lastAnalysis().OverallScore)
}

func TestWorker_ProcessReanalyzesChangedWebsite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := seededStore(t, lead.Lead{ID: "lead-1", Website: "https://new.example"})
	require.NoError(t, store.SaveAnalysis(ctx, "lead-1", lead.WebsiteAnalysis{URL: "https://old.example", OverallScore: 80}))

	analyzer := &fakeAnalyzer{overall: 10}
	w := New(memory.NewQueue(1), store, analyzer, &fakeQualifier{}, nil, &fakeClock{}, Config{}, nil)

	_, err := w.Process(ctx, "lead-1")
	require.NoError(t, err)
	require.Equal(t, 1, analyzer.callCount())
	stored, err := store.GetAnalysis(ctx, "lead-1")
	require.NoError(t, err)
	require.Equal(t, "https://new.example", stored.URL)
}

func TestWorker_ProcessSkipsAnalysisWithoutWebsite(t *testing.T) {
	t.Parallel()

	store := seededStore(t, lead.Lead{ID: "lead-1"})
	analyzer := &fakeAnalyzer{}
	qual := &fakeQualifier{}
	w := New(memory.NewQueue(1), store, analyzer, qual, nil, &fakeClock{}, Config{}, nil)

	_, err := w.Process(context.Background(), "lead-1")
	require.NoError(t, err)
	require.Zero(t, analyzer.callCount())
	require.Nil(t, qual.lastAnalysis())
}

func TestWorker_OperatorStatusChangeDuringProcessSurvives(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := seededStore(t, lead.Lead{
		ID: "lead-1", Name: "Anna", Website: "https://crumbs.example",
		Phone: "+7 999 123-45-67", Status: lead.StatusQualifying,
	})
	// The operator contacts the lead while its website is being analyzed.
	analyzer := &fakeAnalyzer{overall: 90, during: func() {
		require.NoError(t, store.SetStatus(ctx, "lead-1", lead.StatusContacted))
	}}
	qual := qualifier.New(nil, nil, nil, qualifier.Config{Hot: 60, Reject: 20}, nil)
	w := New(memory.NewQueue(1), store, analyzer, qual, nil, &fakeClock{now: time.Unix(5, 0)}, Config{}, nil)

	res, err := w.Process(ctx, "lead-1")
	require.NoError(t, err)
	require.Equal(t, lead.StatusContacted, res.Status)

	l, err := store.GetLead(ctx, "lead-1")
	require.NoError(t, err)
	require.Equal(t, lead.StatusContacted, l.Status)
	require.NotNil(t, l.QualificationScore)
	require.Equal(t, res.Score, *l.QualificationScore)
}

func TestWorker_AlreadyHotLeadIsNotRepublished(t *testing.T) {
	t.Parallel()

	store := seededStore(t, lead.Lead{ID: "lead-1", Hot: true, Status: lead.StatusQualified})
	publisher := newFakePublisher()
	qual := &fakeQualifier{result: qualifier.Result{Score: 90, Status: lead.StatusQualified, Hot: true}}
	w := New(memory.NewQueue(1), store, nil, qual, publisher, &fakeClock{}, Config{HotTopic: "lead.hot"}, nil)

	_, err := w.Process(context.Background(), "lead-1")
	require.NoError(t, err)
	require.Zero(t, publisher.count())
}

func TestWorker_PublishFailureIsReportedNotRetried(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := seededStore(t, lead.Lead{ID: "lead-1"})
	publisher := newFakePublisher()
	publisher.err = errors.New("pub failure")
	qual := &fakeQualifier{result: qualifier.Result{Score: 70, Status: lead.StatusQualified, Hot: true}}
	queue := memory.NewQueue(4)
	w := New(queue, store, nil, qual, publisher, &fakeClock{}, Config{HotTopic: "lead.hot", MaxAttempts: 3}, nil)

	_, err := w.Process(ctx, "lead-1")
	require.ErrorIs(t, err, ErrPublish)

	w.handle(ctx, lead.Task{LeadID: "lead-1"})
	require.Zero(t, queue.Len())
}

func TestWorker_TransientFailureIsRequeued(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := seededStore(t, lead.Lead{ID: "lead-1"})
	qual := &fakeQualifier{err: errors.New("boom")}
	queue := memory.NewQueue(4)
	clock := &fakeClock{now: time.Unix(42, 0)}
	w := New(queue, store, nil, qual, nil, clock, Config{MaxAttempts: 2}, nil)

	w.handle(ctx, lead.Task{LeadID: "lead-1"})
	require.Equal(t, 1, queue.Len())
	task, err := queue.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, lead.Task{LeadID: "lead-1", Attempt: 1, Enqueued: clock.now}, task)

	w.handle(ctx, task)
	require.Zero(t, queue.Len())
}

func TestWorker_MissingLeadIsNotRetried(t *testing.T) {
	t.Parallel()

	queue := memory.NewQueue(1)
	w := New(queue, memstore.NewStore(), nil, &fakeQualifier{}, nil, &fakeClock{}, Config{MaxAttempts: 5}, nil)

	_, err := w.Process(context.Background(), "ghost")
	require.ErrorIs(t, err, lead.ErrNotFound)
	w.handle(context.Background(), lead.Task{LeadID: "ghost"})
	require.Zero(t, queue.Len())
}

// --- fakes ---

func seededStore(t *testing.T, leads ...lead.Lead) *memstore.Store {
	t.Helper()
	s := memstore.NewStore()
	for _, l := range leads {
		_, err := s.UpsertLead(context.Background(), l)
		require.NoError(t, err)
	}
	return s
}

type fakeAnalyzer struct {
	mu      sync.Mutex
	calls   int
	overall int
	during  func()
}

func (a *fakeAnalyzer) Analyze(_ context.Context, rawURL string) lead.WebsiteAnalysis {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.during != nil {
		a.during()
	}
	return lead.WebsiteAnalysis{URL: rawURL, OverallScore: a.overall}
}

func (a *fakeAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type fakeQualifier struct {
	mu       sync.Mutex
	result   qualifier.Result
	err      error
	analysis *lead.WebsiteAnalysis
}

func (q *fakeQualifier) Qualify(_ context.Context, _ lead.Lead, analysis *lead.WebsiteAnalysis) (qualifier.Result, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.analysis = analysis
	if q.result.Status == "" {
		q.result.Status = lead.StatusQualifying
	}
	return q.result, q.err
}

func (q *fakeQualifier) lastAnalysis() *lead.WebsiteAnalysis {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.analysis
}

type publishedMessage struct {
	topic   string
	payload any
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{}
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload any) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.messages = append(p.messages, publishedMessage{topic: topic, payload: payload})
	return "msg-1", nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}
