package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"docchat/internal/ai"
	"docchat/internal/model"
	"docchat/internal/rag"
	"docchat/internal/repository"
)

type memoryDocuments struct {
	mu       sync.Mutex
	docs     map[string]*model.Document
	chunks   map[string][]model.DocumentChunk
	deleted  []string
	failNext error
}

func newMemoryDocuments() *memoryDocuments {
	return &memoryDocuments{docs: map[string]*model.Document{}, chunks: map[string][]model.DocumentChunk{}}
}

func (m *memoryDocuments) Create(_ context.Context, doc *model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *memoryDocuments) InsertChunks(_ context.Context, chunks []model.DocumentChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failNext != nil {
		return m.failNext
	}
	for _, c := range chunks {
		m.chunks[c.DocumentID] = append(m.chunks[c.DocumentID], c)
	}
	return nil
}

func (m *memoryDocuments) UpdateChunkCount(_ context.Context, id string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[id]; ok {
		d.ChunkCount = count
	}
	return nil
}

func (m *memoryDocuments) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, id)
	_, ok := m.docs[id]
	delete(m.docs, id)
	delete(m.chunks, id)
	return ok, nil
}

func (m *memoryDocuments) GetWithChunks(_ context.Context, id string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	cp.Chunks = append([]model.DocumentChunk(nil), m.chunks[id]...)
	return &cp, nil
}

func (m *memoryDocuments) List(context.Context) ([]model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Document, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memoryDocuments) Stats(context.Context) (*repository.DocumentStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var chunks int64
	for _, c := range m.chunks {
		chunks += int64(len(c))
	}
	s := &repository.DocumentStats{Documents: int64(len(m.docs)), Chunks: chunks}
	if s.Documents > 0 {
		s.AvgChunksPerDocument = float64(chunks) / float64(s.Documents)
	}
	return s, nil
}

// scriptedEmbedder fails on the call numbered failOn (1-based) when set.
type scriptedEmbedder struct {
	calls  int
	failOn int
	err    error
}

func (e *scriptedEmbedder) EmbedAll(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.failOn > 0 && e.calls == e.failOn {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

type countingThrottle struct{ waits int }

func (t *countingThrottle) Wait(context.Context) error {
	t.waits++
	return nil
}

type memoryConversations struct {
	mu       sync.Mutex
	sessions map[string]*model.ChatSession
	turns    map[string][]model.ChatMessage
	appended []model.TurnPair
	writeErr error
}

func newMemoryConversations() *memoryConversations {
	return &memoryConversations{sessions: map[string]*model.ChatSession{}, turns: map[string][]model.ChatMessage{}}
}

func (m *memoryConversations) GetSession(_ context.Context, id string) (*model.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id], nil
}

func (m *memoryConversations) CreateSession(context.Context) (*model.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &model.ChatSession{ID: uuid.NewString(), CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.sessions[s.ID] = s
	return s, nil
}

func (m *memoryConversations) RecentTurns(_ context.Context, id string, limit int) ([]model.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	turns := m.turns[id]
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]model.ChatMessage(nil), turns...), nil
}

func (m *memoryConversations) AppendTurns(_ context.Context, pair model.TurnPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.appended = append(m.appended, pair)
	m.turns[pair.SessionID] = append(m.turns[pair.SessionID], pair.User, pair.Assistant)
	return nil
}

func (m *memoryConversations) ListActive(_ context.Context, limit int) ([]model.SessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.SessionSummary
	for id, s := range m.sessions {
		out = append(out, model.SessionSummary{ID: id, MessageCount: int64(len(m.turns[id])), CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryConversations) SessionStats(_ context.Context, id string) (*model.SessionSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &model.SessionSummary{ID: id, MessageCount: int64(len(m.turns[id])), CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt}, nil
}

func (m *memoryConversations) ClearSession(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.turns[id]))
	delete(m.turns, id)
	return n, nil
}

func (m *memoryConversations) seed(id string, pairs int) {
	m.sessions[id] = &model.ChatSession{ID: id}
	for i := 0; i < pairs; i++ {
		m.turns[id] = append(m.turns[id],
			model.ChatMessage{SessionID: id, Role: model.RoleUser, Content: fmt.Sprintf("question %d", i)},
			model.ChatMessage{SessionID: id, Role: model.RoleAssistant, Content: fmt.Sprintf("answer %d", i)},
		)
	}
}

type fakeGenerator struct {
	calls     int
	lastReq   ai.GenerateRequest
	text      string
	fragments []string
	err       error
}

func (g *fakeGenerator) Generate(_ context.Context, req ai.GenerateRequest) (*ai.Completion, error) {
	g.calls++
	g.lastReq = req
	if g.err != nil {
		return nil, g.err
	}
	return &ai.Completion{Text: g.text, Model: "test-model", Usage: ai.Usage{InputTokens: 12, OutputTokens: 5}}, nil
}

func (g *fakeGenerator) Stream(ctx context.Context, req ai.GenerateRequest, onFragment func(string) error) (*ai.Completion, error) {
	for _, f := range g.fragments {
		if err := onFragment(f); err != nil {
			return nil, err
		}
	}
	return g.Generate(ctx, req)
}

type stubRetriever struct {
	calls int
	rc    *rag.RetrievedContext
	err   error
}

func (r *stubRetriever) Retrieve(context.Context, string, rag.SearchOptions) (*rag.RetrievedContext, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.rc, nil
}

type fakeHistoryCache struct {
	entries     map[string][]model.ChatMessage
	dirty       map[string]bool
	invalidated []string
}

func newFakeHistoryCache() *fakeHistoryCache {
	return &fakeHistoryCache{entries: map[string][]model.ChatMessage{}, dirty: map[string]bool{}}
}

func (c *fakeHistoryCache) GetHistory(_ context.Context, id string) ([]model.ChatMessage, bool, error) {
	m, ok := c.entries[id]
	return m, ok, nil
}

func (c *fakeHistoryCache) SetHistory(_ context.Context, id string, m []model.ChatMessage) error {
	c.entries[id] = m
	return nil
}

func (c *fakeHistoryCache) Invalidate(_ context.Context, id string) error {
	c.invalidated = append(c.invalidated, id)
	delete(c.entries, id)
	c.dirty[id] = true
	return nil
}

func (c *fakeHistoryCache) DeleteHistory(_ context.Context, id string) error {
	delete(c.entries, id)
	delete(c.dirty, id)
	return nil
}

func (c *fakeHistoryCache) IsDirty(_ context.Context, id string) (bool, error) {
	return c.dirty[id], nil
}

type emptyVectorStore struct{}

func (emptyVectorStore) NearestChunks(context.Context, []float32, int, rag.Filter) ([]rag.Neighbor, error) {
	return nil, nil
}

type constantQueryEmbedder struct{}

func (constantQueryEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

var errBoom = errors.New("boom")
