package app

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"docchat/internal/ai"
	"docchat/internal/logger"
	"docchat/internal/model"
	"docchat/internal/rag"
	"docchat/internal/telemetry"
)

type Retriever interface {
	Retrieve(ctx context.Context, query string, opts rag.SearchOptions) (*rag.RetrievedContext, error)
}

type ConversationStore interface {
	GetSession(ctx context.Context, id string) (*model.ChatSession, error)
	CreateSession(ctx context.Context) (*model.ChatSession, error)
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error)
}

// TurnWriter persists one exchange, either directly or through the queue.
type TurnWriter interface {
	AppendTurns(ctx context.Context, pair model.TurnPair) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, bool, error)
	SetHistory(ctx context.Context, sessionID string, messages []model.ChatMessage) error
	Invalidate(ctx context.Context, sessionID string) error
	DeleteHistory(ctx context.Context, sessionID string) error
	IsDirty(ctx context.Context, sessionID string) (bool, error)
}

type ChatServiceConfig struct {
	HistoryLimit     int
	PromptHistory    int
	MaxMessageChars  int
	MaxContextTokens int
	LowConfidence    float64
	BudgetHistory    bool
	MaxTokens        int
	Temperature      float64
}

func (c *ChatServiceConfig) applyDefaults() {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 20
	}
	if c.PromptHistory <= 0 {
		c.PromptHistory = 10
	}
	if c.MaxMessageChars <= 0 {
		c.MaxMessageChars = 2000
	}
	if c.MaxContextTokens <= 0 {
		c.MaxContextTokens = 6000
	}
	if c.LowConfidence <= 0 {
		c.LowConfidence = 70
	}
}

// ChatService runs one question through retrieval, prompt assembly and
// generation, then records the exchange.
type ChatService struct {
	retriever Retriever
	store     ConversationStore
	writer    TurnWriter
	history   HistoryCache
	generator ai.Generator
	metrics   *telemetry.Metrics
	cfg       ChatServiceConfig
}

type SendMessageInput struct {
	SessionID string
	Message   string
}

type Source struct {
	DocumentID    string  `json:"documentId"`
	DocumentTitle string  `json:"documentTitle,omitempty"`
	FileName      string  `json:"fileName"`
	Section       string  `json:"section"`
	ChunkIndex    int     `json:"chunkIndex"`
	Type          string  `json:"type"`
	Similarity    float64 `json:"similarity"`
}

type ChatMetadata struct {
	DocumentCount  int      `json:"documentCount"`
	ChunkCount     int      `json:"chunkCount"`
	ProcessingTime int64    `json:"processingTime"`
	HistoryTurns   int      `json:"historyTurns"`
	CacheHit       bool     `json:"cacheHit"`
	Model          string   `json:"model,omitempty"`
	Usage          ai.Usage `json:"usage"`
}

type ChatResult struct {
	SessionID  string        `json:"sessionId"`
	Message    string        `json:"message"`
	Sources    []Source      `json:"sources"`
	Confidence float64       `json:"confidence"`
	Warning    string        `json:"warning,omitempty"`
	Metadata   *ChatMetadata `json:"metadata,omitempty"`
}

func NewChatService(
	retriever Retriever,
	store ConversationStore,
	writer TurnWriter,
	history HistoryCache,
	generator ai.Generator,
	metrics *telemetry.Metrics,
	cfg ChatServiceConfig,
) *ChatService {
	cfg.applyDefaults()
	return &ChatService{
		retriever: retriever,
		store:     store,
		writer:    writer,
		history:   history,
		generator: generator,
		metrics:   metrics,
		cfg:       cfg,
	}
}

func (s *ChatService) SendMessage(ctx context.Context, in SendMessageInput) (*ChatResult, error) {
	return s.process(ctx, in, nil)
}

// StreamMessage behaves like SendMessage but forwards text fragments as the
// provider produces them. No fragments are emitted on the no-context path.
func (s *ChatService) StreamMessage(ctx context.Context, in SendMessageInput, onFragment func(string) error) (*ChatResult, error) {
	if onFragment == nil {
		onFragment = func(string) error { return nil }
	}
	return s.process(ctx, in, onFragment)
}

type preparedTurn struct {
	sessionID string
	retrieved *rag.RetrievedContext
	request   ai.GenerateRequest
	turns     int
}

func (s *ChatService) process(ctx context.Context, in SendMessageInput, onFragment func(string) error) (*ChatResult, error) {
	started := time.Now()
	message, err := s.validate(in.Message)
	if err != nil {
		return nil, err
	}

	result, prepared, err := s.prepare(ctx, in.SessionID, message)
	if err != nil {
		logger.Error("chat: request failed", "session_id", in.SessionID, "error", err)
		return nil, translateProviderError(err)
	}
	if result != nil {
		return result, nil
	}

	var completion *ai.Completion
	if onFragment != nil {
		completion, err = s.generator.Stream(ctx, prepared.request, onFragment)
	} else {
		completion, err = s.generator.Generate(ctx, prepared.request)
	}
	if err != nil {
		logger.Error("chat: generation failed", "session_id", prepared.sessionID, "error", err)
		return nil, translateProviderError(err)
	}
	s.metrics.RecordTokens(ctx, completion.Model, completion.Usage.InputTokens, completion.Usage.OutputTokens)

	sources := sourcesFrom(prepared.retrieved.Results)
	if err := s.persist(ctx, prepared.sessionID, message, completion.Text, sources); err != nil {
		logger.Error("chat: persist turns failed", "session_id", prepared.sessionID, "error", err)
		return nil, translateProviderError(err)
	}

	elapsed := time.Since(started)
	logger.Info("chat: complete",
		"session_id", prepared.sessionID,
		"chunks", prepared.retrieved.ChunkCount,
		"confidence", prepared.retrieved.Confidence,
		"elapsed_ms", elapsed.Milliseconds(),
	)
	return &ChatResult{
		SessionID:  prepared.sessionID,
		Message:    completion.Text,
		Sources:    sources,
		Confidence: prepared.retrieved.Confidence,
		Metadata: &ChatMetadata{
			DocumentCount:  prepared.retrieved.DocumentCount,
			ChunkCount:     prepared.retrieved.ChunkCount,
			ProcessingTime: elapsed.Milliseconds(),
			HistoryTurns:   prepared.turns,
			CacheHit:       prepared.retrieved.CacheHit,
			Model:          completion.Model,
			Usage:          completion.Usage,
		},
	}, nil
}

func (s *ChatService) validate(raw string) (string, error) {
	message := strings.TrimSpace(raw)
	if message == "" {
		return "", invalidInput("message must not be empty")
	}
	if utf8.RuneCountInString(raw) > s.cfg.MaxMessageChars {
		return "", invalidInput("message must be at most %d characters", s.cfg.MaxMessageChars)
	}
	return message, nil
}

// prepare resolves the session and retrieves context. It returns a finished
// result when there is nothing to ground an answer on.
func (s *ChatService) prepare(ctx context.Context, sessionID, message string) (*ChatResult, *preparedTurn, error) {
	session, err := s.resolveSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	retrieved, err := s.retriever.Retrieve(ctx, message, rag.SearchOptions{})
	if err != nil {
		return nil, nil, err
	}
	s.metrics.RecordRetrieval(ctx, retrieved.CacheHit, retrieved.HasContext)

	if !retrieved.HasContext {
		logger.Info("chat: no relevant context", "session_id", session.ID)
		return &ChatResult{
			SessionID:  session.ID,
			Message:    NoContextResponse,
			Sources:    []Source{},
			Confidence: 0,
			Warning:    NoContextWarning,
		}, nil, nil
	}

	history, err := s.loadHistory(ctx, session.ID)
	if err != nil {
		return nil, nil, err
	}

	opts := rag.ContextOptions{MaxTokens: s.cfg.MaxContextTokens, Style: rag.StyleDetailed}
	keep := s.cfg.PromptHistory
	var contextText string
	if s.cfg.BudgetHistory {
		turns := make([]rag.HistoryTurn, len(history))
		for i, m := range history {
			turns[i] = rag.HistoryTurn{Role: m.Role, Content: m.Content}
		}
		var fit int
		contextText, fit = rag.BuildContextWithHistory(retrieved.Results, turns, opts)
		keep = min(keep, fit)
	} else {
		contextText = rag.BuildContext(retrieved.Results, opts)
	}

	messages := promptMessages(history, keep, message)
	return nil, &preparedTurn{
		sessionID: session.ID,
		retrieved: retrieved,
		turns:     len(messages) - 1,
		request: ai.GenerateRequest{
			System:      buildSystemPrompt(rag.SourcesSummary(retrieved.Results), contextText, retrieved.Confidence, s.cfg.LowConfidence),
			Messages:    messages,
			MaxTokens:   s.cfg.MaxTokens,
			Temperature: s.cfg.Temperature,
		},
	}, nil
}

// resolveSession reuses a known session or creates one. Concurrent first
// messages may create distinct sessions.
func (s *ChatService) resolveSession(ctx context.Context, sessionID string) (*model.ChatSession, error) {
	if id := strings.TrimSpace(sessionID); id != "" {
		session, err := s.store.GetSession(ctx, id)
		if err != nil {
			return nil, err
		}
		if session != nil {
			return session, nil
		}
	}
	session, err := s.store.CreateSession(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("chat: created session", "session_id", session.ID)
	return session, nil
}

func (s *ChatService) loadHistory(ctx context.Context, sessionID string) ([]model.ChatMessage, error) {
	dirty := true
	if s.history != nil {
		var err error
		dirty, err = s.history.IsDirty(ctx, sessionID)
		if err != nil {
			logger.Warn("chat: history cache unavailable", "error", err)
			dirty = true
		}
		if !dirty {
			if cached, hit, err := s.history.GetHistory(ctx, sessionID); err == nil && hit {
				return cached, nil
			}
		}
	}

	messages, err := s.store.RecentTurns(ctx, sessionID, s.cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}
	if s.history != nil && !dirty {
		if err := s.history.SetHistory(ctx, sessionID, messages); err != nil {
			logger.Debug("chat: history cache write skipped", "error", err)
		}
	}
	return messages, nil
}

func (s *ChatService) persist(ctx context.Context, sessionID, userText, assistantText string, sources []Source) error {
	raw, err := json.Marshal(sources)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	pair := model.TurnPair{
		SessionID: sessionID,
		User:      model.ChatMessage{SessionID: sessionID, Role: model.RoleUser, Content: userText, Timestamp: now},
		Assistant: model.ChatMessage{SessionID: sessionID, Role: model.RoleAssistant, Content: assistantText, Sources: raw, Timestamp: now.Add(time.Millisecond)},
	}
	if s.history != nil {
		if err := s.history.Invalidate(ctx, sessionID); err != nil {
			logger.Warn("chat: history invalidate failed", "session_id", sessionID, "error", err)
		}
	}
	return s.writer.AppendTurns(ctx, pair)
}

// History returns the most recent turns of a session, oldest first.
func (s *ChatService) History(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	session, err := s.store.GetSession(ctx, strings.TrimSpace(sessionID))
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.RecentTurns(ctx, session.ID, limit)
}

func sourcesFrom(results []rag.SearchResult) []Source {
	out := make([]Source, len(results))
	for i, r := range results {
		out[i] = Source{
			DocumentID:    r.Chunk.DocumentID,
			DocumentTitle: r.DocumentTitle,
			FileName:      r.FileName,
			Section:       r.Chunk.SectionTitle,
			ChunkIndex:    r.Chunk.SequenceIndex,
			Type:          r.Chunk.ChunkType,
			Similarity:    r.Similarity,
		}
	}
	return out
}
