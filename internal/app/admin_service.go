package app

import (
	"context"

	"docchat/internal/logger"
	"docchat/internal/model"
	"docchat/internal/repository"
)

type IndexAdmin interface {
	CreateIndex(ctx context.Context) error
	Coverage(ctx context.Context) (*repository.Coverage, error)
}

type SessionAdmin interface {
	GetSession(ctx context.Context, id string) (*model.ChatSession, error)
	ListActive(ctx context.Context, limit int) ([]model.SessionSummary, error)
	SessionStats(ctx context.Context, id string) (*model.SessionSummary, error)
	ClearSession(ctx context.Context, id string) (int64, error)
}

type RetrievalCacheAdmin interface {
	Len() int
	Clear()
}

type SearchStats struct {
	repository.Coverage
	CacheSize int `json:"cacheSize"`
}

type AdminService struct {
	index     IndexAdmin
	sessions  SessionAdmin
	cache     RetrievalCacheAdmin
	history   HistoryCache
	activeCap int
}

func NewAdminService(index IndexAdmin, sessions SessionAdmin, cache RetrievalCacheAdmin, history HistoryCache, activeCap int) *AdminService {
	if activeCap <= 0 {
		activeCap = 50
	}
	return &AdminService{index: index, sessions: sessions, cache: cache, history: history, activeCap: activeCap}
}

func (s *AdminService) BuildIndex(ctx context.Context) error {
	if err := s.index.CreateIndex(ctx); err != nil {
		return err
	}
	logger.Info("admin: similarity index ready")
	return nil
}

func (s *AdminService) SearchStats(ctx context.Context) (*SearchStats, error) {
	coverage, err := s.index.Coverage(ctx)
	if err != nil {
		return nil, err
	}
	return &SearchStats{Coverage: *coverage, CacheSize: s.cache.Len()}, nil
}

// ClearCache empties the retrieval cache and reports how many entries it held.
func (s *AdminService) ClearCache() int {
	n := s.cache.Len()
	s.cache.Clear()
	logger.Info("admin: retrieval cache cleared", "entries", n)
	return n
}

func (s *AdminService) ActiveSessions(ctx context.Context) ([]model.SessionSummary, error) {
	return s.sessions.ListActive(ctx, s.activeCap)
}

func (s *AdminService) SessionStats(ctx context.Context, id string) (*model.SessionSummary, error) {
	stats, err := s.sessions.SessionStats(ctx, id)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		return nil, ErrSessionNotFound
	}
	return stats, nil
}

// ClearSession removes every turn of a session; the session itself stays.
func (s *AdminService) ClearSession(ctx context.Context, id string) (int64, error) {
	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return 0, err
	}
	if session == nil {
		return 0, ErrSessionNotFound
	}
	removed, err := s.sessions.ClearSession(ctx, id)
	if err != nil {
		return 0, err
	}
	if s.history != nil {
		if err := s.history.DeleteHistory(ctx, id); err != nil {
			logger.Warn("admin: history cache delete failed", "session_id", id, "error", err)
		}
	}
	logger.Info("admin: session cleared", "session_id", id, "messages", removed)
	return removed, nil
}
