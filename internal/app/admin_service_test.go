package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"docchat/internal/pkg/jwtutil"
	"docchat/internal/rag"
	"docchat/internal/repository"
)

type fakeIndex struct {
	built    int
	coverage repository.Coverage
}

func (f *fakeIndex) CreateIndex(context.Context) error {
	f.built++
	return nil
}

func (f *fakeIndex) Coverage(context.Context) (*repository.Coverage, error) {
	c := f.coverage
	return &c, nil
}

func TestAdminSearchStatsAndCache(t *testing.T) {
	cache := rag.NewRetrievalCache(time.Minute, nil)
	cache.Set("a", nil)
	cache.Set("b", nil)
	index := &fakeIndex{coverage: repository.Coverage{TotalChunks: 10, WithEmbeddings: 9, Percent: 90}}
	svc := NewAdminService(index, newMemoryConversations(), cache, nil, 0)

	require.NoError(t, svc.BuildIndex(context.Background()))
	assert.Equal(t, 1, index.built)

	stats, err := svc.SearchStats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 9, stats.WithEmbeddings)
	assert.Equal(t, 2, stats.CacheSize)

	assert.Equal(t, 2, svc.ClearCache())
	assert.Equal(t, 0, cache.Len())
}

func TestAdminSessions(t *testing.T) {
	conv := newMemoryConversations()
	conv.seed("s-1", 3)
	history := newFakeHistoryCache()
	history.entries["s-1"] = nil
	svc := NewAdminService(&fakeIndex{}, conv, rag.NewRetrievalCache(time.Minute, nil), history, 50)

	active, err := svc.ActiveSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.EqualValues(t, 6, active[0].MessageCount)

	stats, err := svc.SessionStats(context.Background(), "s-1")
	require.NoError(t, err)
	assert.EqualValues(t, 6, stats.MessageCount)

	removed, err := svc.ClearSession(context.Background(), "s-1")
	require.NoError(t, err)
	assert.EqualValues(t, 6, removed)
	assert.NotContains(t, history.entries, "s-1")

	stats, err = svc.SessionStats(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Zero(t, stats.MessageCount)

	_, err = svc.SessionStats(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.ClearSession(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAuthLogin(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	svc := NewAuthService("admin", string(hash), "jwt-secret", time.Hour)

	res, err := svc.Login(LoginInput{Username: "admin", Password: "s3cret-pass"})
	require.NoError(t, err)
	claims, err := jwtutil.ParseToken("jwt-secret", res.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)

	_, err = svc.Login(LoginInput{Username: "admin", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredential)
	_, err = svc.Login(LoginInput{Username: "root", Password: "s3cret-pass"})
	assert.ErrorIs(t, err, ErrInvalidCredential)
	_, err = svc.Login(LoginInput{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = NewAuthService("admin", "", "jwt-secret", time.Hour).Login(LoginInput{Username: "admin", Password: "x"})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestHealthDetailed(t *testing.T) {
	probes := HealthProbes{
		Database:        func(context.Context) error { return nil },
		VectorExtension: func(context.Context) (bool, error) { return true, nil },
		DocumentCounts:  func(context.Context) (int64, int64, error) { return 2, 9, nil },
		Redis:           func(context.Context) error { return nil },
		RabbitMQ:        func() bool { return true },
		EmbeddingKey:    true,
		GenerationKey:   true,
	}
	report := NewHealthService(probes, time.Now()).Detailed(context.Background())
	assert.True(t, report.Healthy())
	assert.EqualValues(t, 9, report.Chunks)

	probes.Redis = func(context.Context) error { return errors.New("refused") }
	probes.VectorExtension = func(context.Context) (bool, error) { return false, nil }
	report = NewHealthService(probes, time.Now()).Detailed(context.Background())
	assert.False(t, report.Healthy())
	assert.Equal(t, StatusWarning, report.Checks["pgvector"].Status)
	assert.Equal(t, StatusError, report.Checks["redis"].Status)

	probes = HealthProbes{Database: func(context.Context) error { return errors.New("down") }, EmbeddingKey: true, GenerationKey: true}
	report = NewHealthService(probes, time.Now()).Detailed(context.Background())
	assert.False(t, report.Healthy())
	assert.NotContains(t, report.Checks, "redis")
	assert.Equal(t, StatusError, report.Checks["database"].Status)
}
