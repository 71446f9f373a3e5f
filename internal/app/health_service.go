package app

import (
	"context"
	"time"
)

const (
	StatusOK      = "ok"
	StatusWarning = "warning"
	StatusError   = "error"
)

// HealthProbes are the dependency checks behind the health endpoints. Optional
// probes are nil when the dependency is disabled.
type HealthProbes struct {
	Database        func(ctx context.Context) error
	VectorExtension func(ctx context.Context) (bool, error)
	Redis           func(ctx context.Context) error
	RabbitMQ        func() bool
	DocumentCounts  func(ctx context.Context) (documents, chunks int64, err error)
	EmbeddingKey    bool
	GenerationKey   bool
}

type CheckStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type HealthReport struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	UptimeSec int64                  `json:"uptime"`
	Checks    map[string]CheckStatus `json:"checks"`
	Documents int64                  `json:"documents"`
	Chunks    int64                  `json:"chunks"`
}

func (r *HealthReport) Healthy() bool {
	return r.Status == StatusOK
}

type HealthService struct {
	probes    HealthProbes
	startedAt time.Time
}

func NewHealthService(probes HealthProbes, startedAt time.Time) *HealthService {
	return &HealthService{probes: probes, startedAt: startedAt}
}

func (s *HealthService) Uptime() time.Duration {
	return time.Since(s.startedAt)
}

// Ready reports whether the document store answers.
func (s *HealthService) Ready(ctx context.Context) error {
	return s.probes.Database(ctx)
}

func (s *HealthService) Detailed(ctx context.Context) *HealthReport {
	report := &HealthReport{
		Status:    StatusOK,
		Timestamp: time.Now().UTC(),
		UptimeSec: int64(s.Uptime().Seconds()),
		Checks:    make(map[string]CheckStatus),
	}

	if err := s.probes.Database(ctx); err != nil {
		report.Checks["database"] = CheckStatus{Status: StatusError, Message: "connection failed"}
		report.Checks["pgvector"] = CheckStatus{Status: StatusError, Message: "cannot check"}
	} else {
		report.Checks["database"] = CheckStatus{Status: StatusOK}
		switch installed, err := s.probes.VectorExtension(ctx); {
		case err != nil:
			report.Checks["pgvector"] = CheckStatus{Status: StatusError, Message: err.Error()}
		case !installed:
			report.Checks["pgvector"] = CheckStatus{Status: StatusWarning, Message: "pgvector extension not found"}
		default:
			report.Checks["pgvector"] = CheckStatus{Status: StatusOK}
		}
		if docs, chunks, err := s.probes.DocumentCounts(ctx); err == nil {
			report.Documents, report.Chunks = docs, chunks
		}
	}

	if s.probes.Redis != nil {
		if err := s.probes.Redis(ctx); err != nil {
			report.Checks["redis"] = CheckStatus{Status: StatusError, Message: err.Error()}
		} else {
			report.Checks["redis"] = CheckStatus{Status: StatusOK}
		}
	}
	if s.probes.RabbitMQ != nil {
		if s.probes.RabbitMQ() {
			report.Checks["rabbitmq"] = CheckStatus{Status: StatusOK}
		} else {
			report.Checks["rabbitmq"] = CheckStatus{Status: StatusError, Message: "connection closed"}
		}
	}
	report.Checks["embedding_api_key"] = keyStatus(s.probes.EmbeddingKey)
	report.Checks["generation_api_key"] = keyStatus(s.probes.GenerationKey)

	for _, c := range report.Checks {
		if c.Status == StatusError {
			report.Status = "degraded"
			break
		}
	}
	return report
}

func keyStatus(configured bool) CheckStatus {
	if configured {
		return CheckStatus{Status: StatusOK}
	}
	return CheckStatus{Status: StatusError, Message: "not configured"}
}
