package audit

import "github.com/voicelayer/switchboard/internal/types"

// Sink persists routing outcomes and per-agent rollups for reporting.
// Writes are fire-and-forget from the caller's perspective; a sink failure
// never blocks or rolls back a routing decision.
type Sink interface {
	SaveTransferRecord(record types.TransferRecord) error
	SaveAgentDailyStats(stats types.AgentDailyStats) error
	GetTransferRecords(dateKey string) ([]types.TransferRecord, error)
	GetAgentDailyStats(agentID string) ([]types.AgentDailyStats, error)
	GetAgentTransfersByDate(agentID, date string) ([]types.TransferRecord, error)
	TruncateAll() error
}

// NoopSink is a no-op implementation when DynamoDB is disabled
type NoopSink struct{}

func NewNoopSink() *NoopSink { return &NoopSink{} }

func (s *NoopSink) SaveTransferRecord(_ types.TransferRecord) error   { return nil }
func (s *NoopSink) SaveAgentDailyStats(_ types.AgentDailyStats) error { return nil }
func (s *NoopSink) GetTransferRecords(_ string) ([]types.TransferRecord, error) {
	return nil, nil
}
func (s *NoopSink) GetAgentDailyStats(_ string) ([]types.AgentDailyStats, error) {
	return nil, nil
}
func (s *NoopSink) GetAgentTransfersByDate(_, _ string) ([]types.TransferRecord, error) {
	return nil, nil
}
func (s *NoopSink) TruncateAll() error { return nil }
