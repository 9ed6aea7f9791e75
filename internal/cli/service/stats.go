package service

import (
	"context"

	"github.com/yndnr/metalgate/internal/core/domain"
)

// UsageStatsService reads aggregate usage counters.
type UsageStatsService struct {
	session SessionSource
}

// NewUsageStatsService creates the service.
func NewUsageStatsService(session SessionSource) *UsageStatsService {
	return &UsageStatsService{session: session}
}

// FetchStats returns the user's key count and total usage.
func (s *UsageStatsService) FetchStats(ctx context.Context) (domain.UsageStats, error) {
	_, c, err := authorize(s.session)
	if err != nil {
		return domain.UsageStats{}, err
	}

	var stats domain.UsageStats
	if err := c.Get(ctx, "/api-keys/stats", nil, &stats); err != nil {
		return domain.UsageStats{}, err
	}
	return stats, nil
}
