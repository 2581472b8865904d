package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultAppliesEngagementDefaults(t *testing.T) {
	cfg := Default()

	require.Equal(t, "GOAL-", cfg.Engagement.ReferralCodePrefix)
	require.Equal(t, 30*24*time.Hour, cfg.Engagement.ReferralTTL)
	require.Equal(t, 250, cfg.Engagement.ScanBatchSize)
	require.Equal(t, "users", cfg.Engagement.Activity.UsersTable)
	require.Equal(t, "grpc", cfg.Otel.Protocol)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Engagement.ReferralCodePrefix = "REF-"
	cfg.Engagement.ReferralTTL = time.Hour
	cfg.applyDefaults()

	require.Equal(t, "REF-", cfg.Engagement.ReferralCodePrefix)
	require.Equal(t, time.Hour, cfg.Engagement.ReferralTTL)
}
