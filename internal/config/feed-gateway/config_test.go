package feed_gateway_config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, "feedsync.notifications.changed", cfg.In.Topic)
	assert.Equal(t, 50, cfg.Feed.Window)
	assert.False(t, cfg.SMTP.Enable)
}

func TestAsLoggerConfig_CarriesAppIdentity(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.App.Env = "staging"
	cfg.App.Version = "1.4.2"
	cfg.Log.Level = "debug"

	lc := cfg.AsLoggerConfig()
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, "staging", lc.Env)
	assert.Equal(t, "1.4.2", lc.Ver)
	assert.NotEmpty(t, lc.App)
}
