package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 30*time.Minute, cfg.Access.GracePeriod)
	assert.Equal(t, 8, cfg.Access.CodeLength)
	assert.Equal(t, 5, cfg.Access.IssueMaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.Access.IssueTimeout)
	assert.Equal(t, time.Minute, cfg.Access.ExpirySweepInterval)
	assert.False(t, cfg.Events.Enabled)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("ACCESS_GRACE_PERIOD", "15m")
	v.Set("ACCESS_CODE_LENGTH", 3)
	v.Set("ACCESS_ISSUE_TIMEOUT", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", "https://a.example, ,https://b.example")

	cfg := fromViper(v)
	assert.Equal(t, 15*time.Minute, cfg.Access.GracePeriod)
	assert.Equal(t, 8, cfg.Access.CodeLength)
	assert.Equal(t, 2*time.Second, cfg.Access.IssueTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}
