package service

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/room-access-api/internal/models"
	"github.com/noah-isme/room-access-api/internal/repository"
	appErrors "github.com/noah-isme/room-access-api/pkg/errors"
)

func TestIssuerGenerateUsesAlphabet(t *testing.T) {
	issuer := NewAccessCodeIssuer(nil, IssuerConfig{CodeLength: 10}, nil, zap.NewNop())
	for i := 0; i < 50; i++ {
		code, err := issuer.Generate()
		require.NoError(t, err)
		require.Len(t, code, 10)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(codeAlphabet, r), "unexpected symbol %q", r)
		}
	}
}

func TestIssuerDefaults(t *testing.T) {
	issuer := NewAccessCodeIssuer(nil, IssuerConfig{CodeLength: 2, GracePeriod: -time.Minute}, nil, nil)
	assert.Equal(t, 8, issuer.cfg.CodeLength)
	assert.Equal(t, 5, issuer.cfg.MaxAttempts)
	assert.Equal(t, 2*time.Second, issuer.cfg.Timeout)
	assert.Zero(t, issuer.GracePeriod())
}

func TestIssuerWindowAddsGrace(t *testing.T) {
	issuer := NewAccessCodeIssuer(nil, IssuerConfig{GracePeriod: 15 * time.Minute}, nil, zap.NewNop())
	entry := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	from, until := issuer.Window(entry, entry.Add(time.Hour))
	assert.Equal(t, entry, from)
	assert.Equal(t, entry.Add(75*time.Minute), until)
}

func TestIssuerRedrawsOnCollision(t *testing.T) {
	// First draw is all zeros, second all ones.
	random := bytes.NewReader(append(make([]byte, 8), bytes.Repeat([]byte{1}, 8)...))
	issuer := NewAccessCodeIssuer(nil, IssuerConfig{}, nil, zap.NewNop(), WithIssuerRandom(random))

	var seen []string
	code, err := issuer.Issue(context.Background(), "req-1", time.Now(), time.Now().Add(time.Hour), func(_ context.Context, code *models.AccessCode) error {
		seen = append(seen, code.Code)
		if code.Code == "22222222" {
			return repository.ErrCodeCollision
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"22222222", "33333333"}, seen)
	assert.Equal(t, "33333333", code.Code)
	assert.Equal(t, models.CodeStatusUnused, code.Status)
	assert.Equal(t, "req-1", code.RequestID)
}

func TestIssuerExhaustsBudget(t *testing.T) {
	issuer := NewAccessCodeIssuer(nil, IssuerConfig{MaxAttempts: 3}, nil, zap.NewNop())
	calls := 0
	_, err := issuer.Issue(context.Background(), "req-1", time.Now(), time.Now().Add(time.Hour), func(context.Context, *models.AccessCode) error {
		calls++
		return repository.ErrCodeCollision
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrIssuance))
	assert.Equal(t, 3, calls)
}

func TestIssuerTimeout(t *testing.T) {
	issuer := NewAccessCodeIssuer(nil, IssuerConfig{MaxAttempts: 1000, Timeout: 20 * time.Millisecond}, nil, zap.NewNop())
	_, err := issuer.Issue(context.Background(), "req-1", time.Now(), time.Now().Add(time.Hour), func(ctx context.Context, _ *models.AccessCode) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
			return repository.ErrCodeCollision
		}
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrIssuance))
}

func TestIssuerPassesThroughPersistErrors(t *testing.T) {
	issuer := NewAccessCodeIssuer(nil, IssuerConfig{}, nil, zap.NewNop())
	boom := errors.New("boom")
	_, err := issuer.Issue(context.Background(), "req-1", time.Now(), time.Now().Add(time.Hour), func(context.Context, *models.AccessCode) error {
		return boom
	})
	assert.Same(t, boom, err)
}

func TestIssuerValidateUnknown(t *testing.T) {
	store := newMemStore()
	issuer := NewAccessCodeIssuer(memCodes{store}, IssuerConfig{}, nil, zap.NewNop())

	code, outcome, err := issuer.Validate(context.Background(), "MISSING2", time.Now())
	require.NoError(t, err)
	assert.Nil(t, code)
	assert.Equal(t, models.CodeOutcomeUnknown, outcome)

	_, err = issuer.Consume(context.Background(), "MISSING2", time.Now(), nil)
	assert.True(t, errors.Is(err, appErrors.ErrCodeUnknown))
}

func TestCodeOutcomeErrorRoundTrip(t *testing.T) {
	for _, outcome := range []models.CodeOutcome{models.CodeOutcomeExpired, models.CodeOutcomeAlreadyUsed, models.CodeOutcomeUnknown, models.CodeOutcomeWrongDevice} {
		got, ok := outcomeFromError(codeOutcomeError(outcome))
		require.True(t, ok)
		assert.Equal(t, outcome, got)
	}
	assert.Nil(t, codeOutcomeError(models.CodeOutcomeValid))
}
