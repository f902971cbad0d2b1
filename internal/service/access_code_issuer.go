package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/room-access-api/internal/dto"
	"github.com/noah-isme/room-access-api/internal/models"
	"github.com/noah-isme/room-access-api/internal/repository"
	appErrors "github.com/noah-isme/room-access-api/pkg/errors"
)

// codeAlphabet omits 0, 1, I and O. Its 32 symbols divide 256 evenly so a
// byte modulo the length is unbiased.
const codeAlphabet = "23456789ABCDEFGHJKLMNPQRSTUVWXYZ"

type accessCodeStore interface {
	GetByCode(ctx context.Context, code string) (*models.AccessCode, error)
	Consume(ctx context.Context, code string, at time.Time, grant *models.AccessRecord) (*models.AccessCode, error)
}

// PersistCodeFunc stores a drawn code. It returns repository.ErrCodeCollision
// when the token is already taken and nothing was written.
type PersistCodeFunc func(ctx context.Context, code *models.AccessCode) error

// IssuerConfig tunes code generation and the issuance retry budget.
type IssuerConfig struct {
	GracePeriod time.Duration
	CodeLength  int
	MaxAttempts int
	Timeout     time.Duration
}

// AccessCodeIssuer generates, validates and retires one-time access codes.
type AccessCodeIssuer struct {
	codes   accessCodeStore
	cfg     IssuerConfig
	metrics *MetricsService
	logger  *zap.Logger
	random  io.Reader
	clock   Clock
}

// IssuerOption configures the issuer.
type IssuerOption func(*AccessCodeIssuer)

// WithIssuerRandom overrides the randomness source.
func WithIssuerRandom(r io.Reader) IssuerOption {
	return func(i *AccessCodeIssuer) {
		if r != nil {
			i.random = r
		}
	}
}

// WithIssuerClock overrides the clock used for issue timestamps.
func WithIssuerClock(clock Clock) IssuerOption {
	return func(i *AccessCodeIssuer) {
		if clock != nil {
			i.clock = clock
		}
	}
}

// NewAccessCodeIssuer constructs the issuer.
func NewAccessCodeIssuer(codes accessCodeStore, cfg IssuerConfig, metrics *MetricsService, logger *zap.Logger, opts ...IssuerOption) *AccessCodeIssuer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CodeLength < 6 {
		cfg.CodeLength = 8
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.GracePeriod < 0 {
		cfg.GracePeriod = 0
	}
	issuer := &AccessCodeIssuer{codes: codes, cfg: cfg, metrics: metrics, logger: logger, random: rand.Reader, clock: systemClock}
	for _, opt := range opts {
		if opt != nil {
			opt(issuer)
		}
	}
	return issuer
}

// GracePeriod returns the configured grace period.
func (i *AccessCodeIssuer) GracePeriod() time.Duration {
	return i.cfg.GracePeriod
}

// Window derives a code validity window from the planned visit window.
func (i *AccessCodeIssuer) Window(entry, exit time.Time) (time.Time, time.Time) {
	return entry, exit.Add(i.cfg.GracePeriod)
}

// Generate draws one random token.
func (i *AccessCodeIssuer) Generate() (string, error) {
	buf := make([]byte, i.cfg.CodeLength)
	if _, err := io.ReadFull(i.random, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	for idx, b := range buf {
		buf[idx] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// Issue draws codes for requestID until persist accepts one, the attempt budget
// is spent or the timeout elapses. Errors from persist other than a collision
// are returned unchanged so the caller can classify them.
func (i *AccessCodeIssuer) Issue(ctx context.Context, requestID string, entry, exit time.Time, persist PersistCodeFunc) (*models.AccessCode, error) {
	ctx, cancel := context.WithTimeout(ctx, i.cfg.Timeout)
	defer cancel()

	validFrom, validUntil := i.Window(entry, exit)
	attempts := 0
	for attempts < i.cfg.MaxAttempts {
		if err := ctx.Err(); err != nil {
			break
		}
		attempts++

		token, err := i.Generate()
		if err != nil {
			i.metrics.RecordIssuance(attempts, false)
			return nil, appErrors.Wrap(err, appErrors.ErrIssuance.Code, appErrors.ErrIssuance.Status, appErrors.ErrIssuance.Message)
		}
		code := &models.AccessCode{
			Code:       token,
			RequestID:  requestID,
			ValidFrom:  validFrom,
			ValidUntil: validUntil,
			Status:     models.CodeStatusUnused,
			IssuedAt:   i.clock(),
		}

		err = persist(ctx, code)
		switch {
		case err == nil:
			i.metrics.RecordIssuance(attempts, true)
			return code, nil
		case errors.Is(err, repository.ErrCodeCollision):
			i.metrics.RecordCodeCollision()
			i.logger.Warn("access code collision, redrawing", zap.String("request_id", requestID), zap.Int("attempt", attempts))
		case ctx.Err() != nil:
			i.metrics.RecordIssuance(attempts, false)
			return nil, appErrors.Wrap(err, appErrors.ErrIssuance.Code, appErrors.ErrIssuance.Status, "access code issuance timed out")
		default:
			return nil, err
		}
	}

	i.metrics.RecordIssuance(attempts, false)
	i.logger.Error("access code issuance exhausted",
		zap.String("request_id", requestID),
		zap.Int("attempts", attempts),
		zap.Duration("timeout", i.cfg.Timeout),
		zap.NamedError("context", ctx.Err()),
	)
	return nil, appErrors.Clone(appErrors.ErrIssuance, fmt.Sprintf("failed to issue access code after %d attempts", attempts))
}

// Validate classifies code as presented at t without mutating it.
func (i *AccessCodeIssuer) Validate(ctx context.Context, code string, at time.Time) (*models.AccessCode, models.CodeOutcome, error) {
	ac, err := i.codes.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.CodeOutcomeUnknown, nil
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load access code")
	}
	return ac, ac.Outcome(at), nil
}

// Check reports the current outcome for a presented code without consuming it.
func (i *AccessCodeIssuer) Check(ctx context.Context, code string) (*dto.CodeValidationResponse, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "access code is required", map[string]string{"accessCode": "required"})
	}
	ac, outcome, err := i.Validate(ctx, code, i.clock())
	if err != nil {
		return nil, err
	}
	res := &dto.CodeValidationResponse{AccessCode: code, Outcome: outcome}
	if ac != nil {
		res.ValidFrom = &ac.ValidFrom
		res.ValidUntil = &ac.ValidUntil
	}
	return res, nil
}

// Consume marks code used if it is unused and at lies inside its window. The
// owning request completes in the same transaction. Exactly one of any number
// of concurrent callers succeeds; the others get the specific code error.
//
// A non-nil grant is stored together with the consumption and must come from
// the room's lock device when one is configured.
func (i *AccessCodeIssuer) Consume(ctx context.Context, code string, at time.Time, grant *models.AccessRecord) (*models.AccessCode, error) {
	consumed, err := i.codes.Consume(ctx, code, at, grant)
	switch {
	case err == nil:
		return consumed, nil
	case errors.Is(err, repository.ErrWrongDevice):
		return consumed, appErrors.ErrCodeWrongDevice
	case errors.Is(err, repository.ErrDuplicateEvent):
		return nil, err
	case !errors.Is(err, sql.ErrNoRows):
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to consume access code")
	}

	current, outcome, verr := i.Validate(ctx, code, at)
	if verr != nil {
		return nil, verr
	}
	if outcome == models.CodeOutcomeValid {
		// Lost the conditional update to another consumer.
		outcome = models.CodeOutcomeAlreadyUsed
	}
	return current, codeOutcomeError(outcome)
}

func codeOutcomeError(outcome models.CodeOutcome) error {
	switch outcome {
	case models.CodeOutcomeExpired:
		return appErrors.ErrCodeExpired
	case models.CodeOutcomeAlreadyUsed:
		return appErrors.ErrCodeAlreadyUsed
	case models.CodeOutcomeUnknown:
		return appErrors.ErrCodeUnknown
	case models.CodeOutcomeWrongDevice:
		return appErrors.ErrCodeWrongDevice
	}
	return nil
}

// outcomeFromError maps a code error back to its outcome for audit records.
func outcomeFromError(err error) (models.CodeOutcome, bool) {
	switch {
	case errors.Is(err, appErrors.ErrCodeExpired):
		return models.CodeOutcomeExpired, true
	case errors.Is(err, appErrors.ErrCodeAlreadyUsed):
		return models.CodeOutcomeAlreadyUsed, true
	case errors.Is(err, appErrors.ErrCodeUnknown):
		return models.CodeOutcomeUnknown, true
	case errors.Is(err, appErrors.ErrCodeWrongDevice):
		return models.CodeOutcomeWrongDevice, true
	}
	return "", false
}
