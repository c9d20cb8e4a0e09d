package accesskit

import (
	"context"
	"errors"
	"math/rand/v2"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ============================================================================
// INTERNAL HELPERS
// ============================================================================

// authorize gates management operations on the access_rules resource.
func (s *Service) authorize(ctx context.Context, caller *Principal, op Operation) error {
	d, err := s.CheckPermission(ctx, caller, AccessRulesResource, op)
	if err != nil {
		return err
	}
	if !d.Allowed() {
		e := NewError(ErrForbidden, "access rules management denied").
			WithResource(AccessRulesResource).
			WithOperation(op)
		if caller != nil {
			e = e.WithPrincipal(caller.ID)
		}
		return e
	}
	return nil
}

// logAudit records a mutation. Audit failures are logged and never fail the
// mutation itself.
func (s *Service) logAudit(ctx context.Context, store Store, caller *Principal, action AuditAction, entity, entityID, summary string) {
	audit := GetAuditContext(ctx)
	actorID := audit.ActorID
	if caller != nil {
		actorID = caller.ID
	}
	entry := &AuditEntry{
		ActorID:   actorID,
		Action:    action,
		Entity:    entity,
		EntityID:  entityID,
		Summary:   summary,
		IPAddress: audit.IPAddress,
		UserAgent: audit.UserAgent,
		RequestID: audit.RequestID,
	}
	if err := store.InsertAudit(ctx, entry.ToModel(s.now())); err != nil {
		s.logger.Warn().Err(err).
			Str("entity", entity).
			Str("entity_id", entityID).
			Str("action", string(action)).
			Msg("audit write failed")
	}
}

// invalidateRules drops cached rule lookups after a mutation. Loads that
// started before the bump will not write their result back.
func (s *Service) invalidateRules(ctx context.Context) {
	s.rulesMu.Lock()
	defer s.rulesMu.Unlock()
	s.rulesGen++
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("rule cache invalidation failed")
	}
}

// validateStruct runs validator tags and converts failures into a
// ValidationError keyed by JSON field name.
func (s *Service) validateStruct(v interface{}) *ValidationError {
	verr := &ValidationError{}
	err := s.validate.Struct(v)
	if err == nil {
		return verr
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		verr.Add("general", err.Error())
		return verr
	}
	for _, fe := range fieldErrs {
		verr.Add(fe.Field(), validationMessage(fe))
	}
	return verr
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "eqfield":
		return "passwords do not match"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	}
	return "is invalid"
}

// newValidator reports field errors under their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// normalizeEmail trims the address and lower-cases its domain part.
func normalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

// withRetry runs fn up to maxAttempts times while it fails with a transient error.
func (s *Service) withRetry(ctx context.Context, maxAttempts int, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		// Don't retry on non-transient errors
		if !isTransientError(err) {
			return err
		}

		if attempt == maxAttempts-1 {
			break
		}

		// Exponential backoff with jitter
		backoff := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
		jitter := time.Duration(float64(backoff) * 0.1 * (0.5 + rand.Float64()))
		s.logger.Warn().Err(err).Int("attempt", attempt+1).Dur("backoff", backoff+jitter).Msg("retrying after transient error")

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(backoff + jitter):
		}
	}

	return lastErr
}

// isTransientError checks if an error is transient and can be retried.
func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	errStr := strings.ToLower(err.Error())

	// PostgreSQL transient errors
	transientErrors := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"deadlock",
		"serialization failure",
		"could not serialize",
		"lock wait timeout",
		"temporary failure",
		"try again",
		"resource temporarily unavailable",
	}
	for _, transient := range transientErrors {
		if strings.Contains(errStr, transient) {
			return true
		}
	}
	return false
}
