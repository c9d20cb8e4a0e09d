package accesskit

import (
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// AccessRulesResource is the resource that gates management of roles,
// resources, rules and role assignments.
const AccessRulesResource = "access_rules"

// Service provides authentication, session handling and permission checks.
// It persists through a Store (BunStore for PostgreSQL, MemoryStore in
// process).
//
// Error Handling:
// Domain failures are reported with the package sentinels (ErrForbidden,
// ErrNotFound, ErrConflict, ...) wrapped in *Error for context. Storage
// failures are wrapped as ErrStorage and never mistaken for a domain outcome.
//
//	_, err := service.CreateRole(ctx, caller, accesskit.RoleInput{Name: "manager"})
//	switch {
//	case accesskit.IsForbidden(err):
//	    // caller lacks access_rules/update
//	case errors.Is(err, accesskit.ErrConflict):
//	    // name already used
//	case accesskit.IsStorage(err):
//	    // database unavailable
//	}
type Service struct {
	store     Store
	tokens    *TokenIssuer
	sessions  *SessionManager
	hasher    PasswordHasher
	cache     RuleCache
	lookups   singleflight.Group
	rulesMu   sync.RWMutex
	rulesGen  uint64
	validate  *validator.Validate
	logger    zerolog.Logger
	metrics   *Metrics
	now       func() time.Time
	txMonitor *transactionMonitor

	sessionTTL     time.Duration
	defaultRole    string
	minPasswordLen int
}

// Option configures a Service.
type Option func(*Service)

// WithHasher replaces the default bcrypt hasher.
func WithHasher(h PasswordHasher) Option {
	return func(s *Service) {
		s.hasher = h
	}
}

// WithRuleCache enables caching of rule lookups.
func WithRuleCache(c RuleCache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithMetrics enables prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSessionTTL sets the sliding session window. It defaults to the token TTL.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.sessionTTL = ttl
	}
}

// WithDefaultRole names the role given to newly registered principals.
// Without it new principals have no role and are denied everything.
func WithDefaultRole(name string) Option {
	return func(s *Service) {
		s.defaultRole = name
	}
}

// WithMinPasswordLength rejects registrations with shorter passwords.
// Zero, the default, only requires a non-empty password.
func WithMinPasswordLength(n int) Option {
	return func(s *Service) {
		s.minPasswordLen = n
	}
}

// NewService creates a new AccessKit service.
//
// Example:
//
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	tokens := accesskit.NewTokenIssuer(secret, 0)
//	service := accesskit.NewService(accesskit.NewBunStore(db), tokens,
//	    accesskit.WithRuleCache(accesskit.NewMemoryRuleCache(0)),
//	    accesskit.WithDefaultRole("user"),
//	)
func NewService(store Store, tokens *TokenIssuer, opts ...Option) *Service {
	s := &Service{
		store:    store,
		tokens:   tokens,
		hasher:   NewBcryptHasher(0),
		cache:    noopRuleCache{},
		validate: newValidator(),
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sessionTTL <= 0 {
		s.sessionTTL = tokens.TTL()
	}
	s.sessions = NewSessionManager(store, s.sessionTTL)
	s.txMonitor = newTransactionMonitor(s.now())
	return s
}

// Store returns the underlying store.
func (s *Service) Store() Store {
	return s.store
}

// Sessions returns the session manager.
func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

// Tokens returns the token issuer.
func (s *Service) Tokens() *TokenIssuer {
	return s.tokens
}

// Logger returns the service logger.
func (s *Service) Logger() *zerolog.Logger {
	return &s.logger
}
