package accesskit

import (
	"context"
	"errors"
	"sync"
)

// RegisterInput is the self-registration payload.
type RegisterInput struct {
	Email           string `json:"email" validate:"required,email,max=254"`
	Password        string `json:"password" validate:"required,max=72"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	FirstName       string `json:"first_name" validate:"required,max=50"`
	LastName        string `json:"last_name" validate:"required,max=50"`
	Patronymic      string `json:"patronymic" validate:"max=50"`
}

// ProfileUpdate changes profile fields. Nil fields are left untouched.
type ProfileUpdate struct {
	FirstName  *string `json:"first_name" validate:"omitempty,min=1,max=50"`
	LastName   *string `json:"last_name" validate:"omitempty,min=1,max=50"`
	Patronymic *string `json:"patronymic" validate:"omitempty,max=50"`
}

// Register creates an active principal. It returns a *ValidationError for
// bad input and ErrEmailTaken when the email is already registered.
//
// Example:
//
//	p, err := service.Register(ctx, accesskit.RegisterInput{
//	    Email: "a@x.com", Password: "pw1", PasswordConfirm: "pw1",
//	    FirstName: "Ann", LastName: "Lee",
//	})
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Principal, error) {
	in.Email = normalizeEmail(in.Email)
	if verr := s.validateStruct(in); !verr.Empty() {
		return nil, verr
	}
	if s.minPasswordLen > 0 && len(in.Password) < s.minPasswordLen {
		verr := &ValidationError{}
		verr.Add("password", "is too short")
		return nil, verr
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, NewError(ErrStorage, "hash password").WithCause(err)
	}

	p := &Principal{
		Email:        in.Email,
		PasswordHash: digest,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Patronymic:   in.Patronymic,
		IsActive:     true,
	}
	if roleID, err := s.defaultRoleID(ctx); err != nil {
		return nil, err
	} else if roleID != "" {
		p.RoleID = &roleID
	}

	if err := s.store.CreatePrincipal(ctx, p); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, NewError(ErrEmailTaken, in.Email)
		}
		return nil, storageError("CreatePrincipal", err)
	}

	s.logger.Info().Str("principal_id", p.ID).Msg("principal registered")
	return p, nil
}

func (s *Service) defaultRoleID(ctx context.Context) (string, error) {
	if s.defaultRole == "" {
		return "", nil
	}
	role, err := s.store.GetRoleByName(ctx, s.defaultRole)
	if err != nil {
		if IsNotFound(err) {
			s.logger.Warn().Str("role", s.defaultRole).Msg("default role missing, registering without role")
			return "", nil
		}
		return "", storageError("GetRoleByName", err)
	}
	return role.ID, nil
}

// dummyDigest is verified against when the email is unknown so a miss costs
// about as much as a wrong password.
var (
	dummyDigestOnce sync.Once
	dummyDigest     string
)

func (s *Service) burnVerify(password string) {
	dummyDigestOnce.Do(func() {
		dummyDigest, _ = s.hasher.Hash("accesskit-dummy-password")
	})
	s.hasher.Verify(password, dummyDigest)
}

// Authenticate checks credentials, issues a token and records a session.
// Every credential failure (unknown email, wrong password, inactive account)
// is reported as ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (string, *Session, error) {
	token, session, err := s.authenticate(ctx, normalizeEmail(email), password)
	s.metrics.observeLogin(err == nil)
	return token, session, err
}

func (s *Service) authenticate(ctx context.Context, email, password string) (string, *Session, error) {
	p, err := s.store.GetPrincipalByEmail(ctx, email)
	if err != nil {
		if IsNotFound(err) {
			s.burnVerify(password)
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, storageError("GetPrincipalByEmail", err)
	}
	if !s.hasher.Verify(password, p.PasswordHash) || !p.IsActive {
		return "", nil, ErrInvalidCredentials
	}

	now := s.now()
	token, err := s.tokens.Issue(p.ID, now)
	if err != nil {
		return "", nil, NewError(ErrStorage, "issue token").WithCause(err)
	}
	session, err := s.sessions.Create(ctx, p, token, now)
	if err != nil {
		return "", nil, err
	}
	s.touch(ctx, p.ID)

	s.logger.Info().Str("principal_id", p.ID).Str("session_id", session.ID).Msg("login succeeded")
	return token, session, nil
}

// touch records activity. It is telemetry only, so failures are logged and ignored.
func (s *Service) touch(ctx context.Context, principalID string) {
	if err := s.store.TouchPrincipal(ctx, principalID, s.now()); err != nil {
		s.logger.Warn().Err(err).Str("principal_id", principalID).Msg("last login update failed")
	}
}

// ResolveSession authenticates a bearer token: the signature and expiry are
// verified, the session must exist and be valid, and its expiry slides
// forward. Any token or session problem yields ErrInvalidOrExpired; only
// storage failures are reported differently.
func (s *Service) ResolveSession(ctx context.Context, token string) (*AuthContext, error) {
	auth, err := s.resolveSession(ctx, token)
	s.metrics.observeResolve(err == nil)
	return auth, err
}

func (s *Service) resolveSession(ctx context.Context, token string) (*AuthContext, error) {
	now := s.now()
	principalID, err := s.tokens.Verify(token, now)
	if err != nil {
		return nil, ErrInvalidOrExpired
	}

	session, err := s.sessions.Lookup(ctx, token)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrInvalidOrExpired
		}
		return nil, err
	}
	if session.PrincipalID != principalID || !session.IsValid(now) {
		return nil, ErrInvalidOrExpired
	}

	if err := s.sessions.Refresh(ctx, session, now); err != nil {
		if IsNotFound(err) {
			// revoked between lookup and refresh
			return nil, ErrInvalidOrExpired
		}
		return nil, err
	}
	s.touch(ctx, principalID)

	auth := &AuthContext{
		Principal: session.Principal,
		Session:   session,
		Token:     token,
	}
	if session.Principal.HasRole() {
		role, err := s.store.GetRole(ctx, *session.Principal.RoleID)
		switch {
		case err == nil:
			auth.Role = role
		case IsNotFound(err):
			s.logger.Warn().Str("principal_id", principalID).Msg("principal references a missing role")
		default:
			return nil, storageError("GetRole", err)
		}
	}
	return auth, nil
}

// Authenticator returns ResolveSession as a middleware Authenticator.
func (s *Service) Authenticator() Authenticator {
	return s.ResolveSession
}

// Logout revokes the session behind token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

// Deactivate marks the principal inactive and revokes all of its sessions.
// Principals are never deleted.
func (s *Service) Deactivate(ctx context.Context, principalID string) error {
	var revoked int64
	err := s.Transaction(ctx, func(ctx context.Context, tx Store) error {
		p, err := tx.GetPrincipal(ctx, principalID)
		if err != nil {
			return storageError("GetPrincipal", err)
		}
		p.IsActive = false
		if err := tx.UpdatePrincipal(ctx, p); err != nil {
			return storageError("UpdatePrincipal", err)
		}
		revoked, err = tx.DeleteSessionsForPrincipal(ctx, principalID)
		if err != nil {
			return storageError("DeleteSessionsForPrincipal", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().Str("principal_id", principalID).Int64("sessions_revoked", revoked).Msg("principal deactivated")
	return nil
}

// UpdateProfile changes the principal's name fields.
func (s *Service) UpdateProfile(ctx context.Context, principalID string, in ProfileUpdate) (*Principal, error) {
	if verr := s.validateStruct(in); !verr.Empty() {
		return nil, verr
	}
	p, err := s.store.GetPrincipal(ctx, principalID)
	if err != nil {
		return nil, storageError("GetPrincipal", err)
	}
	if in.FirstName != nil {
		p.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		p.LastName = *in.LastName
	}
	if in.Patronymic != nil {
		p.Patronymic = *in.Patronymic
	}
	if err := s.store.UpdatePrincipal(ctx, p); err != nil {
		return nil, storageError("UpdatePrincipal", err)
	}
	return p, nil
}

// GetPrincipal loads a principal by id.
func (s *Service) GetPrincipal(ctx context.Context, id string) (*Principal, error) {
	p, err := s.store.GetPrincipal(ctx, id)
	if err != nil {
		return nil, storageError("GetPrincipal", err)
	}
	return p, nil
}

// AssignRole sets or clears (roleID nil) the role of a principal. The caller
// needs update permission on access_rules.
func (s *Service) AssignRole(ctx context.Context, caller *Principal, principalID string, roleID *string) (*Principal, error) {
	if err := s.authorize(ctx, caller, OpUpdate); err != nil {
		return nil, err
	}

	var out *Principal
	err := s.Transaction(ctx, func(ctx context.Context, tx Store) error {
		p, err := tx.GetPrincipal(ctx, principalID)
		if err != nil {
			return storageError("GetPrincipal", err)
		}
		summary := "role cleared"
		if roleID != nil {
			role, err := tx.GetRole(ctx, *roleID)
			if err != nil {
				return storageError("GetRole", err)
			}
			id := role.ID
			p.RoleID = &id
			summary = "role " + role.Name
		} else {
			p.RoleID = nil
		}
		if err := tx.UpdatePrincipal(ctx, p); err != nil {
			return storageError("UpdatePrincipal", err)
		}
		s.logAudit(ctx, tx, caller, AuditActionAssigned, EntityPrincipal, p.ID, summary)
		out = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
