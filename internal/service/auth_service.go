package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/voxen-api/internal/models"
	appErrors "github.com/noah-isme/voxen-api/pkg/errors"
)

type accountStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	ChangePassword(ctx context.Context, id, passwordHash string, at time.Time) error
}

type sessionStore interface {
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, usedID string, next *models.RefreshToken, at time.Time) error
	RevokeRefreshToken(ctx context.Context, id string, at time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID string, at time.Time) error
}

type authRepository interface {
	accountStore
	sessionStore
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// AuthConfig defines token signing and lifetimes.
type AuthConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// AuthServiceParams groups constructor dependencies.
type AuthServiceParams struct {
	Users     authRepository
	Validator *validator.Validate
	Logger    *zap.Logger
	Clock     Clock
	Config    AuthConfig
}

// AuthService issues and validates sessions for every role.
type AuthService struct {
	users     authRepository
	validator *validator.Validate
	logger    *zap.Logger
	clock     Clock
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(p AuthServiceParams) *AuthService {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Validator == nil {
		p.Validator = NewValidator()
	}
	return &AuthService{users: p.Users, validator: p.Validator, logger: p.Logger, clock: p.Clock, config: p.Config}
}

type sessionMeta struct {
	IP        string
	UserAgent string
}

// Login checks credentials and opens a new session.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.Session, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "invalid login payload")
	}

	user, err := s.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Internal(err, "failed to fetch user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	meta := sessionMeta{IP: req.IP, UserAgent: req.UserAgent}
	session, refresh, err := s.newSession(user, meta)
	if err != nil {
		return nil, err
	}
	if err := s.users.CreateRefreshToken(ctx, refresh); err != nil {
		return nil, appErrors.Internal(err, "failed to persist refresh token")
	}
	if err := s.users.UpdateLastLogin(ctx, user.ID, session.IssuedAt); err != nil {
		s.logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}
	s.audit(ctx, user.ID, models.AuditActionLogin, meta, map[string]string{"role": string(user.Role)})

	info := userInfo(user)
	session.User = &info
	return session, nil
}

// Refresh rotates a refresh token. Presenting a token that was already
// rotated or revoked ends every session of the account.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "invalid refresh payload")
	}
	meta := sessionMeta{IP: req.IP, UserAgent: req.UserAgent}

	stored, err := s.loadRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, err
	}
	now := s.clock.now().UTC()
	if stored.Revoked {
		s.revokeAll(ctx, stored.UserID, now)
		s.audit(ctx, stored.UserID, models.AuditActionTokenReuse, meta, map[string]string{"token_id": stored.ID})
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token was already used")
	}
	if !now.Before(stored.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token expired")
	}

	user, err := s.users.FindByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}

	session, next, err := s.newSession(user, meta)
	if err != nil {
		return nil, err
	}
	if err := s.users.RotateRefreshToken(ctx, stored.ID, next, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token was already used")
		}
		return nil, appErrors.Internal(err, "failed to rotate refresh token")
	}
	s.audit(ctx, user.ID, models.AuditActionTokenRefresh, meta, nil)
	return session, nil
}

// Logout revokes one of the caller's refresh tokens.
func (s *AuthService) Logout(ctx context.Context, userID string, req models.RefreshTokenRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation, "invalid logout payload")
	}
	stored, err := s.loadRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return err
	}
	if stored.UserID != userID {
		return appErrors.Clone(appErrors.ErrForbidden, "token does not belong to user")
	}
	if stored.Revoked {
		return nil
	}
	if err := s.users.RevokeRefreshToken(ctx, stored.ID, s.clock.now().UTC()); err != nil {
		return appErrors.Internal(err, "failed to revoke refresh token")
	}
	s.audit(ctx, userID, models.AuditActionLogout, sessionMeta{IP: req.IP, UserAgent: req.UserAgent}, nil)
	return nil
}

// ChangePassword replaces the caller's password and signs out every session.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation, "invalid change password payload")
	}
	if req.OldPassword == req.NewPassword {
		return appErrors.Validation("new password must differ from the current one")
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Internal(err, "failed to load user")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrForbidden, "current password does not match")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Internal(err, "failed to hash password")
	}
	if err := s.users.ChangePassword(ctx, userID, string(hash), s.clock.now().UTC()); err != nil {
		return appErrors.Internal(err, "failed to update password")
	}
	s.audit(ctx, userID, models.AuditActionPasswordChange, sessionMeta{}, nil)
	return nil
}

// ValidateToken parses an access token and returns its claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.now),
	}
	if s.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.config.Issuer))
	}
	claims := &models.JWTClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(s.config.Secret), nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized, "invalid token")
	}
	if !claims.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// Profile returns the account behind an authenticated user id.
func (s *AuthService) Profile(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	info := userInfo(user)
	return &info, nil
}

// CreateAdmin bootstraps an administrator account.
func (s *AuthService) CreateAdmin(ctx context.Context, req models.CreateAdminRequest) (*models.UserInfo, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation, "invalid admin payload")
	}
	email := req.Email

	exists, err := s.users.ExistsByEmail(ctx, email)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to check email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}
	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(req.FullName),
		Role:         models.RoleAdmin,
		Active:       true,
		CreatedAt:    s.clock.now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Internal(err, "failed to create admin")
	}
	s.logger.Info("admin account created", zap.String("user_id", user.ID), zap.String("email", user.Email))
	info := userInfo(user)
	return &info, nil
}

func (s *AuthService) loadRefreshToken(ctx context.Context, raw string) (*models.RefreshToken, error) {
	stored, err := s.users.FindRefreshToken(ctx, raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "refresh token not found")
		}
		return nil, appErrors.Internal(err, "failed to load refresh token")
	}
	return stored, nil
}

func (s *AuthService) revokeAll(ctx context.Context, userID string, at time.Time) {
	if err := s.users.RevokeUserRefreshTokens(ctx, userID, at); err != nil {
		s.logger.Error("failed to revoke sessions after token reuse", zap.String("user_id", userID), zap.Error(err))
		return
	}
	s.logger.Warn("refresh token reuse detected, sessions revoked", zap.String("user_id", userID))
}

// newSession signs an access token and mints the matching refresh token.
func (s *AuthService) newSession(user *models.User, meta sessionMeta) (*models.Session, *models.RefreshToken, error) {
	issuedAt := s.clock.now().UTC()
	access, err := s.signAccessToken(user, issuedAt)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to create access token")
	}
	raw, err := randomToken()
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to create refresh token")
	}
	refresh := &models.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Token:     raw,
		ExpiresAt: issuedAt.Add(s.config.RefreshTTL),
		CreatedAt: issuedAt,
		IPAddress: meta.IP,
		UserAgent: meta.UserAgent,
	}
	return &models.Session{
		AccessToken:  access,
		RefreshToken: raw,
		ExpiresIn:    int64(s.config.AccessTTL.Seconds()),
		IssuedAt:     issuedAt,
	}, refresh, nil
}

func (s *AuthService) signAccessToken(user *models.User, issuedAt time.Time) (string, error) {
	claims := &models.JWTClaims{
		UserID:   user.ID,
		Role:     user.Role,
		Email:    user.Email,
		FullName: user.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.config.AccessTTL)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	if user.StudentID != nil {
		claims.StudentID = *user.StudentID
	}
	if user.InstructorID != nil {
		claims.InstructorID = *user.InstructorID
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
}

func (s *AuthService) audit(ctx context.Context, userID, action string, meta sessionMeta, values interface{}) {
	entry := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "auth",
		ResourceID: &userID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
		CreatedAt:  s.clock.now().UTC(),
	}
	if values != nil {
		if raw, err := json.Marshal(values); err == nil {
			entry.NewValues = raw
		}
	}
	if err := s.users.CreateAuditLog(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

func userInfo(user *models.User) models.UserInfo {
	return models.UserInfo{
		ID:           user.ID,
		Email:        user.Email,
		FullName:     user.FullName,
		Role:         user.Role,
		StudentID:    user.StudentID,
		InstructorID: user.InstructorID,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func randomToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
