// Package authsvc is the email+password binding of the remote auth contract.
// Identities share their id with the profile row; passwords are stored as
// bcrypt hashes and sessions are JWTs with a server-side revocation list.
package authsvc

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"oakvoices/internal/models"
	"oakvoices/internal/remote"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const tokenTTL = 72 * time.Hour

type credentialRow struct {
	ID           string `gorm:"primaryKey;size:36"`
	Email        string `gorm:"uniqueIndex;not null"`
	PasswordHash string `gorm:"not null"`
	CreatedAt    time.Time
}

func (credentialRow) TableName() string { return "credentials" }

type revokedTokenRow struct {
	JTI       string `gorm:"primaryKey;size:36"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
}

func (revokedTokenRow) TableName() string { return "revoked_tokens" }

// Service implements remote.Authenticator.
type Service struct {
	db     *gorm.DB
	secret []byte
}

var _ remote.Authenticator = (*Service)(nil)

// New returns a Service signing tokens with secret.
func New(db *gorm.DB, secret string) *Service {
	return &Service{db: db, secret: []byte(secret)}
}

// Migrate creates or updates the tables owned by this binding.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&credentialRow{}, &revokedTokenRow{})
}

// SignIn verifies the email+password pair and returns a fresh session.
func (s *Service) SignIn(ctx context.Context, email, password string) (remote.Session, error) {
	email = normalizeEmail(email)
	var cred credentialRow
	if err := s.db.WithContext(ctx).First(&cred, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return remote.Session{}, models.NewAuthError("Invalid email or password")
		}
		return remote.Session{}, models.NewRemoteError("failed to read credentials", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)); err != nil {
		return remote.Session{}, models.NewAuthError("Invalid email or password")
	}
	return s.issue(cred.ID, cred.Email)
}

// SignUp registers a new identity and returns its first session.
func (s *Service) SignUp(ctx context.Context, email, password string) (remote.Session, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return remote.Session{}, models.NewValidationError("A valid email is required")
	}
	if len(password) < 8 {
		return remote.Session{}, models.NewValidationError("Password must be at least 8 characters")
	}

	var existing credentialRow
	err := s.db.WithContext(ctx).First(&existing, "email = ?", email).Error
	switch {
	case err == nil:
		return remote.Session{}, models.NewValidationError("An account with this email already exists")
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return remote.Session{}, models.NewRemoteError("failed to read credentials", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return remote.Session{}, models.NewInternalError(err)
	}

	cred := credentialRow{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&cred).Error; err != nil {
		return remote.Session{}, models.NewRemoteError("failed to create credentials", err)
	}
	return s.issue(cred.ID, cred.Email)
}

// SignOut revokes the given token. Revoking an already-revoked or expired
// token is a no-op.
func (s *Service) SignOut(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return models.NewAuthError("Invalid token structure - missing jti")
	}
	exp := time.Now().UTC().Add(tokenTTL)
	if num, err := claims.GetExpirationTime(); err == nil && num != nil {
		exp = num.Time
	}
	row := revokedTokenRow{JTI: jti, ExpiresAt: exp, CreatedAt: time.Now().UTC()}
	if err := s.db.WithContext(ctx).FirstOrCreate(&row, "jti = ?", jti).Error; err != nil {
		return models.NewRemoteError("failed to revoke token", err)
	}
	return nil
}

// Resolve validates a token and returns the session it belongs to.
func (s *Service) Resolve(ctx context.Context, token string) (remote.Session, error) {
	claims, err := s.parse(token)
	if err != nil {
		return remote.Session{}, err
	}
	jti, _ := claims["jti"].(string)
	if jti != "" {
		var revoked revokedTokenRow
		err := s.db.WithContext(ctx).First(&revoked, "jti = ?", jti).Error
		switch {
		case err == nil:
			return remote.Session{}, models.NewAuthError("Session has been signed out")
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return remote.Session{}, models.NewRemoteError("failed to check token revocation", err)
		}
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return remote.Session{}, models.NewAuthError("Invalid token structure - missing subject")
	}
	email, _ := claims["email"].(string)
	exp := time.Time{}
	if num, err := claims.GetExpirationTime(); err == nil && num != nil {
		exp = num.Time
	}
	return remote.Session{UserID: sub, Email: email, Token: token, ExpiresAt: exp}, nil
}

func (s *Service) issue(userID, email string) (remote.Session, error) {
	now := time.Now().UTC()
	expires := now.Add(tokenTTL)
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"jti":   uuid.NewString(),
		"iat":   now.Unix(),
		"exp":   expires.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return remote.Session{}, models.NewInternalError(fmt.Errorf("sign token: %w", err))
	}
	return remote.Session{UserID: userID, Email: email, Token: signed, ExpiresAt: expires}, nil
}

func (s *Service) parse(token string) (jwt.MapClaims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, models.NewAuthError("Invalid or expired token")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, models.NewAuthError("Invalid token claims")
	}
	return claims, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
