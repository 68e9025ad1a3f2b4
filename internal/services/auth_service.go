package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/thereayou/bizdesk/internal/apperror"
	"github.com/thereayou/bizdesk/internal/database"
	"github.com/thereayou/bizdesk/internal/models"
	"github.com/thereayou/bizdesk/pkg/auth"
	"github.com/thereayou/bizdesk/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone" validate:"omitempty,max=32"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	// Workspace, when set, creates a workspace owned by the new user.
	Workspace string `json:"workspace" validate:"omitempty,max=120"`
}

type LoginInput struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	WorkspaceID uint   `json:"workspaceId"`
}

type Session struct {
	Token         string                `json:"token"`
	ExpiresAt     time.Time             `json:"expiresAt"`
	User          *models.User          `json:"user"`
	WorkspaceUser *models.WorkspaceUser `json:"workspaceUser,omitempty"`
}

type AuthService struct {
	db        *database.Database
	jwt       *auth.JWTManager
	blacklist auth.Blacklist
	log       *logger.Logger
}

func NewAuthService(db *database.Database, jwt *auth.JWTManager, blacklist auth.Blacklist, log *logger.Logger) *AuthService {
	if log == nil {
		log = logger.Global()
	}
	if blacklist == nil {
		blacklist = auth.NewMemoryBlacklist()
	}
	return &AuthService{db: db, jwt: jwt, blacklist: blacklist, log: log.Named("auth")}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if err := Validate(&in); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	user := &models.User{
		Name:         in.Name,
		Email:        in.Email,
		Phone:        in.Phone,
		PasswordHash: string(hash),
		LastSeenAt:   time.Now().UTC(),
	}
	var wu *models.WorkspaceUser
	err = s.db.Transaction(ctx, func(tx *database.Database) error {
		if err := tx.SaveUser(ctx, user); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperror.Conflict("email is already registered")
			}
			return err
		}
		ws := strings.TrimSpace(in.Workspace)
		if ws == "" {
			return nil
		}
		var err error
		wu, err = tx.CreateWorkspace(ctx, &models.Workspace{Name: ws, Slug: slugify(ws, user.ID)}, user.ID)
		return apperror.FromDB(err, "workspace")
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.Uint("user_id", user.ID))
	return s.issue(user, wu)
}

// Login checks the password and issues a token bound to the requested
// workspace, or to the user's first workspace.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := Validate(&in); err != nil {
		return nil, err
	}
	user, err := s.db.FindUserByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Unauthorized("invalid credentials")
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)); err != nil {
		return nil, apperror.Unauthorized("invalid credentials")
	}

	var wu *models.WorkspaceUser
	if in.WorkspaceID != 0 {
		wu, err = s.db.GetWorkspaceUser(ctx, in.WorkspaceID, user.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, apperror.Forbidden("not a member of this workspace")
			}
			return nil, err
		}
	} else {
		wu, err = s.db.DefaultWorkspaceUser(ctx, user.ID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if err := s.db.UpdateLastSeen(ctx, user.ID); err != nil {
		s.log.Warn("could not update last seen", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	return s.issue(user, wu)
}

// Logout revokes token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	exp, err := s.jwt.Expiry(token)
	if err != nil {
		return apperror.Unauthorized("invalid token")
	}
	return s.blacklist.Revoke(ctx, token, time.Until(exp))
}

// Authenticate resolves a bearer token to the caller. workspaceID
// overrides the workspace stored in the token when non-zero.
func (s *AuthService) Authenticate(ctx context.Context, token string, workspaceID uint) (*AuthContext, error) {
	revoked, err := s.blacklist.IsRevoked(ctx, token)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, apperror.Unauthorized("token is revoked")
	}
	claims, err := s.jwt.Verify(token)
	if err != nil {
		return nil, apperror.Unauthorized("invalid token")
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, apperror.Unauthorized("invalid token")
	}
	user, err := s.db.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Unauthorized("invalid token")
		}
		return nil, err
	}

	ac := &AuthContext{User: user}
	if workspaceID == 0 {
		workspaceID = claims.WorkspaceID
	}
	if workspaceID == 0 {
		return ac, nil
	}
	wu, err := s.db.GetWorkspaceUser(ctx, workspaceID, user.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.Forbidden("not a member of this workspace")
		}
		return nil, err
	}
	ac.WorkspaceID = workspaceID
	ac.WorkspaceUser = wu
	ac.Role = wu.Role
	return ac, nil
}

// Me returns the caller with its current membership.
func (s *AuthService) Me(_ context.Context, ac *AuthContext) (*Session, error) {
	if ac == nil || ac.User == nil {
		return nil, apperror.Unauthorized("authentication required")
	}
	return &Session{User: ac.User, WorkspaceUser: ac.WorkspaceUser}, nil
}

func (s *AuthService) issue(user *models.User, wu *models.WorkspaceUser) (*Session, error) {
	var wsID uint
	if wu != nil {
		wsID = wu.WorkspaceID
	}
	token, exp, err := s.jwt.Generate(user.ID, wsID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	return &Session{Token: token, ExpiresAt: exp, User: user, WorkspaceUser: wu}, nil
}

// slugify keeps ASCII letters and digits and appends the owner id so
// workspace slugs never collide.
func slugify(name string, ownerID uint) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		slug = "workspace"
	}
	if len(slug) > 48 {
		slug = slug[:48]
	}
	return slug + "-" + strconv.FormatUint(uint64(ownerID), 10)
}
