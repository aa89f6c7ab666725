package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bite-me-buddy/apperr"
	"bite-me-buddy/models"
	"bite-me-buddy/session"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type RegisterRequest struct {
	Name     string `json:"name" binding:"required,min=2,max=100"`
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"omitempty,email"`
	Phone    string `json:"phone" binding:"omitempty,min=10,max=20"`
	Password string `json:"password" binding:"required,min=6"`
	Address  string `json:"address"`
}

type LoginRequest struct {
	Username string      `json:"username" binding:"required"`
	Password string      `json:"password" binding:"required"`
	Role     models.Role `json:"role"` // optional; rejects accounts of another role
}

// UpdateProfileRequest lists the fields a user may change on their own account
type UpdateProfileRequest struct {
	Name    *string `json:"name" binding:"omitempty,min=2,max=100"`
	Email   *string `json:"email" binding:"omitempty,email"`
	Phone   *string `json:"phone" binding:"omitempty,min=10,max=20"`
	Address *string `json:"address"`
}

// CustomerDetail is an admin view of one customer with their orders
type CustomerDetail struct {
	User   *models.User   `json:"user"`
	Orders []models.Order `json:"orders"`
}

type UserService struct {
	db       *gorm.DB
	sessions *session.Store
	loc      *time.Location
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewUserService(db *gorm.DB, sessions *session.Store, loc *time.Location, log logrus.FieldLogger) *UserService {
	if loc == nil {
		loc = time.UTC
	}
	return &UserService{
		db:       db,
		sessions: sessions,
		loc:      loc,
		log:      log.WithField("component", "user_service"),
		now:      utcNow,
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (s *UserService) ensureUnique(tx *gorm.DB, exceptID uint, username string, email, phone *string) error {
	check := func(column, value string) error {
		var count int64
		if err := tx.Model(&models.User{}).Where(column+" = ? AND id <> ?", value, exceptID).Count(&count).Error; err != nil {
			return fmt.Errorf("check %s: %w", column, err)
		}
		if count > 0 {
			return apperr.Conflict(column + " already registered").WithDetail("field", column)
		}
		return nil
	}
	if username != "" {
		if err := check("username", username); err != nil {
			return err
		}
	}
	if email != nil {
		if err := check("email", *email); err != nil {
			return err
		}
	}
	if phone != nil {
		if err := check("phone", *phone); err != nil {
			return err
		}
	}
	return nil
}

func (s *UserService) createUser(ctx context.Context, req RegisterRequest, role models.Role) (*models.User, error) {
	if len(req.Password) < 6 {
		return nil, apperr.Validation("password must be at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Name:         strings.TrimSpace(req.Name),
		Username:     strings.TrimSpace(req.Username),
		Email:        optional(req.Email),
		Phone:        optional(req.Phone),
		PasswordHash: string(hash),
		Address:      req.Address,
		Role:         role,
		IsActive:     true,
	}
	if user.Name == "" || user.Username == "" {
		return nil, apperr.Validation("name and username are required")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureUnique(tx, 0, user.Username, user.Email, user.Phone); err != nil {
			return err
		}
		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username, "role": role}).Info("user created")
	return &user, nil
}

// Register creates a customer account; other roles are provisioned by admins
func (s *UserService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	return s.createUser(ctx, req, models.RoleCustomer)
}

func (s *UserService) CreateTeamMember(ctx context.Context, req RegisterRequest) (*models.User, error) {
	return s.createUser(ctx, req, models.RoleTeamMember)
}

// EnsureAdmin creates the bootstrap admin account when no user holds that username
func (s *UserService) EnsureAdmin(ctx context.Context, req RegisterRequest) (*models.User, bool, error) {
	var existing models.User
	err := s.db.WithContext(ctx).Where("username = ?", req.Username).First(&existing).Error
	if err == nil {
		return &existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("find admin: %w", err)
	}
	user, err := s.createUser(ctx, req, models.RoleAdmin)
	return user, err == nil, err
}

// Login checks credentials and opens a UserSession for online-time reporting
func (s *UserService) Login(ctx context.Context, req LoginRequest) (*models.User, *models.UserSession, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(req.Username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, apperr.Unauthorized("invalid username or password")
	} else if err != nil {
		return nil, nil, fmt.Errorf("find user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, nil, apperr.Unauthorized("invalid username or password")
	}
	if req.Role != "" && user.Role != req.Role {
		return nil, nil, apperr.Unauthorized("user is not a " + string(req.Role))
	}
	if !user.IsActive {
		return nil, nil, apperr.Forbidden("account is deactivated")
	}

	now := s.now()
	sess := models.UserSession{
		UserID:    user.ID,
		LoginTime: now,
		Date:      now.In(s.loc).Format("2006-01-02"),
	}
	if err := s.db.WithContext(ctx).Create(&sess).Error; err != nil {
		return nil, nil, fmt.Errorf("open session: %w", err)
	}

	s.log.WithFields(logrus.Fields{"user_id": user.ID, "role": user.Role, "session_id": sess.ID}).Info("user logged in")
	return &user, &sess, nil
}

// Logout closes the session row and revokes the token until it would have expired
func (s *UserService) Logout(ctx context.Context, userID, sessionID uint, tokenID string, expiresAt time.Time) error {
	now := s.now()
	err := s.db.WithContext(ctx).Model(&models.UserSession{}).
		Where("id = ? AND user_id = ? AND logout_time IS NULL", sessionID, userID).
		Update("logout_time", now).Error
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if err := s.sessions.RevokeToken(ctx, tokenID, expiresAt.Sub(now)); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.log.WithFields(logrus.Fields{"user_id": userID, "session_id": sessionID}).Info("user logged out")
	return nil
}

func (s *UserService) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, notFoundOr(err, "User")
	}
	return &user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, id uint, req UpdateProfileRequest) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, id).Error; err != nil {
			return notFoundOr(err, "User")
		}
		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return apperr.Validation("name cannot be empty")
			}
			user.Name = name
		}
		if req.Email != nil {
			user.Email = optional(*req.Email)
		}
		if req.Phone != nil {
			user.Phone = optional(*req.Phone)
		}
		if req.Address != nil {
			user.Address = *req.Address
		}
		if err := s.ensureUnique(tx, user.ID, "", user.Email, user.Phone); err != nil {
			return err
		}
		if err := tx.Save(&user).Error; err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserService) ListUsers(ctx context.Context, role models.Role) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Where("role = ?", role).Order("name asc").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// SetActive enables or disables an account. Admins cannot disable themselves.
func (s *UserService) SetActive(ctx context.Context, actor Actor, id uint, active bool) (*models.User, error) {
	if id == actor.UserID && !active {
		return nil, apperr.Validation("you cannot deactivate your own account")
	}
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(user).Update("is_active", active).Error; err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	user.IsActive = active
	s.log.WithFields(logrus.Fields{"user_id": id, "active": active, "by": actor.UserID}).Info("user activation changed")
	return user, nil
}

// DeleteUser removes an account and everything it owns: orders placed as a
// customer, sessions and plans. Orders assigned to the user become unassigned.
func (s *UserService) DeleteUser(ctx context.Context, actor Actor, id uint) error {
	if id == actor.UserID {
		return apperr.Validation("you cannot delete your own account")
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, id).Error; err != nil {
			return notFoundOr(err, "User")
		}
		if err := deleteOrdersWhere(tx, "customer_id = ?", id); err != nil {
			return err
		}
		if err := tx.Model(&models.Order{}).Where("assigned_to = ?", id).Update("assigned_to", nil).Error; err != nil {
			return fmt.Errorf("unassign orders: %w", err)
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.UserSession{}).Error; err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		if err := tx.Where("team_member_id = ? OR admin_id = ?", id, id).Delete(&models.TeamMemberPlan{}).Error; err != nil {
			return fmt.Errorf("delete plans: %w", err)
		}
		if err := tx.Delete(&user).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"user_id": id, "by": actor.UserID}).Info("user deleted")
	return nil
}

func (s *UserService) GetCustomerDetail(ctx context.Context, id uint) (*CustomerDetail, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role != models.RoleCustomer {
		return nil, apperr.NotFound("Customer")
	}
	var orders []models.Order
	err = s.db.WithContext(ctx).
		Preload("Items").
		Preload("Service").
		Where("customer_id = ?", id).
		Order("created_at desc").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("list customer orders: %w", err)
	}
	return &CustomerDetail{User: user, Orders: orders}, nil
}
