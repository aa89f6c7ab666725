package handlers

import (
	"net/http"

	"bite-me-buddy/middleware"
	"bite-me-buddy/models"
	"bite-me-buddy/services"

	"github.com/gin-gonic/gin"
)

func userSummary(u *models.User) gin.H {
	return gin.H{
		"id":       u.ID,
		"name":     u.Name,
		"username": u.Username,
		"role":     u.Role,
	}
}

// Register creates a customer account and signs them in
func (h *Handler) Register(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.users.Register(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	_, sess, err := h.users.Login(c.Request.Context(), services.LoginRequest{Username: req.Username, Password: req.Password})
	if err != nil {
		h.fail(c, err)
		return
	}
	token, _, err := h.tokens.GenerateToken(user, sess.ID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":      "Account created successfully",
		"access_token": token,
		"token_type":   "bearer",
		"user":         userSummary(user),
	})
}

// Login authenticates a user, opens a session and returns a JWT
func (h *Handler) Login(c *gin.Context) {
	var req services.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, sess, err := h.users.Login(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	token, claims, err := h.tokens.GenerateToken(user, sess.ID)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Login successful",
		"access_token": token,
		"token_type":   "bearer",
		"expires_at":   claims.ExpiresAt.Time,
		"user":         userSummary(user),
	})
}

// Logout closes the caller's session and revokes the presented token
func (h *Handler) Logout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
		return
	}
	err := h.users.Logout(c.Request.Context(), claims.UserID, claims.SessionID, claims.ID, claims.ExpiresAt.Time)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// GetProfile returns the authenticated user's profile
func (h *Handler) GetProfile(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req services.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.users.UpdateProfile(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated", "user": user})
}
