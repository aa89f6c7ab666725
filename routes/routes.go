package routes

import (
	"bite-me-buddy/handlers"
	"bite-me-buddy/middleware"
	"bite-me-buddy/models"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(r *gin.Engine, h *handlers.Handler, tokens *middleware.TokenManager, limiter *middleware.RateLimiter) {
	authRequired := tokens.AuthRequired()

	// ── Public routes ──────────────────────────────────────────────
	public := r.Group("/api")
	{
		public.POST("/auth/register", limiter.Limit(), h.Register)
		public.POST("/auth/login", limiter.Limit(), h.Login)

		public.GET("/services", h.ListServices)
		public.GET("/services/:id", h.GetService)

		public.GET("/state-machine", h.GetStateMachineInfo)
	}

	// ── Authenticated routes ───────────────────────────────────────
	auth := r.Group("/api")
	auth.Use(authRequired)
	{
		auth.POST("/auth/logout", h.Logout)
		auth.GET("/profile", h.GetProfile)
		auth.PUT("/profile", h.UpdateProfile)
		auth.GET("/orders/:id", h.GetOrderDetail)
	}

	// ── Order work (team members on their assignments, admins on anything) ──
	staff := r.Group("/api/orders")
	staff.Use(authRequired, middleware.RoleRequired(models.RoleTeamMember, models.RoleAdmin))
	{
		staff.PUT("/:id/status", h.UpdateOrderStatus)
		staff.POST("/:id/otp", h.GenerateOTP)
		staff.POST("/:id/otp/verify", limiter.Limit(), h.VerifyOTP)
	}

	// ── Customer routes ────────────────────────────────────────────
	customer := r.Group("/api/customer")
	customer.Use(authRequired, middleware.RoleRequired(models.RoleCustomer))
	{
		customer.POST("/orders", h.PlaceOrder)
		customer.GET("/orders", h.GetMyOrders)
	}

	// ── Team member routes ─────────────────────────────────────────
	team := r.Group("/api/team")
	team.Use(authRequired, middleware.RoleRequired(models.RoleTeamMember))
	{
		team.GET("/orders", h.GetAssignedOrders)
		team.GET("/plans", h.GetMyPlans)
		team.PUT("/plans/:id/read", h.MarkPlanRead)
	}

	// ── Admin routes ───────────────────────────────────────────────
	admin := r.Group("/api/admin")
	admin.Use(authRequired, middleware.RoleRequired(models.RoleAdmin))
	{
		admin.GET("/orders", h.AdminListOrders)
		admin.PUT("/orders/:id/assign", h.AdminAssignOrder)
		admin.DELETE("/orders/:id", h.AdminDeleteOrder)
		admin.GET("/stats", h.AdminOrderStats)
		admin.GET("/online-time", h.AdminOnlineTime)

		// Catalog
		admin.POST("/services", h.CreateService)
		admin.PUT("/services/:id", h.UpdateService)
		admin.DELETE("/services/:id", h.DeleteService)
		admin.GET("/services/:id/menu", h.ListMenuItems)
		admin.POST("/menu", h.AddMenuItem)
		admin.PUT("/menu/:itemId", h.UpdateMenuItem)
		admin.PUT("/menu/:itemId/toggle", h.ToggleMenuItem)
		admin.DELETE("/menu/:itemId", h.DeleteMenuItem)

		// People
		admin.POST("/team-members", h.AdminCreateTeamMember)
		admin.GET("/team-members", h.AdminListTeamMembers)
		admin.GET("/customers", h.AdminListCustomers)
		admin.GET("/customers/:id", h.AdminCustomerDetail)
		admin.PUT("/users/:id/toggle", h.AdminToggleUser)
		admin.DELETE("/users/:id", h.AdminDeleteUser)

		// Plans
		admin.POST("/plans", h.AdminCreatePlans)
		admin.GET("/plans", h.AdminListPlans)
		admin.DELETE("/plans/:id", h.AdminDeletePlan)
	}
}
