package handlers

import (
	"net/http"
	"strconv"

	"bite-me-buddy/middleware"
	"bite-me-buddy/models"
	"bite-me-buddy/services"

	"github.com/gin-gonic/gin"
)

type AssignOrderRequest struct {
	TeamMemberID uint `json:"team_member_id" binding:"required"`
}

func queryUint(c *gin.Context, key string) (*uint, bool) {
	raw := c.Query(key)
	if raw == "" {
		return nil, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + key})
		return nil, false
	}
	id := uint(v)
	return &id, true
}

// AdminListOrders returns orders filtered by ?status, ?assigned_to (id or "none"), ?customer_id, ?limit, ?offset
func (h *Handler) AdminListOrders(c *gin.Context) {
	var f services.OrderFilter
	if s := c.Query("status"); s != "" {
		f.Status = models.OrderStatus(s)
		if !knownStatus(f.Status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status", "valid_statuses": models.AllStatuses})
			return
		}
	}
	if c.Query("assigned_to") == "none" {
		f.Unassigned = true
	} else {
		assignee, ok := queryUint(c, "assigned_to")
		if !ok {
			return
		}
		f.AssignedTo = assignee
	}
	customerID, ok := queryUint(c, "customer_id")
	if !ok {
		return
	}
	f.CustomerID = customerID
	f.Limit, _ = strconv.Atoi(c.Query("limit"))
	f.Offset, _ = strconv.Atoi(c.Query("offset"))

	orders, err := h.orders.ListOrders(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(orders), "orders": orders})
}

func (h *Handler) AdminAssignOrder(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req AssignOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	order, err := h.orders.AssignOrder(c.Request.Context(), id, req.TeamMemberID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order assigned", "order": order})
}

func (h *Handler) AdminDeleteOrder(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.orders.DeleteOrder(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order deleted"})
}

// AdminOrderStats returns counts per status, today's orders and delivered revenue
func (h *Handler) AdminOrderStats(c *gin.Context) {
	stats, err := h.stats.GetOrderStats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// AdminOnlineTime reports logged-in time per user; ?role, ?from, ?to (YYYY-MM-DD)
func (h *Handler) AdminOnlineTime(c *gin.Context) {
	q := services.OnlineTimeQuery{From: c.Query("from"), To: c.Query("to")}
	if r := c.Query("role"); r != "" {
		role, ok := models.ParseRole(r)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown role"})
			return
		}
		q.Role = role
	}
	report, err := h.stats.OnlineTimeReport(c.Request.Context(), q)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(report), "users": report})
}

// ── Team members ────────────────────────────────────────────────

func (h *Handler) AdminCreateTeamMember(c *gin.Context) {
	var req services.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.users.CreateTeamMember(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Team member created", "user": user})
}

func (h *Handler) AdminListTeamMembers(c *gin.Context) {
	h.listUsers(c, models.RoleTeamMember, "team_members")
}

func (h *Handler) AdminListCustomers(c *gin.Context) {
	h.listUsers(c, models.RoleCustomer, "customers")
}

func (h *Handler) listUsers(c *gin.Context, role models.Role, key string) {
	users, err := h.users.ListUsers(c.Request.Context(), role)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(users), key: users})
}

// AdminToggleUser flips an account between active and inactive
func (h *Handler) AdminToggleUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	user, err := h.users.GetUser(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	user, err = h.users.SetActive(c.Request.Context(), actorOf(c), id, !user.IsActive)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handler) AdminDeleteUser(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.users.DeleteUser(c.Request.Context(), actorOf(c), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
}

func (h *Handler) AdminCustomerDetail(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	detail, err := h.users.GetCustomerDetail(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

// ── Plans ───────────────────────────────────────────────────────

func (h *Handler) AdminCreatePlans(c *gin.Context) {
	var req services.CreatePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	plans, err := h.plans.CreatePlans(c.Request.Context(), middleware.GetUserID(c), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"count": len(plans), "plans": plans})
}

func (h *Handler) AdminListPlans(c *gin.Context) {
	plans, err := h.plans.ListPlans(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(plans), "plans": plans})
}

func (h *Handler) AdminDeletePlan(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.plans.DeletePlan(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Plan deleted"})
}
