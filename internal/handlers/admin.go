package handlers

import (
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"reelvault/internal/events"
	"reelvault/internal/middleware"
	"reelvault/internal/models"
	"reelvault/internal/pagination"
	"reelvault/internal/services"
	"reelvault/internal/utils"
)

// dashboardRecentUploads is how many uploads the dashboard lists
const dashboardRecentUploads = 10

// AdminHandler handles the admin dashboard, accounts, requests, whitelist and logs
type AdminHandler struct {
	users     *services.Repository
	catalog   *services.CatalogService
	requests  *services.RequestService
	access    *services.AccessService
	publisher events.Publisher
	audit     auditor
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	users *services.Repository,
	catalog *services.CatalogService,
	requests *services.RequestService,
	access *services.AccessService,
	publisher events.Publisher,
) *AdminHandler {
	return &AdminHandler{
		users:     users,
		catalog:   catalog,
		requests:  requests,
		access:    access,
		publisher: publisher,
		audit:     auditor{access: access},
	}
}

// Dashboard summarizes the library and the work waiting for an admin
func (h *AdminHandler) Dashboard(c *fiber.Ctx) error {
	stats, err := h.catalog.Stats()
	if err != nil {
		return sendServiceError(c, err, "Catalog")
	}
	users, err := h.users.CountUsers()
	if err != nil {
		return sendServiceError(c, err, "Users")
	}
	pendingMovies, err := h.requests.CountPending()
	if err != nil {
		return sendServiceError(c, err, "Requests")
	}
	pendingIPs, err := h.access.CountPendingIPRequests()
	if err != nil {
		return sendServiceError(c, err, "Access requests")
	}
	recent, err := h.catalog.RecentUploads(dashboardRecentUploads)
	if err != nil {
		return sendServiceError(c, err, "Catalog")
	}

	return c.JSON(fiber.Map{
		"movies":                  stats.Movies,
		"episodes":                stats.Episodes,
		"series":                  stats.Series,
		"users":                   users,
		"pending_movie_requests":  pendingMovies,
		"pending_access_requests": pendingIPs,
		"recent_uploads":          recent,
	})
}

// ListUsers returns one page of accounts
func (h *AdminHandler) ListUsers(c *fiber.Ctx) error {
	page, perPage := pagination.Params(c, 20)

	users, total, err := h.users.ListUsers(perPage, pagination.Offset(page, perPage))
	if err != nil {
		return sendServiceError(c, err, "Users")
	}

	return c.JSON(fiber.Map{
		"data":       users,
		"pagination": pagination.Calculate(total, page, perPage),
	})
}

// CreateUser adds an account
func (h *AdminHandler) CreateUser(c *fiber.Ctx) error {
	var req struct {
		Username string `json:"username" form:"username"`
		Password string `json:"password" form:"password"`
		IsAdmin  bool   `json:"is_admin" form:"is_admin"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.SendBadRequestError(c, "Invalid request body")
	}

	user, err := h.users.CreateUser(req.Username, req.Password, req.IsAdmin)
	h.audit.record(c, fmt.Sprintf("CREATE USER %s", req.Username), err == nil)
	if err != nil {
		return sendServiceError(c, err, "User")
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "User created successfully",
		"user":    user,
	})
}

// UpdateUser edits an account's username, password or admin flag
func (h *AdminHandler) UpdateUser(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return utils.SendBadRequestError(c, "Invalid user ID")
	}

	var req struct {
		Username *string `json:"username,omitempty"`
		Password *string `json:"password,omitempty"`
		IsAdmin  *bool   `json:"is_admin,omitempty"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.SendBadRequestError(c, "Invalid request body")
	}

	user, err := h.users.UpdateUser(actorID(c), id, services.UserUpdate{
		Username: req.Username,
		Password: req.Password,
		IsAdmin:  req.IsAdmin,
	})
	h.audit.record(c, fmt.Sprintf("UPDATE USER %d", id), err == nil)
	if err != nil {
		return sendServiceError(c, err, "User")
	}

	return c.JSON(fiber.Map{
		"message": "User updated successfully",
		"user":    user,
	})
}

// DeleteUser removes an account. Admins cannot delete themselves.
func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return utils.SendBadRequestError(c, "Invalid user ID")
	}

	user, err := h.users.DeleteUser(actorID(c), id)
	h.audit.record(c, fmt.Sprintf("DELETE USER %d", id), err == nil)
	if err != nil {
		return sendServiceError(c, err, "User")
	}

	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("User %s deleted", user.Username),
	})
}

// ToggleAdmin flips another account's admin flag
func (h *AdminHandler) ToggleAdmin(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return utils.SendBadRequestError(c, "Invalid user ID")
	}

	user, err := h.users.ToggleAdmin(actorID(c), id)
	h.audit.record(c, fmt.Sprintf("TOGGLE ADMIN %d", id), err == nil)
	if err != nil {
		return sendServiceError(c, err, "User")
	}

	return c.JSON(fiber.Map{
		"message": "Admin status updated",
		"user":    user,
	})
}

func statusFilter(c *fiber.Ctx) (string, bool) {
	status := c.Query("status")
	if status == "" || status == "all" {
		return "", true
	}
	return status, services.ValidStatus(status)
}

// ListMovieRequests returns one page of movie requests, optionally by status
func (h *AdminHandler) ListMovieRequests(c *fiber.Ctx) error {
	status, ok := statusFilter(c)
	if !ok {
		return utils.SendValidationError(c, "status", "unknown status")
	}
	page, perPage := pagination.Params(c, 20)

	requests, total, err := h.requests.ListRequests(status, perPage, pagination.Offset(page, perPage))
	if err != nil {
		return sendServiceError(c, err, "Requests")
	}

	return c.JSON(fiber.Map{
		"data":       requests,
		"status":     status,
		"pagination": pagination.Calculate(total, page, perPage),
	})
}

type requestDecision func(id, adminID int64, notes string) (*models.MovieRequest, error)

func (h *AdminHandler) decideMovieRequest(c *fiber.Ctx, action string, decide requestDecision) error {
	id, ok := paramID(c, "id")
	if !ok {
		return utils.SendBadRequestError(c, "Invalid request ID")
	}

	var body struct {
		AdminNotes string `json:"admin_notes" form:"admin_notes"`
	}
	if err := parseOptionalBody(c, &body); err != nil {
		return utils.SendBadRequestError(c, "Invalid request body")
	}

	req, err := decide(id, actorID(c), body.AdminNotes)
	h.audit.record(c, fmt.Sprintf("%s MOVIE REQUEST %d", action, id), err == nil)
	if err != nil {
		return sendServiceError(c, err, "Request")
	}

	publish(c, h.publisher, events.MovieRequestStatusChanged, map[string]interface{}{
		"request_id": req.ID,
		"user_id":    req.UserID,
		"status":     req.Status,
	})
	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Request marked %s", req.Status),
		"request": req,
	})
}

// ApproveMovieRequest accepts a pending request
func (h *AdminHandler) ApproveMovieRequest(c *fiber.Ctx) error {
	return h.decideMovieRequest(c, "APPROVE", h.requests.Approve)
}

// DenyMovieRequest rejects a pending request
func (h *AdminHandler) DenyMovieRequest(c *fiber.Ctx) error {
	return h.decideMovieRequest(c, "DENY", h.requests.Deny)
}

// MarkMovieRequestUploaded records that requested content has been added
func (h *AdminHandler) MarkMovieRequestUploaded(c *fiber.Ctx) error {
	return h.decideMovieRequest(c, "MARK UPLOADED", h.requests.MarkUploaded)
}

// ListWhitelist returns every whitelist entry
func (h *AdminHandler) ListWhitelist(c *fiber.Ctx) error {
	entries, err := h.access.ListWhitelist()
	if err != nil {
		return sendServiceError(c, err, "Whitelist")
	}
	return c.JSON(fiber.Map{
		"data":       entries,
		"current_ip": middleware.ClientIP(c),
	})
}

// AddWhitelistEntry whitelists an address
func (h *AdminHandler) AddWhitelistEntry(c *fiber.Ctx) error {
	var req struct {
		IPAddress   string `json:"ip_address" form:"ip_address"`
		Description string `json:"description" form:"description"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.SendBadRequestError(c, "Invalid request body")
	}

	entry, err := h.access.AddWhitelistEntry(req.IPAddress, req.Description, middleware.CurrentUserID(c))
	h.audit.record(c, fmt.Sprintf("ADD WHITELIST %s", req.IPAddress), err == nil)
	if err != nil {
		return sendServiceError(c, err, "Whitelist entry")
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"message": "Address whitelisted",
		"entry":   entry,
	})
}

// UpdateWhitelistEntry edits a whitelist entry
func (h *AdminHandler) UpdateWhitelistEntry(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return utils.SendBadRequestError(c, "Invalid entry ID")
	}

	var req struct {
		IPAddress   *string `json:"ip_address,omitempty"`
		Description *string `json:"description,omitempty"`
		IsActive    *bool   `json:"is_active,omitempty"`
	}
	if err := c.BodyParser(&req); err != nil {
		return utils.SendBadRequestError(c, "Invalid request body")
	}

	entry, err := h.access.UpdateWhitelistEntry(id, services.WhitelistUpdate{
		IPAddress:   req.IPAddress,
		Description: req.Description,
		IsActive:    req.IsActive,
	}, middleware.ClientIP(c))
	h.audit.record(c, fmt.Sprintf("UPDATE WHITELIST %d", id), err == nil)
	if err != nil {
		return sendServiceError(c, err, "Whitelist entry")
	}

	return c.JSON(fiber.Map{
		"message": "Whitelist entry updated",
		"entry":   entry,
	})
}

// ToggleWhitelistEntry activates or deactivates an entry
func (h *AdminHandler) ToggleWhitelistEntry(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return utils.SendBadRequestError(c, "Invalid entry ID")
	}

	entry, err := h.access.ToggleWhitelistEntry(id, middleware.ClientIP(c))
	h.audit.record(c, fmt.Sprintf("TOGGLE WHITELIST %d", id), err == nil)
	if err != nil {
		return sendServiceError(c, err, "Whitelist entry")
	}

	return c.JSON(fiber.Map{
		"message": "Whitelist entry updated",
		"entry":   entry,
	})
}

// DeleteWhitelistEntry removes an entry. The caller's own address cannot be removed.
func (h *AdminHandler) DeleteWhitelistEntry(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return utils.SendBadRequestError(c, "Invalid entry ID")
	}

	entry, err := h.access.DeleteWhitelistEntry(id, middleware.ClientIP(c))
	h.audit.record(c, fmt.Sprintf("DELETE WHITELIST %d", id), err == nil)
	if err != nil {
		return sendServiceError(c, err, "Whitelist entry")
	}

	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Address %s removed", entry.IPAddress),
	})
}

// ListIPRequests returns access requests, pending first
func (h *AdminHandler) ListIPRequests(c *fiber.Ctx) error {
	status, ok := statusFilter(c)
	if !ok {
		return utils.SendValidationError(c, "status", "unknown status")
	}

	requests, err := h.access.ListIPRequests(status)
	if err != nil {
		return sendServiceError(c, err, "Access requests")
	}
	return c.JSON(fiber.Map{"data": requests})
}

// ApproveIPRequest accepts a request and whitelists its address
func (h *AdminHandler) ApproveIPRequest(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return utils.SendBadRequestError(c, "Invalid request ID")
	}

	req, err := h.access.ApproveIPRequest(id, actorID(c))
	h.audit.record(c, fmt.Sprintf("APPROVE IP REQUEST %d", id), err == nil)
	if err != nil {
		return sendServiceError(c, err, "Access request")
	}

	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("Address %s whitelisted", req.IPAddress),
		"request": req,
	})
}

// DenyIPRequest rejects a request
func (h *AdminHandler) DenyIPRequest(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return utils.SendBadRequestError(c, "Invalid request ID")
	}

	req, err := h.access.DenyIPRequest(id, actorID(c))
	h.audit.record(c, fmt.Sprintf("DENY IP REQUEST %d", id), err == nil)
	if err != nil {
		return sendServiceError(c, err, "Access request")
	}

	return c.JSON(fiber.Map{
		"message": "Request denied",
		"request": req,
	})
}

// Logs returns one page of the access log and of the admin log
func (h *AdminHandler) Logs(c *fiber.Ctx) error {
	page, perPage := pagination.Params(c, 50)
	offset := pagination.Offset(page, perPage)

	accessLogs, accessTotal, err := h.access.AccessLogs(perPage, offset)
	if err != nil {
		return sendServiceError(c, err, "Access log")
	}
	adminLogs, adminTotal, err := h.access.AdminLogs(perPage, offset)
	if err != nil {
		return sendServiceError(c, err, "Admin log")
	}

	return c.JSON(fiber.Map{
		"access_logs": fiber.Map{
			"data":       accessLogs,
			"pagination": pagination.Calculate(accessTotal, page, perPage),
		},
		"admin_logs": fiber.Map{
			"data":       adminLogs,
			"pagination": pagination.Calculate(adminTotal, page, perPage),
		},
	})
}

// UserCount reports how many accounts exist by role
func (h *AdminHandler) UserCount(c *fiber.Ctx) error {
	counts, err := h.users.CountUsers()
	if err != nil {
		return sendServiceError(c, err, "Users")
	}
	return c.JSON(counts)
}
