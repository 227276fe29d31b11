package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"delivery-service/internal/auth"
	"delivery-service/internal/models"
	"delivery-service/internal/service"
	"delivery-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	auth       *service.AuthService
	users      *service.UserService
	products   *service.ProductService
	deliveries *service.DeliveryService
	stats      *service.StatsService
	tokens     *auth.Manager
	store      *store.Store
	setupToken string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	authService *service.AuthService,
	users *service.UserService,
	products *service.ProductService,
	deliveries *service.DeliveryService,
	stats *service.StatsService,
	tokens *auth.Manager,
	st *store.Store,
	setupToken string,
) *Handler {
	return &Handler{
		auth:       authService,
		users:      users,
		products:   products,
		deliveries: deliveries,
		stats:      stats,
		tokens:     tokens,
		store:      st,
		setupToken: setupToken,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/login", h.login)
		authGroup.POST("/refresh-token", h.refreshToken)
		authGroup.POST("/create-admin", h.createAdmin)
		authGroup.GET("/me", authMiddleware(h.tokens), h.me)
	}

	users := v1.Group("/users", authMiddleware(h.tokens), requireRole(models.RoleAdmin))
	{
		users.POST("", h.createUser)
		users.GET("", h.listUsers)
		users.GET("/clients", h.listClients)
		users.GET("/delivery-persons", h.listDeliveryPersons)
		users.GET("/:id", h.getUser)
		users.PUT("/:id", h.updateUser)
		users.DELETE("/:id", h.deleteUser)
	}

	products := v1.Group("/products", authMiddleware(h.tokens))
	{
		products.POST("", h.createProduct)
		products.GET("", h.listProducts)
		products.GET("/:id", h.getProduct)
		products.PUT("/:id/assign", requireRole(models.RoleAdmin), h.assignProduct)
		products.PUT("/:id/status", h.updateProductStatus)
	}

	deliveries := v1.Group("/deliveries")
	{
		deliveries.GET("/track/:trackingNumber", h.trackDelivery)

		authed := deliveries.Group("", authMiddleware(h.tokens))
		authed.POST("", h.createDelivery)
		authed.GET("", h.listDeliveries)
		authed.GET("/my", h.listMyDeliveries)
		authed.GET("/stats", h.deliveryStats)
		authed.GET("/:id", h.getDelivery)
		authed.PUT("/:id", h.updateDelivery)
		authed.DELETE("/:id", h.deleteDelivery)
	}

	v1.GET("/stats/dashboard", authMiddleware(h.tokens), h.dashboard)
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck verifies the database is reachable
func (h *Handler) readinessCheck(c *gin.Context) {
	if err := h.store.GetDB().PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// writeError maps service errors onto HTTP statuses
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": service.ErrInvalidCredentials.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, false
	}
	return id, true
}

func queryInt64(c *gin.Context, key string) *int64 {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func queryInt(c *gin.Context, key string) int {
	v, _ := strconv.Atoi(c.Query(key))
	return v
}

// login handles credential login
func (h *Handler) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// refreshToken exchanges a refresh token for a new pair
func (h *Handler) refreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	result, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// createAdmin bootstraps the first admin account. The setup token comes from
// configuration and the endpoint is inert when none is configured.
func (h *Handler) createAdmin(c *gin.Context) {
	if h.setupToken == "" || c.GetHeader("X-Setup-Token") != h.setupToken {
		c.JSON(http.StatusForbidden, gin.H{"error": "Setup token required"})
		return
	}

	var req struct {
		Name     string `json:"name" binding:"required"`
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=6"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), &service.CreateUserRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     string(models.RoleAdmin),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// me returns the calling user's account
func (h *Handler) me(c *gin.Context) {
	user, err := h.users.GetUser(c.Request.Context(), callerFrom(c).ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// createUser handles admin user creation
func (h *Handler) createUser(c *gin.Context) {
	var req service.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	user, err := h.users.CreateUser(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// listUsers handles user listing with an optional role filter
func (h *Handler) listUsers(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context(), c.Query("role"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) listClients(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context(), string(models.RoleClient))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) listDeliveryPersons(c *gin.Context) {
	users, err := h.users.ListUsers(c.Request.Context(), string(models.RoleDelivery))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// getUser handles get user by ID
func (h *Handler) getUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	user, err := h.users.GetUser(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// updateUser handles partial account updates
func (h *Handler) updateUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	user, err := h.users.UpdateUser(c.Request.Context(), id, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// deleteUser handles user deletion with its cascade
func (h *Handler) deleteUser(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	result, err := h.users.DeleteUser(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// createProduct handles product registration by a client
func (h *Handler) createProduct(c *gin.Context) {
	var req service.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	product, err := h.products.CreateProduct(c.Request.Context(), callerFrom(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

// listProducts returns the caller's visible products
func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.products.ListProducts(c.Request.Context(), callerFrom(c), queryInt64(c, "client_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

// getProduct handles get product by ID
func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	product, err := h.products.GetProduct(c.Request.Context(), callerFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// assignProduct puts a delivery person on a product
func (h *Handler) assignProduct(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		DeliveryPersonID int64 `json:"delivery_person_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	product, err := h.products.AssignDeliveryPerson(c.Request.Context(), id, req.DeliveryPersonID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// updateProductStatus moves a product to a new status
func (h *Handler) updateProductStatus(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	product, err := h.products.UpdateStatus(c.Request.Context(), callerFrom(c), id, req.Status)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

// createDelivery handles opening a delivery
func (h *Handler) createDelivery(c *gin.Context) {
	var req service.CreateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	delivery, err := h.deliveries.CreateDelivery(c.Request.Context(), callerFrom(c), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, delivery)
}

func deliveryFilterFromQuery(c *gin.Context) store.DeliveryFilter {
	return store.DeliveryFilter{
		Status:         c.Query("status"),
		ClientID:       queryInt64(c, "client_id"),
		DeliveryPerson: queryInt64(c, "delivery_person"),
		ProductID:      queryInt64(c, "product_id"),
		Priority:       c.Query("priority"),
		Search:         c.Query("search"),
		SortBy:         c.Query("sort_by"),
		SortOrder:      c.Query("sort_order"),
		Page:           queryInt(c, "page"),
		Limit:          queryInt(c, "limit"),
	}
}

// listDeliveries returns a filtered page of all deliveries
func (h *Handler) listDeliveries(c *gin.Context) {
	page, err := h.deliveries.ListDeliveries(c.Request.Context(), callerFrom(c), deliveryFilterFromQuery(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// listMyDeliveries returns the caller's own deliveries
func (h *Handler) listMyDeliveries(c *gin.Context) {
	page, err := h.deliveries.ListUserDeliveries(c.Request.Context(), callerFrom(c), deliveryFilterFromQuery(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// deliveryStats returns the delivery dashboard aggregate
func (h *Handler) deliveryStats(c *gin.Context) {
	stats, err := h.deliveries.GetStats(c.Request.Context(), callerFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// trackDelivery resolves a public tracking number
func (h *Handler) trackDelivery(c *gin.Context) {
	delivery, err := h.deliveries.TrackDelivery(c.Request.Context(), c.Param("trackingNumber"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, delivery)
}

// getDelivery handles get delivery by ID
func (h *Handler) getDelivery(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	delivery, err := h.deliveries.GetDelivery(c.Request.Context(), callerFrom(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, delivery)
}

// updateDelivery applies a partial delivery update
func (h *Handler) updateDelivery(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req service.UpdateDeliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	delivery, err := h.deliveries.UpdateDelivery(c.Request.Context(), callerFrom(c), id, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, delivery)
}

// deleteDelivery removes a pending or cancelled delivery
func (h *Handler) deleteDelivery(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.deliveries.DeleteDelivery(c.Request.Context(), callerFrom(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Delivery deleted"})
}

// dashboard returns the product-side dashboard aggregate
func (h *Handler) dashboard(c *gin.Context) {
	stats, err := h.stats.GetDashboard(c.Request.Context(), callerFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
