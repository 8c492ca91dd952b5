package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"storefront/internal/models"
)

// AdminLogin accepts only customers holding the admin role.
func AdminLogin(log *slog.Logger, customers CustomerStore, issuer TokenIssuer) gin.HandlerFunc {
	return login(log, customers, issuer, "POST /admin/login", models.RoleAdmin)
}
