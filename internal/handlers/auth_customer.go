package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/identity"
	"storefront/internal/models"
	"storefront/internal/storage"
)

type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Phone    string `json:"phone"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponseUser struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func Register(log *slog.Logger, customers CustomerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /auth/register"

		var req RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			respondWithError(c, log, http.StatusInternalServerError, route, "password hash failed")
			return
		}

		customer := models.Customer{
			Name:         strings.TrimSpace(req.Name),
			Email:        req.Email,
			Phone:        strings.TrimSpace(req.Phone),
			PasswordHash: string(hash),
			Role:         models.RoleCustomer,
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		if err := customers.Create(ctx, &customer); err != nil {
			if errors.Is(err, storage.ErrDuplicate) {
				respondWithError(c, log, http.StatusConflict, route, "email already registered")
				return
			}
			respondServiceError(c, log, route, err, nil)
			return
		}

		log.InfoContext(c.Request.Context(), "customer registered", slog.String("user_id", customer.ID.Hex()))
		c.JSON(http.StatusCreated, gin.H{
			"message": "User registered successfully",
			"user":    loginUser(&customer),
		})
	}
}

func Login(log *slog.Logger, customers CustomerStore, issuer TokenIssuer) gin.HandlerFunc {
	return login(log, customers, issuer, "POST /auth/login", "")
}

// login authenticates by email and password. With role set, only accounts
// holding that role may log in.
func login(log *slog.Logger, customers CustomerStore, issuer TokenIssuer, route, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidationError(c, err)
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
		defer cancel()

		customer, err := customers.FindByEmail(ctx, req.Email)
		if errors.Is(err, storage.ErrNotFound) {
			respondWithError(c, log, http.StatusUnauthorized, route, "invalid credentials")
			return
		}
		if err != nil {
			respondServiceError(c, log, route, err, nil)
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(customer.PasswordHash), []byte(req.Password)); err != nil {
			respondWithError(c, log, http.StatusUnauthorized, route, "invalid credentials")
			return
		}
		if role != "" && customer.Role != role {
			respondWithError(c, log, http.StatusUnauthorized, route, "invalid credentials")
			return
		}

		token, expiresAt, err := issuer.Issue(identity.Session{
			UserID: customer.ID.Hex(),
			Email:  customer.Email,
			Role:   customer.Role,
		})
		if err != nil {
			respondWithError(c, log, http.StatusInternalServerError, route, "token generation failed")
			return
		}

		log.InfoContext(c.Request.Context(), "login succeeded", slog.String("user_id", customer.ID.Hex()), slog.String("role", customer.Role))
		c.JSON(http.StatusOK, gin.H{
			"accessToken": token,
			"expiresAt":   expiresAt,
			"user":        loginUser(customer),
		})
	}
}

func loginUser(customer *models.Customer) LoginResponseUser {
	return LoginResponseUser{
		ID:    customer.ID.Hex(),
		Name:  customer.Name,
		Email: customer.Email,
		Role:  customer.Role,
	}
}

func respondValidationError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		details := make([]string, 0, len(validationErrors))
		for _, fieldError := range validationErrors {
			field := lowerCamel(fieldError.Field())
			switch fieldError.Tag() {
			case "required":
				details = append(details, fmt.Sprintf("%s is required", field))
			default:
				details = append(details, fmt.Sprintf("%s is invalid", field))
			}
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "validation failed",
			"details": details,
		})
		return
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid body", "details": err.Error()})
}

func lowerCamel(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}
