package handlers

import (
	"errors"
	"net/http"

	"github.com/chachabrian/poolit-backend/internal/apperrors"
	"github.com/chachabrian/poolit-backend/internal/models"
	"github.com/chachabrian/poolit-backend/internal/store"
	"github.com/chachabrian/poolit-backend/pkg/utils"
	"github.com/gin-gonic/gin"
)

type RegisterInput struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Phone    string `json:"phone"`
	UserType string `json:"userType" binding:"required,oneof=rider driver"`
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func userJSON(u *models.User) gin.H {
	return gin.H{
		"id":          u.ID,
		"email":       u.Email,
		"username":    u.Username,
		"phoneNumber": u.PhoneNumber,
		"userType":    u.UserType,
	}
}

func Register(accounts store.Accounts, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input RegisterInput
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err)
			return
		}

		user := models.User{
			Username:    input.Username,
			Email:       input.Email,
			Password:    input.Password,
			PhoneNumber: input.Phone,
			UserType:    models.UserType(input.UserType),
		}
		if err := user.HashPassword(); err != nil {
			respondError(c, apperrors.Internal("failed to hash password", err))
			return
		}
		if err := accounts.CreateUser(c.Request.Context(), &user); err != nil {
			respondError(c, err)
			return
		}

		token, err := utils.GenerateToken(&user, jwtSecret)
		if err != nil {
			respondError(c, apperrors.Internal("failed to generate token", err))
			return
		}
		c.JSON(http.StatusCreated, gin.H{"token": token, "user": userJSON(&user)})
	}
}

func Login(accounts store.Accounts, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var input LoginInput
		if err := c.ShouldBindJSON(&input); err != nil {
			badRequest(c, err)
			return
		}

		user, err := accounts.UserByEmail(c.Request.Context(), input.Email)
		if errors.Is(err, apperrors.ErrNotFound) {
			respondError(c, apperrors.ErrUnauthorized)
			return
		}
		if err != nil {
			respondError(c, err)
			return
		}
		if err := user.CheckPassword(input.Password); err != nil {
			respondError(c, apperrors.ErrUnauthorized)
			return
		}

		token, err := utils.GenerateToken(user, jwtSecret)
		if err != nil {
			respondError(c, apperrors.Internal("failed to generate token", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "user": userJSON(user)})
	}
}
