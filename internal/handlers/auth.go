package handlers

import (
	"context"
	"net/mail"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/apperr"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/auth"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/middleware"
	"github.com/Windi-Fikriyansyah/freelance_marketplace_be/internal/models"
)

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	FindUserByID(ctx context.Context, id uuid.UUID) (models.User, error)
}

type AuthHandler struct {
	Users     UserStore
	JWTSecret string
	Expires   int // minutes
}

type RegisterReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userView struct {
	ID       uuid.UUID   `json:"id"`
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Role     models.Role `json:"role"`
}

func viewOf(u models.User) userView {
	return userView{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterReq
	if err := c.BodyParser(&req); err != nil {
		return apperr.InvalidInput("invalid body")
	}

	username := strings.TrimSpace(req.Username)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	password := req.Password
	role := models.Role(strings.ToLower(strings.TrimSpace(req.Role)))

	errs := FieldErrors{}
	if username == "" {
		errs.Add("username", "username is required")
	}
	if email == "" {
		errs.Add("email", "email is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		errs.Add("email", "email is not valid")
	}
	if strings.TrimSpace(password) == "" {
		errs.Add("password", "password is required")
	} else if len(password) < 6 {
		errs.Add("password", "password must be at least 6 characters")
	}
	if !role.Valid() {
		errs.Add("role", "role must be client or freelancer")
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	pw, err := auth.HashPassword(password)
	if err != nil {
		return apperr.Internal("failed to process password", err)
	}

	u := models.User{Username: username, Email: email, Password: pw, Role: role}
	if err := h.Users.CreateUser(c.UserContext(), &u); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return apperr.Conflict("email is already registered")
		}
		return err
	}

	token, err := h.issue(c, u)
	if err != nil {
		return err
	}

	return ok(c, fiber.StatusCreated, "registered", fiber.Map{
		"user":  viewOf(u),
		"token": token,
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginReq
	if err := c.BodyParser(&req); err != nil {
		return apperr.InvalidInput("invalid body")
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	password := req.Password

	errs := FieldErrors{}
	if email == "" {
		errs.Add("email", "email is required")
	}
	if strings.TrimSpace(password) == "" {
		errs.Add("password", "password is required")
	}
	if len(errs) > 0 {
		return validationFail(c, errs)
	}

	u, err := h.Users.FindUserByEmail(c.UserContext(), email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.Unauthorized("invalid email or password")
		}
		return err
	}
	if !auth.CheckPassword(u.Password, password) {
		return apperr.Unauthorized("invalid email or password")
	}

	token, err := h.issue(c, u)
	if err != nil {
		return err
	}

	return ok(c, fiber.StatusOK, "logged in", fiber.Map{
		"user":  viewOf(u),
		"token": token,
	})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HTTPOnly: true,
		SameSite: "Lax",
	})
	return ok(c, fiber.StatusOK, "logged out", nil)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	claim, err := middleware.ClaimFrom(c)
	if err != nil {
		return err
	}
	u, err := h.Users.FindUserByID(c.UserContext(), claim.ID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return apperr.Unauthorized("account no longer exists")
		}
		return err
	}
	return ok(c, fiber.StatusOK, "", viewOf(u))
}

// issue signs a token for u and sets it as the session cookie.
func (h *AuthHandler) issue(c *fiber.Ctx, u models.User) (string, error) {
	token, err := auth.SignJWT(h.JWTSecret, u, h.Expires)
	if err != nil {
		return "", apperr.Internal("failed to create token", err)
	}
	c.Cookie(&fiber.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		HTTPOnly: true,
		SameSite: "Lax",
		MaxAge:   h.Expires * 60,
	})
	return token, nil
}
