package server

import (
	"errors"
	"strings"

	"oakvoices/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Signup handles POST /api/auth/signup. It creates the credential row and
// the profile row sharing its id, then returns the first session.
func (s *Server) Signup(c *fiber.Ctx) error {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}
	if strings.TrimSpace(req.Name) == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Name is required"))
	}

	session, err := s.auth.SignUp(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return models.RespondWithError(c, httpStatus(err), err)
	}

	profile, err := s.data.InsertProfile(c.UserContext(), models.User{
		ID:   session.UserID,
		Name: strings.TrimSpace(req.Name),
	})
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	profile.Email = session.Email

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"token": session.Token,
		"user":  profile,
	})
}

// Login handles POST /api/auth/login. A missing profile row is created on
// first login with the email local part as the display name.
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	session, err := s.auth.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusUnauthorized, err)
	}

	profile, err := s.data.GetProfile(c.UserContext(), session.UserID)
	if err != nil {
		var appErr *models.AppError
		if !errors.As(err, &appErr) || appErr.Code != models.CodeNotFound {
			return models.RespondWithError(c, fiber.StatusInternalServerError, err)
		}
		name := session.Email
		if at := strings.Index(name, "@"); at > 0 {
			name = name[:at]
		}
		profile, err = s.data.InsertProfile(c.UserContext(), models.User{ID: session.UserID, Name: name})
		if err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError, err)
		}
	}
	profile.Email = session.Email

	return c.JSON(fiber.Map{
		"token": session.Token,
		"user":  profile,
	})
}

// Logout handles POST /api/auth/logout, revoking the presented token.
func (s *Server) Logout(c *fiber.Ctx) error {
	if err := s.auth.SignOut(c.UserContext(), bearerToken(c)); err != nil {
		return models.RespondWithError(c, httpStatus(err), err)
	}
	return c.JSON(fiber.Map{"message": "Signed out"})
}

// GetMyProfile handles GET /api/users/me.
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	profile, err := s.data.GetProfile(c.UserContext(), userID)
	if err != nil {
		return models.RespondWithError(c, httpStatus(err), err)
	}
	return c.JSON(profile)
}

// UpdateMyProfile handles PUT /api/users/me with partial profile fields.
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	var req struct {
		Name      *string `json:"name"`
		Bio       *string `json:"bio"`
		AvatarURL *string `json:"avatar_url"`
		Role      *string `json:"role"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	fields := map[string]any{}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Name is required"))
		}
		fields["name"] = strings.TrimSpace(*req.Name)
	}
	if req.Bio != nil {
		fields["bio"] = *req.Bio
	}
	if req.AvatarURL != nil {
		fields["avatar_url"] = *req.AvatarURL
	}
	if req.Role != nil {
		fields["role"] = *req.Role
	}
	if len(fields) == 0 {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("No fields to update"))
	}

	profile, err := s.data.UpdateProfile(c.UserContext(), userID, fields)
	if err != nil {
		return models.RespondWithError(c, httpStatus(err), err)
	}
	return c.JSON(profile)
}
