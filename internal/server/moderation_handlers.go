package server

import (
	"strings"
	"time"

	"oakvoices/internal/models"
	"oakvoices/internal/observability"
	"oakvoices/internal/remote"

	"github.com/gofiber/fiber/v2"
)

// GetPendingPosts handles GET /api/moderation/pending, the review queue.
func (s *Server) GetPendingPosts(c *fiber.Ctx) error {
	posts, err := s.data.ListPosts(c.UserContext())
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	pending := make([]models.Post, 0)
	for _, post := range posts {
		if post.Status == models.StatusPending {
			pending = append(pending, post)
		}
	}
	return c.JSON(pending)
}

// ApprovePost handles POST /api/moderation/posts/:id/approve. Approval
// publishes the post in the same write; notes default to "Approved".
func (s *Server) ApprovePost(c *fiber.Ctx) error {
	return s.review(c, models.StatusApproved)
}

// RejectPost handles POST /api/moderation/posts/:id/reject. Review notes
// explaining the rejection are mandatory.
func (s *Server) RejectPost(c *fiber.Ctx) error {
	return s.review(c, models.StatusRejected)
}

func (s *Server) review(c *fiber.Ctx, verdict models.PostStatus) error {
	reviewerID := c.Locals("userID").(string)

	post, err := s.findPost(c, c.Params("id"))
	if err != nil {
		return models.RespondWithError(c, httpStatus(err), err)
	}
	if post.Status != models.StatusPending {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError(
				"Only pending posts can be reviewed (current status: "+string(post.Status)+")"))
	}

	var req struct {
		Notes string `json:"notes"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Invalid request body"))
		}
	}
	notes := strings.TrimSpace(req.Notes)

	var published bool
	switch verdict {
	case models.StatusApproved:
		published = true
		if notes == "" {
			notes = "Approved"
		}
	case models.StatusRejected:
		if notes == "" {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Review notes are required when rejecting a post"))
		}
	}

	now := time.Now().UTC()
	fields := map[string]any{
		remote.FieldStatus:      string(verdict),
		remote.FieldPublished:   published,
		remote.FieldReviewedBy:  reviewerID,
		remote.FieldReviewedAt:  now,
		remote.FieldReviewNotes: notes,
		remote.FieldUpdatedAt:   now,
	}
	if err := s.data.UpdatePost(c.UserContext(), post.ID, fields); err != nil {
		observability.StatusTransitions.WithLabelValues(string(verdict), "error").Inc()
		return models.RespondWithError(c, httpStatus(err), err)
	}
	observability.StatusTransitions.WithLabelValues(string(verdict), "ok").Inc()

	updated, err := s.findPost(c, post.ID)
	if err != nil {
		return models.RespondWithError(c, httpStatus(err), err)
	}
	return c.JSON(updated)
}

// SweepHashtags handles POST /api/moderation/hashtags/sweep, removing
// hashtag rows orphaned by partially failed deletes.
func (s *Server) SweepHashtags(c *fiber.Ctx) error {
	swept, err := s.data.SweepOrphanedHashtags(c.UserContext())
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	return c.JSON(fiber.Map{"swept": swept})
}
