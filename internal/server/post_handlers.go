package server

import (
	"strings"
	"time"

	"oakvoices/internal/models"
	"oakvoices/internal/remote"

	"github.com/gofiber/fiber/v2"
)

// findPost returns the post by id from the data service.
func (s *Server) findPost(c *fiber.Ctx, id string) (models.Post, error) {
	posts, err := s.data.ListPosts(c.UserContext())
	if err != nil {
		return models.Post{}, err
	}
	for _, post := range posts {
		if post.ID == id {
			return post, nil
		}
	}
	return models.Post{}, models.NewNotFoundError("post", id)
}

// GetPosts handles GET /api/posts. Only approved, published posts are
// visible; optional category, hashtag, author and q filters narrow the list.
func (s *Server) GetPosts(c *fiber.Ctx) error {
	posts, err := s.data.ListPosts(c.UserContext())
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	category := c.Query("category")
	hashtag := c.Query("hashtag")
	author := c.Query("author")
	term := strings.ToLower(strings.TrimSpace(c.Query("q")))

	visible := make([]models.Post, 0, len(posts))
	for _, post := range posts {
		if !post.PubliclyVisible() {
			continue
		}
		if category != "" && string(post.Category) != category {
			continue
		}
		if hashtag != "" && !post.HasHashtag(hashtag) {
			continue
		}
		if author != "" && post.AuthorID != author {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(post.Title), term) &&
			!strings.Contains(strings.ToLower(post.Excerpt), term) &&
			!strings.Contains(strings.ToLower(post.Content), term) {
			continue
		}
		visible = append(visible, post)
	}
	return c.JSON(visible)
}

// GetPost handles GET /api/posts/:id. Posts that are not both approved and
// published do not exist for the public surface.
func (s *Server) GetPost(c *fiber.Ctx) error {
	post, err := s.findPost(c, c.Params("id"))
	if err != nil {
		return models.RespondWithError(c, httpStatus(err), err)
	}
	if !post.PubliclyVisible() {
		return models.RespondWithError(c, fiber.StatusNotFound,
			models.NewNotFoundError("post", post.ID))
	}
	return c.JSON(post)
}

// GetMyPosts handles GET /api/posts/mine, returning the caller's posts in
// every status.
func (s *Server) GetMyPosts(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	posts, err := s.data.ListPosts(c.UserContext())
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	mine := make([]models.Post, 0)
	for _, post := range posts {
		if post.AuthorID == userID {
			mine = append(mine, post)
		}
	}
	return c.JSON(mine)
}

// CreatePost handles POST /api/posts. Every new post enters the review
// queue as pending and unpublished, regardless of who submits it.
func (s *Server) CreatePost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	var req struct {
		Title      string   `json:"title"`
		Content    string   `json:"content"`
		Excerpt    string   `json:"excerpt"`
		CoverImage string   `json:"cover_image"`
		Category   string   `json:"category"`
		Hashtags   []string `json:"hashtags"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Content) == "" ||
		strings.TrimSpace(req.Excerpt) == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Title, content, and excerpt are required"))
	}
	category := models.Category(req.Category)
	if req.Category == "" {
		category = models.CategoryLatestRoots
	}
	if !category.Valid() {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Unknown category: "+req.Category))
	}

	post, err := s.data.InsertPost(c.UserContext(), models.Post{
		Title:      strings.TrimSpace(req.Title),
		Content:    req.Content,
		Excerpt:    strings.TrimSpace(req.Excerpt),
		CoverImage: req.CoverImage,
		Category:   category,
		AuthorID:   userID,
		Status:     models.StatusPending,
		Published:  false,
	})
	if err != nil {
		return models.RespondWithError(c, httpStatus(err), err)
	}
	if err := s.data.InsertHashtags(c.UserContext(), post.ID, req.Hashtags); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	post.Hashtags = models.NormalizeHashtags(req.Hashtags)

	return c.Status(fiber.StatusCreated).JSON(post)
}

// UpdatePost handles PUT /api/posts/:id. Only the author may edit, and only
// content fields; status and review fields change through the moderation
// endpoints. Editing a rejected post resubmits it as pending with the
// review verdict cleared.
func (s *Server) UpdatePost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	post, err := s.findPost(c, c.Params("id"))
	if err != nil {
		return models.RespondWithError(c, httpStatus(err), err)
	}
	if post.AuthorID != userID {
		return models.RespondWithError(c, fiber.StatusForbidden,
			models.NewAuthError("Only the author can edit this post"))
	}

	var req struct {
		Title      *string   `json:"title"`
		Content    *string   `json:"content"`
		Excerpt    *string   `json:"excerpt"`
		CoverImage *string   `json:"cover_image"`
		Category   *string   `json:"category"`
		Hashtags   *[]string `json:"hashtags"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	fields := map[string]any{}
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Title cannot be empty"))
		}
		fields[remote.FieldTitle] = strings.TrimSpace(*req.Title)
	}
	if req.Content != nil {
		if strings.TrimSpace(*req.Content) == "" {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Content cannot be empty"))
		}
		fields[remote.FieldContent] = *req.Content
	}
	if req.Excerpt != nil {
		if strings.TrimSpace(*req.Excerpt) == "" {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Excerpt cannot be empty"))
		}
		fields[remote.FieldExcerpt] = strings.TrimSpace(*req.Excerpt)
	}
	if req.CoverImage != nil {
		fields[remote.FieldCoverImage] = *req.CoverImage
	}
	if req.Category != nil {
		if !models.Category(*req.Category).Valid() {
			return models.RespondWithError(c, fiber.StatusBadRequest,
				models.NewValidationError("Unknown category: "+*req.Category))
		}
		fields[remote.FieldCategory] = *req.Category
	}
	if len(fields) == 0 && req.Hashtags == nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("No fields to update"))
	}

	// An author's edit of a rejected post sends it back to review.
	if post.Status == models.StatusRejected {
		fields[remote.FieldStatus] = string(models.StatusPending)
		fields[remote.FieldPublished] = false
		fields[remote.FieldReviewedBy] = ""
		fields[remote.FieldReviewedAt] = nil
		fields[remote.FieldReviewNotes] = ""
	}
	fields[remote.FieldUpdatedAt] = time.Now().UTC()

	if err := s.data.UpdatePost(c.UserContext(), post.ID, fields); err != nil {
		return models.RespondWithError(c, httpStatus(err), err)
	}
	if req.Hashtags != nil {
		if err := s.data.DeleteHashtags(c.UserContext(), post.ID); err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError, err)
		}
		if err := s.data.InsertHashtags(c.UserContext(), post.ID, *req.Hashtags); err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError, err)
		}
	}

	updated, err := s.findPost(c, post.ID)
	if err != nil {
		return models.RespondWithError(c, httpStatus(err), err)
	}
	return c.JSON(updated)
}

// DeletePost handles DELETE /api/posts/:id. The author or an admin may
// delete; hashtag rows go first so a failure never orphans the post row.
func (s *Server) DeletePost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(string)

	post, err := s.findPost(c, c.Params("id"))
	if err != nil {
		return models.RespondWithError(c, httpStatus(err), err)
	}
	if post.AuthorID != userID {
		profile, err := s.data.GetProfile(c.UserContext(), userID)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError, err)
		}
		if !profile.IsAdmin {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewAuthError("Only the author or an admin can delete this post"))
		}
	}

	if err := s.data.DeleteHashtags(c.UserContext(), post.ID); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	if err := s.data.DeletePost(c.UserContext(), post.ID); err != nil {
		return models.RespondWithError(c, httpStatus(err), err)
	}
	return c.JSON(fiber.Map{"message": "Post deleted"})
}
