package server

import (
	"strings"

	"oakvoices/internal/models"
	"oakvoices/internal/remote/blob"

	"github.com/gofiber/fiber/v2"
)

// coverBucket holds uploaded post cover images.
const coverBucket = "covers"

// UploadImage handles POST /api/images (multipart, field "image"). The
// stored blob's public URL comes back for use as a post cover image.
func (s *Server) UploadImage(c *fiber.Ctx) error {
	header, err := c.FormFile("image")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("An image file is required"))
	}
	if header.Size > blob.MaxBlobSize {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("File size must be less than 50MB"))
	}

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Please upload an image file"))
	}

	file, err := header.Open()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError,
			models.NewInternalError(err))
	}
	defer file.Close()

	url, err := s.blobs.Upload(c.UserContext(), coverBucket, header.Filename, contentType, file)
	if err != nil {
		return models.RespondWithError(c, httpStatus(err), err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"url": url})
}
