// Package seed fills the database with generated community content for
// development environments.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"oakvoices/internal/models"
	"oakvoices/internal/remote"
	"oakvoices/internal/remote/authsvc"
	"oakvoices/internal/remote/gormstore"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// DefaultPassword is the password every seeded identity gets.
const DefaultPassword = "oakvoices-dev"

// Seeder generates users and posts through the remote bindings, so seeded
// data passes the same validation as real traffic.
type Seeder struct {
	db    *gorm.DB
	data  *gormstore.Store
	auth  *authsvc.Service
	faker *gofakeit.Faker
}

// NewSeeder returns a Seeder over db signing tokens with jwtSecret.
func NewSeeder(db *gorm.DB, jwtSecret string) *Seeder {
	return &Seeder{
		db:    db,
		data:  gormstore.New(db, nil),
		auth:  authsvc.New(db, jwtSecret),
		faker: gofakeit.New(0),
	}
}

// ClearAll empties every seeded table.
func (s *Seeder) ClearAll() error {
	for _, table := range []string{"post_hashtags", "posts", "profiles", "revoked_tokens", "credentials"} {
		if err := s.db.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	return nil
}

// SeedUsers creates n identities with profiles. The first one is promoted
// to admin so the moderation dashboard has a reviewer.
func (s *Seeder) SeedUsers(ctx context.Context, n int) ([]models.User, error) {
	users := make([]models.User, 0, n)
	for i := 0; i < n; i++ {
		email := fmt.Sprintf("%s%d@%s", strings.ToLower(s.faker.FirstName()), i, s.faker.DomainName())
		session, err := s.auth.SignUp(ctx, email, DefaultPassword)
		if err != nil {
			return nil, fmt.Errorf("seed identity %s: %w", email, err)
		}

		profile, err := s.data.InsertProfile(ctx, models.User{
			ID:   session.UserID,
			Name: s.faker.Name(),
			Bio:  s.faker.Sentence(12),
		})
		if err != nil {
			return nil, fmt.Errorf("seed profile for %s: %w", email, err)
		}
		if i == 0 {
			if err := s.data.SetAdmin(ctx, profile.ID, true); err != nil {
				return nil, err
			}
			profile.IsAdmin = true
		}
		profile.Email = email
		users = append(users, profile)
	}
	return users, nil
}

// SeedPosts creates n posts spread across the authors and lifecycle
// states. Roughly half are approved and published, a quarter stay pending,
// and the rest are rejected with notes.
func (s *Seeder) SeedPosts(ctx context.Context, authors []models.User, n int) error {
	if len(authors) == 0 {
		return fmt.Errorf("no authors to attribute posts to")
	}
	var reviewer models.User
	for _, u := range authors {
		if u.IsAdmin {
			reviewer = u
			break
		}
	}

	for i := 0; i < n; i++ {
		author := authors[s.faker.IntRange(0, len(authors)-1)]
		post, err := s.data.InsertPost(ctx, models.Post{
			Title:    strings.TrimSuffix(s.faker.HipsterSentence(4), "."),
			Content:  s.faker.Paragraph(4, 6, 40, "\n\n"),
			Excerpt:  s.faker.Sentence(16),
			Category: models.Categories[s.faker.IntRange(0, len(models.Categories)-1)],
			AuthorID: author.ID,
			Status:   models.StatusPending,
		})
		if err != nil {
			return fmt.Errorf("seed post: %w", err)
		}

		tags := make([]string, 0, 3)
		for t := 0; t < s.faker.IntRange(1, 3); t++ {
			tags = append(tags, s.faker.BuzzWord())
		}
		if err := s.data.InsertHashtags(ctx, post.ID, tags); err != nil {
			return err
		}

		if reviewer.ID == "" {
			continue
		}
		switch i % 4 {
		case 0, 1:
			err = s.review(ctx, post.ID, reviewer.ID, models.StatusApproved, "Approved")
		case 2:
			// stays pending for the review queue
		case 3:
			err = s.review(ctx, post.ID, reviewer.ID, models.StatusRejected, s.faker.Sentence(8))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) review(ctx context.Context, postID, reviewerID string, verdict models.PostStatus, notes string) error {
	now := time.Now().UTC()
	return s.data.UpdatePost(ctx, postID, map[string]any{
		remote.FieldStatus:      string(verdict),
		remote.FieldPublished:   verdict == models.StatusApproved,
		remote.FieldReviewedBy:  reviewerID,
		remote.FieldReviewedAt:  now,
		remote.FieldReviewNotes: notes,
		remote.FieldUpdatedAt:   now,
	})
}
