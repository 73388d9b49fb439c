// Package gormstore is the relational binding of the remote data contract,
// backed by GORM (Postgres in production, SQLite in tests).
package gormstore

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"oakvoices/internal/models"
	"oakvoices/internal/remote"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type postRow struct {
	ID          string `gorm:"primaryKey;size:36"`
	Title       string `gorm:"not null"`
	Content     string `gorm:"type:text;not null"`
	Excerpt     string `gorm:"not null"`
	CoverImage  string
	Category    string `gorm:"not null;index"`
	AuthorID    string `gorm:"size:36;not null;index"`
	Published   bool   `gorm:"not null;default:false"`
	Status      string `gorm:"not null;default:'pending';index"`
	ReviewedBy  string `gorm:"size:36"`
	ReviewedAt  *time.Time
	ReviewNotes string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (postRow) TableName() string { return "posts" }

type hashtagRow struct {
	PostID string `gorm:"primaryKey;size:36;index"`
	Tag    string `gorm:"primaryKey;size:64;index"`
}

func (hashtagRow) TableName() string { return "post_hashtags" }

type profileRow struct {
	ID        string `gorm:"primaryKey;size:36"`
	Name      string `gorm:"not null"`
	Bio       string
	AvatarURL string
	Role      string `gorm:"not null"`
	IsAdmin   bool   `gorm:"not null;default:false"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (profileRow) TableName() string { return "profiles" }

// Store implements remote.DataService and remote.ProfileService over a gorm DB.
// Successful post mutations are published to the change feed when a
// publisher is attached; publish failures are logged and never surfaced.
type Store struct {
	db  *gorm.DB
	pub remote.Publisher
}

var (
	_ remote.DataService    = (*Store)(nil)
	_ remote.ProfileService = (*Store)(nil)
)

// New returns a Store over db. pub may be nil.
func New(db *gorm.DB, pub remote.Publisher) *Store {
	return &Store{db: db, pub: pub}
}

// Migrate creates or updates the tables owned by this binding.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&postRow{}, &hashtagRow{}, &profileRow{})
}

// allowed post fields for UpdatePost, mirroring the posts table columns a
// client may legitimately target.
var updatableFields = map[string]struct{}{
	remote.FieldTitle:       {},
	remote.FieldContent:     {},
	remote.FieldExcerpt:     {},
	remote.FieldCoverImage:  {},
	remote.FieldCategory:    {},
	remote.FieldPublished:   {},
	remote.FieldStatus:      {},
	remote.FieldReviewedBy:  {},
	remote.FieldReviewedAt:  {},
	remote.FieldReviewNotes: {},
	remote.FieldUpdatedAt:   {},
}

// ListPosts returns every post with joined author name/role and hashtags,
// newest first.
func (s *Store) ListPosts(ctx context.Context) ([]models.Post, error) {
	var rows []postRow
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, models.NewRemoteError("failed to list posts", err)
	}

	postIDs := make([]string, 0, len(rows))
	authorIDs := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		postIDs = append(postIDs, row.ID)
		authorIDs[row.AuthorID] = struct{}{}
	}

	tagsByPost := map[string][]string{}
	if len(postIDs) > 0 {
		var tags []hashtagRow
		if err := s.db.WithContext(ctx).Where("post_id IN ?", postIDs).Find(&tags).Error; err != nil {
			return nil, models.NewRemoteError("failed to list hashtags", err)
		}
		for _, tag := range tags {
			tagsByPost[tag.PostID] = append(tagsByPost[tag.PostID], tag.Tag)
		}
	}

	profilesByID := map[string]profileRow{}
	if len(authorIDs) > 0 {
		ids := make([]string, 0, len(authorIDs))
		for id := range authorIDs {
			ids = append(ids, id)
		}
		var profiles []profileRow
		if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error; err != nil {
			return nil, models.NewRemoteError("failed to join author profiles", err)
		}
		for _, p := range profiles {
			profilesByID[p.ID] = p
		}
	}

	posts := make([]models.Post, 0, len(rows))
	for _, row := range rows {
		post := toPost(row)
		post.Hashtags = tagsByPost[row.ID]
		if post.Hashtags == nil {
			post.Hashtags = []string{}
		}
		if profile, ok := profilesByID[row.AuthorID]; ok {
			post.AuthorName = profile.Name
			post.AuthorRole = profile.Role
		}
		posts = append(posts, post)
	}
	return posts, nil
}

// InsertPost stores a new post, assigning the id and timestamps, and returns
// the canonical record.
func (s *Store) InsertPost(ctx context.Context, post models.Post) (models.Post, error) {
	now := time.Now().UTC()
	row := postRow{
		ID:          uuid.NewString(),
		Title:       post.Title,
		Content:     post.Content,
		Excerpt:     post.Excerpt,
		CoverImage:  post.CoverImage,
		Category:    string(post.Category),
		AuthorID:    post.AuthorID,
		Published:   post.Published,
		Status:      string(post.Status),
		ReviewedBy:  post.ReviewedBy,
		ReviewedAt:  post.ReviewedAt,
		ReviewNotes: post.ReviewNotes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.Post{}, models.NewRemoteError("failed to insert post", err)
	}

	canonical := toPost(row)
	canonical.Hashtags = []string{}
	canonical.AuthorName = post.AuthorName
	canonical.AuthorRole = post.AuthorRole
	s.publish(ctx, remote.Event{Table: "posts", Op: remote.OpInsert, ID: row.ID})
	return canonical, nil
}

// UpdatePost applies a subset of post fields by id. Unknown fields are
// rejected before touching the row.
func (s *Store) UpdatePost(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return models.NewValidationError("no fields to update")
	}
	for name := range fields {
		if _, ok := updatableFields[name]; !ok {
			return models.NewValidationError("unknown post field: " + name)
		}
	}

	res := s.db.WithContext(ctx).Model(&postRow{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return models.NewRemoteError("failed to update post", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("post", id)
	}
	s.publish(ctx, remote.Event{Table: "posts", Op: remote.OpUpdate, ID: id})
	return nil
}

// DeletePost removes the post row by id.
func (s *Store) DeletePost(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&postRow{})
	if res.Error != nil {
		return models.NewRemoteError("failed to delete post", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("post", id)
	}
	s.publish(ctx, remote.Event{Table: "posts", Op: remote.OpDelete, ID: id})
	return nil
}

// DeleteHashtags removes every hashtag row owned by the post.
func (s *Store) DeleteHashtags(ctx context.Context, postID string) error {
	if err := s.db.WithContext(ctx).Where("post_id = ?", postID).Delete(&hashtagRow{}).Error; err != nil {
		return models.NewRemoteError("failed to delete hashtags", err)
	}
	return nil
}

// InsertHashtags bulk-inserts hashtag rows for the post.
func (s *Store) InsertHashtags(ctx context.Context, postID string, tags []string) error {
	tags = models.NormalizeHashtags(tags)
	if len(tags) == 0 {
		return nil
	}
	rows := make([]hashtagRow, 0, len(tags))
	for _, tag := range tags {
		rows = append(rows, hashtagRow{PostID: postID, Tag: tag})
	}
	if err := s.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return models.NewRemoteError("failed to insert hashtags", err)
	}
	return nil
}

// GetProfile returns a profile row by id.
func (s *Store) GetProfile(ctx context.Context, id string) (models.User, error) {
	var row profileRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, models.NewNotFoundError("profile", id)
		}
		return models.User{}, models.NewRemoteError("failed to read profile", err)
	}
	return toUser(row), nil
}

// InsertProfile stores a new profile row. The id is shared with the auth
// identity and must be supplied by the caller.
func (s *Store) InsertProfile(ctx context.Context, profile models.User) (models.User, error) {
	if profile.ID == "" {
		return models.User{}, models.NewValidationError("profile id is required")
	}
	role := profile.Role
	if role == "" {
		role = models.DefaultRole
	}
	now := time.Now().UTC()
	row := profileRow{
		ID:        profile.ID,
		Name:      profile.Name,
		Bio:       profile.Bio,
		AvatarURL: profile.AvatarURL,
		Role:      role,
		IsAdmin:   profile.IsAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return models.User{}, models.NewRemoteError("failed to insert profile", err)
	}
	return toUser(row), nil
}

// allowed profile fields for UpdateProfile. The admin flag is deliberately
// absent; it changes only through the admin CLI.
var updatableProfileFields = map[string]struct{}{
	"name":       {},
	"bio":        {},
	"avatar_url": {},
	"role":       {},
}

// UpdateProfile merges fields into the profile row and returns the canonical
// updated record.
func (s *Store) UpdateProfile(ctx context.Context, id string, fields map[string]any) (models.User, error) {
	if len(fields) == 0 {
		return models.User{}, models.NewValidationError("no fields to update")
	}
	for name := range fields {
		if _, ok := updatableProfileFields[name]; !ok {
			return models.User{}, models.NewValidationError("unknown profile field: " + name)
		}
	}
	fields["updated_at"] = time.Now().UTC()

	res := s.db.WithContext(ctx).Model(&profileRow{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return models.User{}, models.NewRemoteError("failed to update profile", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.User{}, models.NewNotFoundError("profile", id)
	}
	return s.GetProfile(ctx, id)
}

// SetAdmin flips the admin flag for a profile. Administrative, used by the
// admin CLI only.
func (s *Store) SetAdmin(ctx context.Context, id string, isAdmin bool) error {
	res := s.db.WithContext(ctx).Model(&profileRow{}).Where("id = ?", id).
		Updates(map[string]any{"is_admin": isAdmin, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return models.NewRemoteError("failed to update admin flag", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("profile", id)
	}
	return nil
}

// SweepOrphanedHashtags removes hashtag rows whose owning post no longer
// exists. Covers the inconsistency window left when a cascading delete fails
// between the hashtag and post steps.
func (s *Store) SweepOrphanedHashtags(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("post_id NOT IN (?)", s.db.Model(&postRow{}).Select("id")).
		Delete(&hashtagRow{})
	if res.Error != nil {
		return 0, models.NewRemoteError("failed to sweep orphaned hashtags", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Store) publish(ctx context.Context, ev remote.Event) {
	if s.pub == nil {
		return
	}
	if err := s.pub.Publish(ctx, ev); err != nil {
		slog.WarnContext(ctx, "change feed publish failed",
			"table", ev.Table, "op", string(ev.Op), "id", ev.ID, "err", err)
	}
}

func toPost(row postRow) models.Post {
	return models.Post{
		ID:          row.ID,
		Title:       row.Title,
		Content:     row.Content,
		Excerpt:     row.Excerpt,
		CoverImage:  row.CoverImage,
		Category:    models.Category(row.Category),
		AuthorID:    row.AuthorID,
		Published:   row.Published,
		Status:      models.PostStatus(row.Status),
		ReviewedBy:  row.ReviewedBy,
		ReviewedAt:  row.ReviewedAt,
		ReviewNotes: row.ReviewNotes,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

func toUser(row profileRow) models.User {
	return models.User{
		ID:        row.ID,
		Name:      row.Name,
		Bio:       row.Bio,
		AvatarURL: row.AvatarURL,
		Role:      row.Role,
		IsAdmin:   row.IsAdmin,
		CreatedAt: row.CreatedAt,
	}
}
