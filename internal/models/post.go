// Package models contains data structures for the application's domain models.
package models

import (
	"strings"
	"time"
)

// PostStatus is the moderation state of a submission.
type PostStatus string

const (
	StatusDraft    PostStatus = "draft"
	StatusPending  PostStatus = "pending"
	StatusApproved PostStatus = "approved"
	StatusRejected PostStatus = "rejected"
)

// Valid reports whether s is one of the known lifecycle states.
func (s PostStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Category is one of the nine fixed post categories.
type Category string

const (
	CategoryLatestRoots Category = "Latest Roots"
	CategoryCulture     Category = "Culture & Identity"
	CategoryEducation   Category = "Education & Opportunity"
	CategoryGender      Category = "Gender & Expression"
	CategoryClimate     Category = "Climate & Planet"
	CategoryHealth      Category = "Health & Hope"
	CategoryGovernance  Category = "Governance & Voice"
	CategoryJustice     Category = "Justice & Rights"
	CategoryCivicSpark  Category = "Civic Spark"
)

// Categories lists every valid category in display order.
var Categories = []Category{
	CategoryLatestRoots,
	CategoryCulture,
	CategoryEducation,
	CategoryGender,
	CategoryClimate,
	CategoryHealth,
	CategoryGovernance,
	CategoryJustice,
	CategoryCivicSpark,
}

// Valid reports whether c is one of the nine fixed categories.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Post represents a community blog post and its moderation state.
type Post struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Content    string   `json:"content"`
	Excerpt    string   `json:"excerpt"`
	CoverImage string   `json:"cover_image,omitempty"`
	Category   Category `json:"category"`
	Hashtags   []string `json:"hashtags"`
	AuthorID   string   `json:"author_id"`
	// AuthorName and AuthorRole are joined from the author profile at query
	// time; they are display data, not authoritative post fields.
	AuthorName  string     `json:"author_name,omitempty"`
	AuthorRole  string     `json:"author_role,omitempty"`
	Published   bool       `json:"published"`
	Status      PostStatus `json:"status"`
	ReviewedBy  string     `json:"reviewed_by,omitempty"`
	ReviewedAt  *time.Time `json:"reviewed_at,omitempty"`
	ReviewNotes string     `json:"review_notes,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// HasHashtag reports whether the post carries the given tag (case-insensitive).
func (p *Post) HasHashtag(tag string) bool {
	for _, t := range p.Hashtags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// PubliclyVisible reports whether the post belongs in public query sets.
// Invariant: published is true only for approved posts.
func (p *Post) PubliclyVisible() bool {
	return p.Status == StatusApproved && p.Published
}

// NormalizeHashtags lowercases, trims, and de-duplicates a tag set while
// preserving first-seen order.
func NormalizeHashtags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(tag, "#")))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
