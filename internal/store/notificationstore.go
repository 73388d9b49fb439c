package store

import (
	"sync"
	"time"

	"oakvoices/internal/models"

	"github.com/google/uuid"
)

// NotificationStore holds purely client-side, ephemeral notifications,
// newest first. Nothing here is persisted remotely.
type NotificationStore struct {
	mu            sync.RWMutex
	notifications []models.Notification
}

// NewNotificationStore returns an empty NotificationStore.
func NewNotificationStore() *NotificationStore {
	return &NotificationStore{}
}

// Add prepends a new unread notification and returns it.
func (s *NotificationStore) Add(kind models.NotificationType, message string) models.Notification {
	n := models.Notification{
		ID:        uuid.NewString(),
		Type:      kind,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	s.mu.Lock()
	s.notifications = append([]models.Notification{n}, s.notifications...)
	s.mu.Unlock()
	return n
}

// All returns a copy of every notification, newest first.
func (s *NotificationStore) All() []models.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Notification(nil), s.notifications...)
}

// Unread returns the number of unread notifications.
func (s *NotificationStore) Unread() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.notifications {
		if !n.Read {
			count++
		}
	}
	return count
}

// MarkRead marks one notification read; it reports whether the id existed.
func (s *NotificationStore) MarkRead(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications[i].Read = true
			return true
		}
	}
	return false
}

// MarkAllRead marks every notification read.
func (s *NotificationStore) MarkAllRead() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		s.notifications[i].Read = true
	}
}

// Remove deletes one notification; it reports whether the id existed.
func (s *NotificationStore) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return true
		}
	}
	return false
}

// ClearAll removes every notification.
func (s *NotificationStore) ClearAll() {
	s.mu.Lock()
	s.notifications = nil
	s.mu.Unlock()
}
