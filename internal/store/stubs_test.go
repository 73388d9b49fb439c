package store

import (
	"context"

	"oakvoices/internal/models"
	"oakvoices/internal/remote"

	"github.com/google/uuid"
)

// dataStub is a stub for remote.DataService.
type dataStub struct {
	listFn       func(context.Context) ([]models.Post, error)
	insertFn     func(context.Context, models.Post) (models.Post, error)
	updateFn     func(context.Context, string, map[string]any) error
	deleteFn     func(context.Context, string) error
	deleteTagsFn func(context.Context, string) error
	insertTagsFn func(context.Context, string, []string) error
}

func (s *dataStub) ListPosts(ctx context.Context) ([]models.Post, error) {
	return s.listFn(ctx)
}
func (s *dataStub) InsertPost(ctx context.Context, post models.Post) (models.Post, error) {
	return s.insertFn(ctx, post)
}
func (s *dataStub) UpdatePost(ctx context.Context, id string, fields map[string]any) error {
	return s.updateFn(ctx, id, fields)
}
func (s *dataStub) DeletePost(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}
func (s *dataStub) DeleteHashtags(ctx context.Context, postID string) error {
	return s.deleteTagsFn(ctx, postID)
}
func (s *dataStub) InsertHashtags(ctx context.Context, postID string, tags []string) error {
	return s.insertTagsFn(ctx, postID, tags)
}

func noopData() *dataStub {
	return &dataStub{
		listFn: func(_ context.Context) ([]models.Post, error) { return nil, nil },
		insertFn: func(_ context.Context, p models.Post) (models.Post, error) {
			p.ID = uuid.NewString()
			return p, nil
		},
		updateFn:     func(_ context.Context, _ string, _ map[string]any) error { return nil },
		deleteFn:     func(_ context.Context, _ string) error { return nil },
		deleteTagsFn: func(_ context.Context, _ string) error { return nil },
		insertTagsFn: func(_ context.Context, _ string, _ []string) error { return nil },
	}
}

// authStub is a stub for remote.Authenticator.
type authStub struct {
	signInFn  func(context.Context, string, string) (remote.Session, error)
	signUpFn  func(context.Context, string, string) (remote.Session, error)
	signOutFn func(context.Context, string) error
	resolveFn func(context.Context, string) (remote.Session, error)
}

func (s *authStub) SignIn(ctx context.Context, email, password string) (remote.Session, error) {
	return s.signInFn(ctx, email, password)
}
func (s *authStub) SignUp(ctx context.Context, email, password string) (remote.Session, error) {
	return s.signUpFn(ctx, email, password)
}
func (s *authStub) SignOut(ctx context.Context, token string) error {
	return s.signOutFn(ctx, token)
}
func (s *authStub) Resolve(ctx context.Context, token string) (remote.Session, error) {
	return s.resolveFn(ctx, token)
}

func noopAuth() *authStub {
	return &authStub{
		signInFn: func(_ context.Context, email, _ string) (remote.Session, error) {
			return remote.Session{UserID: "user-1", Email: email, Token: "token-1"}, nil
		},
		signUpFn: func(_ context.Context, email, _ string) (remote.Session, error) {
			return remote.Session{UserID: uuid.NewString(), Email: email, Token: "token-1"}, nil
		},
		signOutFn: func(_ context.Context, _ string) error { return nil },
		resolveFn: func(_ context.Context, token string) (remote.Session, error) {
			return remote.Session{UserID: "user-1", Token: token}, nil
		},
	}
}

// profilesStub is a stub for remote.ProfileService.
type profilesStub struct {
	getFn    func(context.Context, string) (models.User, error)
	insertFn func(context.Context, models.User) (models.User, error)
	updateFn func(context.Context, string, map[string]any) (models.User, error)
}

func (s *profilesStub) GetProfile(ctx context.Context, id string) (models.User, error) {
	return s.getFn(ctx, id)
}
func (s *profilesStub) InsertProfile(ctx context.Context, profile models.User) (models.User, error) {
	return s.insertFn(ctx, profile)
}
func (s *profilesStub) UpdateProfile(ctx context.Context, id string, fields map[string]any) (models.User, error) {
	return s.updateFn(ctx, id, fields)
}

func noopProfiles() *profilesStub {
	return &profilesStub{
		getFn: func(_ context.Context, id string) (models.User, error) {
			return models.User{ID: id, Name: "Profile", Role: models.DefaultRole}, nil
		},
		insertFn: func(_ context.Context, p models.User) (models.User, error) {
			if p.Role == "" {
				p.Role = models.DefaultRole
			}
			return p, nil
		},
		updateFn: func(_ context.Context, id string, _ map[string]any) (models.User, error) {
			return models.User{ID: id, Name: "Profile", Role: models.DefaultRole}, nil
		},
	}
}

// sessionWith returns an AuthStore with the identity already cached, the
// way a completed login would leave it.
func sessionWith(user *models.User) *AuthStore {
	s := NewAuthStore(noopAuth(), noopProfiles(), nil)
	if user != nil {
		s.user = user
		s.token = "token-1"
		if user.IsAdmin {
			s.state = models.AdminYes
		} else {
			s.state = models.AdminNo
		}
	}
	return s
}
