package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/chatgate/internal/model"
	"github.com/oklog/ulid/v2"
)

// uniqueExternalID はストアを共有するテスト間で衝突しないexternal_idを返す。
func uniqueExternalID(prefix string) string {
	return prefix + "-" + ulid.Make().String()
}

// runUserRepositoryContract はUserRepositoryの全実装に共通する振る舞いを検証する。
func runUserRepositoryContract(t *testing.T, repo UserRepository) {
	t.Helper()
	ctx := context.Background()

	t.Run("insert then find", func(t *testing.T) {
		profile := &model.Profile{
			ExternalID:  uniqueExternalID("g"),
			DisplayName: "Ada",
			Email:       "ada@x.com",
			AvatarURL:   "http://x/a.png",
		}
		created, err := repo.Insert(ctx, profile)
		if err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
		if created.ID == "" {
			t.Fatal("Insert() should assign an ID")
		}
		if created.CreatedAt.IsZero() {
			t.Error("Insert() should assign CreatedAt")
		}

		byID, err := repo.FindByID(ctx, created.ID)
		if err != nil {
			t.Fatalf("FindByID() error = %v", err)
		}
		byExt, err := repo.FindByExternalID(ctx, profile.ExternalID)
		if err != nil {
			t.Fatalf("FindByExternalID() error = %v", err)
		}

		for name, got := range map[string]*model.User{"FindByID": byID, "FindByExternalID": byExt} {
			if got.ID != created.ID {
				t.Errorf("%s ID = %q, want %q", name, got.ID, created.ID)
			}
			if got.ExternalID != profile.ExternalID || got.DisplayName != "Ada" ||
				got.Email != "ada@x.com" || got.AvatarURL != "http://x/a.png" {
				t.Errorf("%s = %+v, want profile %+v", name, got, profile)
			}
			if d := got.CreatedAt.Sub(created.CreatedAt); d > time.Millisecond || d < -time.Millisecond {
				t.Errorf("%s CreatedAt = %v, want %v", name, got.CreatedAt, created.CreatedAt)
			}
		}
	})

	t.Run("not found", func(t *testing.T) {
		if _, err := repo.FindByExternalID(ctx, uniqueExternalID("missing")); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("FindByExternalID() error = %v, want ErrNotFound", err)
		}
		if _, err := repo.FindByID(ctx, "000000000000000000000000"); !errors.Is(err, model.ErrNotFound) {
			t.Errorf("FindByID() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("duplicate external id", func(t *testing.T) {
		profile := &model.Profile{ExternalID: uniqueExternalID("dup"), DisplayName: "First"}
		if _, err := repo.Insert(ctx, profile); err != nil {
			t.Fatalf("first Insert() error = %v", err)
		}
		_, err := repo.Insert(ctx, &model.Profile{ExternalID: profile.ExternalID, DisplayName: "Second"})
		if !errors.Is(err, model.ErrDuplicateKey) {
			t.Fatalf("second Insert() error = %v, want ErrDuplicateKey", err)
		}

		got, err := repo.FindByExternalID(ctx, profile.ExternalID)
		if err != nil {
			t.Fatalf("FindByExternalID() error = %v", err)
		}
		if got.DisplayName != "First" {
			t.Errorf("DisplayName = %q, want %q", got.DisplayName, "First")
		}
	})

	// 同じexternal_idの同時Insertは1件だけ成功する
	t.Run("concurrent inserts", func(t *testing.T) {
		externalID := uniqueExternalID("race")
		const workers = 16

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			succeeded int
			other     []error
		)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := repo.Insert(ctx, &model.Profile{ExternalID: externalID, DisplayName: "Racer"})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, model.ErrDuplicateKey):
				default:
					other = append(other, err)
				}
			}()
		}
		wg.Wait()

		if len(other) > 0 {
			t.Fatalf("unexpected errors: %v", other)
		}
		if succeeded != 1 {
			t.Errorf("succeeded inserts = %d, want 1", succeeded)
		}
	})
}

// runSessionRepositoryContract はSessionRepositoryの全実装に共通する振る舞いを検証する。
func runSessionRepositoryContract(t *testing.T, repo SessionRepository) {
	t.Helper()
	ctx := context.Background()

	newSession := func() *model.Session {
		now := time.Now().UTC().Truncate(time.Millisecond)
		return &model.Session{
			ID:        ulid.Make().String(),
			UserID:    "user-1",
			ExpiresAt: now.Add(time.Hour),
			CreatedAt: now,
		}
	}

	t.Run("create then find", func(t *testing.T) {
		s := newSession()
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := repo.FindByID(ctx, s.ID)
		if err != nil {
			t.Fatalf("FindByID() error = %v", err)
		}
		if got == nil {
			t.Fatal("FindByID() returned nil for a live session")
		}
		if got.ID != s.ID || got.UserID != s.UserID {
			t.Errorf("FindByID() = %+v, want %+v", got, s)
		}
		if !got.ExpiresAt.Equal(s.ExpiresAt) {
			t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, s.ExpiresAt)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		got, err := repo.FindByID(ctx, "unknown-"+ulid.Make().String())
		if err != nil {
			t.Fatalf("FindByID() error = %v", err)
		}
		if got != nil {
			t.Errorf("FindByID() = %+v, want nil", got)
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := newSession()
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		for i := 0; i < 2; i++ {
			if err := repo.DeleteByID(ctx, s.ID); err != nil {
				t.Fatalf("DeleteByID() #%d error = %v", i+1, err)
			}
		}
		got, err := repo.FindByID(ctx, s.ID)
		if err != nil {
			t.Fatalf("FindByID() error = %v", err)
		}
		if got != nil {
			t.Error("FindByID() should return nil after delete")
		}
	})

	t.Run("delete expired keeps live sessions", func(t *testing.T) {
		s := newSession()
		if err := repo.Create(ctx, s); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if _, err := repo.DeleteExpired(ctx); err != nil {
			t.Fatalf("DeleteExpired() error = %v", err)
		}
		got, err := repo.FindByID(ctx, s.ID)
		if err != nil {
			t.Fatalf("FindByID() error = %v", err)
		}
		if got == nil {
			t.Error("live session should survive DeleteExpired")
		}
	})
}

func newProfile(externalID string) *model.Profile {
	return &model.Profile{ExternalID: externalID, DisplayName: "Test User", Email: "test@example.com"}
}
