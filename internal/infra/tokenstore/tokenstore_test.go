package tokenstore

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "credentials.db"))
	if err := store.Open(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	token, err := store.Token(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		t.Errorf("fresh store should be anonymous, got %q", token)
	}

	if err := store.SetToken(ctx, "tok-1"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetToken(ctx, "tok-2"); err != nil {
		t.Fatal(err)
	}

	token, err = store.Token(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if token != "tok-2" {
		t.Errorf("expected latest token, got %q", token)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	token, err = store.Token(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		t.Errorf("expected anonymous after clear, got %q", token)
	}
}

func TestTokenSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.db")

	store := NewStore(path)
	if err := store.Open(); err != nil {
		t.Fatal(err)
	}
	if err := store.SetToken(ctx, "persistent"); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened := NewStore(path)
	if err := reopened.Open(); err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	token, err := reopened.Token(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if token != "persistent" {
		t.Errorf("expected token to survive reopen, got %q", token)
	}
}
