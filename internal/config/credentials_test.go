package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCredentialStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential")
	store := NewCredentialStore(path)
	ctx := context.Background()

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load on empty store: %v", err)
	}
	if got != "" {
		t.Fatalf("Load = %q on empty store, want empty", got)
	}

	const cred = "__session=abc123DEF456ghi789"
	if err := store.Save(ctx, cred); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != cred {
		t.Fatalf("Load = %q, want %q", got, cred)
	}
}

func TestCredentialStore_FileIsNotPlaintext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential")
	store := NewCredentialStore(path)

	const cred = "__session=abc123DEF456ghi789"
	if err := store.Save(context.Background(), cred); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading credential file: %v", err)
	}
	if strings.Contains(string(raw), "abc123DEF456ghi789") {
		t.Fatal("credential stored in plaintext")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("credential file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestCredentialStore_UnreadableCiphertextTreatedAsMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential")
	if err := os.WriteFile(path, []byte("bm90LXJlYWwtY2lwaGVydGV4dA=="), 0o600); err != nil {
		t.Fatal(err)
	}

	store := NewCredentialStore(path)
	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v, want nil (unreadable equals missing)", err)
	}
	if got != "" {
		t.Fatalf("Load = %q, want empty", got)
	}
}

func TestCredentialStore_Delete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credential")
	store := NewCredentialStore(path)
	ctx := context.Background()

	if err := store.Delete(ctx); err != nil {
		t.Fatalf("Delete on missing file: %v", err)
	}

	if err := store.Save(ctx, "__session=abc123DEF456ghi789"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("credential file still present after Delete")
	}
}

func TestMigrateLegacyCookie(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "settings.json")
	store := NewCredentialStore(filepath.Join(dir, "credential"))
	ctx := context.Background()

	cfg := DefaultConfig()
	cfg.LegacySessionCookie = "legacyTokenValue12345"
	if err := SaveTo(configPath, cfg); err != nil {
		t.Fatalf("SaveTo: %v", err)
	}

	if err := MigrateLegacyCookie(ctx, configPath, store); err != nil {
		t.Fatalf("MigrateLegacyCookie: %v", err)
	}

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != "legacyTokenValue12345" {
		t.Fatalf("migrated credential = %q", got)
	}

	reloaded, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if reloaded.LegacySessionCookie != "" {
		t.Fatal("legacy cookie key still present in settings after migration")
	}

	// Running again is a no-op.
	if err := MigrateLegacyCookie(ctx, configPath, store); err != nil {
		t.Fatalf("second MigrateLegacyCookie: %v", err)
	}
}

func TestMigrateLegacyCookie_NothingToMigrate(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "settings.json")
	store := NewCredentialStore(filepath.Join(dir, "credential"))

	if err := MigrateLegacyCookie(context.Background(), configPath, store); err != nil {
		t.Fatalf("MigrateLegacyCookie with no config file: %v", err)
	}
	got, _ := store.Load(context.Background())
	if got != "" {
		t.Fatalf("store = %q, want empty", got)
	}
}
