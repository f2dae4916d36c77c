package tokenstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session")

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	if _, err := store.Read(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read on missing file: got %v, want ErrNotFound", err)
	}

	if err := store.Write(ctx, `{"accessToken":"a","refreshToken":"r"}`); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("permissions = %04o, want 0600", info.Mode().Perm())
	}

	got, err := store.Read(ctx)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if got != `{"accessToken":"a","refreshToken":"r"}` {
		t.Errorf("Read = %q", got)
	}

	if err := store.Delete(ctx); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx); err != nil {
		t.Errorf("second Delete should be a no-op, got %v", err)
	}
	if _, err := store.Read(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("Read after Delete: got %v, want ErrNotFound", err)
	}
}

func TestFileStoreRejectsInsecurePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session")
	if err := os.WriteFile(path, []byte("token"), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	store, err := NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	_, err = store.Read(context.Background())
	if err == nil {
		t.Fatal("expected error for 0644 file")
	}
	if errors.Is(err, ErrNotFound) {
		t.Errorf("insecure permissions must not look like a missing session: %v", err)
	}
}

func TestEnvStore(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		env     map[string]string
		want    string
		wantErr error
	}{
		{name: "set", env: map[string]string{"SESSION": " refresh-token \n"}, want: "refresh-token"},
		{name: "unset", env: map[string]string{}, wantErr: ErrNotFound},
		{name: "blank", env: map[string]string{"SESSION": "  "}, wantErr: ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := NewEnvStore("SESSION")
			if err != nil {
				t.Fatalf("NewEnvStore failed: %v", err)
			}
			store.lookup = func(key string) (string, bool) {
				v, ok := tt.env[key]
				return v, ok
			}

			got, err := store.Read(ctx)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Read error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Read = %q, want %q", got, tt.want)
			}
		})
	}

	store, _ := NewEnvStore("SESSION")
	if err := store.Write(ctx, "x"); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Write error = %v, want ErrReadOnly", err)
	}
	if err := store.Delete(ctx); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Delete error = %v, want ErrReadOnly", err)
	}
}

func TestKeyringStore(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()

	store, err := NewKeyringStore("marketdesk-test", "alice")
	if err != nil {
		t.Fatalf("NewKeyringStore failed: %v", err)
	}

	if _, err := store.Read(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Read on empty keyring: got %v, want ErrNotFound", err)
	}
	if err := store.Write(ctx, "value"); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	got, err := store.Read(ctx)
	if err != nil || got != "value" {
		t.Fatalf("Read = %q, %v", got, err)
	}
	if err := store.Delete(ctx); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx); err != nil {
		t.Errorf("second Delete should be a no-op, got %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store, err := NewFileStore(filepath.Join(t.TempDir(), "session"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	if _, err := store.Read(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Read error = %v, want context.Canceled", err)
	}
	if err := store.Write(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("Write error = %v, want context.Canceled", err)
	}
}
