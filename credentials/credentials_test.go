package credentials

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestRegisterGetDelete(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "credentials.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	key, err := s.Register(map[string]string{"accessKey": "AK", "secretKey": "SK"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("storage key %q", key)
	}
	creds, err := s.GetCredentials(key)
	if err != nil || creds["accessKey"] != "AK" {
		t.Fatalf("GetCredentials = %v, %v", creds, err)
	}
	if err := s.DeleteCredentials(key); err != nil {
		t.Fatalf("DeleteCredentials: %v", err)
	}
	if _, err := s.GetCredentials(key); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
