package credentials

import (
	"encoding/json"
	"errors"
	"fmt"

	"pixconv/logger"
	"pixconv/store"
	"pixconv/utils"
)

// ErrNotFound is returned when no credentials exist for a storage key.
var ErrNotFound = errors.New("credentials not found")

// Store keeps writer-backend credentials keyed by an opaque storage key.
type Store struct {
	db *store.DB
}

// Open opens the credentials DB at dbPath
func Open(dbPath string) (*Store, error) {
	db, err := store.Open(dbPath)
	if err != nil {
		logger.Errorf("[credentials] failed to open store: %v", err)
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the DB
func (s *Store) Close() error {
	return s.db.Close()
}

// GetCredentials returns the credentials map stored under key.
func (s *Store) GetCredentials(key string) (map[string]string, error) {
	value, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	creds := make(map[string]string)
	if err := json.Unmarshal(value, &creds); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	return creds, nil
}

// StoreCredentials stores the credentials map under the given key
func (s *Store) StoreCredentials(key string, creds map[string]string) error {
	encoded, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	return s.db.Put(key, encoded)
}

// Register stores creds under a fresh random storage key and returns it.
func (s *Store) Register(creds map[string]string) (string, error) {
	key, err := utils.GenerateRandomHex(16)
	if err != nil {
		return "", err
	}
	if err := s.StoreCredentials(key, creds); err != nil {
		return "", err
	}
	return key, nil
}

// DeleteCredentials deletes the credentials for the given key
func (s *Store) DeleteCredentials(key string) error {
	return s.db.Delete(key)
}
