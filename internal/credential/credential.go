// Package credential mediates access to per-account integration secrets
// (API keys, OAuth tokens) so executors and the authored graph never see
// plaintext credentials directly.
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/patali/yantra/internal/models"
	"gorm.io/gorm"
)

// Credential is the decrypted view of a stored UserCredential.
type Credential struct {
	Client map[string]interface{}
	Token  map[string]interface{}
}

// Store decrypts and serves UserCredential rows, envelope-encrypted with
// AES-GCM under a server-side master key, the same shape the teacher uses
// to keep a user's password hash out of its own model's JSON encoding,
// generalized here from hash-a-password to encrypt-a-secret.
type Store struct {
	db        *gorm.DB
	masterKey []byte
}

// NewStore builds a credential Store. masterKey must be 16, 24, or 32
// bytes (AES-128/192/256); callers typically derive it from an
// environment-configured secret.
func NewStore(db *gorm.DB, masterKey []byte) *Store {
	return &Store{db: db, masterKey: masterKey}
}

// Get fetches and decrypts the named credential for accountID/serviceType.
func (s *Store) Get(accountID, serviceType, name string) (*Credential, error) {
	var row models.UserCredential
	err := s.db.Where("account_id = ? AND service_type = ? AND name = ?", accountID, serviceType, name).
		First(&row).Error
	if err != nil {
		return nil, fmt.Errorf("credential %s/%s/%s not found: %w", accountID, serviceType, name, err)
	}

	client, err := s.decryptJSON(row.ClientJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt client fields: %w", err)
	}
	token, err := s.decryptJSON(row.TokenJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt token fields: %w", err)
	}

	return &Credential{Client: client, Token: token}, nil
}

// Put encrypts and upserts a credential's client/token fields.
func (s *Store) Put(accountID, serviceType, name string, client, token map[string]interface{}) error {
	clientEnc, err := s.encryptJSON(client)
	if err != nil {
		return fmt.Errorf("failed to encrypt client fields: %w", err)
	}
	tokenEnc, err := s.encryptJSON(token)
	if err != nil {
		return fmt.Errorf("failed to encrypt token fields: %w", err)
	}

	row := models.UserCredential{
		AccountID:   accountID,
		ServiceType: serviceType,
		Name:        name,
		ClientJSON:  clientEnc,
		TokenJSON:   tokenEnc,
	}
	return s.db.Where("account_id = ? AND service_type = ? AND name = ?", accountID, serviceType, name).
		Assign(row).
		FirstOrCreate(&row).Error
}

// List enumerates an account's stored credential names for a service type.
func (s *Store) List(accountID, serviceType string) ([]string, error) {
	var rows []models.UserCredential
	q := s.db.Where("account_id = ?", accountID)
	if serviceType != "" {
		q = q.Where("service_type = ?", serviceType)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	names := make([]string, len(rows))
	for i, r := range rows {
		names[i] = r.Name
	}
	return names, nil
}

func (s *Store) encryptJSON(v map[string]interface{}) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(s.masterKey)
	if err != nil {
		return "", fmt.Errorf("invalid master key: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (s *Store) decryptJSON(stored string) (map[string]interface{}, error) {
	if stored == "" {
		return map[string]interface{}{}, nil
	}
	data, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(s.masterKey)
	if err != nil {
		return nil, fmt.Errorf("invalid master key: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return nil, fmt.Errorf("stored credential is truncated")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	var out map[string]interface{}
	if err := json.Unmarshal(plaintext, &out); err != nil {
		return nil, err
	}
	return out, nil
}
