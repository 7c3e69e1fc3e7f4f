// Package storage persists the dlib face gallery produced by training.
// The gallery can be encrypted at rest using NaCl secretbox.
package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Kagami/go-face"
	"github.com/MrCodeEU/faceattend/pkg/logging"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	// NonceSize is the size of the nonce used for encryption
	NonceSize = 24
	// KeySize is the size of the encryption key
	KeySize = 32
)

// encryptedMagic prefixes encrypted gallery files so Load can tell them apart.
var encryptedMagic = []byte("FAGE1")

// Entry is one training sample in the gallery.
type Entry struct {
	Label  int             `json:"label"`
	Vector face.Descriptor `json:"vector"`
}

// Gallery is the trained dlib model: one descriptor per usable sample.
type Gallery struct {
	Engine    string    `json:"engine"`
	TrainedAt time.Time `json:"trained_at"`
	Entries   []Entry   `json:"entries"`
}

// Labels returns the distinct labels in the gallery.
func (g *Gallery) Labels() []int {
	seen := make(map[int]bool)
	var labels []int
	for _, e := range g.Entries {
		if !seen[e.Label] {
			seen[e.Label] = true
			labels = append(labels, e.Label)
		}
	}
	return labels
}

// ErrGalleryNotFound is returned when no gallery file exists.
var ErrGalleryNotFound = errors.New("gallery not found")

// ErrEncryption is returned when encryption/decryption fails.
var ErrEncryption = errors.New("encryption error")

// FileStorage reads and writes gallery files.
type FileStorage struct {
	encryptionEnabled bool
	encryptionKey     [KeySize]byte
}

// NewFileStorage creates a new FileStorage instance.
func NewFileStorage(encryptionEnabled bool) (*FileStorage, error) {
	fs := &FileStorage{encryptionEnabled: encryptionEnabled}

	// Derive encryption key from machine-specific information
	if encryptionEnabled {
		key, err := deriveKey()
		if err != nil {
			return nil, fmt.Errorf("failed to derive encryption key: %w", err)
		}
		fs.encryptionKey = key
	}

	return fs, nil
}

// deriveKey derives an encryption key from machine-specific information.
// This ties the encrypted data to this specific machine.
func deriveKey() ([KeySize]byte, error) {
	var key [KeySize]byte
	var identity strings.Builder

	if machineID, err := os.ReadFile("/etc/machine-id"); err == nil {
		identity.Write(machineID)
	}
	if hostname, err := os.Hostname(); err == nil {
		identity.WriteString(hostname)
	}
	identity.WriteString(fmt.Sprintf("%d", os.Getuid()))
	identity.WriteString("faceattend-gallery-v1")

	hash := sha256.Sum256([]byte(identity.String()))
	copy(key[:], hash[:])

	return key, nil
}

// GalleryExists reports whether a gallery file exists at path.
func (fs *FileStorage) GalleryExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// SaveGallery writes the gallery to path, creating parent directories.
func (fs *FileStorage) SaveGallery(path string, gallery Gallery) error {
	data, err := json.MarshalIndent(gallery, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal gallery: %w", err)
	}

	if fs.encryptionEnabled {
		data, err = fs.encrypt(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt gallery: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create gallery directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write gallery: %w", err)
	}

	logging.Debugf("Saved gallery with %d entries to %s", len(gallery.Entries), path)
	return nil
}

// LoadGallery reads a gallery written by SaveGallery. Encrypted files are
// detected by their header, so a plain gallery still loads after encryption
// is switched on.
func (fs *FileStorage) LoadGallery(path string) (*Gallery, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrGalleryNotFound
		}
		return nil, fmt.Errorf("failed to read gallery: %w", err)
	}

	if isEncrypted(data) {
		data, err = fs.decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt gallery: %w", err)
		}
	}

	var gallery Gallery
	if err := json.Unmarshal(data, &gallery); err != nil {
		return nil, fmt.Errorf("failed to unmarshal gallery: %w", err)
	}

	logging.Debugf("Loaded gallery with %d entries from %s", len(gallery.Entries), path)
	return &gallery, nil
}

func isEncrypted(data []byte) bool {
	return len(data) >= len(encryptedMagic) && string(data[:len(encryptedMagic)]) == string(encryptedMagic)
}

// encrypt encrypts data using NaCl secretbox.
func (fs *FileStorage) encrypt(plaintext []byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}

	out := append([]byte{}, encryptedMagic...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, plaintext, &nonce, &fs.encryptionKey), nil
}

// decrypt decrypts data using NaCl secretbox.
func (fs *FileStorage) decrypt(ciphertext []byte) ([]byte, error) {
	ciphertext = ciphertext[len(encryptedMagic):]
	if len(ciphertext) < NonceSize {
		return nil, ErrEncryption
	}

	var nonce [NonceSize]byte
	copy(nonce[:], ciphertext[:NonceSize])

	// A key is derived lazily so that an unencrypted store can still read an
	// encrypted gallery written on the same machine.
	key := fs.encryptionKey
	if !fs.encryptionEnabled {
		derived, err := deriveKey()
		if err != nil {
			return nil, err
		}
		key = derived
	}

	plaintext, ok := secretbox.Open(nil, ciphertext[NonceSize:], &nonce, &key)
	if !ok {
		return nil, ErrEncryption
	}
	return plaintext, nil
}
