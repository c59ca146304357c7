package storage

import (
	"encoding/binary"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/inkclock/inkclock/internal/logging"
	"github.com/inkclock/inkclock/internal/radio"
)

const (
	// InitTag marks an initialized store.
	InitTag uint32 = 0x1234abcd
	// Version is the current layout version.
	Version uint32 = 1

	headerOffset = 0
	headerSize   = 8
	recordOffset = 16
	recordSize   = 1 + radio.MaxSSIDLen + 1 + radio.MaxPasswordLen + 1
)

// CredentialStore persists station credentials in a BlobStore.
type CredentialStore struct {
	mu   sync.Mutex
	blob BlobStore
}

// NewCredentialStore returns a store over blob.
func NewCredentialStore(blob BlobStore) *CredentialStore {
	return &CredentialStore{blob: blob}
}

// Load returns the stored credentials. An uninitialized or foreign blob is
// re-initialized to unprovisioned defaults first.
func (s *CredentialStore) Load() (radio.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	header, err := s.blob.Read(headerOffset, headerSize)
	if err != nil {
		return radio.Credentials{}, fmt.Errorf("read storage header: %w", err)
	}
	version := binary.LittleEndian.Uint32(header[0:4])
	tag := binary.LittleEndian.Uint32(header[4:8])

	if version != Version || tag != InitTag {
		logging.Warn("Credential store not initialized, writing defaults",
			zap.Uint32("version", version),
			zap.String("tag", fmt.Sprintf("0x%08x", tag)),
		)
		if err := s.resetLocked(); err != nil {
			return radio.Credentials{}, err
		}
		return radio.Credentials{}, nil
	}

	record, err := s.blob.Read(recordOffset, recordSize)
	if err != nil {
		return radio.Credentials{}, fmt.Errorf("read credentials: %w", err)
	}
	creds, err := decodeRecord(record)
	if err != nil {
		logging.Warn("Credential record corrupt, writing defaults", zap.Error(err))
		if err := s.resetLocked(); err != nil {
			return radio.Credentials{}, err
		}
		return radio.Credentials{}, nil
	}
	return creds, nil
}

// Save writes creds. The bounds of radio.Credentials.Validate apply.
func (s *CredentialStore) Save(creds radio.Credentials) error {
	if err := creds.Validate(); err != nil {
		return fmt.Errorf("invalid credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.blob.Write(recordOffset, encodeRecord(creds)); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	if err := s.writeHeader(); err != nil {
		return err
	}
	logging.Info("Credentials saved",
		zap.String("ssid", creds.SSID),
		zap.Bool("provisioned", creds.Provisioned),
	)
	return nil
}

// Reset re-initializes the store to unprovisioned defaults.
func (s *CredentialStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetLocked()
}

func (s *CredentialStore) resetLocked() error {
	if err := s.blob.Write(recordOffset, encodeRecord(radio.Credentials{})); err != nil {
		return fmt.Errorf("write default credentials: %w", err)
	}
	return s.writeHeader()
}

func (s *CredentialStore) writeHeader() error {
	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], Version)
	binary.LittleEndian.PutUint32(header[4:8], InitTag)
	if err := s.blob.Write(headerOffset, header); err != nil {
		return fmt.Errorf("write storage header: %w", err)
	}
	return nil
}

func encodeRecord(c radio.Credentials) []byte {
	buf := make([]byte, recordSize)
	pos := 0
	buf[pos] = byte(len(c.SSID))
	pos++
	copy(buf[pos:pos+radio.MaxSSIDLen], c.SSID)
	pos += radio.MaxSSIDLen
	buf[pos] = byte(len(c.Password))
	pos++
	copy(buf[pos:pos+radio.MaxPasswordLen], c.Password)
	pos += radio.MaxPasswordLen
	if c.Provisioned {
		buf[pos] = 1
	}
	return buf
}

func decodeRecord(buf []byte) (radio.Credentials, error) {
	if len(buf) < recordSize {
		return radio.Credentials{}, fmt.Errorf("record too short: %d bytes", len(buf))
	}
	pos := 0
	ssidLen := int(buf[pos])
	pos++
	if ssidLen > radio.MaxSSIDLen {
		return radio.Credentials{}, fmt.Errorf("ssid length %d out of range", ssidLen)
	}
	ssid := string(buf[pos : pos+ssidLen])
	pos += radio.MaxSSIDLen

	passLen := int(buf[pos])
	pos++
	if passLen > radio.MaxPasswordLen {
		return radio.Credentials{}, fmt.Errorf("password length %d out of range", passLen)
	}
	password := string(buf[pos : pos+passLen])
	pos += radio.MaxPasswordLen

	return radio.Credentials{
		SSID:        ssid,
		Password:    password,
		Provisioned: buf[pos] == 1,
	}, nil
}
