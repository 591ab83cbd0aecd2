// ABOUTME: Pairing code issuance and out-of-band approval for unknown senders.
// ABOUTME: At most one live code per (channel, sender); approval is idempotent-once.

package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"
)

// Pairing errors
var (
	// ErrCodeNotFound means no pairing request matches the code.
	ErrCodeNotFound = errors.New("pairing code not found")

	// ErrCodeExpired means the pairing request exists but its TTL elapsed.
	ErrCodeExpired = errors.New("pairing code expired")
)

// codeAlphabet excludes visually ambiguous characters (0/O, 1/I/l).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// PairingRequest is a pending approval for one (channel, sender).
type PairingRequest struct {
	Code       string    `json:"code"`
	ChannelID  string    `json:"channelId"`
	SenderID   string    `json:"senderId"`
	ChatID     string    `json:"chatId"`
	IssuedAt   time.Time `json:"issuedAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
	ApprovedBy string    `json:"approvedBy,omitempty"`
}

// Expired reports whether the request's TTL has elapsed.
func (p *PairingRequest) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// PairingStore issues and approves pairing requests, persisted to a flat
// JSON file keyed "channelId:senderId".
type PairingStore struct {
	file       *jsonFile[*PairingRequest]
	codeLength int
	ttl        time.Duration
}

// NewPairingStore creates a pairing store persisting to path.
func NewPairingStore(path string, codeLength int, ttl time.Duration) *PairingStore {
	return &PairingStore{
		file:       newJSONFile[*PairingRequest](path),
		codeLength: codeLength,
		ttl:        ttl,
	}
}

// Issue returns the live pairing code for (channel, sender), generating a
// new request if none exists or the old one expired. A new request
// replaces the old one.
func (s *PairingStore) Issue(channelID, senderID, chatID string) (string, error) {
	key := channelID + ":" + senderID
	now := time.Now().UTC()

	var code string
	err := s.file.Update(func(m map[string]*PairingRequest) error {
		if existing, ok := m[key]; ok && !existing.Expired(now) {
			code = existing.Code
			return nil
		}

		generated, err := generateCode(s.codeLength)
		if err != nil {
			return err
		}
		m[key] = &PairingRequest{
			Code:      generated,
			ChannelID: channelID,
			SenderID:  senderID,
			ChatID:    chatID,
			IssuedAt:  now,
			ExpiresAt: now.Add(s.ttl),
		}
		code = generated
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("issuing pairing code: %w", err)
	}
	return code, nil
}

// Approve consumes the pairing request matching code on the given channel
// and returns the sender it belongs to. First approval wins: the request
// is removed, so a second approval of the same code fails with
// ErrCodeNotFound. Expired codes cannot be approved.
func (s *PairingStore) Approve(channelID, code, approvedBy string) (string, error) {
	var senderID string
	err := s.file.Update(func(m map[string]*PairingRequest) error {
		for key, req := range m {
			if req.ChannelID != channelID || req.Code != code {
				continue
			}
			if req.Expired(time.Now().UTC()) {
				return ErrCodeExpired
			}
			senderID = req.SenderID
			delete(m, key)
			return nil
		}
		return ErrCodeNotFound
	})
	if err != nil {
		return "", err
	}
	return senderID, nil
}

// generateCode builds a random code from the unambiguous alphabet.
func generateCode(length int) (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	buf := make([]byte, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating pairing code: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
