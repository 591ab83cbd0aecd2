// ABOUTME: Append-only allowlist of approved senders, persisted per channel key.
// ABOUTME: Membership is the allow decision and the terminal state of pairing.

package security

import (
	"fmt"
	"time"
)

// AllowlistEntry records one approved (channel, sender).
type AllowlistEntry struct {
	ChannelID  string    `json:"channelId"`
	SenderID   string    `json:"senderId"`
	ApprovedAt time.Time `json:"approvedAt"`
	ApprovedBy string    `json:"approvedBy"`
}

// Allowlist is the append-only set of approved senders.
type Allowlist struct {
	file *jsonFile[AllowlistEntry]
}

// NewAllowlist creates an allowlist persisting to path.
func NewAllowlist(path string) *Allowlist {
	return &Allowlist{file: newJSONFile[AllowlistEntry](path)}
}

// Contains reports whether (channelID, senderID) is allowlisted.
func (a *Allowlist) Contains(channelID, senderID string) bool {
	var ok bool
	a.file.View(func(m map[string]AllowlistEntry) {
		_, ok = m[channelID+":"+senderID]
	})
	return ok
}

// Add approves (channelID, senderID). Adding an existing member is a
// no-op that keeps the original approval record.
func (a *Allowlist) Add(channelID, senderID, approvedBy string) error {
	key := channelID + ":" + senderID
	err := a.file.Update(func(m map[string]AllowlistEntry) error {
		if _, exists := m[key]; exists {
			return nil
		}
		m[key] = AllowlistEntry{
			ChannelID:  channelID,
			SenderID:   senderID,
			ApprovedAt: time.Now().UTC(),
			ApprovedBy: approvedBy,
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("adding allowlist entry: %w", err)
	}
	return nil
}
