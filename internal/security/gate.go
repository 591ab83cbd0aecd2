// ABOUTME: Per-message access decision composing policy, pairing, allowlist and rate limit.
// ABOUTME: Evaluated exactly once per inbound message, in fixed short-circuit order.

package security

import (
	"fmt"
	"log/slog"
)

// Policy is the configured DM access policy.
type Policy string

const (
	PolicyOpen      Policy = "open"
	PolicyPairing   Policy = "pairing"
	PolicyAllowlist Policy = "allowlist"
	PolicyDisabled  Policy = "disabled"
)

// Decision is the gate's verdict for one inbound message.
// Reason is user-facing text suitable for sending back on a denial.
type Decision struct {
	Allowed     bool
	Reason      string
	PairingCode string
}

// Gate composes the pairing store, allowlist and rate limiter into one
// ordered decision per inbound message.
type Gate struct {
	policy    Policy
	pairing   *PairingStore
	allowlist *Allowlist
	limiter   *RateLimiter
	logger    *slog.Logger
}

// NewGate creates a gate enforcing the given policy.
func NewGate(policy Policy, pairing *PairingStore, allowlist *Allowlist, limiter *RateLimiter, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		policy:    policy,
		pairing:   pairing,
		allowlist: allowlist,
		limiter:   limiter,
		logger:    logger.With("component", "gate"),
	}
}

// Check evaluates the access decision for one inbound message:
//
//  1. disabled: deny unconditionally.
//  2. open: allow.
//  3. allowlist: allow iff the sender is allowlisted.
//  4. pairing: allow iff allowlisted; otherwise issue (or reuse) a
//     pairing code and deny with the code embedded in the reason.
//  5. Rate limiting runs last and can deny an otherwise-allowed sender.
func (g *Gate) Check(channelID, senderID, chatID string) Decision {
	d := g.checkPolicy(channelID, senderID, chatID)
	if !d.Allowed {
		return d
	}

	if !g.limiter.Allow(channelID + ":" + senderID) {
		g.logger.Warn("rate limit exceeded", "channel", channelID, "sender", senderID)
		return Decision{Reason: "You're sending messages too quickly. Please wait a bit and try again."}
	}
	return d
}

func (g *Gate) checkPolicy(channelID, senderID, chatID string) Decision {
	switch g.policy {
	case PolicyDisabled:
		return Decision{Reason: "Direct messages are disabled."}

	case PolicyOpen:
		return Decision{Allowed: true}

	case PolicyAllowlist:
		if g.allowlist.Contains(channelID, senderID) {
			return Decision{Allowed: true}
		}
		return Decision{Reason: "You're not allowed to message this bot (not allowlisted)."}

	case PolicyPairing:
		// Pairing's terminal state is allowlist membership
		if g.allowlist.Contains(channelID, senderID) {
			return Decision{Allowed: true}
		}

		code, err := g.pairing.Issue(channelID, senderID, chatID)
		if err != nil {
			g.logger.Error("issuing pairing code failed", "channel", channelID, "sender", senderID, "error", err)
			return Decision{Reason: "Access requires approval, but no pairing code could be issued. Try again later."}
		}
		return Decision{
			Reason:      fmt.Sprintf("Access requires approval. Your pairing code is %s — ask the operator to approve it.", code),
			PairingCode: code,
		}

	default:
		// Unknown policy reads as disabled: never fail open on access control
		return Decision{Reason: "Direct messages are disabled."}
	}
}
