// Package session tracks which backend conversation belongs to which
// platform chat, keyed by (channel, chat type, chat id).
package session
