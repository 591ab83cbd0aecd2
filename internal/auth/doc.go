// Package auth verifies bearer credentials for the admin API.
package auth
