// Package backend implements the two integrations with the AI backend
// process: a JSON-over-HTTP client for conversations, prompt submission
// and message polling, and a websocket subscription for push events.
//
// The message list returned by ListMessages is the ground truth for
// response correlation. The push event stream is best-effort and wrapped
// in an auto-reconnect loop; consumers must tolerate missed events.
package backend
