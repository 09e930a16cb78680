// Package state keeps per-user dialog sessions for Telegram bots. A session
// follows a named Flow of ordered steps, only ever moves forward, and expires
// after a period of inactivity.
package state
