// Package session provides durable storage for chat sessions.
//
// A session is a uniquely identified conversation owning an ordered,
// append-only log of messages. The store is backed by SQLite: one row
// per session plus one row per message, with appends performed as a
// single transaction so that concurrent turns never lose an update.
//
// The package also contains the retention sweeper that archives and
// removes sessions that have been idle past a configured age.
package session
