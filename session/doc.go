// Package session holds the client's authentication state: tokens, device
// id, profile, and the logged-in flag derived from them.
//
// A single Session instance is the one shared mutable resource of the core.
// Every mutator updates all related fields together under one lock and
// mirrors the change into the injected key-value stores, so observers never
// see a half-applied login or logout.
//
// Persistence is split across two collaborators with independent lifetimes:
// a session-scope store for tokens and the device id, and a durable store
// for the serialized profile and the phone-moment marker. The package ships
// a Redis-backed store and an in-memory store; hosts may supply their own.
package session
