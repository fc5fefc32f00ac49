// Package authcore is the client-side session and authentication core for
// Digitoon applications: an authenticated-fetch engine with a bounded
// refresh-and-replay protocol, and a staged mobile-number + OTP login flow
// that can branch into family child-account selection.
//
// The package is designed for event-driven client workloads: Engine and
// LoginFlow methods serialize session mutations internally and are safe to
// call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [LoginFlow],
// [Builder], [Config], and value types (Result, Notification, Profile,
// etc.). Session state and its key-value persistence live in the session
// sub-package; URL augmentation and status classification helpers live
// under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Render UI, display notifications, or own store durability. Those are
//     collaborator contracts ([session.Store], [Sink]) supplied by the
//     host application.
//   - Inspect tokens beyond a minimum-length check. Tokens are opaque
//     strings minted and validated by the backend.
//   - Issue more than one refresh attempt per original request. The trial
//     state machine bounds retry amplification by construction.
package authcore
