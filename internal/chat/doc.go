// Package chat implements the public chat room and private one-to-one
// conversations.
//
// A private conversation is identified by the unordered pair of its
// participants. Resolver maps a pair to its conversation document, creating
// it on first use, and memoizes the result for the life of the process.
// Concurrent resolutions of the same pair share one backend round trip, and
// creation uses a deterministic document ID so two processes racing on the
// same pair still end up with a single conversation.
package chat
