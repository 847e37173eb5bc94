// Package chat implements the session-streaming turn engine.
//
// One turn runs through a fixed sequence: the user's message is
// persisted before the provider is called, prior history is projected
// into provider context, the provider's fragment stream is relayed to
// the caller as it arrives, and the accumulated reply is reconciled
// back into the session log once the stream completes. The user's
// input is never lost to a provider failure; a failed stream persists
// no model message at all.
package chat
