// Package cache implements the two expiring cache tiers behind the daemon:
// a capacity-bounded in-memory cache and a persistent per-key-file disk
// cache, both generic over key and value. Entries expire lazily on read (the
// disk tier additionally offers an opt-in sweep), and both tiers take an
// injectable clock so expiration is deterministic under test. The tiers are
// independent leaves; composing them into a fallback chain is the caller's
// responsibility.
package cache
