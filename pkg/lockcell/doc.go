// Package lockcell defines the remote lock cell used by wikibot to serialize
// content mutations across independent bot invocations.
//
// # Overview
//
// A lock cell is a single remotely stored value that is either empty (nobody
// holds the lock) or a decimal integer naming the holder. Every bot
// invocation uses its own run id as its token. The store offers no atomic
// compare-and-swap, so callers implement an optimistic claim, settle, and
// recheck protocol on top of the two primitives exposed here:
//
//	holder, held, err := cell.Read(ctx)
//	err = cell.TryClaim(ctx, token)
//
// A successful TryClaim only means the write was accepted. A concurrent
// invocation may overwrite it a moment later; the protocol in internal/lock
// detects that on the recheck.
//
// # Release
//
// Releasing the lock is a separate capability (Releaser). The contribution
// flow never releases the lock it acquired; the external site-rebuild action
// clears the cell once the new content has been published.
//
// # Backends
//
//   - Memory: in-process cell for tests and local runs.
//   - RedisCell: a Redis string key, with claim and release events published
//     on a per-repository Pub/Sub channel.
//
// The default deployment backend, the body of issue #1 in the content
// repository, lives in internal/hosting because it is built on the hosting
// platform client.
//
// # Redis Schema
//
// Lock key: wikibot:{owner}/{name}:lock
// Lock events channel: wikibot:{owner}/{name}:lock_events
package lockcell
