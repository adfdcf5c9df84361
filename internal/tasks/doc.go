// Package tasks runs the presence reconciliation loop.
//
// # Cycle
//
// [PresenceEngine.Run] connects the [Sink], waits for its session, then repeats one cycle per interval:
//
//  1. [SnapshotFetcher.Fetch] asks the upstream what the listener is playing and enriches it with album
//     metadata (album artist, position, total, codec). A failed fetch counts as "nothing playing".
//  2. [Decide] compares the snapshot with the engine [State] and returns [Wait], [Clear] or [Push].
//  3. A push resolves artwork with [ArtworkResolver.Resolve], formats the payload and publishes it.
//     State only changes after the sink call succeeds, so a failed call is retried next cycle.
//
// # Events
//
// Non-fatal errors and state changes are reported as [Event] values on an optional channel.
// Sends use select with default and never block the loop.
//
// # Rate limiting
//
// Every sink call waits on a rate limiter spaced by the minimum update interval, and the steady
// cadence is never shorter than that interval.
package tasks
