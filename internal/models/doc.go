// Package models defines the value types shared by the presence synchronization engine.
//
//   - [TrackSnapshot] : one immutable description of "what is playing now", valid for one reconciliation cycle
//   - [Codec] : container and encoding attributes of the playing file
//   - [Presence] : the size-bounded payload pushed to the presence sink
//
// Snapshots are replaced wholesale each poll and never mutated after construction.
package models
