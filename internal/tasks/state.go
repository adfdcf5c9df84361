package tasks

import (
	"time"

	"github.com/desertthunder/subcord/internal/models"
)

// LoopState is the connection phase of the [PresenceEngine].
type LoopState int

const (
	Disconnected LoopState = iota
	WaitingForSession
	Polling
	Stopped
)

func (s LoopState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case WaitingForSession:
		return "waiting_for_session"
	case Polling:
		return "polling"
	case Stopped:
		return "stopped"
	default:
		return ""
	}
}

// Action is what a cycle does to the presence sink.
type Action int

const (
	Wait  Action = iota // Leave the sink untouched
	Clear               // Blank the presence
	Push                // Publish a new presence
)

func (a Action) String() string {
	switch a {
	case Wait:
		return "wait"
	case Clear:
		return "clear"
	case Push:
		return "push"
	default:
		return ""
	}
}

// Intervals holds the two sleep cadences of the loop.
type Intervals struct {
	Steady time.Duration // While a track is playing
	Idle   time.Duration // While nothing is playing or the track expired
}

// Decision is the outcome of [Decide] for one cycle.
type Decision struct {
	Action   Action
	Reason   string
	Interval time.Duration
}

// State is the memory the engine carries across cycles.
//
// DisplayedTrackID changes only after a successful sink call and Cleared is only true while nothing is displayed.
type State struct {
	DisplayedTrackID string    // Track currently shown, "" when none
	StartedTrackID   string    // Track TrackStart belongs to
	TrackStart       time.Time // First successful display of StartedTrackID
	Cleared          bool      // Presence was blanked for the current silence
}

// Decide picks the action for a cycle. It performs no I/O and does not modify s.
//
// A nil snapshot means nothing is playing (or the fetch failed).
func Decide(s State, snap *models.TrackSnapshot, now time.Time, iv Intervals) Decision {
	if snap == nil {
		if s.DisplayedTrackID != "" && !s.Cleared {
			return Decision{Action: Clear, Reason: "nothing playing", Interval: iv.Idle}
		}
		return Decision{Action: Wait, Reason: "idle", Interval: iv.Idle}
	}

	if s.Expired(snap, now) {
		if s.Cleared {
			return Decision{Action: Wait, Reason: "expired, already cleared", Interval: iv.Idle}
		}
		return Decision{Action: Clear, Reason: "playback window expired", Interval: iv.Idle}
	}

	if snap.ID == s.DisplayedTrackID {
		return Decision{Action: Wait, Reason: "unchanged", Interval: iv.Steady}
	}

	return Decision{Action: Push, Reason: "new track", Interval: iv.Steady}
}

// Expired reports whether the wall clock has passed the end of the snapshot's playback window.
//
// Only the track the start timestamp belongs to can expire; tracks with no duration never do.
func (s State) Expired(snap *models.TrackSnapshot, now time.Time) bool {
	if snap == nil || snap.ID != s.StartedTrackID || snap.Duration <= 0 {
		return false
	}
	end := s.TrackStart.Add(time.Duration(snap.Duration) * time.Second)
	return !now.Before(end)
}

// StartFor returns the progress start for id: the remembered start when id is the started track, now otherwise.
func (s State) StartFor(id string, now time.Time) time.Time {
	if id != "" && id == s.StartedTrackID {
		return s.TrackStart
	}
	return now
}

// Pushed records a successful publish of id that started at start.
func (s *State) Pushed(id string, start time.Time) {
	if s.StartedTrackID != id {
		s.StartedTrackID = id
		s.TrackStart = start
	}
	s.DisplayedTrackID = id
	s.Cleared = false
}

// Blanked records a successful clear.
func (s *State) Blanked() {
	s.DisplayedTrackID = ""
	s.Cleared = true
}
