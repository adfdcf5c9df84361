package discord

import "github.com/desertthunder/subcord/internal/models"

// ActivityListening renders the activity as "Listening to ...".
const ActivityListening = 2

// Activity is the Rich Presence payload sent with SET_ACTIVITY.
type Activity struct {
	Type       int         `json:"type"`
	Details    string      `json:"details,omitempty"`
	State      string      `json:"state,omitempty"`
	Timestamps *Timestamps `json:"timestamps,omitempty"`
	Assets     *Assets     `json:"assets,omitempty"`
}

// Timestamps drive the progress bar, in epoch milliseconds.
type Timestamps struct {
	Start int64 `json:"start,omitempty"`
	End   int64 `json:"end,omitempty"`
}

// Assets are the images and their hover texts.
type Assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

// FromPresence maps a presence payload onto a listening activity, omitting empty sections.
func FromPresence(p models.Presence) *Activity {
	a := &Activity{
		Type:    ActivityListening,
		Details: p.Title,
		State:   p.Subtitle,
	}
	if p.Start != 0 || p.End != 0 {
		a.Timestamps = &Timestamps{Start: p.Start, End: p.End}
	}
	if p.ImageURL != "" || p.DetailLine != "" || p.BadgeLine != "" {
		a.Assets = &Assets{
			LargeImage: p.ImageURL,
			LargeText:  p.DetailLine,
			SmallText:  p.BadgeLine,
		}
	}
	return a
}
