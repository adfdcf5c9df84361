// package formatter converts track snapshots into size-bounded presence payloads
package formatter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/subcord/internal/models"
	"github.com/rivo/uniseg"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	// MaxLineUnits bounds title and subtitle before the marker is appended.
	MaxLineUnits = 127
	// MaxTextUnits bounds the detail and badge lines.
	MaxTextUnits = 128
	// Marker is appended to title and subtitle. Discord does not re-render a line whose
	// length did not change unless the text carries a distinguishing character.
	Marker = "\u200b"

	badgeSeparator = " · "
)

// Format builds the presence payload for a snapshot.
//
// start is when playback of this track was first observed and anchors the progress window.
// Format is pure: the same arguments always produce the same payload.
func Format(snap models.TrackSnapshot, serverKind string, start time.Time, imageURL string) models.Presence {
	startMS := start.UnixMilli()

	return models.Presence{
		Title:      Truncate(snap.Artist, MaxLineUnits) + Marker,
		Subtitle:   Truncate(snap.Title, MaxLineUnits) + Marker,
		Start:      startMS,
		End:        startMS + int64(snap.Duration)*1000,
		DetailLine: Truncate(DetailLine(snap), MaxTextUnits),
		BadgeLine:  Truncate(BadgeLine(serverKind, snap.Codec), MaxTextUnits),
		ImageURL:   imageURL,
	}
}

// DetailLine renders "{album artist} - {album} ({n} of {total})".
//
// The album artist prefix is dropped when it is empty or the same as the track artist.
func DetailLine(snap models.TrackSnapshot) string {
	var b strings.Builder

	if snap.AlbumArtist != "" && !strings.EqualFold(snap.AlbumArtist, snap.Artist) {
		b.WriteString(snap.AlbumArtist)
		b.WriteString(" - ")
	}

	fmt.Fprintf(&b, "%s (%d of %d)", snap.Album, atLeastOne(snap.TrackNumber), atLeastOne(snap.TotalTracks))
	return b.String()
}

// BadgeLine renders the capitalized server kind followed by the codec summary.
func BadgeLine(serverKind string, codec models.Codec) string {
	kind := capitalize(strings.TrimSpace(serverKind))
	summary := CodecSummary(codec)

	switch {
	case kind == "":
		return summary
	case summary == "":
		return kind
	default:
		return kind + badgeSeparator + summary
	}
}

// CodecSummary describes the encoding:
//   - mp3: "320kbps"
//   - flac: "24/96.0kHz 2300kbps"
//   - anything else: "opus 128kbps"
func CodecSummary(c models.Codec) string {
	suffix := strings.ToLower(strings.TrimSpace(c.Suffix))

	switch suffix {
	case "":
		if c.BitRate > 0 {
			return fmt.Sprintf("%dkbps", c.BitRate)
		}
		return ""
	case "mp3":
		return fmt.Sprintf("%dkbps", c.BitRate)
	case "flac":
		khz := strconv.FormatFloat(float64(c.SamplingRate)/1000, 'f', 1, 64)
		return fmt.Sprintf("%d/%skHz %dkbps", c.BitDepth, khz, c.BitRate)
	default:
		return fmt.Sprintf("%s %dkbps", suffix, c.BitRate)
	}
}

// Truncate keeps at most n grapheme clusters of s, so a multi-codepoint glyph is never split.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}

	g := uniseg.NewGraphemes(s)
	count, end := 0, 0
	for g.Next() {
		if count == n {
			return s[:end]
		}
		_, end = g.Positions()
		count++
	}

	return s
}

// Units counts the display units (grapheme clusters) of s.
func Units(s string) int {
	return uniseg.GraphemeClusterCount(s)
}

// capitalize upper-cases the first grapheme of s and keeps the rest as reported, so "LMS" stays "LMS".
func capitalize(s string) string {
	if s == "" {
		return ""
	}
	first, rest, _, _ := uniseg.FirstGraphemeClusterInString(s, -1)
	return cases.Upper(language.Und).String(first) + rest
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
