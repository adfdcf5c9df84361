package models

// Codec describes the encoding of the playing file.
type Codec struct {
	Suffix       string `json:"suffix,omitempty"`       // Container format, e.g. flac, mp3, opus
	BitDepth     int    `json:"bitDepth,omitempty"`     // Bits per sample (lossless formats only)
	SamplingRate int    `json:"samplingRate,omitempty"` // Hz
	BitRate      int    `json:"bitRate,omitempty"`      // kbps
}

// TrackSnapshot represents one playback event reported by the upstream server.
type TrackSnapshot struct {
	ID          string `json:"id"` // Opaque, stable upstream identifier
	Title       string `json:"title"`
	Artist      string `json:"artist"`
	Album       string `json:"album,omitempty"`
	AlbumID     string `json:"albumId,omitempty"`
	AlbumArtist string `json:"albumArtist,omitempty"`
	TrackNumber int    `json:"trackNumber"` // 1-based position within the album
	TotalTracks int    `json:"totalTracks"`
	Duration    int    `json:"duration"` // Duration in seconds
	Codec       Codec  `json:"codec"`
	ArtworkURL  string `json:"artworkUrl,omitempty"`
	Username    string `json:"username"` // Upstream user the session belongs to
	PlayerName  string `json:"playerName,omitempty"`
}

// HasAlbum reports whether the snapshot is associated with an album.
func (t *TrackSnapshot) HasAlbum() bool {
	return t != nil && t.AlbumID != ""
}

// Presence is the payload shown by the presence sink.
type Presence struct {
	Title      string `json:"title"`    // Artist line
	Subtitle   string `json:"subtitle"` // Track title line
	Start      int64  `json:"start"`    // Progress window start, epoch milliseconds
	End        int64  `json:"end"`      // Progress window end, epoch milliseconds
	DetailLine string `json:"detailLine"`
	BadgeLine  string `json:"badgeLine"`
	ImageURL   string `json:"imageUrl,omitempty"`
}
