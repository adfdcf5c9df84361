package tasks

import (
	"bytes"
	"context"
	"io"
	"mime"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subcord/internal/models"
	"github.com/desertthunder/subcord/internal/services"
)

const (
	DefaultFallbackImageURL = "https://raw.githubusercontent.com/navidrome/navidrome/master/resources/logo-192x192.png"
	DefaultNotFoundMarker   = "not found"
)

// Prober fetches the head of a URL.
type Prober interface {
	Get(ctx context.Context, rawURL string) (*services.ProbeResponse, error)
}

// ArtworkResolver picks the image shown next to the presence.
type ArtworkResolver struct {
	upstream services.Upstream
	prober   Prober
	fallback string
	marker   []byte
	logger   *log.Logger
}

// NewArtworkResolver creates a resolver. Empty fallback and marker use the defaults.
func NewArtworkResolver(upstream services.Upstream, prober Prober, fallback, marker string, logger *log.Logger) *ArtworkResolver {
	if fallback == "" {
		fallback = DefaultFallbackImageURL
	}
	if marker == "" {
		marker = DefaultNotFoundMarker
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &ArtworkResolver{
		upstream: upstream,
		prober:   prober,
		fallback: fallback,
		marker:   bytes.ToLower([]byte(marker)),
		logger:   logger,
	}
}

// Fallback returns the image used when resolution fails.
func (r *ArtworkResolver) Fallback() string {
	return r.fallback
}

// Resolve returns the album image URL for snap. It never fails:
//   - no album: ""
//   - no usable image upstream: the fallback URL
func (r *ArtworkResolver) Resolve(ctx context.Context, snap models.TrackSnapshot) string {
	if !snap.HasAlbum() {
		return ""
	}

	info, err := r.upstream.GetAlbumInfo(ctx, snap.AlbumID)
	if err != nil {
		r.logger.Debug("album info unavailable", "album_id", snap.AlbumID, "error", err)
		return r.fallback
	}

	imageURL := info.ImageURL()
	if imageURL == "" {
		return r.fallback
	}

	if r.prober == nil {
		return imageURL
	}

	resp, err := r.prober.Get(ctx, imageURL)
	if err != nil {
		r.logger.Debug("artwork probe failed", "url", imageURL, "error", err)
		return r.fallback
	}
	if !r.usable(resp) {
		r.logger.Debug("artwork rejected", "url", imageURL, "status", resp.StatusCode, "content_type", resp.ContentType)
		return r.fallback
	}
	return imageURL
}

func (r *ArtworkResolver) usable(resp *services.ProbeResponse) bool {
	if !resp.OK() {
		return false
	}
	if bytes.Contains(bytes.ToLower(resp.Body), r.marker) {
		return false
	}
	if resp.ContentType == "" {
		return true
	}

	mediaType, _, err := mime.ParseMediaType(resp.ContentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/") || mediaType == "application/octet-stream"
}
