// Subsonic REST API [Upstream] implementation
//
// API reference: https://www.subsonic.org/pages/api.jsp and https://opensubsonic.netlify.app/
package services

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/desertthunder/subcord/internal/shared"
)

const (
	subsonicAPIVersion = "1.16.1"
	subsonicClientName = "subcord"
	defaultServerKind  = "subsonic"

	defaultRequestTimeout = 10 * time.Second
)

// Subsonic error codes with dedicated sentinel errors.
const (
	codeWrongCredentials = 40
	codeTokenAuthUnsupp  = 41
	codeNotFound         = 70
)

type subsonicError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type subsonicStatus struct {
	Status        string         `json:"status"`
	Version       string         `json:"version"`
	Type          string         `json:"type"`
	ServerVersion string         `json:"serverVersion"`
	OpenSubsonic  bool           `json:"openSubsonic"`
	Error         *subsonicError `json:"error"`
}

type subsonicEnvelope struct {
	Response json.RawMessage `json:"subsonic-response"`
}

// SubsonicService implements the [Upstream] interface against a Subsonic-compatible server.
type SubsonicService struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	salt       func() string
}

// NewSubsonicService creates a new Subsonic client. A nil client gets a dedicated client with a request timeout.
func NewSubsonicService(baseURL, username, password string, client *http.Client) *SubsonicService {
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}

	return &SubsonicService{
		baseURL:    strings.TrimRight(baseURL, "/"),
		username:   username,
		password:   password,
		httpClient: client,
		salt:       randomSalt,
	}
}

// Name returns the service name.
func (s *SubsonicService) Name() string {
	return "Subsonic"
}

func randomSalt() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// token computes the Subsonic auth token md5(password + salt) as lowercase hex.
func token(password, salt string) string {
	sum := md5.Sum([]byte(password + salt))
	return hex.EncodeToString(sum[:])
}

func (s *SubsonicService) authParams() url.Values {
	salt := s.salt()
	return url.Values{
		"u": {s.username},
		"t": {token(s.password, salt)},
		"s": {salt},
		"v": {subsonicAPIVersion},
		"c": {subsonicClientName},
		"f": {"json"},
	}
}

// doRequest calls GET /rest/{method}, checks the envelope status and decodes the envelope into result.
//
// It returns the envelope status so callers can read server metadata.
func (s *SubsonicService) doRequest(ctx context.Context, method string, params url.Values, result any) (*subsonicStatus, error) {
	query := s.authParams()
	for k, vs := range params {
		for _, v := range vs {
			query.Add(k, v)
		}
	}

	apiURL := fmt.Sprintf("%s/rest/%s?%s", s.baseURL, method, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create request: %v", shared.ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: request failed: %w", shared.ErrUpstream, method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s: status %d", shared.ErrUpstream, method, resp.StatusCode)
	}

	var envelope subsonicEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: %w: %s: %v", shared.ErrUpstream, shared.ErrUnexpectedFormat, method, err)
	}
	if len(envelope.Response) == 0 {
		return nil, fmt.Errorf("%w: %w: %s: missing subsonic-response", shared.ErrUpstream, shared.ErrUnexpectedFormat, method)
	}

	var status subsonicStatus
	if err := json.Unmarshal(envelope.Response, &status); err != nil {
		return nil, fmt.Errorf("%w: %w: %s: %v", shared.ErrUpstream, shared.ErrUnexpectedFormat, method, err)
	}

	if status.Status != "ok" {
		return nil, statusError(method, status.Error)
	}

	if result != nil {
		if err := json.Unmarshal(envelope.Response, result); err != nil {
			return nil, fmt.Errorf("%w: %w: %s: %v", shared.ErrUpstream, shared.ErrUnexpectedFormat, method, err)
		}
	}

	return &status, nil
}

func statusError(method string, e *subsonicError) error {
	if e == nil {
		return fmt.Errorf("%w: %s: request failed without error detail", shared.ErrUpstream, method)
	}

	switch e.Code {
	case codeWrongCredentials, codeTokenAuthUnsupp:
		return fmt.Errorf("%w: %w: %s (code %d)", shared.ErrUpstream, shared.ErrAuthFailed, e.Message, e.Code)
	case codeNotFound:
		return fmt.Errorf("%w: %w: %s (code %d)", shared.ErrUpstream, shared.ErrAlbumNotFound, e.Message, e.Code)
	default:
		return fmt.Errorf("%w: %s: %s (code %d)", shared.ErrUpstream, method, e.Message, e.Code)
	}
}

// Ping checks connectivity and reports the server kind.
//
// Calls GET /rest/ping. OpenSubsonic servers report their implementation in "type".
func (s *SubsonicService) Ping(ctx context.Context) (*ServerInfo, error) {
	status, err := s.doRequest(ctx, "ping", nil, nil)
	if err != nil {
		return nil, err
	}

	kind := strings.TrimSpace(status.Type)
	if kind == "" {
		kind = defaultServerKind
	}

	return &ServerInfo{
		Kind:          kind,
		Version:       status.Version,
		ServerVersion: status.ServerVersion,
	}, nil
}

// GetNowPlaying lists active playback sessions across all users.
//
// Calls GET /rest/getNowPlaying. An absent "entry" list means nothing is playing.
func (s *SubsonicService) GetNowPlaying(ctx context.Context) ([]NowPlayingEntry, error) {
	var result struct {
		NowPlaying struct {
			Entry []NowPlayingEntry `json:"entry"`
		} `json:"nowPlaying"`
	}

	if _, err := s.doRequest(ctx, "getNowPlaying", nil, &result); err != nil {
		return nil, err
	}

	return result.NowPlaying.Entry, nil
}

// GetAlbum retrieves an album and its songs in album order.
//
// Calls GET /rest/getAlbum?id={id}.
func (s *SubsonicService) GetAlbum(ctx context.Context, albumID string) (*Album, error) {
	var result struct {
		Album *Album `json:"album"`
	}

	if _, err := s.doRequest(ctx, "getAlbum", url.Values{"id": {albumID}}, &result); err != nil {
		return nil, err
	}
	if result.Album == nil {
		return nil, fmt.Errorf("%w: %w: %s", shared.ErrUpstream, shared.ErrAlbumNotFound, albumID)
	}

	return result.Album, nil
}

// GetAlbumInfo retrieves artwork URLs for an album.
//
// Calls GET /rest/getAlbumInfo2?id={id}.
func (s *SubsonicService) GetAlbumInfo(ctx context.Context, albumID string) (*AlbumInfo, error) {
	var result struct {
		AlbumInfo AlbumInfo `json:"albumInfo"`
	}

	if _, err := s.doRequest(ctx, "getAlbumInfo2", url.Values{"id": {albumID}}, &result); err != nil {
		return nil, err
	}

	return &result.AlbumInfo, nil
}
