// Package services implements the HTTP clients used by the presence engine.
//
// # Upstream Interface
//
// [Upstream] abstracts the playback source so the engine can be exercised against fakes.
//
// # Subsonic Implementation
//
// [SubsonicService] speaks the Subsonic REST API (Navidrome, Gonic, Airsonic, ...).
//
// Requests authenticate with the token scheme: a fresh random salt per request and t = md5(password + salt).
// Responses are requested as JSON (f=json) and unwrapped from the "subsonic-response" envelope.
// A "failed" envelope is turned into an error carrying the Subsonic error code and message.
//
// # Artwork Probe
//
// [ProbeService] performs a bounded, one-shot GET of an arbitrary URL. The artwork resolver uses it to detect
// image hosts that answer 200 with a textual "not found" body.
//
// # Error Handling
//
// Services use typed errors from shared package:
//   - [shared.ErrUpstream] : any failure talking to the Subsonic server
//   - [shared.ErrAuthFailed] : wrong username/password (Subsonic codes 40 and 41)
//   - [shared.ErrAlbumNotFound] : requested album does not exist (Subsonic code 70)
//   - [shared.ErrUnexpectedFormat] : response body could not be decoded
package services
