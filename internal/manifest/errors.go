package manifest

import "fmt"

// MalformedPlaylistError covers §4.2's fatal, pre-download parse failures:
// missing #EXTM3U, truncated EXTINF, unparseable duration, unsupported
// METHOD.
type MalformedPlaylistError struct {
	Reason string
}

func (e *MalformedPlaylistError) Error() string {
	return fmt.Sprintf("malformed playlist: %s", e.Reason)
}

// MasterPlaylistNotSupportedError is returned when the playlist contains an
// #EXT-X-STREAM-INF tag. The caller, not the engine, must pre-select a
// variant (Non-goals: "multi-variant selection").
type MasterPlaylistNotSupportedError struct{}

func (e *MasterPlaylistNotSupportedError) Error() string {
	return "master playlist not supported: caller must select a variant"
}

// LivePlaylistNotSupportedError is returned when the playlist has no
// #EXT-X-ENDLIST tag (Non-goals: "live/DVR manifests with sliding windows").
type LivePlaylistNotSupportedError struct{}

func (e *LivePlaylistNotSupportedError) Error() string {
	return "live playlist not supported: missing #EXT-X-ENDLIST"
}
