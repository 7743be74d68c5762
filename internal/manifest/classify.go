package manifest

import (
	"strings"

	"github.com/grafov/m3u8"
)

// classify performs a first-pass structural decode with grafov/m3u8 to
// distinguish a master playlist from a media playlist and to catch gross
// syntax errors cheaply, before the line scanner below extracts the
// key/IV/segment semantics this engine needs exactly as §4.2 specifies
// them. grafov/m3u8's own segment/key model doesn't expose the implicit-IV
// derivation or the NONE-disables-decryption rule this engine requires, so
// it is used only for this classification step.
func classify(content string) (isMaster bool, err error) {
	// Non-strict: the line scanner below is the source of truth for
	// #EXTM3U/EXTINF/tag validity (§4.2's MalformedPlaylist rules). Strict
	// decoding here would reject playlists missing tags §4.2 doesn't
	// require (e.g. EXT-X-TARGETDURATION), which would make this pass
	// stricter than the specification it's classifying for.
	pl, listType, err := m3u8.DecodeFrom(strings.NewReader(content), false)
	if err != nil {
		return false, &MalformedPlaylistError{Reason: err.Error()}
	}
	_ = pl
	return listType == m3u8.MASTER, nil
}
