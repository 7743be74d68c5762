// Package manifest parses HLS media playlists into an ordered segment list
// plus decryption directives (§4.2). It treats the supplied URL as the
// media playlist; master playlists are rejected, not auto-resolved, per
// the engine's Non-goals.
package manifest

// KeyMethod is the EXT-X-KEY METHOD attribute.
type KeyMethod int

const (
	// KeyMethodNone means the segment is not encrypted.
	KeyMethodNone KeyMethod = iota
	// KeyMethodAES128 is the only decryption method this engine supports.
	KeyMethodAES128
)

// KeyDirective is the decryption directive in effect for a segment,
// resolved from the most recent #EXT-X-KEY tag.
type KeyDirective struct {
	Method KeyMethod
	URI    string // absolute, resolved against the playlist base URL
	IV     []byte // nil if not explicit; Parse then sets each segment's copy from its media sequence
}

// Segment is one entry in the media playlist (§3 "Segment descriptor").
// Immutable once parsed.
type Segment struct {
	Index          int // zero-based, dense [0, N)
	MediaSequence  int // #EXT-X-MEDIA-SEQUENCE anchor + position
	URL            string
	Duration       float64 // seconds, from #EXTINF
	Key            *KeyDirective
	ImplicitIVUsed bool
}

// Manifest is the parsed result of one media playlist.
type Manifest struct {
	URL      string
	Segments []*Segment
}

// TotalDuration sums declared segment durations.
func (m *Manifest) TotalDuration() float64 {
	var total float64
	for _, s := range m.Segments {
		total += s.Duration
	}
	return total
}
