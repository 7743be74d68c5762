package manifest

import (
	"encoding/hex"
	"strings"
	"testing"
)

const baseURL = "https://cdn.example.com/video/playlist.m3u8"

func TestParsePlainVOD(t *testing.T) {
	content := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-MEDIA-SEQUENCE:0",
		"#EXTINF:2.000,",
		"seg0.ts",
		"#EXTINF:2.000,",
		"seg1.ts",
		"#EXTINF:2.000,",
		"seg2.ts",
		"#EXT-X-ENDLIST",
		"",
	}, "\n")

	m, err := Parse(content, baseURL)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(m.Segments) != 3 {
		t.Fatalf("len(Segments) = %d, want 3", len(m.Segments))
	}
	for i, s := range m.Segments {
		if s.Index != i {
			t.Errorf("Segments[%d].Index = %d, want %d", i, s.Index, i)
		}
		if s.Key != nil {
			t.Errorf("Segments[%d].Key = %v, want nil", i, s.Key)
		}
		want := "https://cdn.example.com/video/seg" + string(rune('0'+i)) + ".ts"
		if s.URL != want {
			t.Errorf("Segments[%d].URL = %s, want %s", i, s.URL, want)
		}
	}
}

func TestParseExplicitIV(t *testing.T) {
	content := strings.Join([]string{
		"#EXTM3U",
		`#EXT-X-KEY:METHOD=AES-128,URI="k",IV=0x000102030405060708090a0b0c0d0e0f`,
		"#EXTINF:2.000,",
		"seg0.ts",
		"#EXT-X-ENDLIST",
		"",
	}, "\n")

	m, err := Parse(content, baseURL)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	seg := m.Segments[0]
	if seg.Key == nil || seg.Key.Method != KeyMethodAES128 {
		t.Fatalf("Segments[0].Key = %+v, want AES-128", seg.Key)
	}
	if seg.ImplicitIVUsed {
		t.Errorf("ImplicitIVUsed = true, want false (IV was explicit)")
	}
	want, _ := hex.DecodeString("000102030405060708090a0b0c0d0e0f")
	if string(seg.Key.IV) != string(want) {
		t.Errorf("Key.IV = %x, want %x", seg.Key.IV, want)
	}
	if seg.Key.URI != "https://cdn.example.com/video/k" {
		t.Errorf("Key.URI = %s, want resolved absolute URL", seg.Key.URI)
	}
}

func TestParseImplicitIVFromMediaSequence(t *testing.T) {
	content := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-MEDIA-SEQUENCE:5",
		`#EXT-X-KEY:METHOD=AES-128,URI="k"`,
		"#EXTINF:2.000,",
		"seg0.ts",
		"#EXTINF:2.000,",
		"seg1.ts",
		"#EXT-X-ENDLIST",
		"",
	}, "\n")

	m, err := Parse(content, baseURL)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !m.Segments[0].ImplicitIVUsed || !m.Segments[1].ImplicitIVUsed {
		t.Fatalf("expected implicit IV on both segments")
	}
	if got := m.Segments[0].Key.IV; string(got) != string(sequenceIV(5)) {
		t.Errorf("segment 0 IV = %x, want %x", got, sequenceIV(5))
	}
	if got := m.Segments[1].Key.IV; string(got) != string(sequenceIV(6)) {
		t.Errorf("segment 1 IV = %x, want %x", got, sequenceIV(6))
	}
}

func TestParseMethodNoneDisablesDecryption(t *testing.T) {
	content := strings.Join([]string{
		"#EXTM3U",
		`#EXT-X-KEY:METHOD=AES-128,URI="k"`,
		"#EXTINF:2.000,",
		"seg0.ts",
		"#EXT-X-KEY:METHOD=NONE",
		"#EXTINF:2.000,",
		"seg1.ts",
		"#EXT-X-ENDLIST",
		"",
	}, "\n")

	m, err := Parse(content, baseURL)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if m.Segments[0].Key == nil {
		t.Errorf("segment 0 should still be encrypted")
	}
	if m.Segments[1].Key != nil {
		t.Errorf("segment 1 should be unencrypted after METHOD=NONE, got %+v", m.Segments[1].Key)
	}
}

func TestParseMasterPlaylistRejected(t *testing.T) {
	content := strings.Join([]string{
		"#EXTM3U",
		`#EXT-X-STREAM-INF:BANDWIDTH=1000000`,
		"variant.m3u8",
		"",
	}, "\n")

	_, err := Parse(content, baseURL)
	if _, ok := err.(*MasterPlaylistNotSupportedError); !ok {
		t.Fatalf("Parse() error = %v, want *MasterPlaylistNotSupportedError", err)
	}
}

func TestParseMissingEndlistRejected(t *testing.T) {
	content := strings.Join([]string{
		"#EXTM3U",
		"#EXTINF:2.000,",
		"seg0.ts",
		"",
	}, "\n")

	_, err := Parse(content, baseURL)
	if _, ok := err.(*LivePlaylistNotSupportedError); !ok {
		t.Fatalf("Parse() error = %v, want *LivePlaylistNotSupportedError", err)
	}
}

func TestParseMissingExtM3URejected(t *testing.T) {
	content := "#EXTINF:2.000,\nseg0.ts\n#EXT-X-ENDLIST\n"

	_, err := Parse(content, baseURL)
	if _, ok := err.(*MalformedPlaylistError); !ok {
		t.Fatalf("Parse() error = %v, want *MalformedPlaylistError", err)
	}
}

func TestParseUnsupportedMethodRejected(t *testing.T) {
	content := strings.Join([]string{
		"#EXTM3U",
		`#EXT-X-KEY:METHOD=SAMPLE-AES,URI="k"`,
		"#EXTINF:2.000,",
		"seg0.ts",
		"#EXT-X-ENDLIST",
		"",
	}, "\n")

	_, err := Parse(content, baseURL)
	if _, ok := err.(*MalformedPlaylistError); !ok {
		t.Fatalf("Parse() error = %v, want *MalformedPlaylistError", err)
	}
}
