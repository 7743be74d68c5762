package manifest

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/haldenfox/m3u8dl/internal/httpclient"
)

// Fetch retrieves the playlist text at urlStr and parses it.
func Fetch(ctx context.Context, client *httpclient.Client, urlStr string, headers map[string]string) (*Manifest, error) {
	content, err := client.GetText(ctx, urlStr, headers)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest: %w", err)
	}
	return Parse(content, urlStr)
}

// Parse implements §4.2's directive rules over raw media playlist text.
func Parse(content, urlStr string) (*Manifest, error) {
	if isMaster, err := classify(content); err != nil {
		return nil, err
	} else if isMaster {
		return nil, &MasterPlaylistNotSupportedError{}
	}

	if !strings.Contains(content, "#EXTM3U") {
		return nil, &MalformedPlaylistError{Reason: "missing #EXTM3U"}
	}

	baseURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, &MalformedPlaylistError{Reason: "invalid base url: " + err.Error()}
	}

	m := &Manifest{URL: urlStr}

	mediaSequence := 0
	var pendingDuration float64
	var havePendingDuration bool
	var currentKey *KeyDirective
	sawEndlist := false
	sawStreamInf := false
	index := 0

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF"):
			sawStreamInf = true

		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			n, err := strconv.Atoi(strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"))
			if err != nil {
				return nil, &MalformedPlaylistError{Reason: "unparseable media sequence: " + err.Error()}
			}
			mediaSequence = n

		case strings.HasPrefix(line, "#EXT-X-ENDLIST"):
			sawEndlist = true

		case strings.HasPrefix(line, "#EXTINF:"):
			rest := strings.TrimPrefix(line, "#EXTINF:")
			durStr := strings.SplitN(rest, ",", 2)[0]
			dur, err := strconv.ParseFloat(strings.TrimSpace(durStr), 64)
			if err != nil {
				return nil, &MalformedPlaylistError{Reason: "unparseable EXTINF duration: " + err.Error()}
			}
			if havePendingDuration {
				return nil, &MalformedPlaylistError{Reason: "EXTINF without segment URI"}
			}
			pendingDuration = dur
			havePendingDuration = true

		case strings.HasPrefix(line, "#EXT-X-KEY:"):
			attrs := parseAttributes(strings.TrimPrefix(line, "#EXT-X-KEY:"))
			key, err := parseKeyDirective(attrs, baseURL)
			if err != nil {
				return nil, err
			}
			currentKey = key

		case strings.HasPrefix(line, "#"):
			// Unrecognized tag: ignored.

		default:
			if !havePendingDuration {
				return nil, &MalformedPlaylistError{Reason: "segment URI without preceding EXTINF"}
			}
			seq := mediaSequence + index
			seg := &Segment{
				Index:         index,
				MediaSequence: seq,
				URL:           resolveURL(baseURL, line),
				Duration:      pendingDuration,
			}
			if currentKey != nil && currentKey.Method == KeyMethodAES128 {
				segKey := *currentKey
				if segKey.IV == nil {
					segKey.IV = sequenceIV(seq)
					seg.ImplicitIVUsed = true
				}
				seg.Key = &segKey
			}
			m.Segments = append(m.Segments, seg)
			index++
			havePendingDuration = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &MalformedPlaylistError{Reason: "scan failure: " + err.Error()}
	}
	if havePendingDuration {
		return nil, &MalformedPlaylistError{Reason: "EXTINF without segment URI"}
	}

	if sawStreamInf {
		return nil, &MasterPlaylistNotSupportedError{}
	}
	if !sawEndlist {
		return nil, &LivePlaylistNotSupportedError{}
	}

	return m, nil
}

func parseKeyDirective(attrs map[string]string, baseURL *url.URL) (*KeyDirective, error) {
	method := strings.ToUpper(attrs["METHOD"])
	switch method {
	case "NONE":
		return &KeyDirective{Method: KeyMethodNone}, nil
	case "AES-128":
		uri, ok := attrs["URI"]
		if !ok {
			return nil, &MalformedPlaylistError{Reason: "EXT-X-KEY METHOD=AES-128 missing URI"}
		}
		key := &KeyDirective{
			Method: KeyMethodAES128,
			URI:    resolveURL(baseURL, strings.Trim(uri, `"`)),
		}
		if ivStr, ok := attrs["IV"]; ok {
			iv, err := parseIV(ivStr)
			if err != nil {
				return nil, &MalformedPlaylistError{Reason: "bad IV: " + err.Error()}
			}
			key.IV = iv
		}
		return key, nil
	default:
		return nil, &MalformedPlaylistError{Reason: "unsupported EXT-X-KEY METHOD: " + method}
	}
}

// sequenceIV derives the implicit IV: the 16-byte big-endian encoding of
// the media sequence number (§4.2).
func sequenceIV(seq int) []byte {
	iv := make([]byte, 16)
	v := seq
	for i := 15; i >= 0 && v > 0; i-- {
		iv[i] = byte(v & 0xff)
		v >>= 8
	}
	return iv
}

func parseIV(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) > 16 {
		return nil, fmt.Errorf("IV longer than 16 bytes")
	}
	if len(b) < 16 {
		padded := make([]byte, 16)
		copy(padded[16-len(b):], b)
		b = padded
	}
	return b, nil
}

func resolveURL(base *url.URL, relative string) string {
	if strings.HasPrefix(relative, "http://") || strings.HasPrefix(relative, "https://") {
		return relative
	}
	rel, err := url.Parse(relative)
	if err != nil {
		return relative
	}
	return base.ResolveReference(rel).String()
}

// parseAttributes parses an HLS attribute-list string, e.g.
// `METHOD=AES-128,URI="https://...",IV=0x0102...`.
func parseAttributes(s string) map[string]string {
	attrs := make(map[string]string)
	var key strings.Builder
	var val strings.Builder
	inValue := false
	inQuotes := false
	flush := func() {
		if key.Len() > 0 {
			attrs[strings.TrimSpace(key.String())] = strings.Trim(strings.TrimSpace(val.String()), `"`)
		}
		key.Reset()
		val.Reset()
		inValue = false
	}
	for _, r := range s {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			val.WriteRune(r)
		case r == '=' && !inValue && !inQuotes:
			inValue = true
		case r == ',' && !inQuotes:
			flush()
		default:
			if inValue {
				val.WriteRune(r)
			} else {
				key.WriteRune(r)
			}
		}
	}
	flush()
	return attrs
}
