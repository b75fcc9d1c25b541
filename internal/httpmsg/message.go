// Package httpmsg provides the small, purpose-built scanners the proxy needs
// over raw HTTP/1.x-shaped byte buffers: content length, request path, the
// bitrate token embedded in segment paths, and the bandwidth attributes of a
// manifest body.
//
// No full HTTP grammar is parsed. The proxy only ever special-cases two URL
// patterns — the manifest filename and `<name>_<digits>bps` segment paths —
// and everything else passes through untouched, so these scanners are pure,
// allocation-light and safe to call concurrently from multiple sessions.
//
// Example request the proxy rewrites:
//
//	GET /vod/bunny_300000bps/seg1.m4s HTTP/1.1
//	Host: origin:8080
//
// Example manifest fragment the catalog is bootstrapped from:
//
//	<media url="bunny_300000bps/" bitrate="300" bandwidth="300000"/>
package httpmsg

import (
	"bytes"
	"errors"
	"regexp"
	"strconv"
)

// ErrMalformedRequest is returned when a buffer contains no recognizable
// request line. Callers treat it as non-fatal: skip the optional field (chunk
// name logging) and keep relaying.
var ErrMalformedRequest = errors.New("no request line in message")

// Scanner patterns, compiled once at package init.
var (
	// bunny_300000bps or seg2_1200000bps — identifier plus encoded rate
	reBitrateToken = regexp.MustCompile(`([A-Za-z0-9.\-]+)_(\d+)bps`)

	// bandwidth="300000" attributes in a manifest body
	reBandwidth = regexp.MustCompile(`bandwidth="(\d+)"`)
)

var (
	contentLengthKey = []byte("content-length:")
	crlf             = []byte("\r\n")
)

// ContentLength returns the value of the Content-Length header in msg, or 0
// when the header is absent or unparsable. 0 is the valid "unknown length"
// sentinel, never an error.
func ContentLength(msg []byte) int64 {
	for _, line := range bytes.Split(msg, crlf) {
		if len(line) == 0 {
			break // end of header block
		}
		if len(line) < len(contentLengthKey) {
			continue
		}
		if !bytes.EqualFold(line[:len(contentLengthKey)], contentLengthKey) {
			continue
		}
		v := bytes.TrimSpace(line[len(contentLengthKey):])
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil || n < 0 {
			return 0
		}
		return n
	}
	return 0
}

// ChunkName returns the request path from a `GET <path> HTTP...` request
// line, for logging. Returns ErrMalformedRequest when msg holds no such line.
func ChunkName(msg []byte) (string, error) {
	for _, line := range bytes.Split(msg, crlf) {
		if !bytes.HasPrefix(line, []byte("GET ")) {
			continue
		}
		rest := line[len("GET "):]
		sp := bytes.IndexByte(rest, ' ')
		if sp < 0 {
			continue
		}
		if !bytes.HasPrefix(rest[sp+1:], []byte("HTTP")) {
			continue
		}
		return string(rest[:sp]), nil
	}
	return "", ErrMalformedRequest
}

// BitrateToken returns the first path token of the form
// `<identifier>_<digits>bps` found in msg, and whether one was present.
func BitrateToken(msg []byte) (string, bool) {
	m := reBitrateToken.Find(msg)
	if m == nil {
		return "", false
	}
	return string(m), true
}

// ManifestBitrates returns every bandwidth="<digits>" attribute value found
// in a manifest body, in document order, unsorted. The caller sorts.
func ManifestBitrates(body []byte) []int {
	matches := reBandwidth.FindAllSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}

	out := make([]int, 0, len(matches))
	for _, m := range matches {
		n, err := strconv.Atoi(string(m[1]))
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}
