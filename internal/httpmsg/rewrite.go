package httpmsg

import (
	"bytes"
	"strconv"
	"strings"
)

// Rewriting splices bytes in place of the matched span and leaves every other
// byte of the message unchanged, so relayed traffic stays byte-transparent
// outside the two special-cased patterns.

// RewriteBitrate returns msg with the numeric part of the first bitrate token
// replaced by bps. When msg carries no token it is returned unchanged.
func RewriteBitrate(msg []byte, bps int) []byte {
	loc := reBitrateToken.FindSubmatchIndex(msg)
	if loc == nil {
		return msg
	}

	// loc[4]:loc[5] is the digits capture group.
	digits := []byte(strconv.Itoa(bps))
	out := make([]byte, 0, len(msg)-(loc[5]-loc[4])+len(digits))
	out = append(out, msg[:loc[4]]...)
	out = append(out, digits...)
	out = append(out, msg[loc[5]:]...)
	return out
}

// requestPathSpan returns the byte range [start, end) of the path in the
// message's `GET <path> HTTP...` request line.
func requestPathSpan(msg []byte) (start, end int, ok bool) {
	offset := 0
	for _, line := range bytes.Split(msg, crlf) {
		lineStart := offset
		offset += len(line) + len(crlf)

		if !bytes.HasPrefix(line, []byte("GET ")) {
			continue
		}
		rest := line[len("GET "):]
		sp := bytes.IndexByte(rest, ' ')
		if sp < 0 || !bytes.HasPrefix(rest[sp+1:], []byte("HTTP")) {
			continue
		}

		start = lineStart + len("GET ")
		return start, start + sp, true
	}
	return 0, 0, false
}

// IsManifestRequest reports whether msg requests the manifest resource: the
// request path ends in ext and is not already the no-listing variant.
func IsManifestRequest(msg []byte, ext, nolistSuffix string) bool {
	start, end, ok := requestPathSpan(msg)
	if !ok {
		return false
	}
	path := string(msg[start:end])
	if !strings.HasSuffix(path, ext) {
		return false
	}
	base := strings.TrimSuffix(path, ext)
	return !strings.HasSuffix(base, nolistSuffix)
}

// RewriteManifestNoList returns msg with the manifest path in the request
// line rewritten to its no-listing variant (`name.f4m` → `name_nolist.f4m`).
// Idempotent: a request already naming the variant is returned unchanged.
func RewriteManifestNoList(msg []byte, ext, nolistSuffix string) []byte {
	start, end, ok := requestPathSpan(msg)
	if !ok {
		return msg
	}

	path := string(msg[start:end])
	if !strings.HasSuffix(path, ext) {
		return msg
	}
	base := strings.TrimSuffix(path, ext)
	if strings.HasSuffix(base, nolistSuffix) {
		return msg
	}

	newPath := base + nolistSuffix + ext
	out := make([]byte, 0, len(msg)+len(nolistSuffix))
	out = append(out, msg[:start]...)
	out = append(out, newPath...)
	out = append(out, msg[end:]...)
	return out
}
