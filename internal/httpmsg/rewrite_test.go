package httpmsg

import (
	"bytes"
	"testing"
)

func TestRewriteBitrate(t *testing.T) {
	msg := []byte("GET /vod/bunny_300000bps/seg1.m4s HTTP/1.1\r\n" +
		"Host: origin:8080\r\n" +
		"\r\n")

	got := RewriteBitrate(msg, 500000)

	expected := []byte("GET /vod/bunny_500000bps/seg1.m4s HTTP/1.1\r\n" +
		"Host: origin:8080\r\n" +
		"\r\n")
	if !bytes.Equal(got, expected) {
		t.Errorf("RewriteBitrate() =\n%q\nwant\n%q", got, expected)
	}
}

// Every byte outside the digits of the token must survive the rewrite.
func TestRewriteBitrate_ByteTransparent(t *testing.T) {
	msg := []byte("GET /vod/bunny_300000bps/seg1.m4s HTTP/1.1\r\nX-Odd: \x00\xff\r\n\r\n")

	got := RewriteBitrate(msg, 900000)

	prefix := []byte("GET /vod/bunny_")
	suffix := []byte("bps/seg1.m4s HTTP/1.1\r\nX-Odd: \x00\xff\r\n\r\n")
	if !bytes.HasPrefix(got, prefix) || !bytes.HasSuffix(got, suffix) {
		t.Fatalf("rewrite disturbed surrounding bytes: %q", got)
	}
	middle := got[len(prefix) : len(got)-len(suffix)]
	if string(middle) != "900000" {
		t.Errorf("rewritten rate = %q, want 900000", middle)
	}
}

func TestRewriteBitrate_NoToken(t *testing.T) {
	msg := []byte("GET /vod/big_buck_bunny.f4m HTTP/1.1\r\n\r\n")
	if got := RewriteBitrate(msg, 500000); !bytes.Equal(got, msg) {
		t.Errorf("RewriteBitrate() without token changed the message: %q", got)
	}
}

func TestRewriteBitrate_ShorterAndLongerRates(t *testing.T) {
	msg := []byte("GET /a_500000bps/x HTTP/1.1\r\n\r\n")

	shorter := RewriteBitrate(msg, 99)
	if !bytes.Equal(shorter, []byte("GET /a_99bps/x HTTP/1.1\r\n\r\n")) {
		t.Errorf("shorter rate rewrite = %q", shorter)
	}

	longer := RewriteBitrate(msg, 12500000)
	if !bytes.Equal(longer, []byte("GET /a_12500000bps/x HTTP/1.1\r\n\r\n")) {
		t.Errorf("longer rate rewrite = %q", longer)
	}
}

func TestIsManifestRequest(t *testing.T) {
	tests := []struct {
		name     string
		msg      string
		expected bool
	}{
		{
			name:     "manifest request",
			msg:      "GET /vod/big_buck_bunny.f4m HTTP/1.1\r\n\r\n",
			expected: true,
		},
		{
			name:     "no-listing variant is not re-bootstrapped",
			msg:      "GET /vod/big_buck_bunny_nolist.f4m HTTP/1.1\r\n\r\n",
			expected: false,
		},
		{
			name:     "segment request",
			msg:      "GET /vod/bunny_300000bps/seg1.m4s HTTP/1.1\r\n\r\n",
			expected: false,
		},
		{
			name:     "response is never a manifest request",
			msg:      "HTTP/1.1 200 OK\r\n\r\n",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsManifestRequest([]byte(tt.msg), ".f4m", "_nolist")
			if got != tt.expected {
				t.Errorf("IsManifestRequest() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRewriteManifestNoList(t *testing.T) {
	msg := []byte("GET /vod/big_buck_bunny.f4m HTTP/1.1\r\nHost: o\r\n\r\n")

	got := RewriteManifestNoList(msg, ".f4m", "_nolist")

	expected := []byte("GET /vod/big_buck_bunny_nolist.f4m HTTP/1.1\r\nHost: o\r\n\r\n")
	if !bytes.Equal(got, expected) {
		t.Errorf("RewriteManifestNoList() =\n%q\nwant\n%q", got, expected)
	}

	// Idempotent: rewriting the variant again is a no-op.
	again := RewriteManifestNoList(got, ".f4m", "_nolist")
	if !bytes.Equal(again, expected) {
		t.Errorf("second rewrite changed the message: %q", again)
	}
}

func TestRewriteManifestNoList_NonManifest(t *testing.T) {
	msg := []byte("GET /vod/bunny_300000bps/seg1.m4s HTTP/1.1\r\n\r\n")
	if got := RewriteManifestNoList(msg, ".f4m", "_nolist"); !bytes.Equal(got, msg) {
		t.Errorf("non-manifest request was rewritten: %q", got)
	}
}
