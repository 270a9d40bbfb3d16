package common

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
)

// ClientIP returns the host part of RemoteAddr. Proxy headers are trusted only through
// chi's RealIP middleware, which rewrites RemoteAddr before this runs.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// QueryInt reads a positive integer query parameter, returning def when it is absent or invalid.
func QueryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil || n < 1 {
		return def
	}
	return n
}

// HashKey digests parts into a fixed-length hex string for use inside Redis keys.
func HashKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}
