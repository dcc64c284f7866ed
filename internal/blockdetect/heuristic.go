// Package blockdetect decides whether fetched markup is a block or CAPTCHA
// interstitial rather than real content.
package blockdetect

import (
	"bytes"
	"fmt"
)

// Heuristic implements a handful of rule-based detections. A page is treated
// as blocked when it carries a known interstitial marker or when the body is
// suspiciously short for a listing site.
type Heuristic struct {
	MinBodyBytes int
	markers      [][]byte
}

// NewHeuristic creates a new detector. A zero threshold picks the default.
func NewHeuristic(minBodyBytes int) *Heuristic {
	if minBodyBytes == 0 {
		minBodyBytes = 5000
	}
	return &Heuristic{
		MinBodyBytes: minBodyBytes,
		markers:      defaultMarkers,
	}
}

var defaultMarkers = [][]byte{
	[]byte("captcha"),
	[]byte("cloudflare"),
	[]byte("access denied"),
	[]byte("checking your browser"),
	[]byte("ddos protection"),
	[]byte("you have been blocked"),
}

// Detect reports whether the body looks like a block page, and why.
func (h *Heuristic) Detect(body []byte) (string, bool) {
	if len(body) == 0 {
		return "", false
	}
	lower := bytes.ToLower(body)
	for _, marker := range h.markers {
		if bytes.Contains(lower, marker) {
			return fmt.Sprintf("marker:%s", marker), true
		}
	}
	if len(body) < h.MinBodyBytes {
		return fmt.Sprintf("short_body:%d", len(body)), true
	}
	return "", false
}
