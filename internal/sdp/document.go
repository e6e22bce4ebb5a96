// Package sdp rewrites offer/answer payloads line by line. It knows just
// enough SDP to reorder audio codecs and tweak fmtp parameters; anything it
// does not recognise is passed through untouched.
package sdp

import (
	"strconv"
	"strings"
)

const (
	crlf = "\r\n"
	lf   = "\n"
)

// Document is an SDP payload split into lines. EOL is the terminator found in
// the input and is reused when the document is reassembled.
type Document struct {
	Lines []string
	EOL   string
}

// Parse splits text into a Document. A trailing terminator produces a final
// empty line so that String() reproduces the input byte for byte.
func Parse(text string) Document {
	eol := lf
	if strings.Contains(text, crlf) {
		eol = crlf
	}
	return Document{
		Lines: strings.Split(text, eol),
		EOL:   eol,
	}
}

// String joins the lines back together with the original terminator.
func (d Document) String() string {
	return strings.Join(d.Lines, d.EOL)
}

// mediaLine returns the index of the first m= line for the given media kind,
// or -1.
func (d Document) mediaLine(kind string) int {
	prefix := "m=" + kind + " "
	for i, line := range d.Lines {
		if strings.HasPrefix(line, prefix) {
			return i
		}
	}
	return -1
}

// rtpmapPayload returns the payload type of the first a=rtpmap line mapping
// to codecName/clockRate. The codec name is compared case-insensitively.
func (d Document) rtpmapPayload(codecName string, clockRate int) (string, bool) {
	rate := strconv.Itoa(clockRate)
	for _, line := range d.Lines {
		pt, name, r, ok := parseRtpmap(line)
		if ok && strings.EqualFold(name, codecName) && r == rate {
			return pt, true
		}
	}
	return "", false
}

// parseRtpmap splits "a=rtpmap:<pt> <name>/<rate>[/<channels>]".
func parseRtpmap(line string) (pt, name, rate string, ok bool) {
	rest, found := strings.CutPrefix(line, "a=rtpmap:")
	if !found {
		return "", "", "", false
	}
	pt, encoding, found := strings.Cut(rest, " ")
	if !found || !isDigits(pt) {
		return "", "", "", false
	}
	parts := strings.Split(strings.TrimSpace(encoding), "/")
	if len(parts) < 2 || parts[0] == "" || !isDigits(parts[1]) {
		return "", "", "", false
	}
	return pt, parts[0], parts[1], true
}

// fmtpPayload extracts the payload type from an "a=fmtp:<pt> ..." line.
func fmtpPayload(line string) (string, bool) {
	rest, found := strings.CutPrefix(line, "a=fmtp:")
	if !found {
		return "", false
	}
	end := 0
	for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
		end++
	}
	if end == 0 {
		return "", false
	}
	return rest[:end], true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
