package sdp

import (
	"strings"
)

// Format of an m= line: "m=<media> <port> <proto> <fmt> ...". Payload types
// start at the fourth field.
const firstPayloadField = 3

// comfortNoise is the rtpmap encoding name of the CN codec.
const comfortNoise = "CN"

// PreferCodec moves codecName/clockRate to the front of the first audio m=
// line and strips every comfort-noise payload from it. Input without an audio
// section is returned as is; input without the codec only loses its CN
// entries.
func PreferCodec(text, codecName string, clockRate int) string {
	doc := Parse(text)
	mLine := doc.mediaLine("audio")
	if mLine < 0 {
		return text
	}

	if pt, ok := doc.rtpmapPayload(codecName, clockRate); ok {
		doc.Lines[mLine] = setDefaultCodec(doc.Lines[mLine], pt)
	}

	doc = removeComfortNoise(doc, mLine)
	return doc.String()
}

// InjectStereo appends " stereo=1" to the fmtp line of codecName/clockRate.
// Nothing is synthesized: a missing rtpmap or fmtp line leaves text unchanged.
func InjectStereo(text, codecName string, clockRate int) string {
	doc := Parse(text)
	pt, ok := doc.rtpmapPayload(codecName, clockRate)
	if !ok {
		return text
	}

	for i, line := range doc.Lines {
		if payload, ok := fmtpPayload(line); ok && payload == pt {
			doc.Lines[i] = line + " stereo=1"
			return doc.String()
		}
	}
	return text
}

// setDefaultCodec puts payload first in the m= line's format list, keeping
// the relative order of the others. A payload missing from the list leaves
// the line alone.
func setDefaultCodec(mLine, payload string) string {
	fields := strings.Split(mLine, " ")
	if len(fields) <= firstPayloadField {
		return mLine
	}

	formats := fields[firstPayloadField:]
	found := false
	for _, f := range formats {
		if f == payload {
			found = true
			break
		}
	}
	if !found {
		return mLine
	}

	out := make([]string, 0, len(fields))
	out = append(out, fields[:firstPayloadField]...)
	out = append(out, payload)
	for _, f := range formats {
		if f != payload {
			out = append(out, f)
		}
	}
	return strings.Join(out, " ")
}

// removeComfortNoise drops every "a=rtpmap:<pt> CN/<rate>" line and removes
// those payloads from the m= line at mLine. Lines are filtered in a single
// pass into a new slice, so no index is invalidated while deleting.
func removeComfortNoise(doc Document, mLine int) Document {
	cn := make(map[string]struct{})
	for _, line := range doc.Lines {
		if pt, name, _, ok := parseRtpmap(line); ok && strings.EqualFold(name, comfortNoise) {
			cn[pt] = struct{}{}
		}
	}
	if len(cn) == 0 {
		return doc
	}

	fields := strings.Split(doc.Lines[mLine], " ")
	if len(fields) > firstPayloadField {
		kept := append([]string(nil), fields[:firstPayloadField]...)
		for _, f := range fields[firstPayloadField:] {
			if _, drop := cn[f]; !drop {
				kept = append(kept, f)
			}
		}
		fields = kept
	}

	lines := make([]string, 0, len(doc.Lines))
	for i, line := range doc.Lines {
		if i == mLine {
			lines = append(lines, strings.Join(fields, " "))
			continue
		}
		if pt, name, _, ok := parseRtpmap(line); ok && strings.EqualFold(name, comfortNoise) {
			if _, drop := cn[pt]; drop {
				continue
			}
		}
		lines = append(lines, line)
	}
	return Document{Lines: lines, EOL: doc.EOL}
}
