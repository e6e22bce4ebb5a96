package sdp

import (
	"errors"
	"fmt"
	"strconv"

	pionsdp "github.com/pion/sdp/v3"
)

var errNoAudio = errors.New("sdp: no audio media section")

// Codec describes one payload type of a media section.
type Codec struct {
	PayloadType uint8
	Name        string
	ClockRate   uint32
	Fmtp        string
}

func (c Codec) String() string {
	return fmt.Sprintf("%d %s/%d", c.PayloadType, c.Name, c.ClockRate)
}

// AudioCodecs parses text with a full SDP parser and returns the codecs of the
// first audio section in m= line order. Payload types without an rtpmap entry
// (static types) are reported with an empty name.
func AudioCodecs(text string) ([]Codec, error) {
	var desc pionsdp.SessionDescription
	if err := desc.Unmarshal([]byte(text)); err != nil {
		return nil, fmt.Errorf("parse sdp: %w", err)
	}

	for _, md := range desc.MediaDescriptions {
		if md.MediaName.Media != "audio" {
			continue
		}

		codecs := make([]Codec, 0, len(md.MediaName.Formats))
		for _, format := range md.MediaName.Formats {
			pt, err := strconv.ParseUint(format, 10, 8)
			if err != nil {
				continue
			}
			codec := Codec{PayloadType: uint8(pt)}
			if c, err := desc.GetCodecForPayloadType(uint8(pt)); err == nil {
				codec.Name = c.Name
				codec.ClockRate = c.ClockRate
				codec.Fmtp = c.Fmtp
			}
			codecs = append(codecs, codec)
		}
		return codecs, nil
	}
	return nil, errNoAudio
}
