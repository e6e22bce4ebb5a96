package signaling

// Well-known constraint names understood by the media endpoint.
const (
	OfferToReceiveAudio = "OfferToReceiveAudio"
	OfferToReceiveVideo = "OfferToReceiveVideo"
)

// Constraint is one optional offer/answer constraint.
type Constraint struct {
	Name  string `yaml:"name"`
	Value bool   `yaml:"value"`
}

// Constraints are the offer/answer constraints handed to the media endpoint.
type Constraints struct {
	Mandatory map[string]bool `yaml:"mandatory"`
	Optional  []Constraint    `yaml:"optional"`
}

// DefaultSDPConstraints asks to receive audio and video regardless of which
// local devices are present.
func DefaultSDPConstraints() Constraints {
	return Constraints{
		Mandatory: map[string]bool{
			OfferToReceiveAudio: true,
			OfferToReceiveVideo: true,
		},
	}
}

// MergeConstraints combines two constraint sets into a new one. Mandatory
// entries of b override those of a; optional lists are concatenated, a first.
// Neither argument is modified.
func MergeConstraints(a, b Constraints) Constraints {
	merged := Constraints{}

	if len(a.Mandatory)+len(b.Mandatory) > 0 {
		merged.Mandatory = make(map[string]bool, len(a.Mandatory)+len(b.Mandatory))
		for k, v := range a.Mandatory {
			merged.Mandatory[k] = v
		}
		for k, v := range b.Mandatory {
			merged.Mandatory[k] = v
		}
	}

	if len(a.Optional)+len(b.Optional) > 0 {
		merged.Optional = make([]Constraint, 0, len(a.Optional)+len(b.Optional))
		merged.Optional = append(merged.Optional, a.Optional...)
		merged.Optional = append(merged.Optional, b.Optional...)
	}

	return merged
}

// Wants reports whether the named constraint is enabled. Mandatory entries win
// over optional ones; among optional entries the first occurrence counts.
func (c Constraints) Wants(name string) bool {
	if v, ok := c.Mandatory[name]; ok {
		return v
	}
	for _, o := range c.Optional {
		if o.Name == name {
			return o.Value
		}
	}
	return false
}
