package model

import (
	"errors"
	"strings"
)

// Kind identifies one extractable artifact family.
type Kind string

const (
	KindMP4      Kind = "mp4"
	KindMP3      Kind = "mp3"
	KindWAV      Kind = "wav"
	KindImages1  Kind = "img1"  // 1 fps JPEG sequence
	KindImages25 Kind = "img25" // 25 fps JPEG sequence
)

// AllKinds lists every extractable kind in a stable order.
var AllKinds = []Kind{KindMP4, KindMP3, KindWAV, KindImages1, KindImages25}

func (k Kind) IsValid() bool {
	switch k {
	case KindMP4, KindMP3, KindWAV, KindImages1, KindImages25:
		return true
	default:
		return false
	}
}

// FPS returns the sampling rate for image kinds, 0 otherwise.
func (k Kind) FPS() int {
	switch k {
	case KindImages1:
		return 1
	case KindImages25:
		return 25
	default:
		return 0
	}
}

// KindSet is the set of artifact kinds requested for one job. Any subset,
// including the empty set, is valid; the empty set is a no-op for the
// extractor.
type KindSet map[Kind]bool

// ParseKindSet builds a KindSet from request strings, rejecting unknowns.
func ParseKindSet(names []string) (KindSet, error) {
	set := KindSet{}
	for _, n := range names {
		k := Kind(strings.ToLower(strings.TrimSpace(n)))
		if !k.IsValid() {
			return nil, ErrUnknownKind
		}
		set[k] = true
	}
	return set, nil
}

func (s KindSet) Has(k Kind) bool { return s[k] }

func (s KindSet) IsEmpty() bool { return len(s) == 0 }

// Names returns the requested kinds in AllKinds order, for persistence.
func (s KindSet) Names() []string {
	var names []string
	for _, k := range AllKinds {
		if s[k] {
			names = append(names, string(k))
		}
	}
	return names
}

// ErrUnknownKind is returned when a request names an unsupported kind.
var ErrUnknownKind = errors.New("unknown artifact kind")
