package bytecode

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// StreamVersion is the current encoded stream format version.
// Increment when making incompatible changes to the format.
const StreamVersion uint16 = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// wireStream is the encoded form of a Stream.
type wireStream struct {
	Version         uint16                `cbor:"1,keyasint"`
	Code            []Instruction         `cbor:"2,keyasint"`
	Labels          []Linkage             `cbor:"3,keyasint,omitempty"`
	Linked          bool                  `cbor:"4,keyasint"`
	HasErrorHandler bool                  `cbor:"5,keyasint,omitempty"`
	Data            map[int][]Instruction `cbor:"6,keyasint,omitempty"`
}

// MarshalStream serializes a stream to canonical CBOR bytes.
func MarshalStream(s *Stream) ([]byte, error) {
	w := wireStream{
		Version:         StreamVersion,
		Code:            s.code,
		Labels:          s.Labels(),
		Linked:          s.linked,
		HasErrorHandler: s.hasErrorHandler,
	}
	if len(s.Data) > 0 {
		w.Data = make(map[int][]Instruction, len(s.Data))
		for line, d := range s.Data {
			w.Data[line] = d.code
		}
	}
	return cborEncMode.Marshal(&w)
}

// UnmarshalStream deserializes a stream from CBOR bytes.
func UnmarshalStream(data []byte) (*Stream, error) {
	var w wireStream
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal stream: %w", err)
	}
	if w.Version > StreamVersion {
		return nil, fmt.Errorf("bytecode: stream version %d is newer than supported version %d", w.Version, StreamVersion)
	}
	s := NewStream()
	s.code = append(s.code, w.Code...)
	for _, l := range w.Labels {
		s.AddLabel(l.Name, l.StatementID, l.Address)
	}
	s.linked = w.Linked
	s.hasErrorHandler = w.HasErrorHandler
	if len(w.Data) > 0 {
		s.Data = make(map[int]*Stream, len(w.Data))
		for line, code := range w.Data {
			d := NewStream()
			d.code = append(d.code, code...)
			s.Data[line] = d
		}
	}
	return s, nil
}
