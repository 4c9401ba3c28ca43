package scheduler

import (
	"github.com/gogo/protobuf/proto"

	"github.com/iov-one/upgrade/errors"
)

// Unit is the name under which the scheduler schema version is stamped.
const Unit = "scheduler"

var (
	// LegacyAgendaPrefix is the key prefix of version 0 agenda entries.
	LegacyAgendaPrefix = []byte("sched:agenda:")
	// AgendaPrefix is the key prefix of version 1 agenda entries.
	AgendaPrefix = []byte("sched:agenda1:")
)

// Scheduled is a call waiting for its execution. It is stored protobuf
// encoded.
type Scheduled struct {
	Priority uint32 `protobuf:"varint,1,opt,name=priority,proto3" json:"priority,omitempty"`
	Call     []byte `protobuf:"bytes,2,opt,name=call,proto3" json:"call,omitempty"`
}

var _ proto.Message = (*Scheduled)(nil)

func (s *Scheduled) Reset()         { *s = Scheduled{} }
func (s *Scheduled) String() string { return proto.CompactTextString(s) }
func (*Scheduled) ProtoMessage()    {}

func (s *Scheduled) Validate() error {
	if len(s.Call) == 0 {
		return errors.Field("Call", errors.ErrEmpty, "required")
	}
	return nil
}

// EncodeScheduled serializes an agenda entry.
func EncodeScheduled(s *Scheduled) ([]byte, error) {
	raw, err := proto.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	return raw, nil
}

// DecodeScheduled deserializes an agenda entry.
func DecodeScheduled(raw []byte) (*Scheduled, error) {
	var s Scheduled
	if err := proto.Unmarshal(raw, &s); err != nil {
		return nil, errors.Wrap(errors.ErrState, err.Error())
	}
	return &s, nil
}

// AgendaKey returns the version 1 key of the agenda entry with given ID.
func AgendaKey(id []byte) []byte {
	return append(append([]byte{}, AgendaPrefix...), id...)
}

// LegacyAgendaKey returns the version 0 key of the agenda entry with given
// ID.
func LegacyAgendaKey(id []byte) []byte {
	return append(append([]byte{}, LegacyAgendaPrefix...), id...)
}

// decodeLegacy reads a version 0 agenda entry.
func decodeLegacy(raw []byte) (*Scheduled, error) {
	if len(raw) < 2 {
		return nil, errors.Wrapf(errors.ErrInput, "malformed legacy entry %X", raw)
	}
	s := &Scheduled{
		Priority: uint32(raw[0]),
		Call:     append([]byte{}, raw[1:]...),
	}
	return s, nil
}
