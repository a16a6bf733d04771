package coap

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

type Type uint8

const (
	Confirmable     Type = 0
	NonConfirmable  Type = 1
	Acknowledgement Type = 2
	Reset           Type = 3
)

func (t Type) String() string {
	switch t {
	case Confirmable:
		return "CON"
	case NonConfirmable:
		return "NON"
	case Acknowledgement:
		return "ACK"
	case Reset:
		return "RST"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

// Code is class.detail packed into one byte, 3+5 bits.
type Code uint8

func NewCode(class, detail uint8) Code { return Code(class<<5 | detail&0x1f) }

func (c Code) Class() uint8    { return uint8(c) >> 5 }
func (c Code) Detail() uint8   { return uint8(c) & 0x1f }
func (c Code) IsRequest() bool { return c.Class() == 0 && c != Empty }
func (c Code) IsSuccess() bool { return c.Class() == 2 }

func (c Code) String() string {
	switch c {
	case GET:
		return "GET"
	case POST:
		return "POST"
	case PUT:
		return "PUT"
	case DELETE:
		return "DELETE"
	}
	return fmt.Sprintf("%d.%02d", c.Class(), c.Detail())
}

const (
	Empty  Code = 0
	GET    Code = 1
	POST   Code = 2
	PUT    Code = 3
	DELETE Code = 4

	Created Code = 2<<5 | 1
	Deleted Code = 2<<5 | 2
	Valid   Code = 2<<5 | 3
	Changed Code = 2<<5 | 4
	Content Code = 2<<5 | 5

	BadRequest               Code = 4<<5 | 0
	Unauthorized             Code = 4<<5 | 1
	BadOption                Code = 4<<5 | 2
	Forbidden                Code = 4<<5 | 3
	NotFound                 Code = 4<<5 | 4
	MethodNotAllowed         Code = 4<<5 | 5
	NotAcceptable            Code = 4<<5 | 6
	RequestEntityTooLarge    Code = 4<<5 | 13
	UnsupportedContentFormat Code = 4<<5 | 15

	InternalServerError Code = 5<<5 | 0
	NotImplemented      Code = 5<<5 | 1
	BadGateway          Code = 5<<5 | 2
	ServiceUnavailable  Code = 5<<5 | 3
	GatewayTimeout      Code = 5<<5 | 4
)

const MaxTokenLen = 8

// Token correlates response to request. Opaque, 0-8 bytes.
type Token []byte

func (t Token) Equal(other Token) bool { return bytes.Equal(t, other) }
func (t Token) String() string         { return hex.EncodeToString(t) }

type OptionID uint16

const (
	IfMatch       OptionID = 1
	URIHost       OptionID = 3
	ETag          OptionID = 4
	IfNoneMatch   OptionID = 5
	Observe       OptionID = 6
	URIPort       OptionID = 7
	LocationPath  OptionID = 8
	URIPath       OptionID = 11
	ContentFormat OptionID = 12
	MaxAge        OptionID = 14
	URIQuery      OptionID = 15
	Accept        OptionID = 17
	LocationQuery OptionID = 20
	Size2         OptionID = 28
	ProxyURI      OptionID = 35
	ProxyScheme   OptionID = 39
	Size1         OptionID = 60
)

type Option struct {
	ID    OptionID
	Value []byte
}

type MediaType uint16

const (
	TextPlain     MediaType = 0
	AppLinkFormat MediaType = 40
	AppXML        MediaType = 41
	AppOctets     MediaType = 42
	AppJSON       MediaType = 50
	AppCBOR       MediaType = 60
)

func (mt MediaType) String() string {
	switch mt {
	case TextPlain:
		return "text/plain"
	case AppLinkFormat:
		return "application/link-format"
	case AppXML:
		return "application/xml"
	case AppOctets:
		return "application/octet-stream"
	case AppJSON:
		return "application/json"
	case AppCBOR:
		return "application/cbor"
	}
	return fmt.Sprintf("MediaType(%d)", uint16(mt))
}

type Message struct {
	Type      Type
	Code      Code
	MessageID uint16
	Token     Token
	// Sorted by ID, same ID keeps insertion order.
	Options []Option
	Payload []byte
}

func NewRequest(t Type, method Code, path string) *Message {
	m := &Message{Type: t, Code: method}
	m.SetPath(path)
	return m
}

// AddOption inserts after all options with ID <= id.
func (m *Message) AddOption(id OptionID, value []byte) {
	i := sort.Search(len(m.Options), func(i int) bool { return m.Options[i].ID > id })
	m.Options = append(m.Options, Option{})
	copy(m.Options[i+1:], m.Options[i:])
	m.Options[i] = Option{ID: id, Value: value}
}

func (m *Message) RemoveOption(id OptionID) {
	opts := m.Options[:0]
	for _, o := range m.Options {
		if o.ID != id {
			opts = append(opts, o)
		}
	}
	m.Options = opts
}

// Option returns value of first option with id.
func (m *Message) Option(id OptionID) ([]byte, bool) {
	for _, o := range m.Options {
		if o.ID == id {
			return o.Value, true
		}
	}
	return nil, false
}

// SetPath replaces Uri-Path options, one per '/' separated segment.
// No escaping is done.
func (m *Message) SetPath(path string) {
	m.RemoveOption(URIPath)
	if path == "" {
		return
	}
	for _, segment := range strings.Split(path, "/") {
		m.AddOption(URIPath, []byte(segment))
	}
}

func (m *Message) Path() string {
	var segments []string
	for _, o := range m.Options {
		if o.ID == URIPath {
			segments = append(segments, string(o.Value))
		}
	}
	return strings.Join(segments, "/")
}

func (m *Message) SetContentFormat(mt MediaType) {
	m.RemoveOption(ContentFormat)
	m.AddOption(ContentFormat, encodeUint(uint32(mt)))
}

func (m *Message) ContentFormat() (MediaType, bool) {
	v, ok := m.Option(ContentFormat)
	if !ok || len(v) > 2 {
		return 0, false
	}
	return MediaType(decodeUint(v)), true
}

func (m *Message) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "(%s %s mid=%d token=%s", m.Type, m.Code, m.MessageID, m.Token)
	if path := m.Path(); path != "" {
		fmt.Fprintf(&b, " path=%s", path)
	}
	if cf, ok := m.ContentFormat(); ok {
		fmt.Fprintf(&b, " format=%s", cf)
	}
	fmt.Fprintf(&b, " payload=(%d))", len(m.Payload))
	return b.String()
}

// Minimal big-endian, zero is empty.
func encodeUint(v uint32) []byte {
	switch {
	case v == 0:
		return nil
	case v <= 0xff:
		return []byte{byte(v)}
	case v <= 0xffff:
		return []byte{byte(v >> 8), byte(v)}
	case v <= 0xffffff:
		return []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	}
	return []byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}
}

func decodeUint(b []byte) uint32 {
	var v uint32
	for _, x := range b {
		v = v<<8 | uint32(x)
	}
	return v
}
