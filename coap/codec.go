package coap

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/juju/errors"
)

var (
	ErrInvalidVersion     = fmt.Errorf("invalid version")
	ErrInvalidTokenLength = fmt.Errorf("invalid token length")
	ErrMessageTooLarge    = fmt.Errorf("message is too large")
	ErrOptionReserved     = fmt.Errorf("option nibble 15 is reserved")
	ErrOptionTooLong      = fmt.Errorf("option value is too long")
	ErrPayloadEmpty       = fmt.Errorf("payload marker followed by empty payload")
)

const (
	Version    = 1
	HeaderSize = 4

	payloadMarker = byte(0xff)

	extByte   = 13
	extWord   = 14
	extByteAt = 13
	extWordAt = 13 + 0xff + 1
	maxOptLen = extWordAt + 0xffff
)

// Size returns exact marshaled length of m.
func Size(m *Message) (int, error) {
	if len(m.Token) > MaxTokenLen {
		return 0, errors.Annotatef(ErrInvalidTokenLength, "len=%d", len(m.Token))
	}
	n := HeaderSize + len(m.Token)
	prev := 0
	for _, o := range sortedOptions(m.Options) {
		if len(o.Value) > maxOptLen {
			return 0, errors.Annotatef(ErrOptionTooLong, "option=%d len=%d", o.ID, len(o.Value))
		}
		n += 1 + extLen(int(o.ID)-prev) + extLen(len(o.Value)) + len(o.Value)
		prev = int(o.ID)
	}
	if len(m.Payload) != 0 {
		n += 1 + len(m.Payload)
	}
	return n, nil
}

// Marshal encodes m into single datagram.
// limit>0 rejects messages longer than limit with ErrMessageTooLarge.
func Marshal(m *Message, limit int) ([]byte, error) {
	size, err := Size(m)
	if err != nil {
		return nil, err
	}
	if limit > 0 && size > limit {
		return nil, errors.Annotatef(ErrMessageTooLarge, "size=%d limit=%d", size, limit)
	}

	b := make([]byte, HeaderSize, size)
	b[0] = Version<<6 | byte(m.Type&0x3)<<4 | byte(len(m.Token))
	b[1] = byte(m.Code)
	binary.BigEndian.PutUint16(b[2:], m.MessageID)
	b = append(b, m.Token...)

	prev := 0
	for _, o := range sortedOptions(m.Options) {
		delta := int(o.ID) - prev
		dn, dext := nibble(delta)
		ln, lext := nibble(len(o.Value))
		b = append(b, dn<<4|ln)
		b = append(b, dext...)
		b = append(b, lext...)
		b = append(b, o.Value...)
		prev = int(o.ID)
	}
	if len(m.Payload) != 0 {
		b = append(b, payloadMarker)
		b = append(b, m.Payload...)
	}
	return b, nil
}

// Unmarshal decodes one datagram into m.
// Token, option values and payload are copied, b may be reused after return.
func Unmarshal(b []byte, m *Message) error {
	if len(b) < HeaderSize {
		return errors.Annotate(io.ErrUnexpectedEOF, "header")
	}
	if v := b[0] >> 6; v != Version {
		return errors.Annotatef(ErrInvalidVersion, "version=%d", v)
	}
	tkl := int(b[0] & 0x0f)
	if tkl > MaxTokenLen {
		return errors.Annotatef(ErrInvalidTokenLength, "len=%d", tkl)
	}
	*m = Message{
		Type:      Type(b[0]>>4) & 0x3,
		Code:      Code(b[1]),
		MessageID: binary.BigEndian.Uint16(b[2:]),
	}
	rest := b[HeaderSize:]
	if len(rest) < tkl {
		return errors.Annotate(io.ErrUnexpectedEOF, "token")
	}
	if tkl > 0 {
		m.Token = append(Token(nil), rest[:tkl]...)
	}
	rest = rest[tkl:]

	var err error
	prev := 0
	for len(rest) > 0 {
		if rest[0] == payloadMarker {
			if len(rest) == 1 {
				return ErrPayloadEmpty
			}
			m.Payload = append([]byte(nil), rest[1:]...)
			return nil
		}
		delta, length := int(rest[0]>>4), int(rest[0]&0x0f)
		rest = rest[1:]
		if delta, rest, err = readExt(delta, rest); err != nil {
			return errors.Annotate(err, "option delta")
		}
		if length, rest, err = readExt(length, rest); err != nil {
			return errors.Annotate(err, "option length")
		}
		if len(rest) < length {
			return errors.Annotate(io.ErrUnexpectedEOF, "option value")
		}
		prev += delta
		m.Options = append(m.Options, Option{
			ID:    OptionID(prev),
			Value: append([]byte(nil), rest[:length]...),
		})
		rest = rest[length:]
	}
	return nil
}

func nibble(v int) (byte, []byte) {
	switch {
	case v < extByteAt:
		return byte(v), nil
	case v < extWordAt:
		return extByte, []byte{byte(v - extByteAt)}
	}
	var ext [2]byte
	binary.BigEndian.PutUint16(ext[:], uint16(v-extWordAt))
	return extWord, ext[:]
}

func extLen(v int) int {
	switch {
	case v < extByteAt:
		return 0
	case v < extWordAt:
		return 1
	}
	return 2
}

func readExt(n int, b []byte) (int, []byte, error) {
	switch n {
	case extByte:
		if len(b) < 1 {
			return 0, b, io.ErrUnexpectedEOF
		}
		return extByteAt + int(b[0]), b[1:], nil
	case extWord:
		if len(b) < 2 {
			return 0, b, io.ErrUnexpectedEOF
		}
		return extWordAt + int(binary.BigEndian.Uint16(b)), b[2:], nil
	case 15:
		return 0, b, ErrOptionReserved
	}
	return n, b, nil
}

func sortedOptions(opts []Option) []Option {
	if sort.SliceIsSorted(opts, func(i, j int) bool { return opts[i].ID < opts[j].ID }) {
		return opts
	}
	sorted := append([]Option(nil), opts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return sorted
}
