package lightdb

import (
	"fmt"
	"strings"

	"github.com/juju/errors"
)

type StoreKind uint8

const (
	State StoreKind = iota
	Stream
)

const (
	statePrefix  = ".d/"
	streamPrefix = ".s/"
)

func (k StoreKind) String() string {
	switch k {
	case State:
		return "state"
	case Stream:
		return "stream"
	}
	return fmt.Sprintf("StoreKind(%d)", uint8(k))
}

// Prefix returns wire path prefix. Panics on invalid kind.
func (k StoreKind) Prefix() string {
	switch k {
	case State:
		return statePrefix
	case Stream:
		return streamPrefix
	}
	panic(fmt.Sprintf("code error invalid StoreKind=%d", uint8(k)))
}

func ParseStoreKind(s string) (StoreKind, error) {
	switch strings.ToLower(s) {
	case "state", "d":
		return State, nil
	case "stream", "s":
		return Stream, nil
	}
	return 0, errors.NotValidf("store kind=%q", s)
}

// FormatPath maps logical record path to resource path.
// No escaping or validation, path must be plain ASCII without control characters.
func FormatPath(kind StoreKind, path string) string {
	return kind.Prefix() + path
}
