package helpers

import (
	"encoding/hex"
	"strings"

	"github.com/juju/errors"
)

// ParseHex accepts "0a1b", "0A:1B" and "0a 1b" forms.
func ParseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(":", "", " ", "", "\n", "").Replace(s)
	b, err := hex.DecodeString(s)
	return b, errors.Annotate(err, "hex")
}
