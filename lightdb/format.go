package lightdb

import (
	"encoding/json"
	"reflect"
	"strings"

	"github.com/devtele/lightdb/coap"
	"github.com/fxamacker/cbor/v2"
	"github.com/juju/errors"
)

// Format serializes records, selected by Content-Format option.
type Format interface {
	MediaType() coap.MediaType
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(b []byte, v interface{}) error
}

var (
	JSON Format = jsonFormat{}
	CBOR Format = newCBORFormat()
)

// FormatByName accepts "json", "cbor" or media type names, empty means JSON.
func FormatByName(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "", "json", coap.AppJSON.String():
		return JSON, nil
	case "cbor", coap.AppCBOR.String():
		return CBOR, nil
	}
	return nil, errors.NotSupportedf("content format=%q", name)
}

func FormatByMediaType(mt coap.MediaType) (Format, bool) {
	switch mt {
	case coap.AppJSON:
		return JSON, true
	case coap.AppCBOR:
		return CBOR, true
	}
	return nil, false
}

type jsonFormat struct{}

func (jsonFormat) MediaType() coap.MediaType               { return coap.AppJSON }
func (jsonFormat) Marshal(v interface{}) ([]byte, error)   { return json.Marshal(v) }
func (jsonFormat) Unmarshal(b []byte, v interface{}) error { return json.Unmarshal(b, v) }

type cborFormat struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORFormat() cborFormat {
	enc, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("code error cbor encoder options: " + err.Error())
	}
	dec, err := cbor.DecOptions{
		// same shape as encoding/json for interface{} targets
		DefaultMapType: reflect.TypeOf(map[string]interface{}(nil)),
	}.DecMode()
	if err != nil {
		panic("code error cbor decoder options: " + err.Error())
	}
	return cborFormat{enc: enc, dec: dec}
}

func (cborFormat) MediaType() coap.MediaType                 { return coap.AppCBOR }
func (f cborFormat) Marshal(v interface{}) ([]byte, error)   { return f.enc.Marshal(v) }
func (f cborFormat) Unmarshal(b []byte, v interface{}) error { return f.dec.Unmarshal(b, v) }
