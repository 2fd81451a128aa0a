package codec

import (
	"bytes"
	"encoding/json"
)

// JSON is the standard-library JSON codec.
//
// Snapshots are maps, slices and plain structs, which JSON covers. Numbers
// inside free-form metadata decode as float64 unless the target type says
// otherwise; Unmarshal therefore uses json.Number for interface values so
// integers survive a round trip unchanged.
type JSON struct{}

// Marshal encodes the value to JSON.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes the JSON data into v.
func (JSON) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}

// Name returns the unique name of the codec ("json").
func (JSON) Name() string { return "json" }

// Default is the codec used for new snapshots.
var Default Codec = JSON{}
