package plugin

import (
	"encoding/json"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/mitre/hipcheck/sdkerr"
)

// DecodeConfig is a helper for Plugin.Configure implementations: it parses
// raw as a JSON object and decodes it into out (a pointer to a
// plugin-defined configuration struct) using field-name-to-key matching,
// the same configuration-blob-into-typed-struct pattern the reference SDK
// leaves to each plugin rather than prescribing one (spec.md §6
// "SetConfiguration ... forwards an arbitrary configuration document").
//
// A JSON parse failure becomes an sdkerr.UnspecifiedConfig; a mapstructure
// decode failure (a value that cannot be converted to its field's type, or
// a key in raw that matches no field of out) becomes an sdkerr.InvalidValue
// with Field "configuration", the whole of raw as Value, and mapstructure's
// message, which names the offending key, as Reason. Fields of out that raw
// does not mention are left unchanged, not reported.
func DecodeConfig(raw string, out interface{}) error {
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return &sdkerr.UnspecifiedConfig{Message: errors.Wrap(err, "parsing configuration JSON").Error()}
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return &sdkerr.UnspecifiedConfig{Message: errors.Wrap(err, "building config decoder").Error()}
	}
	if err := decoder.Decode(fields); err != nil {
		return &sdkerr.InvalidValue{Field: "configuration", Value: raw, Reason: err.Error()}
	}
	return nil
}
