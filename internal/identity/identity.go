package identity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"strconv"
)

// JSON keys with dedicated fields. Everything else lands in Extra.
const (
	keySysID  = "sys_id"
	keyWidth  = "width"
	keyHeight = "height"
)

// Identity is the pairing record delivered by the install message.
//
// Width and Height are the viewing area in centimetres and are zero when the
// backend did not send them. Extra keeps any other install field verbatim so
// the persisted record round-trips.
type Identity struct {
	SysID  string
	Width  float64
	Height float64
	Extra  map[string]any
}

// HasDimensions reports whether both viewing dimensions are usable.
func (id Identity) HasDimensions() bool {
	return id.Width > 0 && id.Height > 0
}

// Clone returns a deep-enough copy: Extra is copied, its values are shared.
func (id Identity) Clone() Identity {
	out := id
	if id.Extra != nil {
		out.Extra = maps.Clone(id.Extra)
	}
	return out
}

// MarshalJSON writes the flat install shape:
// {"sys_id":...,"width":...,"height":...,<extras>}. Zero dimensions are omitted.
func (id Identity) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(id.Extra)+3)
	for k, v := range id.Extra {
		m[k] = v
	}
	m[keySysID] = id.SysID
	if id.Width != 0 {
		m[keyWidth] = id.Width
	}
	if id.Height != 0 {
		m[keyHeight] = id.Height
	}
	return json.Marshal(m)
}

// UnmarshalJSON reads the flat install shape. The payload must be a JSON
// object. sys_id may be a string or a number; width and height may be
// numbers or numeric strings. A missing sys_id decodes to "" and is left for
// the caller to reject.
func (id *Identity) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("identity must be a JSON object: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("identity must be a JSON object, got null")
	}

	var out Identity
	var err error
	if v, ok := raw[keySysID]; ok {
		if out.SysID, err = decodeSysID(v); err != nil {
			return err
		}
		delete(raw, keySysID)
	}
	if v, ok := raw[keyWidth]; ok {
		if out.Width, err = decodeDimension(keyWidth, v); err != nil {
			return err
		}
		delete(raw, keyWidth)
	}
	if v, ok := raw[keyHeight]; ok {
		if out.Height, err = decodeDimension(keyHeight, v); err != nil {
			return err
		}
		delete(raw, keyHeight)
	}

	if len(raw) > 0 {
		out.Extra = make(map[string]any, len(raw))
		for k, v := range raw {
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return fmt.Errorf("decoding %q: %w", k, err)
			}
			out.Extra[k] = val
		}
	}

	*id = out
	return nil
}

func decodeSysID(v json.RawMessage) (string, error) {
	if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err == nil {
		return n.String(), nil
	}
	return "", fmt.Errorf("sys_id must be a string or number, got %s", v)
}

func decodeDimension(key string, v json.RawMessage) (float64, error) {
	if bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("%s must be numeric, got %s", key, v)
}
