package commerce

import (
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

// decodeEnvelope splits the {data, errors} response envelope without decoding
// the data payload itself. Data stays raw so each caller can decode it into
// its own typed shape.
func decodeEnvelope(body []byte) (*Response, error) {
	var resp Response

	d := jx.DecodeBytes(body)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "data":
			raw, err := d.Raw()
			if err != nil {
				return errors.Wrap(err, "data")
			}
			resp.Data = json.RawMessage(raw)
			return nil
		case "errors":
			raw, err := d.Raw()
			if err != nil {
				return errors.Wrap(err, "errors")
			}
			if err := json.Unmarshal(raw, &resp.Errors); err != nil {
				return errors.Wrap(err, "decode errors")
			}
			return nil
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, errors.Wrap(err, "decode envelope")
	}

	return &resp, nil
}
