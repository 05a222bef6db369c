package table

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

type op uint8

const (
	opPut    op = 1
	opDelete op = 2
)

// record is the CBOR payload of one log frame. Integer keys keep frames
// small; the field numbers are part of the on-disk format.
type record struct {
	Op        op     `cbor:"1,keyasint"`
	Namespace string `cbor:"2,keyasint"`
	Path      string `cbor:"3,keyasint"`
	Value     []byte `cbor:"4,keyasint,omitempty"`
}

// encMode uses Core Deterministic Encoding so the same record always
// produces the same bytes (and therefore the same checksum).
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("table: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("table: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeRecord(r record) ([]byte, error) {
	data, err := encMode.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode table record: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (record, error) {
	var r record
	if err := decMode.Unmarshal(data, &r); err != nil {
		return record{}, err
	}
	return r, nil
}
