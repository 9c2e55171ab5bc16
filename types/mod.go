package types

import (
	"encoding/json"

	"golang.org/x/xerrors"
)

// Message defines the type of message that can be marshalled/unmarshalled over
// the network, on UDP datagrams and on the TCP stream alike.
type Message interface {
	NewEmpty() Message
	Name() string
	String() string
}

// Encode serializes a message into a flat JSON frame carrying its wire tag
// under the "type" key.
func Encode(m Message) ([]byte, error) {
	buf, err := json.Marshal(m)
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal message: %v", err)
	}

	var fields map[string]json.RawMessage
	err = json.Unmarshal(buf, &fields)
	if err != nil {
		return nil, xerrors.Errorf("failed to flatten message: %v", err)
	}

	tag, err := json.Marshal(m.Name())
	if err != nil {
		return nil, xerrors.Errorf("failed to marshal type tag: %v", err)
	}
	fields["type"] = tag

	return json.Marshal(fields)
}
