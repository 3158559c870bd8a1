package connect

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// toStruct converts a JSON-tagged Go value into a Struct message.
func toStruct(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode message")
	}
	msg := &structpb.Struct{}
	if err := protojson.Unmarshal(b, msg); err != nil {
		return nil, errors.Wrap(err, "failed to convert message")
	}
	return msg, nil
}

// fromStruct decodes a Struct message into a JSON-tagged Go value.
// A nil message decodes as an empty object.
func fromStruct(msg *structpb.Struct, v any) error {
	if msg == nil {
		msg = &structpb.Struct{}
	}
	b, err := protojson.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "failed to convert message")
	}
	if err := json.Unmarshal(b, v); err != nil {
		return errors.Wrap(err, "failed to decode message")
	}
	return nil
}
