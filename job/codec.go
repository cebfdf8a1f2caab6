package job

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes batch payloads and job records.
type Codec interface {
	// Marshal serializes v.
	Marshal(v any) ([]byte, error)

	// Unmarshal deserializes data into v. Numbers decoded into interface
	// values must keep their exact textual value where the format allows it.
	Unmarshal(data []byte, v any) error

	// Name returns the codec identifier.
	Name() string
}

// Codec names accepted by CodecByName.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// CodecByName returns a codec by name. Defaults to JSON.
func CodecByName(name string) Codec {
	switch name {
	case CodecNameMsgpack:
		return MsgpackCodec{}
	default:
		return JSONCodec{}
	}
}

// JSONCodec encodes as JSON. Numbers decoded into interface values become
// json.Number.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal rejects data that holds anything but whitespace after the
// first value.
func (JSONCodec) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after the top-level value")
		}
		return fmt.Errorf("unexpected data after the top-level value: %w", err)
	}
	return nil
}

func (JSONCodec) Name() string { return CodecNameJSON }

// MsgpackCodec encodes as MessagePack.
type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(v any) ([]byte, error) { return msgpack.Marshal(v) }

func (MsgpackCodec) Unmarshal(data []byte, v any) error { return msgpack.Unmarshal(data, v) }

func (MsgpackCodec) Name() string { return CodecNameMsgpack }

// Encode serializes j with c.
func Encode(c Codec, j *Job) ([]byte, error) {
	return c.Marshal(j)
}

// Decode deserializes a job record produced by Encode.
func Decode(c Codec, data []byte) (*Job, error) {
	var j Job
	if err := c.Unmarshal(data, &j); err != nil {
		return nil, err
	}
	return &j, nil
}
