package serde

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

type protobufSerde[T proto.Message] struct{}

func Protobuf[T proto.Message]() Serde[T] {
	return protobufSerde[T]{}
}

func (s protobufSerde[T]) Serialise(value T) ([]byte, error) {
	return proto.Marshal(value)
}

// Deserialise allocates a fresh message of T's concrete type; the zero T of a
// generated message is a nil pointer that proto.Unmarshal cannot fill.
func (s protobufSerde[T]) Deserialise(data []byte) (T, error) {
	var zero T
	result, ok := zero.ProtoReflect().Type().New().Interface().(T)
	if !ok {
		return zero, fmt.Errorf("serde: cannot allocate %T", zero)
	}

	if err := proto.Unmarshal(data, result); err != nil {
		return zero, err
	}
	return result, nil
}
