// Package serde converts typed values to and from the byte payloads carried
// by graph edges.
package serde

type Serde[T any] interface {
	Serialiser[T]
	Deserialiser[T]
}

type Serialiser[T any] interface {
	Serialise(value T) ([]byte, error)
}

type Deserialiser[T any] interface {
	Deserialise(data []byte) (T, error)
}
