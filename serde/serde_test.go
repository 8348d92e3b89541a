//go:build unit

package serde_test

import (
	"testing"

	"github.com/hugolhafner/easyflow/serde"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestBytes_PassesThrough(t *testing.T) {
	input := []byte{0x01, 0x02, 0x03}

	out, err := serde.Bytes().Serialise(input)
	require.NoError(t, err)
	require.Equal(t, input, out)
}

func TestString_Deserialise(t *testing.T) {
	out, err := serde.String().Deserialise([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, "hello world", out)
}

func TestJSON_Serialise(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		input  any
		expect string
	}{
		{
			name: "simple struct",
			input: struct {
				Name string `json:"name"`
				Age  int    `json:"age"`
			}{Name: "Alice", Age: 30},
			expect: `{"name":"Alice","age":30}`,
		},
		{
			name:   "invalid input",
			input:  func() {},
			expect: ``,
		},
	}

	for _, tt := range tests {
		t.Run(
			tt.name, func(t *testing.T) {
				t.Parallel()
				output, err := serde.JSON[any]().Serialise(tt.input)
				if tt.expect == `` {
					require.Error(t, err)
					return
				}

				require.NoError(t, err)
				require.JSONEq(t, tt.expect, string(output))
			},
		)
	}
}

func TestJSON_DeserialiseInvalid(t *testing.T) {
	type Frame struct {
		Seq int `json:"seq"`
	}

	_, err := serde.JSON[Frame]().Deserialise([]byte(`{"seq":"not-a-number"}`))
	require.Error(t, err)
}

func TestProtobuf_DeserialiseAllocates(t *testing.T) {
	t.Parallel()
	original := timestamppb.Now()
	data, err := proto.Marshal(original)
	require.NoError(t, err)

	result, err := serde.Protobuf[*timestamppb.Timestamp]().Deserialise(data)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.True(t, proto.Equal(original, result))
}

func TestProtobuf_DeserialiseInvalidData(t *testing.T) {
	t.Parallel()
	_, err := serde.Protobuf[*wrapperspb.StringValue]().Deserialise([]byte("not valid protobuf \xff\xfe"))
	require.Error(t, err)
}
