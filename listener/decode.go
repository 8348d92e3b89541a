package listener

import (
	"context"
	"fmt"

	"github.com/hugolhafner/easyflow/serde"
)

// Decode adapts a typed handler into a Callback. A payload that fails to
// decode is reported as a callback error.
func Decode[T any](d serde.Deserialiser[T], fn func(ctx context.Context, value T) error) Callback {
	return func(ctx context.Context, payload []byte) error {
		value, err := d.Deserialise(payload)
		if err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
		return fn(ctx, value)
	}
}
