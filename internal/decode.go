package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
)

// Decode streams a JSON array from r, decoding one element at a time with decodeNext.
// r is drained and closed in any case, so the connection can be reused.
func Decode[T any](
	ctx context.Context,
	r io.ReadCloser,
	out chan<- T,
	decodeNext func(d *json.Decoder) (T, error),
) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r)
		_ = r.Close()
	}()

	d := json.NewDecoder(r)
	if err := expectDelim(d, '['); err != nil {
		return err
	}
	for d.More() {
		item, err := decodeNext(d)
		if err != nil {
			return err
		}

		if err := ctx.Err(); err != nil {
			return fmt.Errorf("decoding was interrupted: %w", err)
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("decoding was interrupted: %w", ctx.Err())
		case out <- item:
		}
	}

	return expectDelim(d, ']')
}

func expectDelim(d *json.Decoder, want json.Delim) error {
	t, err := d.Token()
	if err != nil {
		return fmt.Errorf("malformed json array: %w", err)
	}
	if delim, ok := t.(json.Delim); !ok || delim != want {
		return fmt.Errorf("malformed json array, want %s, got %v", want, t)
	}

	return nil
}
