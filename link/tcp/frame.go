package tcp

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// MaxFrameSize bounds a single encoded frame.
const MaxFrameSize = 16 << 20

var ErrFrameTooLarge = errors.New("frame too large")

// A connection starts with one hello frame (StringValue naming the edge)
// followed by payload frames (BytesValue). Each frame is a uvarint length
// prefix and the protobuf encoding of the message.

func writeFrame(w *bufio.Writer, msg proto.Message) error {
	body, err := proto.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(body))
	}

	var hdr [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(hdr[:], uint64(len(body)))

	if _, err := w.Write(hdr[:n]); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	return w.Flush()
}

// readFrame returns io.EOF only when the stream ends cleanly between frames.
func readFrame(r *bufio.Reader, msg proto.Message) error {
	size, err := binary.ReadUvarint(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return io.EOF
		}
		return fmt.Errorf("read frame header: %w", err)
	}
	if size > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return fmt.Errorf("read frame body: %w", err)
	}

	if err := proto.Unmarshal(body, msg); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return nil
}

func writeHello(w *bufio.Writer, edgeID string) error {
	return writeFrame(w, wrapperspb.String(edgeID))
}

func readHello(r *bufio.Reader) (string, error) {
	var hello wrapperspb.StringValue
	if err := readFrame(r, &hello); err != nil {
		return "", err
	}
	return hello.GetValue(), nil
}

func writePayload(w *bufio.Writer, payload []byte) error {
	return writeFrame(w, wrapperspb.Bytes(payload))
}

func readPayload(r *bufio.Reader) ([]byte, error) {
	var msg wrapperspb.BytesValue
	if err := readFrame(r, &msg); err != nil {
		return nil, err
	}
	if msg.Value == nil {
		return []byte{}, nil
	}
	return msg.Value, nil
}
