package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kbukum/meshflow/errors"
)

// Tag identifies the payload variant of a frame.
type Tag uint8

const (
	TagEmpty Tag = iota
	TagMesh
	TagImage
	TagError
)

func (t Tag) String() string {
	switch t {
	case TagEmpty:
		return "empty"
	case TagMesh:
		return "mesh"
	case TagImage:
		return "image"
	case TagError:
		return "error"
	default:
		return fmt.Sprintf("tag(%d)", uint8(t))
	}
}

// Flag bits of the frame header.
const (
	FlagZstd uint8 = 1 << iota
)

// HeaderSize is the fixed frame header length in bytes.
const HeaderSize = 10

// DefaultMaxFrameBytes bounds a frame payload when no limit is configured.
const DefaultMaxFrameBytes int64 = 256 << 20

// Frame is one decoded frame.
type Frame struct {
	Tag     Tag
	Flags   uint8
	Payload []byte
}

// WriteFrame writes a single frame.
func WriteFrame(w io.Writer, f Frame) error {
	var hdr [HeaderSize]byte
	hdr[0] = byte(f.Tag)
	hdr[1] = f.Flags
	binary.BigEndian.PutUint64(hdr[2:], uint64(len(f.Payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(f.Payload)
	return err
}

// ReadFrame reads a single frame, rejecting unknown tags and payloads larger
// than maxBytes.
func ReadFrame(r io.Reader, maxBytes int64) (Frame, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return Frame{}, err
		}
		return Frame{}, errors.MalformedFrame("short header").WithCause(err)
	}
	f := Frame{Tag: Tag(hdr[0]), Flags: hdr[1]}
	if f.Tag > TagError {
		return Frame{}, errors.MalformedFrame(fmt.Sprintf("unknown tag %d", hdr[0]))
	}
	if f.Flags&^FlagZstd != 0 {
		return Frame{}, errors.MalformedFrame(fmt.Sprintf("unknown flags %#x", f.Flags))
	}
	n := binary.BigEndian.Uint64(hdr[2:])
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}
	if n > uint64(maxBytes) {
		return Frame{}, errors.MalformedFrame(fmt.Sprintf("payload of %d bytes exceeds limit %d", n, maxBytes))
	}
	f.Payload = make([]byte, n)
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return Frame{}, errors.MalformedFrame("truncated payload").WithCause(err)
	}
	return f, nil
}
