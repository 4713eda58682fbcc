package codec

import (
	"io"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"

	"github.com/kbukum/meshflow/dataobject"
	"github.com/kbukum/meshflow/errors"
)

// Config controls frame encoding.
type Config struct {
	// Compression is "none" or "zstd".
	Compression string `yaml:"compression" mapstructure:"compression" validate:"omitempty,oneof=none zstd"`
	// MaxFrameBytes bounds decoded payloads.
	MaxFrameBytes int64 `yaml:"max_frame_bytes" mapstructure:"max_frame_bytes" validate:"gte=0"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Compression == "" {
		c.Compression = "zstd"
	}
	if c.MaxFrameBytes == 0 {
		c.MaxFrameBytes = DefaultMaxFrameBytes
	}
}

// Codec encodes and decodes data objects as frames.
type Codec struct {
	compress bool
	maxBytes int64

	decOnce sync.Once
	dec     *zstd.Decoder
	decErr  error
}

// New creates a codec from cfg.
func New(cfg Config) *Codec {
	cfg.ApplyDefaults()
	return &Codec{compress: cfg.Compression == "zstd", maxBytes: cfg.MaxFrameBytes}
}

var (
	zstdOnce sync.Once
	zstdEnc  *zstd.Encoder
)

func encoder() *zstd.Encoder {
	zstdOnce.Do(func() {
		// Single-segment frames declare their content size as the window,
		// so decoders bounded by MaxFrameBytes accept them.
		zstdEnc, _ = zstd.NewWriter(nil, zstd.WithSingleSegment(true))
	})
	return zstdEnc
}

// decoder returns the codec's zstd decoder. It refuses to inflate a payload
// past MaxFrameBytes.
func (c *Codec) decoder() (*zstd.Decoder, error) {
	c.decOnce.Do(func() {
		c.dec, c.decErr = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(uint64(c.maxBytes)))
	})
	return c.dec, c.decErr
}

// Encode writes obj as one frame. obj is not released.
func (c *Codec) Encode(w io.Writer, obj *dataobject.Object) error {
	wo := wireObject{Source: obj.Source(), Attributes: toWireAttributes(obj.Attributes())}
	var tag Tag
	switch obj.Kind() {
	case dataobject.KindMeshCollection:
		tag = TagMesh
		tree, err := obj.Tree()
		if err != nil {
			return err
		}
		wo.Tree = toWireTree(tree)
	case dataobject.KindImage:
		tag = TagImage
		img, err := obj.Image()
		if err != nil {
			return err
		}
		wo.Image = img
	default:
		tag = TagEmpty
	}
	body, err := sonic.Marshal(&wo)
	if err != nil {
		return errors.Internal(err)
	}
	return c.writeBody(w, tag, body)
}

// EncodeError writes a failure as an error frame.
func (c *Codec) EncodeError(w io.Writer, appErr *errors.AppError) error {
	body, err := sonic.Marshal(appErr.ToResponse())
	if err != nil {
		return errors.Internal(err)
	}
	return c.writeBody(w, TagError, body)
}

func (c *Codec) writeBody(w io.Writer, tag Tag, body []byte) error {
	if int64(len(body)) > c.maxBytes {
		return errors.ResourceExhausted("frame", int64(len(body)), c.maxBytes)
	}
	f := Frame{Tag: tag, Payload: body}
	if c.compress {
		f.Payload = encoder().EncodeAll(body, nil)
		f.Flags |= FlagZstd
	}
	if int64(len(f.Payload)) > c.maxBytes {
		return errors.ResourceExhausted("frame", int64(len(f.Payload)), c.maxBytes)
	}
	return WriteFrame(w, f)
}

// Decode reads one frame and rebuilds the object it carries. An error frame
// is returned as the *errors.AppError it describes.
func (c *Codec) Decode(r io.Reader, opts ...dataobject.Option) (*dataobject.Object, error) {
	f, err := ReadFrame(r, c.maxBytes)
	if err != nil {
		return nil, err
	}
	body := f.Payload
	if f.Flags&FlagZstd != 0 {
		dec, err := c.decoder()
		if err != nil {
			return nil, errors.Internal(err)
		}
		body, err = dec.DecodeAll(f.Payload, nil)
		switch {
		case errors.Is(err, zstd.ErrDecoderSizeExceeded):
			return nil, errors.MalformedFrame("decompressed payload exceeds limit").WithCause(err)
		case err != nil:
			return nil, errors.MalformedFrame("bad zstd payload").WithCause(err)
		case int64(len(body)) > c.maxBytes:
			return nil, errors.MalformedFrame("decompressed payload exceeds limit")
		}
	}

	if f.Tag == TagError {
		var resp errors.ErrorResponse
		if err := sonic.Unmarshal(body, &resp); err != nil {
			return nil, errors.MalformedFrame("bad error body").WithCause(err)
		}
		return nil, errors.FromResponse(resp, 0)
	}

	var wo wireObject
	if err := sonic.Unmarshal(body, &wo); err != nil {
		return nil, errors.MalformedFrame("bad object body").WithCause(err)
	}
	attrs, err := fromWireAttributes(wo.Attributes)
	if err != nil {
		return nil, errors.MalformedFrame("bad attributes").WithCause(err)
	}
	switch f.Tag {
	case TagMesh:
		return dataobject.NewMesh(wo.Source, fromWireTree(wo.Tree), attrs, opts...), nil
	case TagImage:
		if wo.Image == nil {
			return nil, errors.MalformedFrame("image frame without image")
		}
		return dataobject.NewImage(wo.Source, wo.Image, attrs, opts...), nil
	default:
		return dataobject.NewEmpty(wo.Source, opts...), nil
	}
}
