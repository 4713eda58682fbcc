package sinks

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/kbukum/meshflow/codec"
	"github.com/kbukum/meshflow/dataobject"
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/flow"
	"github.com/kbukum/meshflow/stream"
)

// FrameExt is the extension of exported frame files.
const FrameExt = ".frame"

// Exporter writes every delivered object to its own frame file, named after
// the pipeline index, pass and rank that produced it.
type Exporter struct {
	dir   string
	codec *codec.Codec

	mu    sync.Mutex
	files []string
}

// NewExporter creates dir if needed and writes frames encoded with cfg into it.
func NewExporter(dir string, cfg codec.Config) (*Exporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Internal(err).WithDetail("dir", dir)
	}
	return &Exporter{dir: dir, codec: codec.New(cfg)}, nil
}

// Dir returns the export directory.
func (e *Exporter) Dir() string { return e.dir }

// Files returns the paths written so far, in write order.
func (e *Exporter) Files() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(e.files)
}

func (e *Exporter) Consume(_ context.Context, obj *dataobject.Object, info flow.PassInfo) error {
	name := fmt.Sprintf("i%04d-p%04d-r%03d%s", info.PipelineIndex, info.Pass, info.Rank, FrameExt)
	path := filepath.Join(e.dir, name)
	tmp, err := os.CreateTemp(e.dir, "."+name+"-*")
	if err != nil {
		return errors.Internal(err).WithDetail("path", path)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if err := e.codec.Encode(w, obj); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return errors.Internal(err).WithDetail("path", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Internal(err).WithDetail("path", path)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Internal(err).WithDetail("path", path)
	}

	e.mu.Lock()
	e.files = append(e.files, path)
	e.mu.Unlock()
	return nil
}

// Replay streams the objects exported to dir in file name order, which is
// pipeline index, then pass, then rank. Every pulled object is owned by the
// caller.
func Replay(dir string, c *codec.Codec, opts ...dataobject.Option) (*stream.Stream[*dataobject.Object], error) {
	files, err := filepath.Glob(filepath.Join(dir, "*"+FrameExt))
	if err != nil {
		return nil, errors.Internal(err)
	}
	slices.Sort(files)
	return stream.Map(stream.FromSlice(files), func(_ context.Context, path string) (*dataobject.Object, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.Internal(err).WithDetail("path", path)
		}
		defer f.Close()
		return c.Decode(bufio.NewReader(f), opts...)
	}), nil
}
