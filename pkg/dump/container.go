// Package dump persists snapshots to gzip-compressed container files and
// loads them back, falling from the full-fidelity codec to the restricted
// one rather than failing. It assumes exclusive ownership of the path for
// the duration of a single save or load call and holds no locks.
package dump

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"

	"github.com/lawnmowerlatte/debuglater/pkg/snapshot"
)

// Options selects the codec strategies and the container compression.
type Options struct {
	// FullFidelity places the full codec first in the fallback order.
	// When false, only the restricted codec is used and a one-time
	// advisory is printed on save.
	FullFidelity bool
	// Compress wraps the payload in a gzip container. Loading tolerates
	// either form regardless of this setting.
	Compress bool
}

// DefaultOptions enables the full codec and gzip compression.
func DefaultOptions() Options {
	return Options{FullFidelity: true, Compress: true}
}

func (o Options) codecs() []Codec {
	if o.FullFidelity {
		return []Codec{Full, Restricted}
	}
	return []Codec{Restricted}
}

// Save writes d to path with default options.
func Save(path string, d *snapshot.Dump) error {
	return SaveWithOptions(path, d, DefaultOptions())
}

// SaveWithOptions writes d to path as a compressed container using the
// first configured codec.
func SaveWithOptions(path string, d *snapshot.Dump, opts Options) error {
	if !opts.FullFidelity {
		warnRestrictedOnce()
	}
	codec := opts.codecs()[0]

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("dump: create %s: %w", path, err)
	}
	defer f.Close()

	var w io.Writer = f
	var zw *gzip.Writer
	if opts.Compress {
		zw = gzip.NewWriter(f)
		w = zw
	}
	if err := codec.Encode(w, d); err != nil {
		return fmt.Errorf("dump: encode (%s): %w", codec.Name(), err)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return fmt.Errorf("dump: close container: %w", err)
		}
	}
	return f.Close()
}

// Load reads a dump from path with default options.
func Load(path string) (*snapshot.Dump, error) {
	return LoadWithOptions(path, DefaultOptions())
}

// LoadWithOptions reads a dump from path. Each configured codec is tried in
// order, first against the gzip container and, on an I/O-class failure,
// once more against an uncompressed reopen of the same path. Only when
// every codec fails does the load surface a hard error.
func LoadWithOptions(path string, opts Options) (*snapshot.Dump, error) {
	var errs []error
	for _, codec := range opts.codecs() {
		d, err := decodeContainer(codec, path)
		if err == nil {
			checkVersion(d)
			return d, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", codec.Name(), err))
	}
	return nil, fmt.Errorf("dump: load %s: %w", path, errors.Join(errs...))
}

// decodeContainer tries the compressed read first and retries uncompressed
// on I/O-class failures, tolerating containers written without compression.
func decodeContainer(codec Codec, path string) (*snapshot.Dump, error) {
	d, err := decodeCompressed(codec, path)
	if err == nil {
		return d, nil
	}
	if isIOError(err) {
		if d, plainErr := decodePlain(codec, path); plainErr == nil {
			return d, nil
		}
	}
	return nil, err
}

func decodeCompressed(codec Codec, path string) (*snapshot.Dump, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return codec.Decode(zr)
}

func decodePlain(codec Codec, path string) (*snapshot.Dump, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return codec.Decode(f)
}

// isIOError reports whether err is a container-level failure (truncated or
// differently-framed stream) as opposed to a payload the codec understood
// and rejected.
func isIOError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, gzip.ErrHeader) || errors.Is(err, gzip.ErrChecksum) {
		return true
	}
	var pathErr *os.PathError
	return errors.As(err, &pathErr)
}

func checkVersion(d *snapshot.Dump) {
	if d.FormatVersion != snapshot.FormatVersion {
		advise("debuglater: dump format version %d differs from supported version %d; proceeding best effort",
			d.FormatVersion, snapshot.FormatVersion)
	}
}
