package dump

import (
	"encoding/gob"
	"encoding/json"
	"io"

	"github.com/lawnmowerlatte/debuglater/pkg/snapshot"
)

// Codec is one interchangeable serialization strategy for a Dump. The
// persistence layer holds a small closed set of codecs and tries them in a
// configured order rather than inferring capabilities at run time.
type Codec interface {
	Name() string
	Encode(w io.Writer, d *snapshot.Dump) error
	Decode(r io.Reader) (*snapshot.Dump, error)
}

var (
	// Full is the full-fidelity codec. Together with snapshot.RegisterType
	// it round-trips verbatim values of registered types.
	Full Codec = gobCodec{}
	// Restricted guarantees fidelity only for built-in value kinds. Its
	// payload is plain JSON.
	Restricted Codec = jsonCodec{}
)

type gobCodec struct{}

func (gobCodec) Name() string { return "gob" }

func (gobCodec) Encode(w io.Writer, d *snapshot.Dump) error {
	wd, err := flatten(d)
	if err != nil {
		return err
	}
	return gob.NewEncoder(w).Encode(wd)
}

func (gobCodec) Decode(r io.Reader) (*snapshot.Dump, error) {
	var wd wireDump
	if err := gob.NewDecoder(r).Decode(&wd); err != nil {
		return nil, err
	}
	return rebuild(&wd)
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Encode(w io.Writer, d *snapshot.Dump) error {
	wd, err := flatten(d)
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(wd)
}

func (jsonCodec) Decode(r io.Reader) (*snapshot.Dump, error) {
	var wd wireDump
	if err := json.NewDecoder(r).Decode(&wd); err != nil {
		return nil, err
	}
	return rebuild(&wd)
}
