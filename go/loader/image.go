package loader

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"

	"github.com/pkecore/pkecore/go/models"
)

// Image is the executable being loaded, read by absolute offset.
type Image struct {
	Name string
	r    io.ReaderAt
	c    io.Closer
	size int64
}

// NewImage wraps r. The image length is taken from r's Size method when it
// has one and is otherwise unknown.
func NewImage(name string, r io.ReaderAt) *Image {
	img := &Image{Name: name, r: r, size: -1}
	if sz, ok := r.(interface{ Size() int64 }); ok {
		img.size = sz.Size()
	}
	return img
}

func OpenImage(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening image")
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "opening image")
	}
	return &Image{Name: path, r: f, c: f, size: fi.Size()}, nil
}

// Size is the image length in bytes, or -1 if unknown.
func (i *Image) Size() int64 { return i.size }

// checkRange fails unless n bytes at off lie inside the image.
func (i *Image) checkRange(off, n uint64) error {
	end := off + n
	if end < off || off > 1<<62 || n > 1<<62 {
		return errors.Wrapf(models.ErrIO, "%s: range %#x+%#x out of range", i.Name, off, n)
	}
	if i.size >= 0 && end > uint64(i.size) {
		return errors.Wrapf(models.ErrIO, "%s: range %#x+%#x past end of image (%#x bytes)", i.Name, off, n, i.size)
	}
	return nil
}

// ReadBytes returns n bytes at off, checking the range before allocating.
func (i *Image) ReadBytes(off, n uint64) ([]byte, error) {
	if err := i.checkRange(off, n); err != nil {
		return nil, err
	}
	if i.size < 0 {
		// unknown length: read in pieces so a bogus n fails on the first short read
		var out []byte
		chunk := make([]byte, 4096)
		for done := uint64(0); done < n; {
			want := n - done
			if want > uint64(len(chunk)) {
				want = uint64(len(chunk))
			}
			if err := i.ReadAt(chunk[:want], off+done); err != nil {
				return nil, err
			}
			out = append(out, chunk[:want]...)
			done += want
		}
		return out, nil
	}
	buf := make([]byte, n)
	if err := i.ReadAt(buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadAt fills dest from offset off. Anything short of a full read is an
// I/O failure.
func (i *Image) ReadAt(dest []byte, off uint64) error {
	if off > 1<<62 {
		return errors.Wrapf(models.ErrIO, "%s: offset %#x out of range", i.Name, off)
	}
	n, err := i.r.ReadAt(dest, int64(off))
	if n == len(dest) {
		return nil
	}
	if err == nil || err == io.EOF {
		return errors.Wrapf(models.ErrIO, "%s: read %d of %d bytes at %#x", i.Name, n, len(dest), off)
	}
	return errors.Wrapf(models.ErrIO, "%s: read at %#x: %v", i.Name, off, err)
}

// unpack decodes one little-endian struct of size bytes at off.
func (i *Image) unpack(off uint64, size int, v interface{}) error {
	buf := make([]byte, size)
	if err := i.ReadAt(buf, off); err != nil {
		return err
	}
	return struc.UnpackWithOrder(bytes.NewReader(buf), v, binary.LittleEndian)
}

func (i *Image) Close() error {
	if i.c != nil {
		return i.c.Close()
	}
	return nil
}
