// Package hdf5 reads product archives with the pure-Go go-hdf5 reader.
package hdf5

import (
	"errors"
	"fmt"
	"sort"

	h5 "github.com/robert-malhotra/go-hdf5/hdf5"

	"github.com/couchcryptid/swath-rectifier/internal/product"
	"github.com/couchcryptid/swath-rectifier/internal/rectify"
)

// Archive is an open HDF5 product file. It implements product.Source.
type Archive struct {
	path string
	file *h5.File
}

// Open opens the archive at path for reading.
func Open(path string) (*Archive, error) {
	f, err := h5.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	return &Archive{path: path, file: f}, nil
}

// Opener adapts Open to product.Opener.
func Opener(path string) (product.Source, error) {
	a, err := Open(path)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// DatasetNames returns the root members, sorted.
func (a *Archive) DatasetNames() ([]string, error) {
	names, err := a.file.Root().Members()
	if err != nil {
		return nil, fmt.Errorf("list members of %s: %w", a.path, err)
	}
	sort.Strings(names)
	return names, nil
}

// ReadGrid loads dataset name as a grid. For rank-3 and higher datasets the
// first plane along the leading dimensions is returned.
func (a *Archive) ReadGrid(name string) (*rectify.Grid, error) {
	ds, err := a.file.Root().OpenDataset(name)
	if err != nil {
		if errors.Is(err, h5.ErrNotFound) {
			return nil, fmt.Errorf("open dataset %s: %w", name, product.ErrMissingDataset)
		}
		return nil, fmt.Errorf("open dataset %s: %w", name, err)
	}

	shape := ds.Shape()
	if len(shape) < 2 {
		return nil, fmt.Errorf("dataset %s has rank %d: %w", name, len(shape), rectify.ErrShapeMismatch)
	}
	rows, cols := int(shape[len(shape)-2]), int(shape[len(shape)-1])

	data, err := ds.ReadFloat64()
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", name, err)
	}
	if len(data) < rows*cols {
		return nil, fmt.Errorf("dataset %s holds %d values for %dx%d: %w", name, len(data), rows, cols, rectify.ErrShapeMismatch)
	}
	return rectify.GridFrom(rows, cols, data[:rows*cols])
}

// ReadAttr loads the first value of root attribute name as float64.
func (a *Archive) ReadAttr(name string) (float64, error) {
	attr := a.file.Root().Attr(name)
	if attr == nil {
		return 0, fmt.Errorf("read attribute %s: %w", name, product.ErrMissingDataset)
	}
	v, err := attr.ReadScalarFloat64()
	if err != nil {
		return 0, fmt.Errorf("read attribute %s: %w", name, err)
	}
	return v, nil
}

// Close releases the file handle.
func (a *Archive) Close() error {
	return a.file.Close()
}
