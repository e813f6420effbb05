package product

import (
	"errors"

	"github.com/couchcryptid/swath-rectifier/internal/rectify"
)

var (
	// ErrMissingDataset is returned by a Source for a dataset or attribute
	// that does not exist in the archive.
	ErrMissingDataset = errors.New("missing dataset")

	// ErrUnreadableSource aborts a whole file: the archive cannot be opened or
	// lacks the attributes every unit depends on.
	ErrUnreadableSource = errors.New("unreadable source")
)

// Source is an opened product archive.
type Source interface {
	// DatasetNames lists the root-level datasets in a stable order.
	DatasetNames() ([]string, error)
	// ReadGrid loads a two-dimensional dataset. Higher-rank datasets yield
	// their first plane.
	ReadGrid(name string) (*rectify.Grid, error)
	// ReadAttr loads a numeric root attribute.
	ReadAttr(name string) (float64, error)
	Close() error
}

// Opener opens the archive at path.
type Opener func(path string) (Source, error)
