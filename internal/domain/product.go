package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnknownProduct is returned for names that carry no known product family.
var ErrUnknownProduct = errors.New("unknown product family")

// ProductFamily is the processing level of an archive.
type ProductFamily string

const (
	FamilyL1B ProductFamily = "L1B"
	FamilyL1C ProductFamily = "L1C"
	FamilyL2B ProductFamily = "L2B"
	FamilyL2C ProductFamily = "L2C"
)

// families in detection order.
var families = []ProductFamily{FamilyL1B, FamilyL1C, FamilyL2B, FamilyL2C}

// Known reports whether f is one of the supported families.
func (f ProductFamily) Known() bool {
	for _, k := range families {
		if f == k {
			return true
		}
	}
	return false
}

// ParseProductName extracts the family and acquisition date from a product
// file name or object key.
func ParseProductName(name string) (ProductFamily, string, error) {
	base := filepath.Base(name)

	var fam ProductFamily
	for _, f := range families {
		if strings.Contains(base, string(f)) {
			fam = f
			break
		}
	}
	if fam == "" {
		return "", "", fmt.Errorf("parse product name %q: %w", base, ErrUnknownProduct)
	}

	parts := strings.Split(base, "_")
	if len(parts) < 2 || parts[1] == "" {
		return "", "", fmt.Errorf("parse product name %q: no date token: %w", base, ErrUnknownProduct)
	}
	return fam, parts[1], nil
}

// OutputName returns the raster file name for one unit of a product.
func OutputName(fam ProductFamily, unit, date string) string {
	return fmt.Sprintf("%s_%s_%s.tif", fam, unit, date)
}
