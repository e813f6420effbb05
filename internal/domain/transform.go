package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ParseProductEvent deserializes a RawEvent's value into a ProductEvent.
func ParseProductEvent(raw RawEvent) (ProductEvent, error) {
	var ev ProductEvent
	if err := json.Unmarshal(raw.Value, &ev); err != nil {
		return ProductEvent{}, fmt.Errorf("parse product event: %w", err)
	}
	ev.Path = strings.TrimSpace(ev.Path)
	if ev.Path == "" {
		return ProductEvent{}, errors.New("parse product event: empty path")
	}
	return ev, nil
}

// NewRasterEvent stamps a written raster with its ID and processing time.
func NewRasterEvent(r Raster) RasterEvent {
	return RasterEvent{
		ID:          generateID(r.Family, r.Unit, r.Date, r.Source),
		Raster:      r,
		ProcessedAt: stamp(),
	}
}

// generateID produces a deterministic ID from the raster's identity.
func generateID(fam ProductFamily, unit, date, source string) string {
	input := fmt.Sprintf("%s|%s|%s|%s", fam, unit, date, source)
	hash := sha256.Sum256([]byte(input))
	short := hex.EncodeToString(hash[:8])
	if fam == "" {
		return short
	}
	return strings.ToLower(string(fam)) + "-" + short
}

// SerializeRasterEvent marshals a RasterEvent into an OutputEvent keyed by ID.
func SerializeRasterEvent(ev RasterEvent) (OutputEvent, error) {
	value, err := json.Marshal(ev)
	if err != nil {
		return OutputEvent{}, fmt.Errorf("serialize raster event: %w", err)
	}
	return OutputEvent{
		Key:   []byte(ev.ID),
		Value: value,
		Headers: map[string]string{
			"family":       string(ev.Family),
			"unit":         ev.Unit,
			"processed_at": ev.ProcessedAt.UTC().Format(time.RFC3339),
		},
	}, nil
}
