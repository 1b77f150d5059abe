package itempool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Provider supplies the pool a new session draws from.
type Provider interface {
	LoadPool(ctx context.Context) (*Pool, error)
}

// PriorProvider supplies an examinee-specific starting ability, if one exists.
type PriorProvider interface {
	PriorTheta(ctx context.Context, examineeID string) (theta float64, ok bool, err error)
}

// fileDocument is the on-disk pool format.
type fileDocument struct {
	Version        string       `json:"version"`
	SessionsServed int          `json:"sessions_served"`
	Items          []itemRecord `json:"items"`
}

// itemRecord keeps required parameters as pointers so absence is detectable.
type itemRecord struct {
	ID            string       `json:"id"`
	Category      string       `json:"category"`
	A             *float64     `json:"a"`
	B             *float64     `json:"b"`
	C             *float64     `json:"c"`
	Calibration   *Calibration `json:"calibration"`
	ExposureCount int          `json:"exposure_count"`
}

func (r itemRecord) toItem() (Item, error) {
	if r.A == nil {
		return Item{}, &InvalidItemError{ItemID: r.ID, Field: "a", Reason: "missing"}
	}
	if r.B == nil {
		return Item{}, &InvalidItemError{ItemID: r.ID, Field: "b", Reason: "missing"}
	}
	it := Item{
		ID:             r.ID,
		Category:       r.Category,
		Discrimination: *r.A,
		Difficulty:     *r.B,
		ExposureCount:  r.ExposureCount,
	}
	if r.C != nil {
		it.Guessing = *r.C
	}
	if r.Calibration != nil {
		it.Calibration = *r.Calibration
	}
	return it, nil
}

// Decoded is the result of reading a pool file.
type Decoded struct {
	Snapshot Snapshot
	Rejected []error
}

// Decode validates raw pool JSON against the schema and converts it to a
// snapshot, refusing items with missing or invalid parameters and items below
// the calibration filter.
func Decode(r io.Reader, filter CalibrationFilter) (*Decoded, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read pool: %w", err)
	}
	if err := ValidateDocument(raw); err != nil {
		return nil, err
	}
	var doc fileDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode pool: %w", err)
	}

	var candidates []Item
	var rejected []error
	for _, rec := range doc.Items {
		it, err := rec.toItem()
		if err != nil {
			rejected = append(rejected, err)
			continue
		}
		candidates = append(candidates, it)
	}
	admitted, screened := Screen(candidates, filter)
	rejected = append(rejected, screened...)

	return &Decoded{
		Snapshot: Snapshot{
			Version:        doc.Version,
			SessionsServed: doc.SessionsServed,
			Items:          admitted,
		},
		Rejected: rejected,
	}, nil
}

// Encode writes a snapshot in the pool file format.
func Encode(w io.Writer, snap Snapshot) error {
	doc := fileDocument{Version: snap.Version, SessionsServed: snap.SessionsServed}
	for _, it := range snap.Items {
		a, b, c := it.Discrimination, it.Difficulty, it.Guessing
		cal := it.Calibration
		doc.Items = append(doc.Items, itemRecord{
			ID:            it.ID,
			Category:      it.Category,
			A:             &a,
			B:             &b,
			C:             &c,
			Calibration:   &cal,
			ExposureCount: it.ExposureCount,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// LoadFile reads and decodes the pool file at path.
func LoadFile(path string, filter CalibrationFilter) (*Decoded, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pool file: %w", err)
	}
	defer f.Close()
	return Decode(f, filter)
}

// FileProvider loads the pool from a JSON file on every call.
type FileProvider struct {
	Path   string
	Filter CalibrationFilter
	Logger *slog.Logger
}

// LoadPool implements Provider.
func (p *FileProvider) LoadPool(ctx context.Context) (*Pool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dec, err := LoadFile(p.Path, p.Filter)
	if err != nil {
		return nil, err
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	for _, rej := range dec.Rejected {
		logger.Warn("item refused", "path", p.Path, "error", rej)
	}
	return NewPool(dec.Snapshot)
}
