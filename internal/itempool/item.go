// Package itempool holds calibrated items and the immutable pool snapshots
// that sessions draw from.
package itempool

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/go-playground/validator/v10"

	"github.com/gioe/aiq/internal/irt"
)

// ErrInvalidItemParameters marks an item that lacks usable calibration.
var ErrInvalidItemParameters = errors.New("invalid item parameters")

// InvalidItemError describes why an item was refused.
type InvalidItemError struct {
	ItemID string
	Field  string
	Reason string
}

func (e *InvalidItemError) Error() string {
	id := e.ItemID
	if id == "" {
		id = "<unnamed>"
	}
	return fmt.Sprintf("%s: item %s: %s %s", ErrInvalidItemParameters, id, e.Field, e.Reason)
}

// Is reports a match against ErrInvalidItemParameters.
func (e *InvalidItemError) Is(target error) bool {
	return target == ErrInvalidItemParameters
}

// Calibration carries the quality metadata of an item's parameter estimates.
type Calibration struct {
	SampleSize       int     `json:"sample_size" validate:"gte=0"`
	DiscriminationSE float64 `json:"se_a" validate:"finite,gte=0"`
	DifficultySE     float64 `json:"se_b" validate:"finite,gte=0"`
	GuessingSE       float64 `json:"se_c" validate:"finite,gte=0"`
}

// Item is a calibrated test item.
type Item struct {
	ID             string      `json:"id" validate:"required"`
	Category       string      `json:"category" validate:"required"`
	Discrimination float64     `json:"a" validate:"finite,gt=0"`
	Difficulty     float64     `json:"b" validate:"finite"`
	Guessing       float64     `json:"c" validate:"finite,gte=0,lt=1"`
	Calibration    Calibration `json:"calibration"`
	ExposureCount  int         `json:"exposure_count" validate:"gte=0"`
}

// Params returns the response-model parameters of the item.
func (it Item) Params() irt.Params {
	return irt.Params{A: it.Discrimination, B: it.Difficulty, C: it.Guessing}
}

var itemValidate *validator.Validate

func init() {
	itemValidate = validator.New(validator.WithRequiredStructEnabled())
	// Rejects NaN and ±Inf, which the numeric range tags let through.
	if err := itemValidate.RegisterValidation("finite", validateFinite); err != nil {
		panic(fmt.Sprintf("register finite validator: %v", err))
	}
}

func validateFinite(fl validator.FieldLevel) bool {
	f := fl.Field()
	if f.Kind() != reflect.Float64 && f.Kind() != reflect.Float32 {
		return true
	}
	v := f.Float()
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate returns an *InvalidItemError for the first failing field.
func (it Item) Validate() error {
	err := itemValidate.Struct(it)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		reason := "failed " + fe.Tag()
		if fe.Param() != "" {
			reason += "=" + fe.Param()
		}
		return &InvalidItemError{ItemID: it.ID, Field: fe.Namespace(), Reason: reason}
	}
	return &InvalidItemError{ItemID: it.ID, Field: "item", Reason: err.Error()}
}

// Validator returns the shared validator, with the "finite" tag registered,
// so configuration structs are checked with the same rules as items.
func Validator() *validator.Validate {
	return itemValidate
}
