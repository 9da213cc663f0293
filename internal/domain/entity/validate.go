package entity

import (
	"errors"
	"fmt"

	"github.com/zedsoft/identity-store/pkg/validation"
)

// ErrInvalidArgument reports a null or blank required input, at construction
// or at the store boundary.
var ErrInvalidArgument = errors.New("invalid argument")

func validateStruct(v any) error {
	if err := validation.Struct(v); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidArgument, validation.Describe(err))
	}
	return nil
}
