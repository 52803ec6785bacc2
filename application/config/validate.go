// Package config validates option structs with go-playground/validator tags.
package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	sdkerrors "github.com/reglet-dev/sdf-http/domain/errors"
)

// validate is a package-level singleton; building a validator is expensive.
var validate = validator.New()

// Validate runs struct tag validation on v. The first failing field is returned
// as a *errors.ConfigError.
func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &sdkerrors.ConfigError{
			Field: fe.Field(),
			Err:   fmt.Errorf("failed on '%s' (value %v)", fe.Tag(), fe.Value()),
		}
	}
	return &sdkerrors.ConfigError{Err: err}
}
