package api

import "convertly/internal/converter"

// CustomValidator plugs struct tag validation into echo's c.Validate.
type CustomValidator struct{}

func (cv *CustomValidator) Validate(i any) error {
	return converter.ValidateOptions(i)
}
