package security

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/ttacon/libphonenumber"
)

// DefaultRegion is used to parse phone numbers written without a country code.
const DefaultRegion = "KE"

// RegisterValidators installs the custom tags on gin's validator and makes
// field names in errors follow the json tag.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected gin validator engine")
	}
	v.RegisterTagNameFunc(jsonFieldName)
	return v.RegisterValidation("msisdn", func(fl validator.FieldLevel) bool {
		_, err := NormalizeMSISDN(fl.Field().String())
		return err == nil
	})
}

func jsonFieldName(fld reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return fld.Name
}

// NormalizeMSISDN returns the number as country code plus national number,
// e.g. "0712 345 678" becomes "254712345678".
func NormalizeMSISDN(phone string) (string, error) {
	p, err := libphonenumber.Parse(strings.TrimSpace(phone), DefaultRegion)
	if err != nil {
		return "", err
	}
	if !libphonenumber.IsValidNumber(p) {
		return "", fmt.Errorf("phone number %q is not valid", phone)
	}
	return fmt.Sprintf("%d%d", p.GetCountryCode(), p.GetNationalNumber()), nil
}

// FieldErrors flattens binding and validation failures into errors[] entries.
func FieldErrors(err error) []FieldError {
	var ves validator.ValidationErrors
	if errors.As(err, &ves) {
		out := make([]FieldError, 0, len(ves))
		for _, fe := range ves {
			out = append(out, FieldError{Field: fieldPath(fe), Message: describe(fe)})
		}
		return out
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return []FieldError{{Field: typeErr.Field, Message: fmt.Sprintf("must be a %s", typeErr.Type.String())}}
	}

	return []FieldError{{Field: "body", Message: err.Error()}}
}

// fieldPath drops the top-level struct name from the namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "uuid", "uuid4":
		return "must be a valid UUID"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		if fe.Kind() == reflect.String || fe.Kind() == reflect.Slice {
			return "must have at least " + fe.Param() + " entries or characters"
		}
		return "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String || fe.Kind() == reflect.Slice {
			return "must have at most " + fe.Param() + " entries or characters"
		}
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be greater than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "email":
		return "must be a valid email address"
	case "msisdn":
		return "must be a valid phone number"
	case "datetime":
		return "must be a date in the format " + fe.Param()
	default:
		return "failed the " + fe.Tag() + " check"
	}
}

// ParamUUID reads a path parameter that must be a UUID, answering 400 when it is not.
func ParamUUID(c *gin.Context, name string) (string, bool) {
	value := c.Param(name)
	if _, err := uuid.Parse(value); err != nil {
		SendValidationError(c, "Invalid input data", []FieldError{{Field: name, Message: "must be a valid UUID"}})
		return "", false
	}
	return value, true
}
