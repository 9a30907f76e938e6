package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator returns the shared validator with the decimal rules registered
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(jsonFieldName)
		mustRegister(v, "decimal_gt", decimalCompare(func(d, bound decimal.Decimal) bool { return d.GreaterThan(bound) }))
		mustRegister(v, "decimal_gte", decimalCompare(func(d, bound decimal.Decimal) bool { return d.GreaterThanOrEqual(bound) }))
		mustRegister(v, "decimal_scale", decimalScale)
		instance = v
	})
	return instance
}

// Struct validates s and flattens validator errors into one readable message
func Struct(s interface{}) error {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "decimal_gt":
		return field + " must be greater than " + fe.Param()
	case "decimal_gte":
		return field + " must be greater than or equal to " + fe.Param()
	case "decimal_scale":
		return field + " must have at most " + fe.Param() + " decimal places"
	case "min":
		return field + " must contain at least " + fe.Param() + " item(s)"
	case "max":
		return field + " must be at most " + fe.Param() + " characters"
	case "unique":
		return field + " must not contain duplicates"
	case "oneof":
		return field + " must be one of: " + fe.Param()
	default:
		return field + " failed " + fe.Tag()
	}
}

func decimalCompare(cmp func(d, bound decimal.Decimal) bool) validator.Func {
	return func(fl validator.FieldLevel) bool {
		bound, err := decimal.NewFromString(fl.Param())
		if err != nil {
			return false
		}
		d, ok := fl.Field().Interface().(decimal.Decimal)
		if !ok {
			return false
		}
		return cmp(d, bound)
	}
}

// decimalScale caps the fractional digits so values survive the NUMERIC(p,s)
// columns unchanged
func decimalScale(fl validator.FieldLevel) bool {
	places, err := strconv.ParseInt(fl.Param(), 10, 32)
	if err != nil || places < 0 {
		return false
	}
	d, ok := fl.Field().Interface().(decimal.Decimal)
	if !ok {
		return false
	}
	return d.Equal(d.Truncate(int32(places)))
}

func jsonFieldName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return f.Name
	}
	return name
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register validation %s: %v", tag, err))
	}
}
