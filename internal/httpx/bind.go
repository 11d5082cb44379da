package httpx

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/dompet-app/dompet/internal/apperr"
)

// FieldRule maps a request field to the error code (and optionally the
// message) reported when it fails to decode or validate.
type FieldRule struct {
	Code    string
	Message string
}

// Binder decodes JSON bodies strictly and validates them against the
// `validate` struct tags of the destination.
type Binder struct {
	validate *validator.Validate
	rules    map[string]FieldRule
}

// NewBinder builds a Binder. Fields without a rule report invalid_request.
func NewBinder(rules map[string]FieldRule) *Binder {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return &Binder{validate: v, rules: rules}
}

// Bind decodes the request body into dst and validates it. Unknown fields,
// trailing data and type mismatches are validation errors.
func (b *Binder) Bind(c *fiber.Ctx, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(c.Body()))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return b.decodeError(err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return apperr.Validation(apperr.CodeInvalidRequest, "request body must contain a single JSON object")
	}
	return b.Validate(dst)
}

// Validate runs struct validation on an already decoded value.
func (b *Binder) Validate(dst any) error {
	err := b.validate.Struct(dst)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperr.Validation(apperr.CodeInvalidRequest, "invalid request body", apperr.WithErr(err))
	}
	fe := fieldErrs[0]
	field := fe.Field()
	rule := b.rule(field)
	msg := rule.Message
	if msg == "" {
		msg = describe(fe)
	}
	return apperr.Validation(rule.Code, msg, apperr.WithField(field))
}

func (b *Binder) rule(field string) FieldRule {
	rule, ok := b.rules[field]
	if !ok || rule.Code == "" {
		rule.Code = apperr.CodeInvalidRequest
	}
	return rule
}

func (b *Binder) decodeError(err error) error {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	switch {
	case errors.Is(err, io.EOF):
		return apperr.Validation(apperr.CodeInvalidRequest, "request body is required")
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return apperr.Validation(apperr.CodeInvalidRequest, "request body is not valid JSON")
	case errors.As(err, &typeErr):
		field := typeErr.Field
		rule := b.rule(field)
		return apperr.Validation(rule.Code, fmt.Sprintf("%s must be %s", field, jsonKind(typeErr.Type)), apperr.WithField(field))
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		field, _ := strconv.Unquote(strings.TrimPrefix(err.Error(), "json: unknown field "))
		return apperr.Validation(apperr.CodeInvalidRequest, fmt.Sprintf("unknown field %q", field), apperr.WithField(field))
	default:
		return apperr.Validation(apperr.CodeInvalidRequest, "invalid request body", apperr.WithErr(err))
	}
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "number", "numeric":
		return field + " must contain only digits"
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return field + " is invalid"
	}
}

func jsonKind(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "an integer"
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "a boolean"
	default:
		return "a " + t.Kind().String()
	}
}

// PathID parses a positive integer route parameter.
func PathID(c *fiber.Ctx, name string) (int64, error) {
	raw := c.Params(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation(apperr.CodeInvalidRequest, fmt.Sprintf("%s must be a positive integer", name), apperr.WithField(name))
	}
	return id, nil
}
