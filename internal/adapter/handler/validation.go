package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rl1809/pokestore/internal/core/domain"
)

const maxBodyBytes = 1 << 20

type createItemRequest struct {
	Name  *string   `json:"name" validate:"required,min=1,alphanum"`
	Price *intValue `json:"price" validate:"required,min=1"`
	Stock *intValue `json:"stock" validate:"omitempty,min=0"`
}

// updateItemRequest needs at least one of price and stock.
type updateItemRequest struct {
	Price *intValue `json:"price" validate:"required_without=Stock,omitempty,min=1"`
	Stock *intValue `json:"stock" validate:"required_without=Price,omitempty,min=0"`
}

type purchaseRequest struct {
	Name     *string   `json:"name" validate:"required,min=1,alphanum"`
	Quantity *intValue `json:"quantity" validate:"required,min=1,max=99"`
}

func (r createItemRequest) stock() *int { return r.Stock.ptr() }

func (r updateItemRequest) patch() domain.ItemPatch {
	return domain.ItemPatch{Price: r.Price.ptr(), Stock: r.Stock.ptr()}
}

func (r purchaseRequest) toDomain(idempotencyKey string) domain.PurchaseRequest {
	return domain.PurchaseRequest{
		Name:           *r.Name,
		Quantity:       int(*r.Quantity),
		IdempotencyKey: idempotencyKey,
	}
}

// intValue is an integer field that also accepts integral floats (4.0) and
// numeric strings ("4").
type intValue int

var intValueType = reflect.TypeOf(intValue(0))

func (n *intValue) UnmarshalJSON(data []byte) error {
	raw := string(data)
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}
	f, err := strconv.ParseFloat(raw, 64)
	switch {
	case err != nil && !errors.Is(err, strconv.ErrRange):
		return &json.UnmarshalTypeError{Value: "non-number", Type: intValueType}
	case err != nil || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32:
		return &json.UnmarshalTypeError{Value: "unsafe", Type: intValueType}
	case f != math.Trunc(f):
		return &json.UnmarshalTypeError{Value: "fraction", Type: intValueType}
	}
	*n = intValue(f)
	return nil
}

func (n *intValue) ptr() *int {
	if n == nil {
		return nil
	}
	v := int(*n)
	return &v
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeBody reads a JSON object into T and validates it. An empty body is
// treated as an empty object. Unknown keys and rule violations are reported
// together; a value of the wrong type stops decoding.
func decodeBody[T any](r io.Reader) (T, error) {
	var req T
	raw, err := io.ReadAll(io.LimitReader(r, maxBodyBytes))
	if err != nil {
		return req, &domain.ValidationError{Messages: []string{"request body could not be read"}}
	}

	var msgs []string
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			msg, ok := unknownFieldMessage(err)
			if !ok {
				return req, &domain.ValidationError{Messages: []string{decodeErrorMessage(err)}}
			}
			msgs = append(msgs, msg)
		}
	}

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return req, fmt.Errorf("validate request: %w", err)
		}
		msgs = append(msgs, ruleMessages(verrs)...)
	}

	if len(msgs) > 0 {
		return req, &domain.ValidationError{Messages: msgs}
	}
	return req, nil
}

func unknownFieldMessage(err error) (string, bool) {
	const prefix = "json: unknown field "
	if !strings.HasPrefix(err.Error(), prefix) {
		return "", false
	}
	return strings.TrimPrefix(err.Error(), prefix) + " is not allowed", true
}

func decodeErrorMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if !errors.As(err, &typeErr) {
		return "request body must be valid JSON"
	}
	if typeErr.Field == "" {
		return `"value" must be an object`
	}

	field := typeErr.Field
	switch {
	case typeErr.Type == intValueType && typeErr.Value == "fraction":
		return fmt.Sprintf("%q must be an integer", field)
	case typeErr.Type == intValueType && typeErr.Value == "unsafe":
		return fmt.Sprintf("%q must be a safe number", field)
	case typeErr.Type == intValueType:
		return fmt.Sprintf("%q must be a number", field)
	case typeErr.Type.Kind() == reflect.String:
		return fmt.Sprintf("%q must be a string", field)
	default:
		return fmt.Sprintf("%q has an invalid type", field)
	}
}

func ruleMessages(verrs validator.ValidationErrors) []string {
	msgs := make([]string, 0, len(verrs))
	seen := make(map[string]bool, len(verrs))
	for _, fe := range verrs {
		msg := ruleMessage(fe)
		if seen[msg] {
			continue
		}
		seen[msg] = true
		msgs = append(msgs, msg)
	}
	return msgs
}

func ruleMessage(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%q is required", field)
	case "required_without":
		return `"value" must contain at least one of [price, stock]`
	case "alphanum":
		return fmt.Sprintf("%q must only contain alpha-numeric characters", field)
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%q is not allowed to be empty", field)
		}
		return fmt.Sprintf("%q must be larger than or equal to %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%q must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%q failed the %s rule", field, fe.Tag())
	}
}
