package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	apierrors "asyncops/internal/errors"
)

// DefaultMaxBodySize bounds JSON request bodies
const DefaultMaxBodySize = 1 << 20

var operationIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*$`)

// Validator decodes JSON request bodies and validates them with struct tags
type Validator struct {
	validate    *validator.Validate
	logger      *slog.Logger
	maxBodySize int64
}

// NewValidator creates a validator with the custom tags registered
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("opid", isOperationID)
	_ = v.RegisterValidation("httpmethod", isHTTPMethod)

	// report JSON names in field errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &Validator{
		validate:    v,
		logger:      logger.With(slog.String("component", "validator")),
		maxBodySize: DefaultMaxBodySize,
	}
}

// DecodeJSON reads r's body into dst and validates it. An empty body decodes
// as the zero value when allowEmpty is set.
func (v *Validator) DecodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	if r.ContentLength > v.maxBodySize {
		return apierrors.PayloadTooLarge(v.maxBodySize, r.ContentLength)
	}

	dec := json.NewDecoder(io.LimitReader(r.Body, v.maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(errors.Is(err, io.EOF) && allowEmpty) {
			v.logger.DebugContext(r.Context(), "request body rejected",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()))
			return apierrors.InvalidJSON(err)
		}
	}
	return v.Struct(dst)
}

// Struct validates a struct and returns validation errors
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apierrors.InvalidRequestWithError(err)
	}
	out := make([]apierrors.ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, apierrors.ValidationError{
			Field:   fe.Field(),
			Message: formatValidationError(fe),
		})
	}
	return apierrors.NewValidationErrors(out)
}

func formatValidationError(err validator.FieldError) string {
	field, param := err.Field(), err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "url", "http_url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "opid":
		return fmt.Sprintf("%s must start with a letter or digit and contain only letters, digits, '.', '_', ':' or '-'", field)
	case "httpmethod":
		return fmt.Sprintf("%s must be an HTTP method", field)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

func isOperationID(fl validator.FieldLevel) bool {
	id := fl.Field().String()
	return len(id) <= 128 && operationIDPattern.MatchString(id)
}

func isHTTPMethod(fl validator.FieldLevel) bool {
	switch strings.ToUpper(fl.Field().String()) {
	case http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
		http.MethodPatch, http.MethodDelete, http.MethodOptions:
		return true
	}
	return false
}

// ContentTypeValidator rejects bodies that are not one of contentTypes
func ContentTypeValidator(errs *apierrors.ErrorHandler, contentTypes ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength == 0 {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			for _, allowed := range contentTypes {
				if strings.HasPrefix(contentType, allowed) {
					next.ServeHTTP(w, r)
					return
				}
			}
			errs.HandleError(w, r, apierrors.UnsupportedMediaType(contentType, contentTypes))
		})
	}
}

// QueryInt parses an integer query parameter within [lo, hi]
func QueryInt(r *http.Request, param string, lo, hi, def int) (int, error) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apierrors.ErrValidation(param, fmt.Sprintf("%s must be a valid integer", param))
	}
	if n < lo || n > hi {
		return 0, apierrors.ErrValidation(param, fmt.Sprintf("%s must be between %d and %d", param, lo, hi))
	}
	return n, nil
}

// QueryEnum returns the query parameter when it is one of allowed
func QueryEnum(r *http.Request, param string, allowed []string, def string) (string, error) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return def, nil
	}
	for _, a := range allowed {
		if raw == a {
			return raw, nil
		}
	}
	return "", apierrors.ErrValidation(param, fmt.Sprintf("%s must be one of: %s", param, strings.Join(allowed, ", ")))
}
