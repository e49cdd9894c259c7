package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-social/internal/apperr"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError maps err onto the taxonomy in apperr. The cause is logged, the
// client only receives the public message.
func WriteError(w http.ResponseWriter, r *http.Request, logger *zap.SugaredLogger, err error) {
	e := apperr.From(err)
	status := e.Kind.Status()
	if status >= http.StatusInternalServerError {
		logger.Errorw("request failed", "method", r.Method, "path", r.URL.Path, "kind", e.Kind.String(), "err", err)
	} else {
		logger.Debugw("request rejected", "method", r.Method, "path", r.URL.Path, "kind", e.Kind.String(), "err", err)
	}
	body := map[string]any{"error": e.Msg}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}
	WriteJSON(w, status, body)
}

// Decode reads a JSON body into dst and runs its `validate` tags.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return apperr.Wrap(apperr.Validation, "invalid payload", err)
	}
	return Validate(dst)
}

func Validate(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return apperr.Wrap(apperr.Validation, "invalid payload", err)
	}
	details := make([]apperr.FieldError, len(ve))
	for i, fe := range ve {
		details[i] = apperr.FieldError{Field: jsonName(fe), Message: fieldMessage(fe)}
	}
	return &apperr.Error{Kind: apperr.Validation, Msg: details[0].Message, Details: details, Err: err}
}

func jsonName(fe validator.FieldError) string {
	f := fe.Field()
	if f == "" {
		return f
	}
	return strings.ToLower(f[:1]) + f[1:]
}

func fieldMessage(fe validator.FieldError) string {
	name := jsonName(fe)
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", name)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", name)
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", name, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", name, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters long", name, fe.Param())
	case "numeric":
		return fmt.Sprintf("%s must contain only digits", name)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", name, fe.Tag())
	}
}

// PathID parses the named path segment as a positive integer id.
func PathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.New(apperr.Validation, "invalid "+name)
	}
	return id, nil
}

// Page reads the 1-based `page` query parameter; missing or invalid values
// fall back to the first page.
func Page(r *http.Request) int {
	p, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || p < 1 {
		return 1
	}
	return p
}
