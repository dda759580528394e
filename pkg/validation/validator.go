package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	pkgerrors "SocialMeshPlatform/pkg/errors"
)

// MaxBodyBytes предел JSON тела запроса
const MaxBodyBytes = 1 << 20

// Validator проверяет запросы по тегам validate
type Validator struct {
	validate *validator.Validate
}

// NewValidator создает новый Validator. Имена полей в сообщениях берутся из json тегов.
func NewValidator() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &Validator{validate: v}
}

// Struct проверяет структуру. Ошибка содержит сообщение о первом нарушении.
func (v *Validator) Struct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return pkgerrors.Wrap(err, pkgerrors.ErrValidation, "Validation failed")
	}

	messages := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		messages = append(messages, fmt.Sprintf("%q %s", fe.Field(), describe(fe)))
	}
	return pkgerrors.New(pkgerrors.ErrValidation, messages[0]).
		WithDetails(strings.Join(messages, "; "))
}

// DecodeJSON читает JSON тело запроса в dst и проверяет его
func (v *Validator) DecodeJSON(r *http.Request, dst interface{}) error {
	body := io.LimitReader(r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return pkgerrors.New(pkgerrors.ErrValidation, "Request body is required")
		}
		return pkgerrors.Wrap(err, pkgerrors.ErrValidation, "Malformed JSON body")
	}
	return v.Struct(dst)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		if fe.Kind() == reflect.Slice {
			return "must contain at least " + fe.Param() + " items"
		}
		return "length must be at least " + fe.Param() + " characters long"
	case "max":
		if fe.Kind() == reflect.Slice {
			return "must contain at most " + fe.Param() + " items"
		}
		return "length must be less than or equal to " + fe.Param() + " characters long"
	case "uuid", "uuid4":
		return "must be a valid UUID"
	case "alphanum":
		return "must only contain alpha-numeric characters"
	case "oneof":
		return "must be one of [" + fe.Param() + "]"
	default:
		return "is invalid"
	}
}

// ValidateURL проверяет корректность URL
func (v *Validator) ValidateURL(target string, allowedSchemes []string) error {
	if target == "" {
		return fmt.Errorf("target is required")
	}
	if strings.ContainsAny(target, " \t\n\r") {
		return fmt.Errorf("URL contains invalid whitespace characters")
	}

	parsedURL, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if len(allowedSchemes) > 0 {
		schemeValid := false
		for _, scheme := range allowedSchemes {
			if parsedURL.Scheme == scheme {
				schemeValid = true
				break
			}
		}
		if !schemeValid {
			return fmt.Errorf("URL must use one of allowed schemes %v, got: %s", allowedSchemes, parsedURL.Scheme)
		}
	}

	if parsedURL.Host == "" {
		return fmt.Errorf("URL must have a valid host")
	}

	return nil
}

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateCronExpression проверяет расписание cron, включая дескрипторы вида @every 1h
func (v *Validator) ValidateCronExpression(cronExpr string) error {
	if strings.TrimSpace(cronExpr) == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", cronExpr, err)
	}
	return nil
}

// ValidateUUID проверяет формат UUID
func (v *Validator) ValidateUUID(id, fieldName string) error {
	if id == "" {
		return pkgerrors.New(pkgerrors.ErrValidation, fmt.Sprintf("%q is required", fieldName))
	}
	if _, err := uuid.Parse(id); err != nil {
		return pkgerrors.New(pkgerrors.ErrValidation, fmt.Sprintf("%q must be a valid UUID", fieldName))
	}
	return nil
}
