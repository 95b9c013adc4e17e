package core

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

const (
	notBlankTag = "notblank"
	dateLayout  = "2006-01-02"
)

// fieldMessages overrides the stock english messages. Every entry replaces the default.
var fieldMessages = map[string]string{
	"required":      "this field is required",
	"required_with": "this field is required",
	"required_if":   "this field is required",
	notBlankTag:     "this field cannot be blank",
}

// NewTranslator returns the english translator used for validation messages.
func NewTranslator() ut.Translator {
	locale := en.New()
	translator, _ := ut.New(locale, locale).GetTranslator(locale.Locale())
	return translator
}

// InitValidators registers the shared tags and messages on validate.
// Field errors are keyed by the JSON name of the field.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)
	validate.RegisterTagNameFunc(jsonFieldName)

	_ = validate.RegisterValidation(notBlankTag, notBlank)
	for tag, text := range fieldMessages {
		RegisterCustomTranslation(validate, translator, tag, text, tag != notBlankTag)
	}

	// stock message quotes the Go layout, which means nothing to API clients
	_ = validate.RegisterTranslation("datetime", translator,
		func(ut.Translator) error { return nil },
		func(_ ut.Translator, fe validator.FieldError) string {
			if fe.Param() == dateLayout {
				return "must be a date formatted as YYYY-MM-DD"
			}
			return fmt.Sprintf("must match the %s format", fe.Param())
		},
	)
}

// RegisterCustomTranslation sets the message of tag. Pass override to replace a stock message.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	replace := len(override) > 0 && override[0]
	register := func(t ut.Translator) error { return t.Add(tag, text, replace) }
	translate := func(t ut.Translator, fe validator.FieldError) string {
		msg, err := t.T(tag, fe.Field())
		if err != nil {
			return fe.Error()
		}
		return msg
	}
	_ = validate.RegisterTranslation(tag, translator, register, translate)
}

func jsonFieldName(fld reflect.StructField) string {
	name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
	if name == "-" {
		return ""
	}
	return name
}

func notBlank(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}
