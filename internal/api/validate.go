package api

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/SumitDutta007/ai-tutor/internal/transcript"
)

const notBlankTag = "notblank"

// requestValidator checks decoded request bodies and renders failures as
// per-field English messages keyed by JSON field name.
type requestValidator struct {
	validate   *validator.Validate
	translator ut.Translator
}

func newRequestValidator() *requestValidator {
	v := validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	trans, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Transcripts are validated for presence only; their content is checked
	// by transcript.Normalize. An unset transcript reads as nil so "required"
	// rejects it.
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		in, ok := field.Interface().(transcript.Input)
		if !ok || in.IsZero() {
			return nil
		}
		return true
	}, transcript.Input{})

	_ = v.RegisterValidation(notBlankTag, func(fl validator.FieldLevel) bool {
		f := fl.Field()
		return f.Kind() == reflect.String && strings.TrimSpace(f.String()) != ""
	})
	_ = v.RegisterTranslation(notBlankTag, trans,
		func(ut.Translator) error { return nil },
		func(_ ut.Translator, fe validator.FieldError) string {
			return fe.Field() + " cannot be blank"
		},
	)

	return &requestValidator{validate: v, translator: trans}
}

// Struct validates s. On failure it returns a *FieldErrors.
func (rv *requestValidator) Struct(s any) error {
	err := rv.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fe := &FieldErrors{Fields: make(map[string]string, len(verrs))}
	for _, e := range verrs {
		if _, seen := fe.Fields[e.Field()]; !seen {
			fe.Fields[e.Field()] = e.Translate(rv.translator)
		}
	}
	return fe
}

// FieldErrors maps JSON field names to validation messages.
type FieldErrors struct {
	Fields map[string]string
}

// Error renders the messages in field order, e.g.
// "classroomId is a required field; transcript is a required field".
func (e *FieldErrors) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, len(keys))
	for i, k := range keys {
		msgs[i] = e.Fields[k]
	}
	return strings.Join(msgs, "; ")
}
