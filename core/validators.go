package core

import (
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// MaxClassCapacity bounds a class capacity; 0 means unlimited.
const MaxClassCapacity = 100

// DateLayout is the layout of calendar dates sent as strings (birth dates).
const DateLayout = "2006-01-02"

var (
	// school codes: matricules, course codes, parent codes
	codeTag   = "code"
	codeText  = "only letters, digits and underscores are allowed"
	codeRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

	notBlankTag  = "notblank"
	notBlankText = "this field cannot be blank"

	capacityTag  = "capacity"
	capacityText = "capacity must be between 0 (unlimited) and 100"

	phoneTag   = "phone"
	phoneText  = "invalid phone number"
	phoneRegex = regexp.MustCompile(`^\+?[0-9][0-9 ()-]{5,19}$`)

	dateTag  = "date"
	dateText = "use the YYYY-MM-DD format"

	schoolYearTag   = "schoolyear"
	schoolYearText  = "use the YYYY-YYYY format, with consecutive years"
	schoolYearRegex = regexp.MustCompile(`^(\d{4})-(\d{4})$`)

	requiredText = "this field is required"
)

// overrides replace the stock english messages with the wording the dashboards show.
// Texts may use {0} for the tag parameter.
var overrides = []struct {
	tag, text string
	param     bool
}{
	{tag: "required", text: requiredText},
	{tag: "required_with", text: requiredText},
	{tag: "uuid", text: "unknown identifier"},
	{tag: "email", text: "invalid email address"},
	{tag: "url", text: "invalid URL"},
	{tag: "eqfield", text: "passwords do not match"},
	{tag: "min", text: "must be at least {0} characters", param: true},
	{tag: "max", text: "must be at most {0} characters", param: true},
	{tag: "len", text: "must be exactly {0} characters", param: true},
	{tag: "gte", text: "must be {0} or more", param: true},
	{tag: "oneof", text: "must be one of: {0}", param: true},
}

// NewTranslator returns the english ut.Translator used for validation messages.
func NewTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = en_translations.RegisterDefaultTranslations(validate, translator)

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	for _, v := range []struct {
		tag, text string
		fn        validator.Func
	}{
		{codeTag, codeText, codeValidation},
		{notBlankTag, notBlankText, notBlankValidation},
		{capacityTag, capacityText, capacityValidation},
		{phoneTag, phoneText, phoneValidation},
		{dateTag, dateText, dateValidation},
		{schoolYearTag, schoolYearText, schoolYearValidation},
	} {
		_ = validate.RegisterValidation(v.tag, v.fn)
		RegisterCustomTranslation(validate, translator, v.tag, v.text)
	}

	for _, o := range overrides {
		if o.param {
			registerParamTranslation(validate, translator, o.tag, o.text)
		} else {
			RegisterCustomTranslation(validate, translator, o.tag, o.text, true)
		}
	}
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag.
func RegisterCustomTranslation(validate *validator.Validate, translator ut.Translator, tag, text string, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, ovrd) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// registerParamTranslation overrides tag with a text filled with the tag parameter (min=8 gives 8).
func registerParamTranslation(validate *validator.Validate, translator ut.Translator, tag, text string) {
	_ = validate.RegisterTranslation(
		tag, translator,
		func(t ut.Translator) error { return t.Add(tag, text, true) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, strings.ReplaceAll(fe.Param(), " ", ", "))
			return s
		},
	)
}

// Custom Global Validators

func codeValidation(fl validator.FieldLevel) bool {
	return codeRegex.MatchString(fl.Field().String())
}

func notBlankValidation(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}

func capacityValidation(fl validator.FieldLevel) bool {
	fld := fl.Field()
	for fld.Kind() == reflect.Ptr {
		if fld.IsNil() {
			return true
		}
		fld = fld.Elem()
	}
	switch fld.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := fld.Int()
		return n >= 0 && n <= MaxClassCapacity
	default:
		return false
	}
}

func phoneValidation(fl validator.FieldLevel) bool {
	return phoneRegex.MatchString(fl.Field().String())
}

func dateValidation(fl validator.FieldLevel) bool {
	_, err := time.Parse(DateLayout, fl.Field().String())
	return err == nil
}

// schoolYearValidation accepts "2025-2026": two consecutive years.
func schoolYearValidation(fl validator.FieldLevel) bool {
	m := schoolYearRegex.FindStringSubmatch(fl.Field().String())
	if m == nil {
		return false
	}
	start, _ := time.Parse("2006", m[1])
	end, _ := time.Parse("2006", m[2])
	return end.Year() == start.Year()+1
}
