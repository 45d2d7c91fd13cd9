package user

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/pueriangeli/core"
)

var (
	roleTag  = "role"
	roleText = "invalid role"
)

// InitValidators registers the user validators. core.InitValidators must run first.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(roleTag, roleValidation)
	core.RegisterCustomTranslation(validate, translator, roleTag, roleText)
}

// roleValidation checks that a role is one of AllRoles
func roleValidation(fl validator.FieldLevel) bool {
	switch role := fl.Field().Interface().(type) {
	case Role:
		return role.IsKnown()
	case *Role:
		return role != nil && role.IsKnown()
	default:
		return false
	}
}
