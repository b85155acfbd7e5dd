package payment

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/tuition/core"
)

var (
	paymentTypeTag  = "paymenttype"
	paymentTypeText = "{0} must be one of NAQD, KARTA or BANK"
)

// InitValidators registers the ledger's custom validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(paymentTypeTag, paymentTypeValidation)
	core.RegisterCustomTranslation(validate, translator, paymentTypeTag, paymentTypeText)
}

// paymentTypeValidation only allows known payment types.
func paymentTypeValidation(fl validator.FieldLevel) bool {
	return Type(fl.Field().String()).Valid()
}
