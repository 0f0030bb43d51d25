package feedback

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/sauti/core"
)

var (
	categoryTag  = "feedbackcategory"
	categoryText = "invalid category"

	statusTag  = "feedbackstatus"
	statusText = "invalid status"

	ratingRangeText = "rating must be between 1 and 5"
)

// InitValidators registers feedback validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(categoryTag, categoryValidation)
	core.RegisterCustomTranslation(validate, translator, categoryTag, categoryText)

	_ = validate.RegisterValidation(statusTag, statusValidation)
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)

	core.RegisterCustomTranslation(validate, translator, "min", ratingRangeText, true)
	core.RegisterCustomTranslation(validate, translator, "max", ratingRangeText, true)
}

// categoryValidation checks that the provided category is in AllCategories.
func categoryValidation(fl validator.FieldLevel) bool {
	return Category(fl.Field().String()).IsValid()
}

// statusValidation checks that the provided status is in AllStatuses.
func statusValidation(fl validator.FieldLevel) bool {
	return Status(fl.Field().String()).IsValid()
}
