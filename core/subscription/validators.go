package subscription

import (
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/jamii/core"
)

var (
	statusTag  = "substatus"
	statusText = "status must be one of " + strings.Join(AllStatuses, ", ")

	endDateTag  = "enddate"
	endDateText = "end date cannot be before start date"
)

// InitValidators registers the subscription validation rules and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(statusTag, statusValidation)
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)

	validate.RegisterStructValidation(subscriptionStructValidation, NewSubscription{}, UpdateSubscription{})
	core.RegisterCustomTranslation(validate, translator, endDateTag, endDateText)
}

func statusValidation(fl validator.FieldLevel) bool {
	status, ok := fl.Field().Interface().(string)
	return ok && isValidStatus(status)
}

// subscriptionStructValidation checks that the end date, if any, does not precede the start date.
func subscriptionStructValidation(sl validator.StructLevel) {
	var start time.Time
	var end *time.Time

	switch sub := sl.Current().Interface().(type) {
	case NewSubscription:
		start, end = sub.StartDate, sub.EndDate
	case UpdateSubscription:
		start, end = sub.StartDate, sub.EndDate
	default:
		return
	}
	if end != nil && !start.IsZero() && end.Before(start) {
		sl.ReportError(end, "end_date", "EndDate", endDateTag, "")
	}
}
