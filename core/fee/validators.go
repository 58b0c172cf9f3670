package fee

import (
	"fmt"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/edtools/edcore/core"
)

var (
	totalMatchTag  = "totalmatch"
	totalMatchText = fmt.Sprintf("total must equal the sum of the components (tolerance %s)", TotalTolerance.StringFixed(2))

	feePlanTag  = "feeplan"
	feePlanText = "fee plan must be one of Monthly, Quarterly, Semi-Annually or Annually"
)

func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(planRequestStructValidation, PlanRequest{})
	core.RegisterCustomTranslation(validate, translator, totalMatchTag, totalMatchText)

	_ = validate.RegisterValidation(feePlanTag, feePlanValidation)
	core.RegisterCustomTranslation(validate, translator, feePlanTag, feePlanText)
}

func (r *PlanRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

func (r *DistributionRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(r)
}

// planRequestStructValidation checks the total against the components; a zero total is
// derived from the components by the caller.
func planRequestStructValidation(sl validator.StructLevel) {
	req := sl.Current().Interface().(PlanRequest)
	if req.Total.IsZero() || len(req.Components) == 0 {
		return
	}
	if req.Total.Sub(ComponentsTotal(req.Components)).Abs().GreaterThan(TotalTolerance) {
		sl.ReportError(req.Total, "total", "Total", totalMatchTag, "")
	}
}

func feePlanValidation(fl validator.FieldLevel) bool {
	_, ok := planGaps[FeePlan(fl.Field().String())]
	return ok
}
