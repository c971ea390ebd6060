package crm

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmehdipour/agency-crm/internal/model"
	"github.com/jmehdipour/agency-crm/internal/util"
	"github.com/shopspring/decimal"
)

var validate = newValidator()

// maxBill is the first magnitude a DECIMAL(18,2) column cannot hold.
var maxBill = decimal.New(1, 16)

func newValidator() *validator.Validate {
	v := validator.New()
	// report fields by their wire name (TotalBill -> totalBill)
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return lowerFirst(f.Name)
	})
	_ = v.RegisterValidation("bill", validBill)
	return v
}

// validBill accepts amounts whose magnitude fits DECIMAL(18,2) once rounded
// to cents.
func validBill(fl validator.FieldLevel) bool {
	d, ok := fl.Field().Interface().(decimal.Decimal)
	if !ok {
		return false
	}
	return d.Round(2).Abs().LessThan(maxBill)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func normalizeAgency(f model.AgencyFields) model.AgencyFields {
	f.Name = strings.TrimSpace(f.Name)
	f.Address1 = strings.TrimSpace(f.Address1)
	f.Address2 = strings.TrimSpace(f.Address2)
	f.State = strings.TrimSpace(f.State)
	f.City = strings.TrimSpace(f.City)
	f.PhoneNumber = util.NormalizePhone(f.PhoneNumber)
	return f
}

func normalizeClient(f model.ClientFields) model.ClientFields {
	f.Name = strings.TrimSpace(f.Name)
	f.Email = strings.TrimSpace(f.Email)
	f.PhoneNumber = util.NormalizePhone(f.PhoneNumber)
	if f.TotalBill != nil {
		// stored as DECIMAL(18,2)
		rounded := f.TotalBill.Round(2)
		f.TotalBill = &rounded
	}
	return f
}

// check runs struct validation and folds failures into one ErrValidation.
func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return validationErr(err.Error())
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fe.Field()+" is required")
		case "email":
			msgs = append(msgs, fe.Field()+" must be a valid email address")
		case "max":
			msgs = append(msgs, fe.Field()+" must be at most "+fe.Param()+" characters")
		case "bill":
			msgs = append(msgs, fe.Field()+" is out of range")
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return validationErr(strings.Join(msgs, "; "))
}
