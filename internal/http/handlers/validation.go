package handlers

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/tbourn/rent-share-backend/internal/domain"
	"github.com/tbourn/rent-share-backend/internal/services"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterValidators adds the marketplace binding tags to gin's validator:
//
//	txstatus    pending|active|completed|disputed|declined (case-insensitive)
//	reqkind     rent|swap|contact
//	paymode     online|offline
//	userrole    rent|swap|both
//	txtab       all|active|completed|swaps
//
// It is safe to call more than once.
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(fieldName)
		for tag, fn := range map[string]validator.Func{
			"txstatus": oneOfFold(domain.TxStatusPending, domain.TxStatusActive, domain.TxStatusCompleted, domain.TxStatusDisputed, domain.TxStatusDeclined),
			"reqkind":  oneOfFold(services.RequestRent, services.RequestSwap, services.RequestContact),
			"paymode":  oneOfFold(domain.PaymentOnline, domain.PaymentOffline),
			"userrole": oneOfFold(domain.RoleRent, domain.RoleSwap, domain.RoleBoth),
			"txtab":    oneOfFold(services.TabAll, services.TabActive, services.TabCompleted, services.TabSwaps),
		} {
			if registerErr = v.RegisterValidation(tag, fn); registerErr != nil {
				return
			}
		}
	})
	return registerErr
}

func oneOfFold(allowed ...string) validator.Func {
	return func(fl validator.FieldLevel) bool {
		s := strings.TrimSpace(fl.Field().String())
		for _, a := range allowed {
			if strings.EqualFold(s, a) {
				return true
			}
		}
		return false
	}
}

// fieldName reports struct fields by their wire name in validation errors.
func fieldName(f reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		name, _, _ := strings.Cut(f.Tag.Get(key), ",")
		if name == "-" {
			return ""
		}
		if name != "" {
			return name
		}
	}
	return f.Name
}

// bindMessage turns a binding error into a short client message.
func bindMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			return field + " is required"
		case "txstatus", "reqkind", "paymode", "userrole", "txtab", "oneof":
			return field + " has an unsupported value"
		case "min", "max", "gte", "lte":
			return field + " is out of range"
		}
		return field + " is invalid"
	}
	return "invalid JSON body"
}
