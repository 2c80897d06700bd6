package definition

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/dshills/procvm/pvm"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate

	activityIDPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]*$`)
)

func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()

		_ = v.RegisterValidation("activity_id", func(fl validator.FieldLevel) bool {
			return activityIDPattern.MatchString(fl.Field().String())
		})

		_ = v.RegisterValidation("behavior", func(fl validator.FieldLevel) bool {
			_, err := pvm.ParseBehaviorKind(fl.Field().String())
			return err == nil
		})

		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		validateInst = v
	})
	return validateInst
}

// validateDocument runs the struct rules and converts the first failure.
func validateDocument(doc *Document) error {
	err := validatorInstance().Struct(doc)
	if err == nil {
		return nil
	}

	var ves validator.ValidationErrors
	if errors.As(err, &ves) {
		fe := ves[0]
		field := yamlPath(fe.Namespace())
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("value %v failed rule %q", fe.Value(), ruleName(fe)),
			Err:     err,
		}
	}
	return &ValidationError{Message: err.Error(), Err: err}
}

// yamlPath drops the root type name from a validator namespace.
func yamlPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func ruleName(fe validator.FieldError) string {
	if fe.Param() != "" {
		return fe.Tag() + "=" + fe.Param()
	}
	return fe.Tag()
}
