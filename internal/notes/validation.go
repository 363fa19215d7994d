package notes

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	tagSlug       = "slug"
	tagRGBHex     = "rgbhex"
	tagNotSection = "notsection"
)

var (
	slugPattern   = regexp.MustCompile(`^[a-z0-9]+(?:[-_][a-z0-9]+)*$`)
	rgbHexPattern = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6})$`)
	structRules   = newValidator()
)

func newValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	mustRegister(validate, tagSlug, func(field validator.FieldLevel) bool {
		return slugPattern.MatchString(field.Field().String())
	})
	mustRegister(validate, tagRGBHex, func(field validator.FieldLevel) bool {
		return rgbHexPattern.MatchString(field.Field().String())
	})
	mustRegister(validate, tagNotSection, func(field validator.FieldLevel) bool {
		return !isSectionName(field.Field().String())
	})
	return validate
}

func mustRegister(validate *validator.Validate, tag string, fn validator.Func) {
	if err := validate.RegisterValidation(tag, fn); err != nil {
		panic(err)
	}
}

// validationFailure converts validator output into ErrValidation.
func validationFailure(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	messages := make([]string, 0, len(fieldErrors))
	for _, fieldError := range fieldErrors {
		rule := fieldError.Tag()
		if fieldError.Param() != "" {
			rule += "=" + fieldError.Param()
		}
		messages = append(messages, fmt.Sprintf("%s failed %s", fieldError.Field(), rule))
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(messages, "; "))
}

// isSectionName reports whether id would be read as a section instead of a category.
func isSectionName(id string) bool {
	switch id {
	case SectionAll, SectionFavorites, SectionTrash:
		return true
	default:
		return false
	}
}

// Normalize trims the category's fields.
func (category Category) Normalize() Category {
	return Category{
		ID:    strings.TrimSpace(category.ID),
		Name:  strings.TrimSpace(category.Name),
		Color: strings.TrimSpace(category.Color),
		Icon:  strings.TrimSpace(category.Icon),
	}
}

// Validate reports malformed id, name, color or icon as ErrValidation.
func (category Category) Validate() error {
	return validationFailure(structRules.Struct(category))
}

func (input NoteInput) normalize() NoteInput {
	return NoteInput{
		Title:    strings.TrimSpace(input.Title),
		Content:  input.Content,
		Category: strings.TrimSpace(input.Category),
	}
}

func (input NoteInput) validate() error {
	return validationFailure(structRules.Struct(input))
}

func (patch NotePatch) normalize() NotePatch {
	normalized := patch
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		normalized.Title = &title
	}
	if patch.Category != nil {
		category := strings.TrimSpace(*patch.Category)
		normalized.Category = &category
	}
	return normalized
}

func (patch NotePatch) validate() error {
	if patch.isEmpty() {
		return fmt.Errorf("%w: patch has no fields", ErrValidation)
	}
	if patch.Title != nil {
		if err := structRules.Var(*patch.Title, "required,max=100"); err != nil {
			return fmt.Errorf("%w: title failed %s", ErrValidation, validationTag(err))
		}
	}
	return nil
}

func validationTag(err error) string {
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		rule := fieldErrors[0].Tag()
		if fieldErrors[0].Param() != "" {
			rule += "=" + fieldErrors[0].Param()
		}
		return rule
	}
	return err.Error()
}
