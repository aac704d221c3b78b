package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/chirino/collection-service/internal/model"
	registrystore "github.com/chirino/collection-service/internal/registry/store"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("level", func(fl validator.FieldLevel) bool {
		return model.PermissionLevel(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		return model.ChatRole(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("notnil", func(fl validator.FieldLevel) bool {
		id, ok := fl.Field().Interface().(uuid.UUID)
		return ok && id != uuid.Nil
	})
	return v
}

// validateInput runs the struct tags of in and reports the first violation
// as a ValidationError.
func validateInput(in any) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &registrystore.ValidationError{Field: fe.Field(), Message: describe(fe)}
	}
	return &registrystore.ValidationError{Field: "request", Message: err.Error()}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "notnil":
		return "is required"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "level":
		return fmt.Sprintf("unknown permission level %q; valid: %v", fe.Value(), model.PermissionLevels)
	case "role":
		return fmt.Sprintf("unknown role %q", fe.Value())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

// CollectionInput creates a collection.
type CollectionInput struct {
	Name        string `json:"name"        validate:"required,max=255"`
	Description string `json:"description" validate:"max=10000"`
}

// CollectionPatch updates the non-nil fields of a collection.
type CollectionPatch struct {
	Name        *string `json:"name"        validate:"omitempty,min=1,max=255"`
	Description *string `json:"description" validate:"omitempty,max=10000"`
}

// ChatInput creates a chat.
type ChatInput struct {
	Title       string `json:"title"       validate:"required,max=500"`
	Description string `json:"description" validate:"max=10000"`
}

// ChatPatch updates the non-nil fields of a chat.
type ChatPatch struct {
	Title       *string `json:"title"       validate:"omitempty,min=1,max=500"`
	Description *string `json:"description" validate:"omitempty,max=10000"`
}

// Message is the role and content of a history entry.
type Message struct {
	Role    model.ChatRole `json:"role"    validate:"role"`
	Content string         `json:"content" validate:"required"`
}

// Grant assigns a level to a user.
type Grant struct {
	UserID string                `json:"userId" validate:"required,max=255"`
	Level  model.PermissionLevel `json:"level"  validate:"level"`
}

// RelationInput creates a relation.
type RelationInput struct {
	Title       string `json:"title"       validate:"required,max=500"`
	Description string `json:"description" validate:"max=10000"`
}

// RelationPatch updates the non-nil fields of a relation.
type RelationPatch struct {
	Title       *string `json:"title"       validate:"omitempty,min=1,max=500"`
	Description *string `json:"description" validate:"omitempty,max=10000"`
}

// NodeInput creates a node.
type NodeInput struct {
	Title       string `json:"title"       validate:"required,max=500"`
	Description string `json:"description" validate:"max=10000"`
	Type        string `json:"type"        validate:"max=100"`
	Label       string `json:"label"       validate:"max=255"`
}

// EdgeInput creates an edge between two nodes of the same relation.
type EdgeInput struct {
	Source uuid.UUID `json:"source" validate:"notnil"`
	Target uuid.UUID `json:"target" validate:"notnil"`
	Label  string    `json:"label"  validate:"max=255"`
}
