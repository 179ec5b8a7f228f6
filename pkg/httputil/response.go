package httputil

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/saludpro/backoffice-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error carries a machine-readable code plus a bilingual message pair.
// The primary message is Spanish, matching the audience of the product.
type Error struct {
	Code      string       `json:"code"`
	Message   string       `json:"message"`
	MessageEn string       `json:"messageEn"`
	Fields    []FieldError `json:"fields,omitempty"`
}

// FieldError pinpoints one invalid field of a request body.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var validationMessages = map[string]string{
	"required": "Field is required",
	"email":    "Invalid email format",
	"min":      "Value is too short",
	"max":      "Value is too long",
	"oneof":    "Value is not one of the allowed options",
}

type errorSpec struct {
	status    int
	message   string
	messageEn string
}

var kindSpecs = map[apperrors.Kind]errorSpec{
	apperrors.KindNotFound: {
		http.StatusNotFound,
		"Recurso no encontrado",
		"Resource not found",
	},
	apperrors.KindAlreadyExists: {
		http.StatusConflict,
		"El recurso ya existe",
		"Resource already exists",
	},
	apperrors.KindAlreadyApproved: {
		http.StatusConflict,
		"El paciente ya fue aprobado",
		"Patient is already approved",
	},
	apperrors.KindInvalidCredentials: {
		http.StatusUnauthorized,
		"Credenciales inválidas",
		"Invalid credentials",
	},
	apperrors.KindAccountInactive: {
		http.StatusForbidden,
		"La cuenta está desactivada",
		"Account is deactivated",
	},
	apperrors.KindAccountPendingApproval: {
		http.StatusForbidden,
		"La cuenta está pendiente de aprobación",
		"Account is pending approval",
	},
	apperrors.KindCurrentPasswordIncorrect: {
		http.StatusBadRequest,
		"La contraseña actual es incorrecta",
		"Current password is incorrect",
	},
	apperrors.KindRoleNotFound: {
		http.StatusNotFound,
		"Rol no encontrado",
		"Role not found",
	},
	apperrors.KindEmailAlreadyExists: {
		http.StatusConflict,
		"El email ya está registrado",
		"Email is already registered",
	},
	apperrors.KindForbidden: {
		http.StatusForbidden,
		"No tiene permisos para realizar esta acción",
		"You do not have permission to perform this action",
	},
}

// RespondWithSuccess sends a success response
func RespondWithSuccess(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

// RespondWithError maps a domain error to its HTTP status and message
// pair. Anything without a known kind becomes an opaque 500.
func RespondWithError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	spec, ok := kindSpecs[kind]
	if !ok {
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error: &Error{
				Code:      "INTERNAL",
				Message:   "Error interno del servidor",
				MessageEn: "Internal server error",
			},
		})
		return
	}

	c.JSON(spec.status, Response{
		Success: false,
		Error: &Error{
			Code:      kind.String(),
			Message:   spec.message,
			MessageEn: spec.messageEn,
		},
	})
}

// RespondWithValidationError reports a request binding failure, with
// per-field details when the failure came from struct validation.
func RespondWithValidationError(c *gin.Context, err error) {
	var fields []FieldError
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, e := range verrs {
			msg := validationMessages[e.Tag()]
			if msg == "" {
				msg = e.Error()
			}
			fields = append(fields, FieldError{Field: e.Field(), Message: msg})
		}
	}

	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error: &Error{
			Code:      "VALIDATION",
			Message:   "Datos de entrada inválidos",
			MessageEn: "Invalid input data",
			Fields:    fields,
		},
	})
}
