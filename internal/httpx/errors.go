package httpx

import (
	"errors"
	"fmt"
	"log"

	"github.com/gofiber/fiber/v2"
)

// AppError is the JSON error envelope shared by every handler package.
type AppError struct {
	Code    string   `json:"code"`
	Status  int      `json:"-"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func New(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFound(what string) *AppError {
	return &AppError{Code: "NOT_FOUND", Status: 404, Message: fmt.Sprintf("%s not found", what)}
}

func BadRequest(msg string) *AppError {
	return &AppError{Code: "INVALID_PAYLOAD", Status: 400, Message: msg}
}

func Validation(details []string) *AppError {
	return &AppError{Code: "VALIDATION_FAILED", Status: 422, Message: "Validation failed", Details: details}
}

// ErrorHandler is the central Fiber error handler: AppErrors keep their
// status and envelope, everything else becomes an opaque 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.Status).JSON(ErrorResponse{Error: appErr})
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(ErrorResponse{
			Error: &AppError{Code: "HTTP_ERROR", Message: fiberErr.Message},
		})
	}

	log.Printf("ERROR: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error: &AppError{Code: "INTERNAL_ERROR", Message: "Internal server error"},
	})
}
