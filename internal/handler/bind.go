package handler

import (
	"errors"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/makkenzo/keybind/internal/ierr"
)

// bindBody binds the JSON body, treating an empty body as an empty object.
// The body may already have been read by the admin auth middleware.
func bindBody(c *gin.Context, obj any) error {
	err := c.ShouldBindBodyWith(obj, binding.JSON)
	if errors.Is(err, io.EOF) {
		err = binding.Validator.ValidateStruct(obj)
	}
	if err == nil {
		return nil
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		return ve
	}
	return fmt.Errorf("%w: invalid request body", ierr.ErrValidation)
}
