package research

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kadirpekel/dossier/pkg/llms"
	"github.com/kadirpekel/dossier/pkg/providers"
)

// Taxonomy labels carried on Error events and mapped to transport
// error codes. Provider and model failures are retried or absorbed
// inside the pipeline; only the rest surface to callers.
const (
	ErrTypeConfig     = "config_error"
	ErrTypeValidation = "validation_error"
	ErrTypeProvider   = "provider_error"
	ErrTypeModel      = "model_error"
	ErrTypeTimeout    = "timeout"
	ErrTypeCancelled  = "cancelled"
	ErrTypeInternal   = "internal_error"
)

// ConfigError reports unusable configuration discovered at run time.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return "config error: " + e.Msg }

// ValidationError reports an invalid request field.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// TimeoutError reports an exhausted stage or session budget.
type TimeoutError struct {
	Stage  string
	Budget time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s exceeded its %s budget", e.Stage, e.Budget)
}

// ErrCancelled marks a session cancelled by the caller.
var ErrCancelled = errors.New("session cancelled")

// Classify maps an error onto the taxonomy label for events and
// transport codes.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	var (
		configErr     *ConfigError
		validationErr *ValidationError
		timeoutErr    *TimeoutError
		providerErr   *providers.Error
		modelErr      *llms.ModelError
	)
	switch {
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return ErrTypeCancelled
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return ErrTypeTimeout
	case errors.As(err, &configErr):
		return ErrTypeConfig
	case errors.As(err, &validationErr):
		return ErrTypeValidation
	case errors.As(err, &providerErr):
		return ErrTypeProvider
	case errors.As(err, &modelErr):
		return ErrTypeModel
	default:
		return ErrTypeInternal
	}
}
