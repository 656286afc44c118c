package providers

import (
	"fmt"
	"kwatch/internal/structures"

	"github.com/gookit/validate"
)

type CnfValidator struct {
	conf *structures.Config
}

func NewCnfValidator(conf *structures.Config) *CnfValidator {
	return &CnfValidator{conf: conf}
}

// Validate runs struct-tag validation over the whole config tree.
func (cv *CnfValidator) Validate() error {
	v := validate.Struct(cv.conf)
	if !v.Validate() {
		return fmt.Errorf("config validation failed: %s", v.Errors.One())
	}
	if cv.conf.Scheduler.MaxConcurrent < 0 {
		return fmt.Errorf("config validation failed: scheduler.maxConcurrent must not be negative")
	}
	if cv.conf.Fetcher.MaxRetries < 0 {
		return fmt.Errorf("config validation failed: fetcher.maxRetries must not be negative")
	}
	return nil
}
