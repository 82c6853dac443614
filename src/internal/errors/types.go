package errors

import (
	"fmt"
)

// FeatureDisabledError is returned when a request targets a capability that
// the language's configuration switched off
type FeatureDisabledError struct {
	Language string
	Feature  string
}

func (e *FeatureDisabledError) Error() string {
	return fmt.Sprintf("%s is disabled for language %s", e.Feature, e.Language)
}

// NewFeatureDisabledError creates a new FeatureDisabledError
func NewFeatureDisabledError(language, feature string) error {
	return &FeatureDisabledError{
		Language: language,
		Feature:  feature,
	}
}
