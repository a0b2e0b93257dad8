package etl

import (
	"strings"
)

// Reasons a listed key is ignored rather than processed.
const (
	ReasonPlaceholder     = "directory placeholder"
	ReasonFormat          = "unrecognized format"
	ReasonAlreadyArchived = "already archived"
)

// Validator decides which listed keys are eligible source objects.
type Validator struct {
	Extension       string
	ProcessedPrefix string
}

func NewValidator(extension, processedPrefix string) *Validator {
	return &Validator{
		Extension:       strings.ToLower(extension),
		ProcessedPrefix: strings.Trim(processedPrefix, "/"),
	}
}

// Check returns ok for an eligible key, or the reason it is ignored.
func (v *Validator) Check(key string) (reason string, ok bool) {
	if strings.HasSuffix(key, "/") {
		return ReasonPlaceholder, false
	}
	if v.ProcessedPrefix != "" && strings.HasPrefix(key, v.ProcessedPrefix+"/") {
		return ReasonAlreadyArchived, false
	}
	if !strings.HasSuffix(strings.ToLower(key), v.Extension) {
		return ReasonFormat, false
	}
	return "", true
}
