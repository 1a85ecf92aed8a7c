// ushadow - Personal AI Assistant Orchestration Backend
// Copyright 2026 ushadow contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/ushadow-io/ushadow

// Package validation wraps go-playground/validator v10 behind a
// thread-safe singleton and translates failures into the API's
// VALIDATION_ERROR shape.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// FieldError is one failed field.
type FieldError struct {
	Field   string      `json:"field"`
	Tag     string      `json:"tag"`
	Param   string      `json:"param,omitempty"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
}

// RequestError aggregates the failed fields of one request.
type RequestError struct {
	Fields []FieldError
}

func (e *RequestError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	messages := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		messages[i] = f.Message
	}
	return strings.Join(messages, "; ")
}

// Details returns the failure detail map embedded in error responses.
func (e *RequestError) Details() map[string]interface{} {
	if len(e.Fields) == 1 {
		f := e.Fields[0]
		return map[string]interface{}{"field": f.Field, "tag": f.Tag}
	}
	fields := make([]map[string]interface{}, len(e.Fields))
	for i, f := range e.Fields {
		fields[i] = map[string]interface{}{"field": f.Field, "tag": f.Tag, "message": f.Message}
	}
	return map[string]interface{}{"fields": fields}
}

// Validator returns the singleton instance.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateStruct validates s against its `validate` tags. Returns nil on
// success or a *RequestError describing every failed field.
func ValidateStruct(s interface{}) *RequestError {
	err := Validator().Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &RequestError{Fields: []FieldError{{
			Field: "unknown", Tag: "unknown", Message: err.Error(),
		}}}
	}

	fields := make([]FieldError, len(fieldErrs))
	for i, fe := range fieldErrs {
		fields[i] = FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Value:   fe.Value(),
			Message: translate(fe),
		}
	}
	return &RequestError{Fields: fields}
}

var messageTemplates = map[string]string{
	"required": "%s is required",
	"url":      "%s must be a valid URL",
	"uuid":     "%s must be a valid UUID",
	"hostname": "%s must be a valid hostname",
	"ip":       "%s must be a valid IP address",
	"datetime": "%s must be an RFC3339 timestamp",
}

var paramTemplates = map[string]string{
	"oneof": "%s must be one of: %s",
	"gte":   "%s must be greater than or equal to %s",
	"lte":   "%s must be less than or equal to %s",
	"gt":    "%s must be greater than %s",
	"lt":    "%s must be less than %s",
}

func translate(fe validator.FieldError) string {
	field, tag, param := fe.Field(), fe.Tag(), fe.Param()

	if tpl, ok := messageTemplates[tag]; ok {
		return fmt.Sprintf(tpl, field)
	}
	if tpl, ok := paramTemplates[tag]; ok {
		return fmt.Sprintf(tpl, field, param)
	}

	isString := fe.Kind().String() == "string"
	switch tag {
	case "min":
		if isString {
			return fmt.Sprintf("%s must be at least %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		if isString {
			return fmt.Sprintf("%s must be at most %s characters", field, param)
		}
		return fmt.Sprintf("%s must be at most %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, tag)
	}
}
