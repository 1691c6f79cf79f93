package compiler

import (
	"errors"
	"fmt"
)

var (
	ErrNoTables                  = errors.New("no tables to compile")
	ErrNoSelection               = errors.New("no fields selected and no default selection available")
	ErrMixedTransaction          = errors.New("transaction mixes read and write tables")
	ErrCursorWithoutBatch        = errors.New("cursor requires a batch size")
	ErrStreamOutsideSubscription = errors.New("cursor streaming is only valid in a subscription")
	ErrCursorWithPrimary         = errors.New("cursor cannot be combined with a primary key lookup")
	ErrNestedArgument            = errors.New("argument is not supported on a nested field")
	ErrUnknownOperation          = errors.New("unknown operation")
	ErrDuplicateVariable         = errors.New("variable declared twice with different types")
	ErrInvalidDocument           = errors.New("compiled document is not valid GraphQL")
)

// ConfigError is a descriptor that cannot be compiled as configured.
type ConfigError struct {
	Table string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Table == "" {
		return "configuration error: " + e.Err.Error()
	}
	return fmt.Sprintf("configuration error on table %q: %v", e.Table, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ValidationError is a value that cannot be expressed in the compiled
// document, such as a table parameter whose GraphQL type is unknown.
type ValidationError struct {
	Table string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Table == "" {
		return "validation error: " + e.Err.Error()
	}
	return fmt.Sprintf("validation error on table %q: %v", e.Table, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func configErr(table string, err error) error {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return err
	}
	return &ConfigError{Table: table, Err: err}
}
