package filter

import (
	"errors"
	"fmt"
	"strings"
)

// EvaluationError carries the engine, expression and subject of a failed
// rule evaluation.
type EvaluationError struct {
	Engine  string
	Expr    string
	Subject string
	Err     error
}

func (e *EvaluationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("filter: %s evaluator %s subject=%s: %v", e.Engine, describeExpression(e.Expr), e.Subject, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expr string) string {
	if expr == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expr)
}

func wrapEvaluatorError(engine string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		return err
	}
	if strings.HasPrefix(err.Error(), "filter:") {
		return err
	}
	return fmt.Errorf("filter: %s evaluator: %w", engine, err)
}

// wrapEvaluationError fills missing metadata on an existing EvaluationError
// or wraps err in a new one.
func wrapEvaluationError(engine, expr, subject string, err error) error {
	if err == nil {
		return nil
	}
	var evalErr *EvaluationError
	if errors.As(err, &evalErr) {
		if evalErr.Engine == "" {
			evalErr.Engine = engine
		}
		if evalErr.Expr == "" {
			evalErr.Expr = expr
		}
		if evalErr.Subject == "" {
			evalErr.Subject = subject
		}
		return evalErr
	}
	return &EvaluationError{
		Engine:  engine,
		Expr:    expr,
		Subject: subject,
		Err:     err,
	}
}
