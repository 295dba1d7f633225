package crud

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ValidationResult accumulates per-field and general validation errors for a
// single entity instance.
type ValidationResult struct {
	fieldErrors   map[string][]string
	generalErrors []string
}

func NewValidationResult() *ValidationResult {
	return &ValidationResult{fieldErrors: map[string][]string{}}
}

func (r *ValidationResult) AddFieldError(field, msg string) {
	r.fieldErrors[field] = append(r.fieldErrors[field], msg)
}

func (r *ValidationResult) AddGeneralError(msg string) {
	r.generalErrors = append(r.generalErrors, msg)
}

func (r *ValidationResult) HasErrors() bool {
	return len(r.fieldErrors) > 0 || len(r.generalErrors) > 0
}

func (r *ValidationResult) FieldErrors() map[string][]string {
	return r.fieldErrors
}

func (r *ValidationResult) GeneralErrors() []string {
	if r.generalErrors == nil {
		return []string{}
	}
	return r.generalErrors
}

// ToMap renders the result in the failed-validation response shape.
func (r *ValidationResult) ToMap() map[string]any {
	fe := map[string]any{}
	for k, v := range r.fieldErrors {
		fe[k] = v
	}
	return map[string]any{
		"field_errors":   fe,
		"general_errors": r.GeneralErrors(),
	}
}

// Validator checks a mapped entity before it is persisted. The record map
// holds the raw request values, obj the entity after mapping.
type Validator interface {
	Validate(ctx context.Context, record map[string]any, obj any, action string, result *ValidationResult)
}

// ValidatorFunc adapts a plain function to the Validator interface.
type ValidatorFunc func(ctx context.Context, record map[string]any, obj any, action string, result *ValidationResult)

func (f ValidatorFunc) Validate(ctx context.Context, record map[string]any, obj any, action string, result *ValidationResult) {
	f(ctx, record, obj, action, result)
}

// Rule is a declarative constraint on one entity. Field rules check a single
// value with an operator; expression rules evaluate an expr-lang program
// against {record, action} and fail when it yields true.
type Rule struct {
	Field      string
	Operator   string // required, min, max, min_length, max_length, pattern
	Value      any
	Expression string
	Message    string
	StopOnFail bool

	compiled *vm.Program
}

// RuleValidator evaluates an ordered rule list. Expressions are compiled on
// first use and cached on the rule.
type RuleValidator struct {
	Rules []*Rule
}

func NewRuleValidator(rules ...*Rule) *RuleValidator {
	return &RuleValidator{Rules: rules}
}

func (v *RuleValidator) Validate(ctx context.Context, record map[string]any, obj any, action string, result *ValidationResult) {
	env := map[string]any{
		"record": record,
		"action": action,
	}

	for _, r := range v.Rules {
		var failed bool
		if r.Expression != "" {
			failed = evaluateExpressionRule(r, env, result)
		} else {
			failed = evaluateFieldRule(r, record, result)
		}
		if failed && r.StopOnFail {
			return
		}
	}
}

func evaluateFieldRule(r *Rule, record map[string]any, result *ValidationResult) bool {
	val, exists := record[r.Field]

	msg := r.Message
	if msg == "" {
		msg = fmt.Sprintf("field %s failed %s validation", r.Field, r.Operator)
	}

	if r.Operator == "required" {
		if !exists || val == nil || val == "" {
			result.AddFieldError(r.Field, msg)
			return true
		}
		return false
	}

	// Absent fields are not checked by other operators.
	if !exists || val == nil {
		return false
	}

	switch r.Operator {
	case "min":
		if num, ok := toFloat64(val); ok {
			if threshold, ok := toFloat64(r.Value); ok && num < threshold {
				result.AddFieldError(r.Field, msg)
				return true
			}
		}

	case "max":
		if num, ok := toFloat64(val); ok {
			if threshold, ok := toFloat64(r.Value); ok && num > threshold {
				result.AddFieldError(r.Field, msg)
				return true
			}
		}

	case "min_length":
		if s, ok := val.(string); ok {
			if threshold, ok := toFloat64(r.Value); ok && len(s) < int(threshold) {
				result.AddFieldError(r.Field, msg)
				return true
			}
		}

	case "max_length":
		if s, ok := val.(string); ok {
			if threshold, ok := toFloat64(r.Value); ok && len(s) > int(threshold) {
				result.AddFieldError(r.Field, msg)
				return true
			}
		}

	case "pattern":
		s, okS := val.(string)
		pattern, okP := r.Value.(string)
		if okS && okP {
			matched, err := regexp.MatchString(pattern, s)
			if err != nil || !matched {
				result.AddFieldError(r.Field, msg)
				return true
			}
		}
	}

	return false
}

func evaluateExpressionRule(r *Rule, env map[string]any, result *ValidationResult) bool {
	if r.compiled == nil {
		prog, err := expr.Compile(r.Expression, expr.AsBool())
		if err != nil {
			result.AddGeneralError(fmt.Sprintf("rule compile error: %v", err))
			return true
		}
		r.compiled = prog
	}

	out, err := expr.Run(r.compiled, env)
	if err != nil {
		result.AddGeneralError(fmt.Sprintf("rule evaluation error: %v", err))
		return true
	}

	violated, _ := out.(bool)
	if !violated {
		return false
	}

	msg := r.Message
	if msg == "" {
		msg = "Expression rule violated"
	}
	if r.Field != "" {
		result.AddFieldError(r.Field, msg)
	} else {
		result.AddGeneralError(msg)
	}
	return true
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
