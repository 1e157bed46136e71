package memory

import (
	"errors"

	"github.com/Knetic/govaluate"

	"github.com/execution-hub/dealflow/internal/domain/deal"
)

// compiledFilter is a deal filter parsed once and evaluated per record.
type compiledFilter struct {
	expr   *govaluate.EvaluableExpression
	params map[string]interface{}
}

func compileFilter(f deal.Filter) (*compiledFilter, error) {
	formula, params := deal.Expression(f)
	expr, err := govaluate.NewEvaluableExpression(formula)
	if err != nil {
		return nil, err
	}
	return &compiledFilter{expr: expr, params: params}, nil
}

// matches evaluates the formula against the record's flattened field values.
func (c *compiledFilter) matches(values map[string]interface{}) (bool, error) {
	for k, v := range c.params {
		values[k] = v
	}
	result, err := c.expr.Evaluate(values)
	if err != nil {
		return false, err
	}
	switch v := result.(type) {
	case bool:
		return v, nil
	default:
		return false, errors.New("filter did not evaluate to boolean")
	}
}
