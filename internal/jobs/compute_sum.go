package jobs

import "github.com/flowrunner/taskrunner/internal/engine"

// computeSumSchema validates { numbers: [number], min_length=1 }.
func computeSumSchema(parameters map[string]interface{}) (map[string]interface{}, []string) {
	errs := unknownFields(parameters, map[string]bool{"numbers": true})

	raw, ok := parameters["numbers"]
	if !ok {
		errs = append(errs, "numbers is required")
		return nil, errs
	}

	list, ok := raw.([]interface{})
	if !ok || len(list) < 1 {
		errs = append(errs, "numbers must be a non-empty list of numbers")
		return nil, errs
	}

	numbers := make([]float64, 0, len(list))
	for _, v := range list {
		n, ok := toFloat(v)
		if !ok {
			errs = append(errs, "numbers must contain only numbers")
			return nil, errs
		}
		numbers = append(numbers, n)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return map[string]interface{}{"numbers": numbers}, nil
}

func computeSumBody(parameters map[string]interface{}) (interface{}, error) {
	numbers, ok := parameters["numbers"].([]float64)
	if !ok {
		return nil, engine.TaskFailed("Invalid 'numbers' parameter; expected list of numbers.")
	}
	var sum float64
	for _, n := range numbers {
		sum += n
	}
	return sum, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
