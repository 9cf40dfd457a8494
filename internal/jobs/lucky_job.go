package jobs

import (
	"math/rand"

	"github.com/flowrunner/taskrunner/internal/engine"
)

// luckyJobSchema validates {} — no extra fields accepted.
func luckyJobSchema(parameters map[string]interface{}) (map[string]interface{}, []string) {
	errs := unknownFields(parameters, map[string]bool{})
	if len(errs) > 0 {
		return nil, errs
	}
	return map[string]interface{}{}, nil
}

func luckyJobBody(parameters map[string]interface{}) (interface{}, error) {
	if rand.Float64() < 0.5 {
		return nil, engine.TaskFailed("Unstable task failed randomly.")
	}
	return map[string]interface{}{"ok": true}, nil
}
