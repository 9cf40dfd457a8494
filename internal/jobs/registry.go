package jobs

import (
	"time"

	"github.com/flowrunner/taskrunner/internal/engine"
)

// Schema validates and normalizes a submitted parameters map for one
// task type, rejecting unknown fields, per spec.md §4.2. It returns
// the normalized map (defaults applied) or a field-level error list.
type Schema func(parameters map[string]interface{}) (map[string]interface{}, []string)

// Definition pairs a task type's parameter schema with its executor.
type Definition struct {
	Schema   Schema
	Executor engine.Executor
}

// Definitions is the static job registry keyed by task_type name.
type Definitions map[string]Definition

// DefaultDefinitions returns the reference job set from spec.md §4.2:
// compute_sum, generate_report, batch_email, and lucky_job, each
// wrapped in the simulated-duration decorator at its nominal D.
func DefaultDefinitions(clock engine.Clock, tick time.Duration) Definitions {
	return Definitions{
		"compute_sum": {
			Schema:   computeSumSchema,
			Executor: WithSimulatedDuration(clock, 30*time.Second, tick, computeSumBody),
		},
		"generate_report": {
			Schema:   generateReportSchema,
			Executor: WithSimulatedDuration(clock, 25*time.Second, tick, generateReportBody),
		},
		"batch_email": {
			Schema:   batchEmailSchema,
			Executor: WithSimulatedDuration(clock, 15*time.Second, tick, batchEmailBody),
		},
		"lucky_job": {
			Schema:   luckyJobSchema,
			Executor: WithSimulatedDuration(clock, 20*time.Second, tick, luckyJobBody),
		},
	}
}

// EngineRegistry projects Definitions down to the engine.Registry the
// Manager consumes.
func (d Definitions) EngineRegistry() engine.Registry {
	reg := make(engine.Registry, len(d))
	for name, def := range d {
		reg[name] = def.Executor
	}
	return reg
}

// Validate looks up taskType's schema and runs it. ok is false if
// taskType is not registered at all.
func (d Definitions) Validate(taskType string, parameters map[string]interface{}) (normalized map[string]interface{}, fieldErrors []string, ok bool) {
	def, found := d[taskType]
	if !found {
		return nil, nil, false
	}
	normalized, fieldErrors = def.Schema(parameters)
	return normalized, fieldErrors, true
}

// unknownFields reports any key in parameters not present in allowed.
func unknownFields(parameters map[string]interface{}, allowed map[string]bool) []string {
	var errs []string
	for k := range parameters {
		if !allowed[k] {
			errs = append(errs, "unknown field: "+k)
		}
	}
	return errs
}
