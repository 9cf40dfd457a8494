package jobs

import (
	"fmt"
	"math/rand"
	"regexp"

	"github.com/flowrunner/taskrunner/internal/engine"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// batchEmailSchema validates { emails: [email], 1..100 }.
func batchEmailSchema(parameters map[string]interface{}) (map[string]interface{}, []string) {
	errs := unknownFields(parameters, map[string]bool{"emails": true})

	raw, ok := parameters["emails"]
	if !ok {
		errs = append(errs, "emails is required")
		return nil, errs
	}

	list, ok := raw.([]interface{})
	if !ok || len(list) < 1 || len(list) > 100 {
		errs = append(errs, "emails must be a list of 1 to 100 email addresses")
		return nil, errs
	}

	emails := make([]string, 0, len(list))
	for _, v := range list {
		s, ok := v.(string)
		if !ok || !emailPattern.MatchString(s) {
			errs = append(errs, fmt.Sprintf("%v is not a valid email address", v))
			continue
		}
		emails = append(emails, s)
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return map[string]interface{}{"emails": emails}, nil
}

func batchEmailBody(parameters map[string]interface{}) (interface{}, error) {
	if rand.Float64() < 0.2 {
		return nil, engine.TaskFailed("Email provider temporary failure.")
	}
	return true, nil
}
