package jobs

import "strings"

var defaultReportSections = []interface{}{"overview", "details", "summary"}

// generateReportSchema validates
// { title: non-empty string, sections: [string], default [...] }.
func generateReportSchema(parameters map[string]interface{}) (map[string]interface{}, []string) {
	errs := unknownFields(parameters, map[string]bool{"title": true, "sections": true})

	title, _ := parameters["title"].(string)
	if strings.TrimSpace(title) == "" {
		errs = append(errs, "title is required")
	}

	sectionsRaw, hasSections := parameters["sections"]
	if !hasSections {
		sectionsRaw = defaultReportSections
	}
	sectionList, ok := sectionsRaw.([]interface{})
	if !ok {
		errs = append(errs, "sections must be a list of strings")
	}

	if len(errs) > 0 {
		return nil, errs
	}

	sections := make([]string, 0, len(sectionList))
	for _, s := range sectionList {
		str, ok := s.(string)
		if !ok {
			return nil, []string{"sections must be a list of strings"}
		}
		sections = append(sections, str)
	}

	return map[string]interface{}{"title": title, "sections": sections}, nil
}

func generateReportBody(parameters map[string]interface{}) (interface{}, error) {
	title := parameters["title"].(string)
	sections := parameters["sections"].([]string)
	return title + ": " + strings.Join(sections, ", "), nil
}
