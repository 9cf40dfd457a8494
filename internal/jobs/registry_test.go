package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func definitionsForTest() Definitions {
	return DefaultDefinitions(newFakeClock(), time.Millisecond)
}

func TestValidateUnknownTaskType(t *testing.T) {
	_, _, ok := definitionsForTest().Validate("does-not-exist", nil)
	assert.False(t, ok)
}

func TestComputeSumSchemaRejectsNonNumericEntries(t *testing.T) {
	_, errs, ok := definitionsForTest().Validate("compute_sum", map[string]interface{}{
		"numbers": []interface{}{1.0, "two", 3.0},
	})
	assert.True(t, ok)
	assert.NotEmpty(t, errs)
}

func TestComputeSumSchemaRejectsEmptyList(t *testing.T) {
	_, errs, ok := definitionsForTest().Validate("compute_sum", map[string]interface{}{
		"numbers": []interface{}{},
	})
	assert.True(t, ok)
	assert.NotEmpty(t, errs)
}

func TestComputeSumSchemaAcceptsNumbers(t *testing.T) {
	normalized, errs, ok := definitionsForTest().Validate("compute_sum", map[string]interface{}{
		"numbers": []interface{}{1.0, 2.0, 3.0},
	})
	assert.True(t, ok)
	assert.Empty(t, errs)
	assert.Equal(t, []float64{1, 2, 3}, normalized["numbers"])
}

func TestComputeSumSchemaRejectsUnknownField(t *testing.T) {
	_, errs, ok := definitionsForTest().Validate("compute_sum", map[string]interface{}{
		"numbers": []interface{}{1.0},
		"extra":   "nope",
	})
	assert.True(t, ok)
	assert.NotEmpty(t, errs)
}

func TestGenerateReportSchemaDefaultsSections(t *testing.T) {
	normalized, errs, ok := definitionsForTest().Validate("generate_report", map[string]interface{}{
		"title": "Q3 report",
	})
	assert.True(t, ok)
	assert.Empty(t, errs)
	assert.Equal(t, []string{"overview", "details", "summary"}, normalized["sections"])
}

func TestGenerateReportSchemaRejectsBlankTitle(t *testing.T) {
	_, errs, ok := definitionsForTest().Validate("generate_report", map[string]interface{}{
		"title": "   ",
	})
	assert.True(t, ok)
	assert.NotEmpty(t, errs)
}

func TestBatchEmailSchemaRejectsInvalidAddress(t *testing.T) {
	_, errs, ok := definitionsForTest().Validate("batch_email", map[string]interface{}{
		"emails": []interface{}{"valid@example.com", "not-an-email"},
	})
	assert.True(t, ok)
	assert.NotEmpty(t, errs)
}

func TestBatchEmailSchemaRejectsTooMany(t *testing.T) {
	emails := make([]interface{}, 101)
	for i := range emails {
		emails[i] = "a@example.com"
	}
	_, errs, ok := definitionsForTest().Validate("batch_email", map[string]interface{}{"emails": emails})
	assert.True(t, ok)
	assert.NotEmpty(t, errs)
}

func TestLuckyJobSchemaRejectsAnyParameters(t *testing.T) {
	_, errs, ok := definitionsForTest().Validate("lucky_job", map[string]interface{}{"anything": true})
	assert.True(t, ok)
	assert.NotEmpty(t, errs)
}

func TestLuckyJobSchemaAcceptsEmptyParameters(t *testing.T) {
	_, errs, ok := definitionsForTest().Validate("lucky_job", map[string]interface{}{})
	assert.True(t, ok)
	assert.Empty(t, errs)
}
