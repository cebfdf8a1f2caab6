package job

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/flaneurtv/redisjq"
)

// Descriptor field names of the admission payload.
const (
	FieldJobs        = "jobs"
	FieldID          = "id"
	FieldQueue       = "queue_name"
	FieldPriority    = "priority"
	FieldCommand     = "command"
	FieldMaxAttempts = "max_attempts"
)

// SchemaError reports a missing field or a field of the wrong type. Index
// is the position of the descriptor in the batch, or -1 for the envelope.
type SchemaError struct {
	Index  int
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("redisjq: %s: %s", location(e.Index, e.Field), e.Reason)
}

func (e *SchemaError) Unwrap() error { return redisjq.ErrSchema }

// ValueError reports a field that has the right shape but an unusable value.
type ValueError struct {
	Index int
	Field string
	Value string
	Err   error
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("redisjq: %s: invalid value %q: %v", location(e.Index, e.Field), e.Value, e.Err)
}

func (e *ValueError) Unwrap() error { return e.Err }

// BatchValidationError collects the errors of every failing descriptor.
// A batch that fails validation is never written.
type BatchValidationError struct {
	Errors []error
}

func (e *BatchValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, strings.TrimPrefix(err.Error(), "redisjq: "))
	}
	return fmt.Sprintf("redisjq: batch rejected, %d invalid: %s", len(e.Errors), strings.Join(msgs, "; "))
}

func (e *BatchValidationError) Unwrap() []error { return e.Errors }

// Indexes returns the batch positions of the failing descriptors.
func (e *BatchValidationError) Indexes() []int {
	out := make([]int, 0, len(e.Errors))
	seen := make(map[int]bool, len(e.Errors))
	for _, err := range e.Errors {
		idx := -1
		switch v := err.(type) {
		case *SchemaError:
			idx = v.Index
		case *ValueError:
			idx = v.Index
		}
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	return out
}

func location(index int, field string) string {
	if index < 0 {
		if field == "" {
			return "payload"
		}
		return field
	}
	if field == "" {
		return fmt.Sprintf("jobs[%d]", index)
	}
	return fmt.Sprintf("jobs[%d].%s", index, field)
}

// ParseBatch decodes an admission payload of the form {"jobs": [...]} and
// validates every descriptor independently. It returns either every job or
// a *BatchValidationError; ids repeated inside the batch are rejected.
func ParseBatch(payload []byte, c Codec) ([]*Job, error) {
	var envelope map[string]any
	if err := c.Unmarshal(payload, &envelope); err != nil {
		return nil, &BatchValidationError{Errors: []error{
			&SchemaError{Index: -1, Reason: fmt.Sprintf("payload is not a valid %s object: %v", c.Name(), err)},
		}}
	}

	raw, ok := envelope[FieldJobs]
	if !ok {
		return nil, &BatchValidationError{Errors: []error{
			&SchemaError{Index: -1, Field: FieldJobs, Reason: "missing"},
		}}
	}
	descriptors, ok := raw.([]any)
	if !ok {
		return nil, &BatchValidationError{Errors: []error{
			&SchemaError{Index: -1, Field: FieldJobs, Reason: "must be an array"},
		}}
	}
	if len(descriptors) == 0 {
		return nil, redisjq.ErrEmptyBatch
	}

	jobs := make([]*Job, 0, len(descriptors))
	var errs []error
	seen := make(map[string]int, len(descriptors))
	for i, d := range descriptors {
		fields, ok := d.(map[string]any)
		if !ok {
			errs = append(errs, &SchemaError{Index: i, Reason: "descriptor must be an object"})
			continue
		}
		j, fieldErrs := Validate(i, fields)
		if len(fieldErrs) > 0 {
			errs = append(errs, fieldErrs...)
			continue
		}
		if j.ID != "" {
			if first, dup := seen[j.ID]; dup {
				errs = append(errs, duplicateError(i, first, j.ID))
				continue
			}
			seen[j.ID] = i
		}
		jobs = append(jobs, j)
	}

	if len(errs) > 0 {
		return nil, &BatchValidationError{Errors: errs}
	}
	return jobs, nil
}

// Check validates a job built in Go rather than decoded from a payload,
// with the same rules and error types as Validate. Index is its position
// in the batch.
func Check(index int, j *Job) []error {
	if j == nil {
		return []error{&SchemaError{Index: index, Reason: "job must not be nil"}}
	}
	var errs []error
	if strings.TrimSpace(j.Queue) == "" {
		errs = append(errs, &SchemaError{Index: index, Field: FieldQueue, Reason: "must not be empty"})
	}
	if math.IsNaN(j.Priority) || math.IsInf(j.Priority, 0) {
		errs = append(errs, &ValueError{
			Index: index, Field: FieldPriority,
			Value: strconv.FormatFloat(j.Priority, 'g', -1, 64),
			Err:   redisjq.ErrInvalidPriority,
		})
	}
	if j.MaxAttempts < 0 && j.MaxAttempts != UseDefaultAttempts {
		errs = append(errs, &ValueError{
			Index: index, Field: FieldMaxAttempts, Value: strconv.Itoa(j.MaxAttempts),
			Err: fmt.Errorf("%w: must be a non-negative integer", redisjq.ErrValidation),
		})
	}
	return errs
}

// CheckBatch runs Check on every job and rejects ids repeated within the
// batch. Jobs without an id are not compared. It returns nil or a
// *BatchValidationError.
func CheckBatch(jobs []*Job) error {
	var errs []error
	seen := make(map[string]int, len(jobs))
	for i, j := range jobs {
		errs = append(errs, Check(i, j)...)
		if j == nil || j.ID == "" {
			continue
		}
		if first, dup := seen[j.ID]; dup {
			errs = append(errs, duplicateError(i, first, j.ID))
			continue
		}
		seen[j.ID] = i
	}
	if len(errs) > 0 {
		return &BatchValidationError{Errors: errs}
	}
	return nil
}

func duplicateError(index, first int, id string) error {
	return &ValueError{
		Index: index, Field: FieldID, Value: id,
		Err: fmt.Errorf("%w (also at jobs[%d])", redisjq.ErrDuplicateID, first),
	}
}

// Validate converts one decoded descriptor into a pending job. It reports
// every problem found rather than stopping at the first one. A missing or
// empty id is left empty for the caller to generate.
func Validate(index int, fields map[string]any) (*Job, []error) {
	var errs []error
	j := &Job{State: StatePending, MaxAttempts: UseDefaultAttempts}

	switch v := fields[FieldID].(type) {
	case nil:
	case string:
		j.ID = v
	default:
		errs = append(errs, &SchemaError{Index: index, Field: FieldID, Reason: "must be a string"})
	}

	switch v := fields[FieldQueue].(type) {
	case nil:
		errs = append(errs, &SchemaError{Index: index, Field: FieldQueue, Reason: "missing"})
	case string:
		if strings.TrimSpace(v) == "" {
			errs = append(errs, &SchemaError{Index: index, Field: FieldQueue, Reason: "must not be empty"})
		}
		j.Queue = v
	default:
		errs = append(errs, &SchemaError{Index: index, Field: FieldQueue, Reason: "must be a string"})
	}

	if raw, ok := fields[FieldPriority]; !ok || raw == nil {
		errs = append(errs, &SchemaError{Index: index, Field: FieldPriority, Reason: "missing"})
	} else if p, err := parseNumber(index, FieldPriority, raw, redisjq.ErrInvalidPriority); err != nil {
		errs = append(errs, err)
	} else {
		j.Priority = p
	}

	switch v := fields[FieldCommand].(type) {
	case nil:
		errs = append(errs, &SchemaError{Index: index, Field: FieldCommand, Reason: "missing"})
	case string:
		j.Command = v
	default:
		errs = append(errs, &SchemaError{Index: index, Field: FieldCommand, Reason: "must be a string"})
	}

	if raw, ok := fields[FieldMaxAttempts]; ok && raw != nil {
		n, err := parseNumber(index, FieldMaxAttempts, raw, redisjq.ErrValidation)
		switch {
		case err != nil:
			errs = append(errs, err)
		case n < 0 || n != math.Trunc(n) || n > math.MaxInt32:
			errs = append(errs, &ValueError{
				Index: index, Field: FieldMaxAttempts, Value: strconv.FormatFloat(n, 'g', -1, 64),
				Err: fmt.Errorf("%w: must be a non-negative integer", redisjq.ErrValidation),
			})
		default:
			j.MaxAttempts = int(n)
		}
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return j, nil
}

// parseNumber accepts numeric strings and native numbers. Strings that do
// not parse become a ValueError wrapping valueErr; other types are schema
// errors.
func parseNumber(index int, field string, raw any, valueErr error) (float64, error) {
	var (
		f   float64
		txt string
	)
	switch v := raw.(type) {
	case string:
		txt = strings.TrimSpace(v)
		parsed, err := strconv.ParseFloat(txt, 64)
		if err != nil {
			return 0, &ValueError{Index: index, Field: field, Value: v, Err: valueErr}
		}
		f = parsed
	case json.Number:
		txt = v.String()
		parsed, err := v.Float64()
		if err != nil {
			return 0, &ValueError{Index: index, Field: field, Value: txt, Err: valueErr}
		}
		f = parsed
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int8:
		f = float64(v)
	case int16:
		f = float64(v)
	case int32:
		f = float64(v)
	case int64:
		f = float64(v)
	case uint:
		f = float64(v)
	case uint8:
		f = float64(v)
	case uint16:
		f = float64(v)
	case uint32:
		f = float64(v)
	case uint64:
		f = float64(v)
	default:
		return 0, &SchemaError{Index: index, Field: field, Reason: "must be a number or numeric string"}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		if txt == "" {
			txt = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return 0, &ValueError{Index: index, Field: field, Value: txt, Err: valueErr}
	}
	return f, nil
}
