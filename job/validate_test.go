package job_test

import (
	"errors"
	"math"
	"testing"

	"github.com/flaneurtv/redisjq"
	"github.com/flaneurtv/redisjq/job"
)

func TestParseBatch_SingleJob(t *testing.T) {
	payload := []byte(`{"jobs":[{"id":"B81B43B3-EF87-455B-9D0B-1FA754AFF65A","queue_name":"test1","priority":"1","command":"ls -l"}]}`)

	jobs, err := job.ParseBatch(payload, job.JSONCodec{})
	if err != nil {
		t.Fatalf("ParseBatch: %v", err)
	}
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}

	j := jobs[0]
	if j.ID != "B81B43B3-EF87-455B-9D0B-1FA754AFF65A" {
		t.Errorf("ID = %q", j.ID)
	}
	if j.Queue != "test1" {
		t.Errorf("Queue = %q, want %q", j.Queue, "test1")
	}
	if j.Priority != 1 {
		t.Errorf("Priority = %v, want 1", j.Priority)
	}
	if j.Command != "ls -l" {
		t.Errorf("Command = %q, want %q", j.Command, "ls -l")
	}
	if j.State != job.StatePending {
		t.Errorf("State = %q, want %q", j.State, job.StatePending)
	}
	if j.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", j.Attempts)
	}
	if j.MaxAttempts != job.UseDefaultAttempts {
		t.Errorf("MaxAttempts = %d, want %d", j.MaxAttempts, job.UseDefaultAttempts)
	}
}

func TestParseBatch_PriorityForms(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want float64
	}{
		{"integer string", `"3"`, 3},
		{"negative string", `"-2"`, -2},
		{"decimal string", `"1.25"`, 1.25},
		{"padded string", `" 7 "`, 7},
		{"json number", `4`, 4},
		{"json decimal", `0.5`, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := []byte(`{"jobs":[{"queue_name":"q","priority":` + tt.raw + `,"command":""}]}`)
			jobs, err := job.ParseBatch(payload, job.JSONCodec{})
			if err != nil {
				t.Fatalf("ParseBatch: %v", err)
			}
			if jobs[0].Priority != tt.want {
				t.Errorf("Priority = %v, want %v", jobs[0].Priority, tt.want)
			}
		})
	}
}

func TestParseBatch_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{"not json", `not json`, redisjq.ErrSchema},
		{"missing jobs", `{}`, redisjq.ErrSchema},
		{"jobs not array", `{"jobs":{}}`, redisjq.ErrSchema},
		{"descriptor not object", `{"jobs":["x"]}`, redisjq.ErrSchema},
		{"missing queue", `{"jobs":[{"priority":"1","command":"c"}]}`, redisjq.ErrSchema},
		{"empty queue", `{"jobs":[{"queue_name":" ","priority":"1","command":"c"}]}`, redisjq.ErrSchema},
		{"queue wrong type", `{"jobs":[{"queue_name":5,"priority":"1","command":"c"}]}`, redisjq.ErrSchema},
		{"missing priority", `{"jobs":[{"queue_name":"q","command":"c"}]}`, redisjq.ErrSchema},
		{"priority bool", `{"jobs":[{"queue_name":"q","priority":true,"command":"c"}]}`, redisjq.ErrSchema},
		{"priority word", `{"jobs":[{"queue_name":"q","priority":"high","command":"c"}]}`, redisjq.ErrInvalidPriority},
		{"priority nan", `{"jobs":[{"queue_name":"q","priority":"NaN","command":"c"}]}`, redisjq.ErrInvalidPriority},
		{"priority inf", `{"jobs":[{"queue_name":"q","priority":"+Inf","command":"c"}]}`, redisjq.ErrInvalidPriority},
		{"missing command", `{"jobs":[{"queue_name":"q","priority":"1"}]}`, redisjq.ErrSchema},
		{"command wrong type", `{"jobs":[{"queue_name":"q","priority":"1","command":["ls"]}]}`, redisjq.ErrSchema},
		{"id wrong type", `{"jobs":[{"id":7,"queue_name":"q","priority":"1","command":"c"}]}`, redisjq.ErrSchema},
		{"negative max attempts", `{"jobs":[{"queue_name":"q","priority":"1","command":"c","max_attempts":-1}]}`, redisjq.ErrValidation},
		{"fractional max attempts", `{"jobs":[{"queue_name":"q","priority":"1","command":"c","max_attempts":1.5}]}`, redisjq.ErrValidation},
		{"duplicate in batch", `{"jobs":[{"id":"a","queue_name":"q","priority":"1","command":"c"},{"id":"a","queue_name":"q","priority":"2","command":"c"}]}`, redisjq.ErrDuplicateID},
		{"empty batch", `{"jobs":[]}`, redisjq.ErrEmptyBatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := job.ParseBatch([]byte(tt.payload), job.JSONCodec{})
			if err == nil {
				t.Fatalf("expected error, got %d jobs", len(jobs))
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want errors.Is %v", err, tt.wantErr)
			}
			if jobs != nil {
				t.Errorf("expected no jobs on failure, got %d", len(jobs))
			}
		})
	}
}

func TestParseBatch_ReportsEveryFailingEntry(t *testing.T) {
	payload := []byte(`{"jobs":[
		{"id":"ok","queue_name":"q","priority":"1","command":"c"},
		{"id":"bad1","queue_name":"q","priority":"x","command":"c"},
		{"id":"ok2","queue_name":"q","priority":"1","command":"c"},
		{"id":"bad2","priority":"1"}
	]}`)

	_, err := job.ParseBatch(payload, job.JSONCodec{})
	var batchErr *job.BatchValidationError
	if !errors.As(err, &batchErr) {
		t.Fatalf("expected *BatchValidationError, got %T: %v", err, err)
	}

	got := batchErr.Indexes()
	want := []int{1, 3}
	if len(got) != len(want) {
		t.Fatalf("Indexes() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Indexes()[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	// Entry 3 misses both queue_name and command.
	if len(batchErr.Errors) != 3 {
		t.Errorf("expected 3 field errors, got %d: %v", len(batchErr.Errors), batchErr)
	}
	if !errors.Is(err, redisjq.ErrInvalidPriority) || !errors.Is(err, redisjq.ErrSchema) {
		t.Errorf("expected both priority and schema errors in %v", err)
	}
}

func TestParseBatch_IDOptional(t *testing.T) {
	payload := []byte(`{"jobs":[{"queue_name":"q","priority":"1","command":"c"},{"id":"","queue_name":"q","priority":"1","command":"c"}]}`)
	jobs, err := job.ParseBatch(payload, job.JSONCodec{})
	if err != nil {
		t.Fatalf("ParseBatch: %v", err)
	}
	for i, j := range jobs {
		if j.ID != "" {
			t.Errorf("jobs[%d].ID = %q, want empty for generation", i, j.ID)
		}
	}
}

func TestParseBatch_MaxAttempts(t *testing.T) {
	payload := []byte(`{"jobs":[{"queue_name":"q","priority":"1","command":"c","max_attempts":"2"},{"queue_name":"q","priority":"1","command":"c","max_attempts":0}]}`)
	jobs, err := job.ParseBatch(payload, job.JSONCodec{})
	if err != nil {
		t.Fatalf("ParseBatch: %v", err)
	}
	if jobs[0].MaxAttempts != 2 {
		t.Errorf("jobs[0].MaxAttempts = %d, want 2", jobs[0].MaxAttempts)
	}
	if jobs[1].MaxAttempts != 0 {
		t.Errorf("jobs[1].MaxAttempts = %d, want 0", jobs[1].MaxAttempts)
	}
}

func TestParseBatch_Msgpack(t *testing.T) {
	c := job.MsgpackCodec{}
	payload, err := c.Marshal(map[string]any{
		"jobs": []any{
			map[string]any{"id": "m1", "queue_name": "q", "priority": "2", "command": "echo"},
			map[string]any{"id": "m2", "queue_name": "q", "priority": int8(-1), "command": "echo"},
		},
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	jobs, err := job.ParseBatch(payload, c)
	if err != nil {
		t.Fatalf("ParseBatch: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].Priority != 2 || jobs[1].Priority != -1 {
		t.Errorf("priorities = %v, %v; want 2, -1", jobs[0].Priority, jobs[1].Priority)
	}
}

func TestParseBatch_TrailingData(t *testing.T) {
	body := `{"jobs":[{"id":"a","queue_name":"q","priority":"1","command":"x"}]}`

	if _, err := job.ParseBatch([]byte(body+" \n\t"), job.JSONCodec{}); err != nil {
		t.Errorf("trailing whitespace rejected: %v", err)
	}
	for _, tail := range []string{" trailing", `{"jobs":[]}`, "]"} {
		_, err := job.ParseBatch([]byte(body+tail), job.JSONCodec{})
		if !errors.Is(err, redisjq.ErrSchema) {
			t.Errorf("tail %q: err = %v, want ErrSchema", tail, err)
		}
	}
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name    string
		job     *job.Job
		wantErr error
		field   string
	}{
		{"valid", job.New("q", "x"), nil, ""},
		{"default attempts", job.New("q", "x", job.WithMaxAttempts(job.UseDefaultAttempts)), nil, ""},
		{"empty queue", job.New("", "x"), redisjq.ErrSchema, job.FieldQueue},
		{"blank queue", job.New("  ", "x"), redisjq.ErrSchema, job.FieldQueue},
		{"NaN priority", job.New("q", "x", job.WithPriority(math.NaN())), redisjq.ErrInvalidPriority, job.FieldPriority},
		{"infinite priority", job.New("q", "x", job.WithPriority(math.Inf(1))), redisjq.ErrInvalidPriority, job.FieldPriority},
		{"negative attempts", job.New("q", "x", job.WithMaxAttempts(-2)), redisjq.ErrValidation, job.FieldMaxAttempts},
		{"nil job", nil, redisjq.ErrSchema, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := job.Check(3, tt.job)
			if tt.wantErr == nil {
				if len(errs) != 0 {
					t.Fatalf("Check = %v, want no errors", errs)
				}
				return
			}
			if len(errs) != 1 {
				t.Fatalf("Check = %v, want one error", errs)
			}
			if !errors.Is(errs[0], tt.wantErr) {
				t.Errorf("err = %v, want %v", errs[0], tt.wantErr)
			}
			err := &job.BatchValidationError{Errors: errs}
			if idx := err.Indexes(); len(idx) != 1 || idx[0] != 3 {
				t.Errorf("Indexes = %v, want [3]", idx)
			}
			switch e := errs[0].(type) {
			case *job.SchemaError:
				if e.Field != tt.field {
					t.Errorf("Field = %q, want %q", e.Field, tt.field)
				}
			case *job.ValueError:
				if e.Field != tt.field {
					t.Errorf("Field = %q, want %q", e.Field, tt.field)
				}
			default:
				t.Errorf("err type = %T, want *SchemaError or *ValueError", e)
			}
		})
	}
}

func TestCheckBatch(t *testing.T) {
	ok := []*job.Job{
		job.New("q", "a", job.WithID("a")),
		job.New("q", "b"),
		job.New("q", "c"),
	}
	if err := job.CheckBatch(ok); err != nil {
		t.Fatalf("CheckBatch: %v", err)
	}

	err := job.CheckBatch([]*job.Job{
		job.New("q", "a", job.WithID("x")),
		job.New("", "b"),
		job.New("q", "c", job.WithID("x")),
	})
	var batchErr *job.BatchValidationError
	if !errors.As(err, &batchErr) {
		t.Fatalf("err = %v, want *BatchValidationError", err)
	}
	if !errors.Is(err, redisjq.ErrDuplicateID) {
		t.Errorf("err = %v, want ErrDuplicateID", err)
	}
	if !errors.Is(err, redisjq.ErrSchema) {
		t.Errorf("err = %v, want ErrSchema", err)
	}
	if idx := batchErr.Indexes(); len(idx) != 2 || idx[0] != 1 || idx[1] != 2 {
		t.Errorf("Indexes = %v, want [1 2]", idx)
	}
}
