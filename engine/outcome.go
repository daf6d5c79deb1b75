package engine

import (
	"errors"
	"strings"
)

var (
	// ErrNoSlotsAvailable means the server refused to create a job because
	// it is at its concurrency ceiling. The descriptor is requeued.
	ErrNoSlotsAvailable = errors.New("no slots available")

	// ErrRemoteJob means the server reported an error or unexpected status.
	ErrRemoteJob = errors.New("remote job failed")

	// ErrTimeout means a job did not complete within the maximum wait.
	ErrTimeout = errors.New("timed out")

	// ErrSetup means the local input for a job is unusable.
	ErrSetup = errors.New("invalid job input")
)

// Outcome is the terminal result of a worker: a success payload or an error.
type Outcome struct {
	Payload string
	Err     error
}

// Success returns a successful outcome.
func Success(payload string) Outcome { return Outcome{Payload: payload} }

// Failure returns a failed outcome. A nil err is replaced so the outcome
// still reads as failed.
func Failure(err error) Outcome {
	if err == nil {
		err = errors.New("unknown failure")
	}
	return Outcome{Err: err}
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool { return o.Err == nil }

// Message is the payload on success or the error text on failure.
func (o Outcome) Message() string {
	if o.Err != nil {
		return o.Err.Error()
	}
	return o.Payload
}

// Result is one worker's entry in a Response.
type Result struct {
	Descriptor string `json:"descriptor"`
	OK         bool   `json:"ok"`
	Payload    string `json:"payload,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Response is the aggregate result of an orchestrator run. Error is true only
// when no worker succeeded, so a successful response may still contain
// failed results.
type Response struct {
	Error   bool     `json:"error"`
	Summary string   `json:"summary"`
	Results []Result `json:"results"`
}

// summarizer lets a worker report a final line that differs from its status.
type summarizer interface {
	Summary() string
}

// BuildResponse aggregates workers into a Response. An empty list is an
// error because nothing succeeded.
func BuildResponse(workers []Worker) Response {
	resp := Response{Error: true, Results: make([]Result, 0, len(workers))}
	lines := make([]string, 0, len(workers))

	for _, w := range workers {
		res := Result{Descriptor: w.Descriptor()}
		if o, done := w.Outcome(); done {
			res.OK = o.OK()
			if res.OK {
				res.Payload = o.Payload
				resp.Error = false
			} else {
				res.Error = o.Message()
			}
		} else {
			res.Error = "did not finish"
		}
		resp.Results = append(resp.Results, res)

		line := w.StatusLine()
		if s, ok := w.(summarizer); ok {
			line = s.Summary()
		}
		lines = append(lines, line)
	}

	resp.Summary = strings.Join(lines, "\n")
	return resp
}
