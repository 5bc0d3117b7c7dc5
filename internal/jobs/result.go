package jobs

// Result is the outcome of one job: either a value or an error, never both.
// Continuations consume Results instead of attaching success/error
// callbacks to the request, keeping side effects (notifications, cache
// invalidation) out of the submission path.
type Result struct {
	job   Job
	value string
	err   error
}

// Ok wraps a successful outcome.
func Ok(job Job, value string) Result {
	return Result{job: job, value: value}
}

// Fail wraps a failed outcome.
func Fail(job Job, err error) Result {
	return Result{job: job, err: err}
}

// Job returns the job this result belongs to.
func (r Result) Job() Job {
	return r.job
}

// Ok reports whether the job succeeded.
func (r Result) Ok() bool {
	return r.err == nil
}

// Value returns the success value; empty on failure.
func (r Result) Value() string {
	return r.value
}

// Err returns the failure; nil on success.
func (r Result) Err() error {
	return r.err
}
