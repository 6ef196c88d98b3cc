package pdf

import "github.com/yourusername/pdf-pipeline/internal/jobs"

func newError(code, message string, err error) *jobs.Error {
	return jobs.NewError(code, message, err)
}
