package pdf

import "github.com/yourusername/pdf-pipeline/internal/jobs"

func reportProgress(cb jobs.ProgressFunc, percent int) {
	if cb == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	cb(percent)
}
