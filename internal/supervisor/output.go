package supervisor

import (
	"bufio"
	"io"

	"go.uber.org/zap"
)

// maxLogLine bounds a single forwarded output line. Longer lines are split
// by the scanner's buffer limit rather than dropped.
const maxLogLine = 1024 * 1024

// forwardOutput reads a worker's stdout or stderr line by line and forwards
// each line verbatim to the shared log, tagged with the worker and stream
// names. It returns when the pipe closes, i.e. when the process exits.
func forwardOutput(logger *zap.Logger, workerName, stream string, r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLogLine)
	for sc.Scan() {
		logger.Info(sc.Text(),
			zap.String("worker", workerName),
			zap.String("stream", stream),
		)
	}
	if err := sc.Err(); err != nil {
		logger.Debug("worker output stream closed with error",
			zap.String("worker", workerName),
			zap.String("stream", stream),
			zap.Error(err),
		)
	}
}
