package logger

import "time"

// LogAndMeasureExecutionTime logs the start and end of functionName at the
// debug level, including the elapsed wall time between the two.
func LogAndMeasureExecutionTime(log *Logger, functionName string) (onEnd func()) {
	start := time.Now()
	log.Debugf("%s start", functionName)
	return func() {
		log.Debugf("%s end. Took: %s", functionName, time.Since(start))
	}
}
