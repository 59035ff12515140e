package logger

import "github.com/pkg/errors"

var backendLog = NewBackend()

var mainLogger = backendLog.Logger("MAIN")

var subsystemLoggers = map[string]*Logger{
	SubsystemTags.BLKP: backendLog.Logger(SubsystemTags.BLKP),
	SubsystemTags.VOTP: backendLog.Logger(SubsystemTags.VOTP),
	SubsystemTags.SCHD: backendLog.Logger(SubsystemTags.SCHD),
	SubsystemTags.BKLG: backendLog.Logger(SubsystemTags.BKLG),
	SubsystemTags.FRON: backendLog.Logger(SubsystemTags.FRON),
	SubsystemTags.CHAN: backendLog.Logger(SubsystemTags.CHAN),
	SubsystemTags.STOR: backendLog.Logger(SubsystemTags.STOR),
	SubsystemTags.RPCS: backendLog.Logger(SubsystemTags.RPCS),
	SubsystemTags.WEIT: backendLog.Logger(SubsystemTags.WEIT),
	SubsystemTags.CMND: backendLog.Logger(SubsystemTags.CMND),
}

// Get returns the shared Logger for subsystemTag, or the main logger if the
// tag is unknown.
func Get(subsystemTag string) (*Logger, error) {
	if l, ok := subsystemLoggers[subsystemTag]; ok {
		return l, nil
	}
	return mainLogger, errors.Errorf("no logger registered for subsystem %s", subsystemTag)
}

// Backend returns the shared backend every subsystem logger writes through,
// so it can be started and stopped once from the daemon entry point.
func Backend() *Backend {
	return backendLog
}

// SetLogLevels sets the filtering level on every registered subsystem logger.
func SetLogLevels(level Level) {
	mainLogger.SetLevel(level)
	for _, l := range subsystemLoggers {
		l.SetLevel(level)
	}
}
