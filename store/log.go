package store

import (
	"github.com/latticenet/latticenode/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.STOR)
