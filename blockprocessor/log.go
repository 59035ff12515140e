package blockprocessor

import (
	"github.com/latticenet/latticenode/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.BLKP)
