package frontierscan

import (
	"github.com/latticenet/latticenode/logger"
)

var log, _ = logger.Get(logger.SubsystemTags.FRON)
