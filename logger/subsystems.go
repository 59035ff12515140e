package logger

// SubsystemTags enumerates the tags used to construct every subsystem's
// logger from a shared Backend.
var SubsystemTags = struct {
	BLKP string // block processor
	VOTP string // vote processor
	SCHD string // election scheduler suite
	BKLG string // backlog population
	FRON string // frontier scan
	CHAN string // TCP channel fabric
	STOR string // on-disk store
	RPCS string // RPC surface
	WEIT string // representative weight snapshot
	CMND string // daemon wiring
}{
	BLKP: "BLKP",
	VOTP: "VOTP",
	SCHD: "SCHD",
	BKLG: "BKLG",
	FRON: "FRON",
	CHAN: "CHAN",
	STOR: "STOR",
	RPCS: "RPCS",
	WEIT: "WEIT",
	CMND: "CMND",
}
