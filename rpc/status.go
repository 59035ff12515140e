package rpc

// Sizer is satisfied by every bounded queue-shaped component in the
// pipeline: the block/vote processors, the election table, the
// processing queue, the channel registry. NamedSizer turns one into a
// StatusProvider contributing a single "<name>_size" entry.
type Sizer interface {
	Size() int
}

// NamedSizer adapts a Sizer into a StatusProvider under a fixed key, so
// the daemon wiring can list every bounded structure without each
// package having to know about the rpc package.
type NamedSizer struct {
	Name  string
	Sizer Sizer
}

// Status implements StatusProvider.
func (n NamedSizer) Status() map[string]interface{} {
	return map[string]interface{}{n.Name + "_size": n.Sizer.Size()}
}

// BoolFunc adapts a zero-argument predicate (e.g. the backlog
// populator's Overflown) into a StatusProvider under a fixed key.
type BoolFunc struct {
	Name string
	Func func() bool
}

// Status implements StatusProvider.
func (b BoolFunc) Status() map[string]interface{} {
	return map[string]interface{}{b.Name: b.Func()}
}

// IntFunc adapts a zero-argument int accessor (e.g. a registry's heads
// or channel count) into a StatusProvider under a fixed key.
type IntFunc struct {
	Name string
	Func func() int
}

// Status implements StatusProvider.
func (i IntFunc) Status() map[string]interface{} {
	return map[string]interface{}{i.Name: i.Func()}
}
