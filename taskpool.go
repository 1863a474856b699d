package wgcore

import "sync"

// taskPool recycles Task structs across their MakeTask/release lifecycle,
// avoiding GC thrashing under sustained throughput. A single sync.Pool per
// allocation shape stands in for compile-time pool size classes, which have
// no natural Go equivalent.
var taskPool = sync.Pool{
	New: func() any {
		return &Task{}
	},
}

// aodTaskPool recycles aodTask structs the same way.
var aodTaskPool = sync.Pool{
	New: func() any {
		return &aodTask{}
	},
}
