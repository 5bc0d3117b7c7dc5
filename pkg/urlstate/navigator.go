package urlstate

import "net/url"

// Patch is a URL update queued for delivery to the client alongside other
// frames in the same tick.
type Patch struct {
	Mode   Mode
	Values url.Values
}

// Navigator turns committed parameter sets into URL patches. The live
// session passes in a closure that appends to its outbound frame buffer.
type Navigator struct {
	queuePatch func(Patch)
}

// NewNavigator creates a navigator that queues patches via queuePatch.
func NewNavigator(queuePatch func(Patch)) *Navigator {
	return &Navigator{queuePatch: queuePatch}
}

// Apply encodes the committed params and queues a patch. It satisfies
// ApplyFunc, so a Navigator can back a Controller directly:
//
//	ctl := urlstate.NewController(params, nav.Apply, urlstate.Replace)
func (n *Navigator) Apply(p Params, mode Mode) {
	if n.queuePatch == nil {
		return
	}
	n.queuePatch(Patch{Mode: mode, Values: p.Encode()})
}
