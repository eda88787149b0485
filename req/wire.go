package req

import (
	"github.com/sockfix/sockfix/socket"
	"github.com/sockfix/sockfix/wire"
)

// wireState is the {bottom, body} envelope-shape state ValidateWire walks.
type wireState int

const (
	wireBottom wireState = iota
	wireBody
)

// ValidateWire checks that frames form zero or more complete REQ
// envelopes: each begins with a zero-length delimiter frame (More
// true), followed by one or more body frames, the last of which has
// More false. A pure function so a transport adapter, out of scope for
// this in-process core, can enforce the same envelope shape without a
// live Req socket to drive it.
func ValidateWire(frames []*wire.Msg) error {
	state := wireBottom
	for _, f := range frames {
		switch state {
		case wireBottom:
			if !f.More || f.Len() != 0 {
				return socket.ErrFault
			}
			state = wireBody
		case wireBody:
			if !f.More {
				state = wireBottom
			}
		}
	}
	if state != wireBottom {
		return socket.ErrFault
	}
	return nil
}
