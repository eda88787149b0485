package socket

import (
	"reflect"
	"runtime"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// DefaultOptions are used by New when the caller passes none.
var DefaultOptions = Options{
	Logger:  &log.Logger,
	PipeHWM: 1000,
}

// Options configures a Socket. Modify before calling Socket.Start.
type Options struct {
	Logger *zerolog.Logger // if nil at Start, logging is disabled (New fills in DefaultOptions.Logger)

	PipeHWM int // high water mark for pipes; Context.Connect does not consult it

	// Conflate makes a pipe created for this socket keep only the newest
	// unread message instead of queuing up to PipeHWM. ZeroMQ's
	// ZMQ_CONFLATE; meant for single-part state-update traffic, not
	// request/reply or multi-part envelopes.
	Conflate bool

	Registry *prometheus.Registry // if non-nil, Socket registers Metrics here

	Handlers []*Handler // event handlers
}

// Handler represents a function to call for matching socket events.
type Handler struct {
	Id      int          // optional handler id number (zero means none)
	Name    string       // optional name
	Order   int          // the lower the order, the sooner the handler runs
	Enabled *atomic.Bool // if non-nil, disables the handler unless true
	Dropped bool         // if true, permanently drops (unregisters) the handler

	Pre  bool // run before non-pre handlers?
	Post bool // run after non-post handlers?

	Types     []string      // if non-empty, limits event types
	LimitRate *rate.Limiter // if non-nil, limits the rate of invocations

	Func HandlerFunc // the function to call
}

// HandlerFunc handles ev. Return false to unregister the handler.
type HandlerFunc func(ev *Event) (keepHandler bool)

// AddHandler adds a handler function using tpl as its template (if
// present). Returns the added Handler for further configuration.
func (o *Options) AddHandler(hdf HandlerFunc, tpl ...*Handler) *Handler {
	var h Handler
	if len(tpl) > 0 {
		h = *tpl[0]
		h.Types = append([]string(nil), tpl[0].Types...)
	}
	if len(h.Types) == 0 {
		h.Types = []string{"*"}
	}
	if hdf != nil {
		h.Func = hdf
	}
	if len(h.Name) == 0 {
		h.Name = runtime.FuncForPC(reflect.ValueOf(hdf).Pointer()).Name()
	}
	o.Handlers = append(o.Handlers, &h)
	return &h
}

// String returns the handler's name and id.
func (h *Handler) String() string {
	return h.Name
}

// Enable sets h.Enabled to true, returning false if h.Enabled is nil.
func (h *Handler) Enable() bool {
	if h == nil || h.Enabled == nil {
		return false
	}
	h.Enabled.Store(true)
	return true
}

// Disable sets h.Enabled to false, returning false if h.Enabled is nil.
func (h *Handler) Disable() bool {
	if h == nil || h.Enabled == nil {
		return false
	}
	h.Enabled.Store(false)
	return true
}

// Drop permanently unregisters the handler.
func (h *Handler) Drop() {
	if h != nil {
		h.Dropped = true
	}
}

// OnEvent requests hdf be called for the given event types (or every
// event if none given).
func (o *Options) OnEvent(hdf HandlerFunc, types ...string) *Handler {
	return o.AddHandler(hdf, &Handler{
		Order: len(o.Handlers) + 1,
		Types: types,
	})
}

// OnEventPre is like OnEvent but runs hdf before other handlers.
func (o *Options) OnEventPre(hdf HandlerFunc, types ...string) *Handler {
	return o.AddHandler(hdf, &Handler{
		Pre:   true,
		Order: -len(o.Handlers) - 1,
		Types: types,
	})
}

// OnEventPost is like OnEvent but runs hdf after other handlers.
func (o *Options) OnEventPost(hdf HandlerFunc, types ...string) *Handler {
	return o.AddHandler(hdf, &Handler{
		Post:  true,
		Order: len(o.Handlers) + 1,
		Types: types,
	})
}

// OnStart requests hdf be called once the socket has started.
func (o *Options) OnStart(hdf HandlerFunc) *Handler {
	return o.OnEvent(hdf, EVENT_START)
}

// OnStop requests hdf be called when the socket stops.
func (o *Options) OnStop(hdf HandlerFunc) *Handler {
	return o.OnEvent(hdf, EVENT_STOP)
}
