package server

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"sync"

	"relaygo/codec"
	"relaygo/envelope"
	"relaygo/middleware"
)

// job is one unit of work awaiting a free worker: either a decoded RPC
// request, or arbitrary non-RPC work (fn) such as a publish fan-out.
type job struct {
	ctx   *ConnectionContext
	reqID uint64
	req   envelope.RequestEnvelope
	fn    func()
}

// dispatcher is the server-side worker pool: requests
// arriving on any connection are fanned into a bounded pool of goroutines
// so that one slow handler cannot starve requests on other connections,
// while still bounding total concurrent handler execution, instead of
// spawning an unbounded goroutine per request; this uses a fixed pool
// sized by runtime.NumCPU.
//
// Only sync handlers run through the middleware chain — an async handler
// returns control to the dispatcher immediately and answers later from
// its own goroutine, well outside any one call's middleware scope.
type dispatcher struct {
	registry *HandlerRegistry
	codec    codec.Codec
	chain    middleware.HandlerFunc
	jobs     chan job
	wg       sync.WaitGroup
	onPanic  func(method string, recovered any)
}

func newDispatcher(registry *HandlerRegistry, c codec.Codec, mws []middleware.Middleware, workers int) *dispatcher {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	d := &dispatcher{registry: registry, codec: c, jobs: make(chan job, workers*4)}
	d.chain = middleware.Chain(mws...)(d.businessHandler)
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

func (d *dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		if j.fn != nil {
			j.fn()
			continue
		}
		d.handle(j)
	}
}

// submit enqueues a decoded request. Blocks if every worker is busy and
// the queue is full — deliberate back-pressure rather than unbounded
// goroutine growth under load.
func (d *dispatcher) submit(j job) {
	d.jobs <- j
}

// submitFunc enqueues arbitrary work onto the same bounded worker pool RPC
// requests use. Used for a connection's publish fan-out, so iterating
// potentially many subscribers never runs inline on the publishing
// connection's own read loop and competes for the same
// back-pressure-bounded concurrency as every other request.
func (d *dispatcher) submitFunc(fn func()) {
	d.jobs <- job{fn: fn}
}

func (d *dispatcher) close() {
	close(d.jobs)
	d.wg.Wait()
}

func (d *dispatcher) handle(j job) {
	entry, ok := d.registry.lookup(j.req.Method)
	if !ok {
		j.ctx.RespondError(j.reqID, "unknown method: "+j.req.Method)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			if d.onPanic != nil {
				d.onPanic(j.req.Method, r)
			}
			j.ctx.RespondError(j.reqID, fmt.Sprintf("handler panic: %v", r))
		}
	}()

	if entry.kind == asyncHandler {
		d.invokeAsync(entry, j)
		return
	}

	ctx := context.WithValue(context.Background(), connCtxKey{}, j.ctx)
	resp := d.chain(ctx, &j.req)
	if resp.Err != nil {
		j.ctx.RespondError(j.reqID, resp.Err.Error())
		return
	}
	j.ctx.PackAndRespond(j.reqID, resp.Result)
}

// connCtxKey is the context.Context key under which the terminal handler
// recovers the request's *ConnectionContext. Using the stdlib context to
// carry it lets middleware — which must not import this package — pass
// requests through without knowing anything about relaygo's connection
// type.
type connCtxKey struct{}

func (d *dispatcher) invokeAsync(entry *handlerEntry, j job) {
	args, err := decodeArgs(d.codec, j.req.Args, entry.argTy)
	if err != nil {
		j.ctx.RespondError(j.reqID, fmt.Sprintf("bad arguments for %s: %v", j.req.Method, err))
		return
	}
	callArgs := make([]reflect.Value, 0, len(args)+2)
	callArgs = append(callArgs, reflect.ValueOf(j.ctx), reflect.ValueOf(j.reqID))
	callArgs = append(callArgs, args...)
	// The handler owns reqID now; it must call PackAndRespond itself,
	// possibly long after this call returns.
	entry.fn.Call(callArgs)
}

// businessHandler is the terminal handler wrapped by the middleware
// chain: decode arguments → reflect.Call the registered sync handler →
// report its (result, error) in middleware-visible form. Mirrors the
// Decodes arguments then reflect-calls the registered handler with
// entry.argTy's arbitrary parameter list, reporting (result, error) in
// middleware-visible form.
func (d *dispatcher) businessHandler(ctx context.Context, req *envelope.RequestEnvelope) *middleware.Response {
	entry, ok := d.registry.lookup(req.Method)
	if !ok {
		return &middleware.Response{Err: fmt.Errorf("unknown method: %s", req.Method)}
	}

	args, err := decodeArgs(d.codec, req.Args, entry.argTy)
	if err != nil {
		return &middleware.Response{Err: fmt.Errorf("bad arguments for %s: %w", req.Method, err)}
	}

	connCtx, _ := ctx.Value(connCtxKey{}).(*ConnectionContext)
	callArgs := make([]reflect.Value, 0, len(args)+1)
	callArgs = append(callArgs, reflect.ValueOf(connCtx))
	callArgs = append(callArgs, args...)

	out := entry.fn.Call(callArgs)
	result, errv := out[0], out[1]
	if !errv.IsNil() {
		return &middleware.Response{Err: errv.Interface().(error)}
	}
	return &middleware.Response{Result: result.Interface()}
}

// decodeArgs unpacks the client's packed argument tuple into values of
// the handler's declared parameter types. It relies on a standard
// encoding/json (and ugorji/go-msgpack) behavior: unmarshaling into a
// []interface{} whose slots already hold non-nil pointers decodes each
// array element into the pointed-to type instead of a generic map/float
// value, which is what lets one heterogeneous tuple decode straight into
// the handler's real parameter types without per-method boilerplate.
func decodeArgs(c interface {
	Unpack(data []byte, v any) error
}, raw []byte, argTy []reflect.Type) ([]reflect.Value, error) {
	slots := make([]any, len(argTy))
	ptrs := make([]reflect.Value, len(argTy))
	for i, ty := range argTy {
		p := reflect.New(ty)
		ptrs[i] = p
		slots[i] = p.Interface()
	}

	if err := c.Unpack(raw, &slots); err != nil {
		return nil, err
	}
	if len(slots) != len(argTy) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(argTy), len(slots))
	}

	out := make([]reflect.Value, len(argTy))
	for i, p := range ptrs {
		out[i] = p.Elem()
	}
	return out, nil
}
