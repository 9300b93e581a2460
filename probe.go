package hwcodec

import (
	"cmp"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"
	"golang.org/x/sync/errgroup"
)

// decodeProber discovers which decode candidates work on this machine by
// constructing a real decoder for each and decoding a reference sample.
type decodeProber struct {
	once   sync.Once
	result []DecodeContext

	drivers func() map[DecodeDriver]decodeCalls
	sample  func(DataFormat) []byte
	limit   int
}

var defaultProber = &decodeProber{
	drivers: registeredDecodeDrivers,
	sample:  referenceSample,
}

// AvailableDecoders returns the decode contexts that were verified to work on
// this machine. The first call probes every compiled-in driver, which can take
// a few hundred milliseconds per vendor; later calls return the cached result.
// Concurrent first callers block until probing completes.
//
// The returned contexts use NoDevice and the default adapter. The slice is a
// copy and may be modified.
func AvailableDecoders() []DecodeContext {
	return defaultProber.available()
}

func (p *decodeProber) available() []DecodeContext {
	p.once.Do(func() {
		p.result = p.run()
	})
	return slices.Clone(p.result)
}

func (p *decodeProber) run() []DecodeContext {
	log := newLogger("probe")
	id := uuid.NewString()[:8]
	start := time.Now()

	drivers := p.drivers()
	order := make([]DecodeDriver, 0, len(drivers))
	for d := range drivers {
		order = append(order, d)
	}
	slices.Sort(order)

	var (
		mu  sync.Mutex
		out []DecodeContext
	)

	limit := p.limit
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	var g errgroup.Group
	g.SetLimit(limit)

	for _, d := range order {
		calls := drivers[d]
		g.Go(func() error {
			found := p.probeDriver(log, id, d, calls)
			mu.Lock()
			out = append(out, found...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // probe goroutines never fail

	slices.SortFunc(out, compareDecodeContext)
	log.Infof("[%s] %d decoder(s) available, probed in %v", id, len(out), time.Since(start))
	return out
}

// probeDriver tries the candidates of one driver sequentially. Vendor runtimes
// are not assumed to tolerate parallel session creation.
func (p *decodeProber) probeDriver(log logging.LeveledLogger, id string, d DecodeDriver, calls decodeCalls) []DecodeContext {
	if !calls.driverSupport() {
		log.Debugf("[%s] %s: driver not supported: %s", id, d, nativeReason(calls.lastError()))
		return nil
	}

	var found []DecodeContext
	for _, c := range calls.decoderCandidates() {
		ctx := DecodeContext{
			Driver:     d,
			Device:     NoDevice,
			API:        c.API,
			DataFormat: c.DataFormat,
		}
		if p.probeOne(log, id, calls, ctx) {
			found = append(found, ctx)
		}
	}
	return found
}

func (p *decodeProber) probeOne(log logging.LeveledLogger, id string, calls decodeCalls, ctx DecodeContext) bool {
	sample := p.sample(ctx.DataFormat)
	if len(sample) == 0 {
		log.Debugf("[%s] %s: no reference sample", id, ctx)
		return false
	}

	start := time.Now()
	dec, err := newDecoder(calls, ctx)
	if err != nil {
		log.Debugf("[%s] %s new failed: %v (%v)", id, ctx, err, time.Since(start))
		return false
	}
	defer dec.Close()
	log.Debugf("[%s] %s new: %v", id, ctx, time.Since(start))

	start = time.Now()
	if _, err := dec.Decode(sample); err != nil {
		log.Debugf("[%s] %s decode failed: %v (%v)", id, ctx, err, time.Since(start))
		return false
	}
	log.Debugf("[%s] %s decode: %v", id, ctx, time.Since(start))
	return true
}

func compareDecodeContext(a, b DecodeContext) int {
	return cmp.Or(
		cmp.Compare(a.Driver, b.Driver),
		cmp.Compare(a.API, b.API),
		cmp.Compare(a.DataFormat, b.DataFormat),
	)
}
