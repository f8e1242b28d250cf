// Command arenactl stands up a boundary-tagged arena over either an
// anonymous in-process buffer or an mmap-backed file, runs a small
// alloc/free workload against it, and exposes the arena's live Stats as
// Prometheus gauges.
package main

import (
	"context"
	"flag"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nmxmxh/quadarena/kernel/arena"
	"github.com/nmxmxh/quadarena/kernel/utils"
)

func main() {
	var (
		regionBytes = flag.Int("bytes", 16<<20, "size of the arena's backing region")
		backingFile = flag.String("file", "", "mmap this file as the backing region instead of an anonymous buffer")
		listenAddr  = flag.String("listen", ":9090", "address to serve /metrics on")
		workload    = flag.Bool("workload", true, "run a background alloc/free workload against the arena")
	)
	flag.Parse()

	log := utils.DefaultLogger("arenactl")

	region, cleanup, err := acquireRegion(*backingFile, *regionBytes)
	if err != nil {
		log.Fatal("failed to acquire backing region", utils.Err(err))
	}
	defer cleanup()

	a, err := arena.New(region, -1, -1, nil)
	if err != nil {
		log.Fatal("failed to construct arena", utils.Err(err))
	}
	log.Info("arena ready", utils.Int("bytes", len(region)))

	// Arena is not safe for concurrent use; this mutex is the caller-supplied
	// synchronization spec section 5 requires, since the workload goroutine
	// and every metrics scrape both touch the same Arena.
	var mu sync.Mutex

	metrics := newCollector(a, &mu)
	prometheus.MustRegister(metrics)
	http.Handle("/metrics", promhttp.Handler())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: *listenAddr}
	go func() {
		log.Info("serving metrics", utils.String("addr", *listenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", utils.Err(err))
		}
	}()

	if *workload {
		go runWorkload(ctx, a, &mu, log)
	}

	gs := utils.NewGracefulShutdown(5*time.Second, log)
	gs.Register(func() error { return srv.Shutdown(context.Background()) })

	<-ctx.Done()
	start := time.Now()
	_ = gs.Shutdown(context.Background())
	log.Info("shut down", utils.Duration("took", time.Since(start)))
}

// acquireRegion returns the byte slice an Arena will be built over, and a
// cleanup function to release it. A backing file is mapped with mmap so the
// region can outlive the process; an anonymous buffer is just memory.
func acquireRegion(path string, size int) ([]byte, func(), error) {
	if path == "" {
		return make([]byte, size), func() {}, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, utils.WrapError(err, "open backing file")
	}
	defer f.Close()

	if err := f.Truncate(int64(size)); err != nil {
		return nil, nil, utils.WrapError(err, "truncate backing file")
	}

	region, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, utils.WrapError(err, "mmap backing file")
	}

	cleanup := func() {
		_ = unix.Msync(region, unix.MS_SYNC)
		_ = unix.Munmap(region)
	}
	return region, cleanup, nil
}

// runWorkload issues a steady stream of random-sized allocations and frees
// against a, purely to give the exported metrics something to move. mu
// guards every call into a; the collector's Collect locks the same mutex
// before reading Stats.
func runWorkload(ctx context.Context, a *arena.Arena, mu *sync.Mutex, log *utils.Logger) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var live []int

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mu.Lock()
			if len(live) == 0 || rng.Intn(2) == 0 {
				n := (16 + rng.Intn(256)) * arena.PointerSize
				off, err := a.Alloc(n)
				if err == nil && off != 0 {
					live = append(live, off)
				}
			} else {
				i := rng.Intn(len(live))
				off := live[i]
				live[i] = live[len(live)-1]
				live = live[:len(live)-1]
				if _, err := a.Free(off); err != nil {
					log.Warn("free failed", utils.Err(err))
				}
			}
			mu.Unlock()
		}
	}
}
