// Command memento-demo drives a synthetic workload through a Tracker and
// prints the flushed per-usecase report, the CLI-flag/logging-setup shape
// ported from the teacher's cmd/ublk-mem/main.go.
package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"

	"github.com/ehrlich-b/memento"
	"github.com/ehrlich-b/memento/internal/logging"
)

// Phase is the demo's usecase enum.
type Phase uint32

const (
	PhaseNone Phase = iota
	PhaseDownload
	PhaseDecode
	PhaseRender
)

func (p Phase) Encode() uint32 { return uint32(p) }

func (p Phase) String() string {
	switch p {
	case PhaseDownload:
		return "Download"
	case PhaseDecode:
		return "Decode"
	case PhaseRender:
		return "Render"
	default:
		return "None"
	}
}

type phaseCodec struct{}

func (phaseCodec) Decode(raw uint32) (Phase, bool) {
	if raw > uint32(PhaseRender) {
		return PhaseNone, false
	}
	return Phase(raw), true
}

func (phaseCodec) Default() Phase { return PhaseNone }

var allPhases = []Phase{PhaseDownload, PhaseDecode, PhaseRender}

func main() {
	var (
		iterations = flag.Int("n", 10000, "number of simulated allocations")
		seed       = flag.Int64("seed", 1, "PRNG seed, for reproducible demo runs")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	logCfg := logging.DefaultConfig()
	if *verbose {
		logCfg.Level = logging.LevelDebug
	}
	logging.SetDefault(logging.NewLogger(logCfg))

	tracker := memento.New[Phase](phaseCodec{})
	rng := rand.New(rand.NewSource(*seed))

	type outstanding struct {
		ptr  uintptr
		size uintptr
	}
	live := map[Phase][]outstanding{}

	for i := 0; i < *iterations; i++ {
		phase := allPhases[rng.Intn(len(allPhases))]
		guard, ok := tracker.WithUsecase(phase)
		if !ok {
			log.Printf("contended acquiring %s, skipping iteration", phase)
			continue
		}

		if rng.Intn(2) == 0 || len(live[phase]) == 0 {
			size := uintptr(64 + rng.Intn(4096))
			if ptr, ok := tracker.Alloc(size); ok {
				live[phase] = append(live[phase], outstanding{ptr: ptr, size: size})
			}
		} else {
			idx := rng.Intn(len(live[phase]))
			o := live[phase][idx]
			live[phase][idx] = live[phase][len(live[phase])-1]
			live[phase] = live[phase][:len(live[phase])-1]
			tracker.Dealloc(o.ptr, o.size)
		}

		guard.Release()
	}

	for _, entries := range live {
		for _, o := range entries {
			tracker.Dealloc(o.ptr, o.size)
		}
	}

	fmt.Println("memento demo report:")
	_, _ = memento.WithRecorder(tracker, func(r memento.Recorder[Phase]) (struct{}, error) {
		rec := r.(*memento.StatsRecorder[Phase])
		rec.Flush(func(phase Phase, stat memento.Stat) {
			fmt.Printf("  %-10s %s\n", phase, stat)
		}, func(kind memento.ErrorKind, count uint64) {
			if count > 0 {
				fmt.Printf("  error %-24s %d\n", kind, count)
			}
		})
		return struct{}{}, nil
	})
}
