package fingerprint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrSourceRequired is an exported constant or variable used by fingerprint generation.
var ErrSourceRequired = errors.New("signal source required")

// Sentinel values substituted when a probe fails, times out, or is
// blocked by the environment. They are part of the digest input, so a
// device that consistently blocks a probe still fingerprints stably.
const (
	SentinelCanvas         = "canvas:unavailable"
	SentinelWebGL          = "webgl:unavailable"
	SentinelAudio          = "audio:unavailable"
	SentinelFonts          = "fonts:unavailable"
	SentinelScreen         = "screen:unavailable"
	SentinelHardware       = "hw:unavailable"
	SentinelStorage        = "storage:unavailable"
	SentinelConnection     = "connection:unknown"
	SentinelBattery        = "battery:unknown"
	SentinelBlockerUnknown = "blocker:unknown"
)

const (
	blockerPresent = "blocker:present"
	blockerAbsent  = "blocker:absent"
)

const (
	defaultProbeTimeout = 2 * time.Second
	defaultAudioTimeout = time.Second
)

// signalSeparator joins signal strings before hashing. A non-printing
// separator keeps adjacent signals from colliding into each other.
const signalSeparator = "\x1f"

// Digest is the device fingerprint: a SHA-256 over the joined signal
// strings.
type Digest [32]byte

// String returns the lowercase hex form used on the wire and in cache
// keys.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// ParseDigest decodes the hex form back into a [Digest].
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != len(d) {
		return Digest{}, fmt.Errorf("invalid fingerprint digest %q", s)
	}
	copy(d[:], raw)
	return d, nil
}

// Config bounds probe execution.
type Config struct {
	// ProbeTimeout caps every probe except audio.
	ProbeTimeout time.Duration
	// AudioProbeTimeout caps the audio probe, which renders an offline
	// audio graph and can hang on broken audio stacks.
	AudioProbeTimeout time.Duration
}

func (c *Config) withDefaults() Config {
	out := Config{ProbeTimeout: defaultProbeTimeout, AudioProbeTimeout: defaultAudioTimeout}
	if c == nil {
		return out
	}
	if c.ProbeTimeout > 0 {
		out.ProbeTimeout = c.ProbeTimeout
	}
	if c.AudioProbeTimeout > 0 {
		out.AudioProbeTimeout = c.AudioProbeTimeout
	}
	return out
}

// Generator computes and memoizes the device digest. The first
// successful Generate call runs every probe; later calls return the
// memoized digest without touching the source again, so the
// fingerprint is stable for the lifetime of the process.
type Generator struct {
	source SignalSource
	cfg    Config

	mu       sync.Mutex
	computed bool
	digest   Digest
}

// NewGenerator builds a [Generator] over the given source.
func NewGenerator(source SignalSource, cfg *Config) (*Generator, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	return &Generator{source: source, cfg: cfg.withDefaults()}, nil
}

// Generate returns the device digest, computing it on first use.
//
// Generate never fails: unavailable signals degrade to sentinels and
// still participate in the hash. Generate is safe for concurrent use;
// concurrent first calls compute once.
func (g *Generator) Generate(ctx context.Context) Digest {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.computed {
		return g.digest
	}

	g.digest = g.compute(ctx)
	g.computed = true
	return g.digest
}

// Reset discards the memoized digest so the next Generate re-probes.
// Intended for tests and for shells that detect display reconfiguration.
func (g *Generator) Reset() {
	g.mu.Lock()
	g.computed = false
	g.mu.Unlock()
}

func (g *Generator) compute(ctx context.Context) Digest {
	signals := []string{
		g.stringSignal(ctx, g.cfg.ProbeTimeout, SentinelCanvas, g.source.CanvasHash),
		g.stringSignal(ctx, g.cfg.ProbeTimeout, SentinelWebGL, g.source.WebGLRenderer),
		g.stringSignal(ctx, g.cfg.AudioProbeTimeout, SentinelAudio, g.source.AudioSum),
		g.fontsSignal(ctx),
		g.screenSignal(ctx),
		g.hardwareSignal(ctx),
		g.storageSignal(ctx),
		g.stringSignal(ctx, g.cfg.ProbeTimeout, SentinelConnection, g.source.ConnectionType),
		g.batterySignal(ctx),
		g.blockerSignal(ctx),
	}

	sum := sha256.Sum256([]byte(strings.Join(signals, signalSeparator)))
	return Digest(sum)
}

// stringSignal bounds a probe with its own deadline and a goroutine so
// a probe that ignores ctx still cannot stall generation.
func (g *Generator) stringSignal(
	ctx context.Context,
	timeout time.Duration,
	fallback string,
	probe func(context.Context) (string, error),
) string {
	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type probeResult struct {
		value string
		err   error
	}
	done := make(chan probeResult, 1)
	go func() {
		value, err := probe(probeCtx)
		done <- probeResult{value, err}
	}()

	select {
	case result := <-done:
		if result.err != nil || result.value == "" {
			return fallback
		}
		return result.value
	case <-probeCtx.Done():
		return fallback
	}
}

func (g *Generator) fontsSignal(ctx context.Context) string {
	return g.stringSignal(ctx, g.cfg.ProbeTimeout, SentinelFonts, func(ctx context.Context) (string, error) {
		fonts, err := g.source.Fonts(ctx)
		if err != nil || len(fonts) == 0 {
			return "", err
		}
		sorted := append([]string(nil), fonts...)
		sort.Strings(sorted)
		return "fonts:" + strings.Join(sorted, ","), nil
	})
}

func (g *Generator) screenSignal(ctx context.Context) string {
	return g.stringSignal(ctx, g.cfg.ProbeTimeout, SentinelScreen, func(ctx context.Context) (string, error) {
		geo, err := g.source.ScreenGeometry(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("screen:%dx%d:%dx%d:%g:%d",
			geo.Width, geo.Height, geo.ViewportWidth, geo.ViewportHeight, geo.PixelRatio, geo.ColorDepth), nil
	})
}

func (g *Generator) hardwareSignal(ctx context.Context) string {
	return g.stringSignal(ctx, g.cfg.ProbeTimeout, SentinelHardware, func(ctx context.Context) (string, error) {
		cores, err := g.source.HardwareConcurrency(ctx)
		if err != nil {
			return "", err
		}
		memory, err := g.source.DeviceMemoryGB(ctx)
		if err != nil {
			memory = 0
		}
		touch, err := g.source.TouchSupport(ctx)
		if err != nil {
			touch = false
		}
		return "hw:" + strconv.Itoa(cores) + ":" + strconv.FormatFloat(memory, 'g', -1, 64) + ":" + strconv.FormatBool(touch), nil
	})
}

func (g *Generator) storageSignal(ctx context.Context) string {
	return g.stringSignal(ctx, g.cfg.ProbeTimeout, SentinelStorage, func(ctx context.Context) (string, error) {
		flags, err := g.source.StorageFlags(ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("storage:%t:%t:%t:%t:%t",
			flags.LocalStorage, flags.SessionStorage, flags.IndexedDB, flags.ServiceWorker, flags.Cookies), nil
	})
}

func (g *Generator) batterySignal(ctx context.Context) string {
	return g.stringSignal(ctx, g.cfg.ProbeTimeout, SentinelBattery, func(ctx context.Context) (string, error) {
		battery, err := g.source.Battery(ctx)
		if err != nil || !battery.Present {
			return "", err
		}
		// Level is bucketed to 10% so normal discharge does not change
		// the fingerprint between navigations.
		bucket := int(battery.Level * 10)
		return fmt.Sprintf("battery:%t:%d", battery.Charging, bucket), nil
	})
}

// blockerSignal acquires a probe element, inspects it, and releases it
// on every path, including probe failure and timeout: the probe runs
// inside the bounded goroutine, so a timed-out inspection still ends in
// Release.
func (g *Generator) blockerSignal(ctx context.Context) string {
	return g.stringSignal(ctx, g.cfg.ProbeTimeout, SentinelBlockerUnknown, func(ctx context.Context) (string, error) {
		probe, err := g.source.AcquireBlockerProbe(ctx)
		if err != nil || probe == nil {
			return "", err
		}
		defer probe.Release()

		blocked, err := probe.Blocked(ctx)
		if err != nil {
			return "", err
		}
		if blocked {
			return blockerPresent, nil
		}
		return blockerAbsent, nil
	})
}
