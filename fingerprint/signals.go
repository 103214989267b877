package fingerprint

import "context"

// ScreenGeometry captures the display dimensions visible to the shell.
type ScreenGeometry struct {
	Width          int
	Height         int
	ViewportWidth  int
	ViewportHeight int
	PixelRatio     float64
	ColorDepth     int
}

// StorageFlags reports which storage facilities the environment allows.
type StorageFlags struct {
	LocalStorage   bool
	SessionStorage bool
	IndexedDB      bool
	ServiceWorker  bool
	Cookies        bool
}

// BatteryState is the coarse battery signal. Level is 0..1.
type BatteryState struct {
	Present  bool
	Charging bool
	Level    float64
}

// BlockerProbe is a disposable probe element used to detect content
// blockers. Release must be called exactly once after the probe has
// been inspected, whatever the inspection returned; the probe holds a
// live handle in the host environment until released.
type BlockerProbe interface {
	Blocked(ctx context.Context) (bool, error)
	Release()
}

// SignalSource supplies raw environment signals. The shell embedding
// this library implements it against whatever host it runs in; tests
// implement it with fixed values.
//
// Implementations may block, and should honor ctx cancellation. Any
// method may return an error; the generator treats errors as "signal
// unavailable" and substitutes a sentinel.
type SignalSource interface {
	CanvasHash(ctx context.Context) (string, error)
	WebGLRenderer(ctx context.Context) (string, error)
	// AudioSum is the rendered-audio checksum probe. It is the slowest
	// signal and is bounded separately by the generator.
	AudioSum(ctx context.Context) (string, error)
	Fonts(ctx context.Context) ([]string, error)
	ScreenGeometry(ctx context.Context) (ScreenGeometry, error)
	HardwareConcurrency(ctx context.Context) (int, error)
	DeviceMemoryGB(ctx context.Context) (float64, error)
	TouchSupport(ctx context.Context) (bool, error)
	StorageFlags(ctx context.Context) (StorageFlags, error)
	ConnectionType(ctx context.Context) (string, error)
	Battery(ctx context.Context) (BatteryState, error)
	AcquireBlockerProbe(ctx context.Context) (BlockerProbe, error)
}
