package executor

import (
	"fmt"
	"runtime"
	"time"

	"github.com/desktopai/runcontrol/internal/logging"
)

// Mode selects which Executor variant Build constructs.
type Mode string

const (
	ModeAuto      Mode = "auto"
	ModeSimulated Mode = "simulated"
	ModeBridge    Mode = "bridge"
	ModeBrowser   Mode = "browser"
)

// FactoryConfig configures Build.
type FactoryConfig struct {
	Mode                Mode
	BridgeTimeout       time.Duration
	Bridge              Bridge // may be nil
	BrowserDebugEndpoint string
	Composer            TextComposer
	Logger              logging.Logger
}

// Build constructs the Executor variant cfg selects.
//
// In ModeAuto: a configured bridge (even if not currently connected —
// runtime disconnection is handled gracefully by the bridge executor) is
// preferred; otherwise, on a non-Windows host, the Simulated executor is
// used for offline development. ModeBridge without a configured bridge is
// a startup configuration error, not a dispatch-time one.
func Build(cfg FactoryConfig) (Executor, error) {
	switch cfg.Mode {
	case "", ModeAuto:
		if cfg.Bridge != nil {
			return NewBridgeExecutor(cfg.Bridge, cfg.BridgeTimeout, cfg.Composer), nil
		}
		if runtime.GOOS != "windows" {
			return NewSimulated(), nil
		}
		return NewSimulated(), nil
	case ModeSimulated:
		return NewSimulated(), nil
	case ModeBridge:
		if cfg.Bridge == nil {
			return nil, fmt.Errorf("action_executor_mode=bridge requires a configured command bridge")
		}
		return NewBridgeExecutor(cfg.Bridge, cfg.BridgeTimeout, cfg.Composer), nil
	case ModeBrowser:
		if cfg.BrowserDebugEndpoint == "" {
			return nil, fmt.Errorf("action_executor_mode=browser requires browser_cdp_endpoint")
		}
		return NewBrowserExecutor(cfg.BrowserDebugEndpoint, cfg.Logger), nil
	default:
		return nil, fmt.Errorf("unknown action_executor_mode %q", cfg.Mode)
	}
}
