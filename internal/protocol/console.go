package protocol

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cryguy/bridge/internal/core"
	"github.com/cryguy/bridge/internal/eventloop"
)

// consoleJS builds globalThis.console on top of __bridge_console.
const consoleJS = `
(function() {
	var levels = ['log', 'info', 'warn', 'error', 'debug'];
	var con = {};
	for (var i = 0; i < levels.length; i++) {
		(function(lvl) {
			con[lvl] = function() {
				var parts = [];
				for (var j = 0; j < arguments.length; j++) {
					var arg = arguments[j];
					if (typeof arg === 'object' && arg !== null) {
						try {
							parts.push(JSON.stringify(arg));
						} catch (e) {
							parts.push('[object Object]');
						}
					} else {
						parts.push(String(arg));
					}
				}
				__bridge_console(lvl, parts.join(' '));
			};
		})(levels[i]);
	}
	con.trace = con.debug;
	globalThis.console = con;
})();
`

// SetupConsole replaces globalThis.console with a version that writes
// foreign log lines into the host logger.
func SetupConsole(rt core.JSRuntime, _ *eventloop.EventLoop, log *zap.Logger) error {
	flog := log.With(zap.String("source", "foreign"))
	if err := rt.RegisterFunc("__bridge_console", func(level, message string) {
		logEntry(flog, core.LogEntry{Level: level, Message: message})
	}); err != nil {
		return fmt.Errorf("registering __bridge_console: %w", err)
	}
	return rt.Eval(consoleJS)
}

func logEntry(log *zap.Logger, e core.LogEntry) {
	switch e.Level {
	case "error":
		log.Error(e.Message)
	case "warn":
		log.Warn(e.Message)
	case "debug":
		log.Debug(e.Message)
	default:
		log.Info(e.Message, zap.String("level", e.Level))
	}
}
