package protocol

import (
	"time"

	"go.uber.org/zap"

	"github.com/cryguy/bridge/internal/core"
	"github.com/cryguy/bridge/internal/eventloop"
)

// timersJS installs setTimeout and friends. Callbacks stay in a closure;
// Go schedules by id and calls back through __bridge_timers.fire.
const timersJS = `
(function() {
	var pending = new Map();

	function schedule(repeat) {
		return function(fn, delay) {
			if (typeof fn !== 'function') return 0;
			var args = Array.prototype.slice.call(arguments, 2);
			var id = __bridge_timer_add(Math.max(0, Math.floor(Number(delay) || 0)), repeat);
			pending.set(id, {fn: fn, args: args, repeat: repeat});
			return id;
		};
	}
	function cancel(id) {
		if (typeof id !== 'number' || !pending.has(id)) return;
		pending.delete(id);
		__bridge_timer_clear(id);
	}

	globalThis.__bridge_timers = {
		fire: function(id) {
			var t = pending.get(id);
			if (!t) return;
			if (!t.repeat) pending.delete(id);
			t.fn.apply(undefined, t.args);
		}
	};
	globalThis.setTimeout = schedule(false);
	globalThis.setInterval = schedule(true);
	globalThis.clearTimeout = cancel;
	globalThis.clearInterval = cancel;
})();
`

// SetupTimers backs setTimeout and setInterval with el. Timers only fire
// while the bridge is awaiting a promise.
func SetupTimers(rt core.JSRuntime, el *eventloop.EventLoop, _ *zap.Logger) error {
	if err := rt.RegisterFunc("__bridge_timer_add", func(delayMs int, repeat bool) int {
		return el.RegisterTimer(time.Duration(delayMs)*time.Millisecond, repeat)
	}); err != nil {
		return err
	}
	if err := rt.RegisterFunc("__bridge_timer_clear", func(id int) {
		el.ClearTimer(id)
	}); err != nil {
		return err
	}
	return rt.Eval(timersJS)
}
