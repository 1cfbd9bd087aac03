package protocol

// valueTableJS installs globalThis.__bridge, the engine side of the handle
// protocol. Every value the host holds a handle to lives in the values Map
// under its handle id; the Map entry is the pin that keeps the value
// reachable for the engine's collector. Every entry point returns a JSON
// envelope: {"h":id} on success or {"e":code,...} on failure.
const valueTableJS = `
(function() {
	if (globalThis.__bridge) return;

	var values = new Map();
	var next = 1;
	var watches = new Map();
	var nextWatch = 1;
	var modules = Object.create(null);

	function pin(v) {
		var id = next++;
		values.set(id, v);
		return id;
	}
	function ok(id) { return JSON.stringify({h: id}); }
	function fail(code, extra) {
		var out = extra || {};
		out.e = code;
		return JSON.stringify(out);
	}
	function invalid(id) { return fail('invalid_handle', {h: id}); }
	function firstMissing(ids) {
		for (var i = 0; i < ids.length; i++) {
			if (!values.has(ids[i])) return ids[i];
		}
		return 0;
	}
	function thrown(err) {
		var out = {name: '', message: '', stack: ''};
		try {
			if (err !== null && typeof err === 'object') {
				out.name = String(err.name || (err.constructor && err.constructor.name) || '');
				out.message = err.message === undefined ? '' : String(err.message);
				out.stack = err.stack === undefined ? '' : String(err.stack);
			} else {
				out.message = String(err);
			}
		} catch (e) {}
		out.x = pin(err);
		return fail('exception', out);
	}
	function kindOf(v) {
		if (v === undefined) return 'undefined';
		if (v === null) return 'null';
		var t = typeof v;
		if (t !== 'object') return t;
		if (Array.isArray(v)) return 'array';
		if (v instanceof Map) return 'map';
		if (v instanceof Promise) return 'promise';
		if (v instanceof ArrayBuffer || ArrayBuffer.isView(v)) return 'arraybuffer';
		return 'object';
	}
	function call(target, name, argv) {
		var fn;
		try {
			fn = (target === null || target === undefined) ? undefined : target[name];
		} catch (e) {
			return thrown(e);
		}
		if (typeof fn !== 'function') return fail('no_such_method', {name: name});
		var result;
		try {
			result = fn.apply(target, argv);
		} catch (e) {
			return thrown(e);
		}
		return ok(pin(result));
	}

	globalThis.__bridge = {
		invoke: function(recv, name, args) {
			var bad = firstMissing([recv].concat(args));
			if (bad) return invalid(bad);
			var argv = new Array(args.length);
			for (var i = 0; i < args.length; i++) argv[i] = values.get(args[i]);
			return call(values.get(recv), name, argv);
		},
		apply: function(recv, name, args) {
			var bad = firstMissing([recv, args]);
			if (bad) return invalid(bad);
			var list = values.get(args);
			if (!Array.isArray(list)) return fail('not_array', {h: args});
			return call(values.get(recv), name, list.slice());
		},
		lookup: function(recv, key, strict) {
			var bad = firstMissing([recv, key]);
			if (bad) return invalid(bad);
			var target = values.get(recv);
			var k = values.get(key);
			var result;
			try {
				if (target instanceof Map) {
					if (strict && !target.has(k)) return fail('key_not_found');
					result = target.get(k);
				} else {
					if (strict && target !== null && target !== undefined && !(k in Object(target))) {
						return fail('key_not_found');
					}
					result = target[k];
				}
			} catch (e) {
				return thrown(e);
			}
			return ok(pin(result));
		},
		pin: function(id) {
			if (!values.has(id)) return invalid(id);
			return ok(pin(values.get(id)));
		},
		unpin: function(id) {
			if (!values.delete(id)) return invalid(id);
			return ok(id);
		},
		fromJSON: function(text) {
			var v;
			try {
				v = JSON.parse(text);
			} catch (e) {
				return thrown(e);
			}
			return ok(pin(v));
		},
		undef: function() { return ok(pin(undefined)); },
		adopt: function(name) {
			var v = globalThis[name];
			delete globalThis[name];
			return ok(pin(v));
		},
		array: function(ids) {
			var bad = firstMissing(ids);
			if (bad) return invalid(bad);
			var out = new Array(ids.length);
			for (var i = 0; i < ids.length; i++) out[i] = values.get(ids[i]);
			return ok(pin(out));
		},
		exportJSON: function(id) {
			if (!values.has(id)) return invalid(id);
			var v = values.get(id);
			var text;
			try {
				if (v instanceof Map) v = Object.fromEntries(v);
				text = JSON.stringify(v);
			} catch (e) {
				return thrown(e);
			}
			return JSON.stringify({j: text === undefined ? null : text});
		},
		describe: function(id) {
			if (!values.has(id)) return invalid(id);
			return JSON.stringify({k: kindOf(values.get(id))});
		},
		same: function(a, b) {
			var bad = firstMissing([a, b]);
			if (bad) return invalid(bad);
			return JSON.stringify({b: Object.is(values.get(a), values.get(b))});
		},
		global: function(name) {
			var v;
			try {
				v = globalThis[name];
			} catch (e) {
				return thrown(e);
			}
			return ok(pin(v));
		},
		watch: function(id) {
			if (!values.has(id)) return invalid(id);
			var v = values.get(id);
			if (!(v instanceof Promise)) return ok(pin(v));
			var w = {state: 'pending', value: undefined};
			var token = nextWatch++;
			watches.set(token, w);
			v.then(
				function(r) { w.state = 'fulfilled'; w.value = r; },
				function(e) { w.state = 'rejected'; w.value = e; }
			);
			return JSON.stringify({w: token});
		},
		poll: function(token) {
			var w = watches.get(token);
			if (!w) return fail('no_watch', {w: token});
			if (w.state === 'pending') return JSON.stringify({pending: true});
			watches.delete(token);
			if (w.state === 'rejected') return thrown(w.value);
			return ok(pin(w.value));
		},
		forget: function(token) {
			watches.delete(token);
			return '{}';
		},
		stage: function(id, name) {
			if (!values.has(id)) return invalid(id);
			var v = values.get(id);
			var view;
			if (v instanceof ArrayBuffer) {
				view = new Uint8Array(v);
			} else if (ArrayBuffer.isView(v)) {
				view = new Uint8Array(v.buffer, v.byteOffset, v.byteLength);
			} else {
				return fail('not_binary', {h: id});
			}
			var buf = new ArrayBuffer(view.byteLength);
			new Uint8Array(buf).set(view);
			globalThis[name] = buf;
			return ok(id);
		},
		register: function(name, ns) {
			modules[name] = (ns && ns.default) ? ns.default : ns;
			return ok(0);
		},
		module: function(name) {
			if (!(name in modules)) return fail('no_module', {name: name});
			return ok(pin(modules[name]));
		},
		live: function() { return JSON.stringify({n: values.size}); }
	};
})();
`
