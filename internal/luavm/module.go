package luavm

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/luabridge/internal/bridge"
)

// Install registers the bridge module into s for plugin p. Plugin
// scripts use it to expose handlers and reach their settings:
//
//	bridge.fn("greet", { params = {"name"} }, function(name)
//	    return "hello " .. name
//	end)
//	bridge.command("Greet", "greet")
//	bridge.option("greeting", "hello")
//	bridge.set("greeting", "hi")
//	local g = bridge.get("greeting")
//
// Registration failures are logged and reported to the script as nil
// so one bad handler cannot abort the rest of the plugin's setup.
// Settings access errors are raised as Lua errors and fail only the
// calling invocation.
func Install(s *State, p *bridge.Plugin, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	L := s.L
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"fn":      s.luaFn(p, log),
		"command": s.luaCommand(p, log),
		"option":  s.luaOption(p),
		"get":     s.luaGet(p),
		"set":     s.luaSet(p),
	})
	L.SetGlobal("bridge", mod)
}

// luaFn implements bridge.fn(name, spec, handler) -> funcname | nil.
func (s *State) luaFn(p *bridge.Plugin, log *zap.Logger) lua.LGFunction {
	return func(L *lua.LState) int {
		name := L.CheckString(1)
		spec := L.CheckTable(2)
		fn := L.CheckFunction(3)

		funcName, err := p.Function(name, signatureFromTable(spec), s.wrapHandler(fn))
		if err != nil {
			log.Warn("handler registration failed",
				zap.String("plugin", p.Name()),
				zap.String("handler", name),
				zap.Error(err))
			L.Push(lua.LNil)
			return 1
		}

		L.Push(lua.LString(funcName))
		return 1
	}
}

// luaCommand implements bridge.command(name, handler) -> name | nil.
func (s *State) luaCommand(p *bridge.Plugin, log *zap.Logger) lua.LGFunction {
	return func(L *lua.LState) int {
		command := L.CheckString(1)
		handler := L.CheckString(2)

		bound, err := p.Command(command, handler)
		if err != nil {
			log.Warn("command registration failed",
				zap.String("plugin", p.Name()),
				zap.String("handler", handler),
				zap.String("command", command),
				zap.Error(err))
			L.Push(lua.LNil)
			return 1
		}

		L.Push(lua.LString(bound))
		return 1
	}
}

// luaOption implements bridge.option(name, default).
func (s *State) luaOption(p *bridge.Plugin) lua.LGFunction {
	return func(L *lua.LState) int {
		name := L.CheckString(1)
		def := ToGo(L.CheckAny(2))

		st, err := p.Settings()
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		if err := st.Declare(name, def); err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		return 0
	}
}

// luaGet implements bridge.get(name) -> value.
func (s *State) luaGet(p *bridge.Plugin) lua.LGFunction {
	return func(L *lua.LState) int {
		name := L.CheckString(1)

		st, err := p.Settings()
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		v, err := st.Get(name)
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}

		L.Push(ToLua(L, v))
		return 1
	}
}

// luaSet implements bridge.set(name, value).
func (s *State) luaSet(p *bridge.Plugin) lua.LGFunction {
	return func(L *lua.LState) int {
		name := L.CheckString(1)
		value := ToGo(L.CheckAny(2))

		st, err := p.Settings()
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		if err := st.Set(name, value); err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		return 0
	}
}

// wrapHandler adapts a Lua function into a bridge.Handler. Arguments
// arrive as strings; a requested range context is appended as a
// two-element {first, last} table after the positional arguments. The
// first return value becomes the host-visible result.
func (s *State) wrapHandler(fn *lua.LFunction) bridge.Handler {
	return func(args []string, rng *bridge.Range) (string, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		if s.closed {
			return "", ErrStateClosed
		}

		L := s.L
		L.Push(fn)
		n := 0
		for _, a := range args {
			L.Push(lua.LString(a))
			n++
		}
		if rng != nil {
			t := L.NewTable()
			t.RawSetInt(1, lua.LNumber(rng.First))
			t.RawSetInt(2, lua.LNumber(rng.Last))
			L.Push(t)
			n++
		}

		if err := L.PCall(n, 1, nil); err != nil {
			return "", err
		}
		ret := L.Get(-1)
		L.Pop(1)
		return Stringify(ret), nil
	}
}

// signatureFromTable builds the explicit handler signature from the
// script-provided spec table: params (required names), optional
// (defaulted names), variadic, range.
func signatureFromTable(t *lua.LTable) bridge.Signature {
	var sig bridge.Signature

	if params, ok := t.RawGetString("params").(*lua.LTable); ok {
		params.ForEach(func(_, v lua.LValue) {
			sig.Params = append(sig.Params, bridge.Param{Name: lua.LVAsString(v)})
		})
	}
	if optional, ok := t.RawGetString("optional").(*lua.LTable); ok {
		optional.ForEach(func(_, v lua.LValue) {
			sig.Params = append(sig.Params, bridge.Param{Name: lua.LVAsString(v), Optional: true})
		})
	}
	sig.Variadic = lua.LVAsBool(t.RawGetString("variadic"))
	sig.Range = lua.LVAsBool(t.RawGetString("range"))

	return sig
}
