package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// FileExtension is the extension of plugin source files.
const FileExtension = ".lua"

// LoaderConfig holds the configuration for creating a Loader.
type LoaderConfig struct {
	// Logger is the structured logger for load diagnostics.
	Logger *slog.Logger

	// Registry receives the plugins each file registers.
	Registry *Registry
}

// validate checks that all required LoaderConfig fields are set.
func (c *LoaderConfig) validate() error {
	if c.Registry == nil {
		return errors.New("registry is required")
	}
	return nil
}

// Loader evaluates plugin files and populates a Registry with what they register.
// Each file runs in its own Lua state; call Close once the plugins are no longer needed.
type Loader struct {
	logger   *slog.Logger
	mu       sync.Mutex
	registry *Registry
	states   []*luaState
}

// luaState serialises calls into a single Lua interpreter.
type luaState struct {
	file string
	l    *lua.LState
	mu   sync.Mutex
}

// pendingPlugin is a registration captured while a file executes.
type pendingPlugin struct {
	adapter string
	plugin  Plugin
}

// NewLoader creates a plugin loader.
func NewLoader(cfg LoaderConfig) (*Loader, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Loader{
		logger:   logger.With("component", "plugin"),
		registry: cfg.Registry,
	}, nil
}

// Load evaluates every enabled plugin file in dir, in file name order, and returns how many
// files loaded without error. Files whose name starts with an underscore are disabled.
// A missing directory is not an error.
func (l *Loader) Load(adapter string, dir string) int {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		l.logger.Debug("plugin directory not found", "adapter", adapter, "dir", dir)
		return 0
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		l.logger.Error("reading plugin directory", "dir", dir, "error", err)
		return 0
	}

	loaded := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != FileExtension {
			continue
		}
		if strings.HasPrefix(name, "_") {
			l.logger.Debug("skipping disabled plugin", "file", name)
			continue
		}

		n, err := l.loadFile(filepath.Join(dir, name))
		if err != nil {
			l.logger.Error("Error loading plugin", "adapter", adapter, "file", name, "error", err)
			continue
		}

		loaded++
		l.logger.Info("loaded plugin file", "adapter", adapter, "file", name, "registered", n)
	}

	return loaded
}

// Close releases every Lua state created by the loader.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, s := range l.states {
		s.mu.Lock()
		s.l.Close()
		s.mu.Unlock()
	}
	l.states = nil
}

// loadFile executes one plugin file and commits its registrations only if it ran cleanly.
// Registrations are checked as they are made, so the commit below does not fail part way.
func (l *Loader) loadFile(path string) (n int, err error) {
	state := &luaState{file: filepath.Base(path), l: lua.NewState()}

	var pending []pendingPlugin
	state.l.SetGlobal("register_plugin", state.l.NewFunction(func(L *lua.LState) int {
		adapter := L.CheckString(1)
		pluginType := Type(L.CheckString(2))
		fn := L.CheckFunction(3)
		name := L.OptString(4, fmt.Sprintf("%s#%d", state.file, len(pending)+1))

		p, err := state.plugin(name, pluginType, fn)
		if err == nil {
			err = checkRegistration(adapter, p)
		}
		if err != nil {
			L.RaiseError("%s", err.Error())
			return 0
		}
		pending = append(pending, pendingPlugin{adapter: adapter, plugin: p})

		L.Push(fn)
		return 1
	}))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			state.l.Close()
		}
	}()

	if err := state.l.DoFile(path); err != nil {
		return 0, err
	}

	for _, pp := range pending {
		if err := l.registry.Add(pp.adapter, pp.plugin); err != nil {
			return 0, fmt.Errorf("registering %s: %w", pp.plugin.Name, err)
		}
	}

	l.mu.Lock()
	l.states = append(l.states, state)
	l.mu.Unlock()

	return len(pending), nil
}

// plugin wraps a Lua function as a typed plugin.
func (s *luaState) plugin(name string, pluginType Type, fn *lua.LFunction) (Plugin, error) {
	p := Plugin{Name: name, Type: pluginType}
	switch pluginType {
	case TypeRowTransformer:
		p.RowTransformer = s.rowTransformer(fn)
	case TypeFieldProcessor:
		p.FieldProcessor = s.fieldProcessor(fn)
	case TypePersonLookup:
		p.PersonLookup = s.personLookup(fn)
	default:
		return Plugin{}, fmt.Errorf("unknown plugin type %q", pluginType)
	}
	return p, nil
}

func (s *luaState) rowTransformer(fn *lua.LFunction) RowTransformer {
	return func(row map[string]string, signals *Signals) (map[string]string, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		L := s.l
		tbl := rowTable(L, row)
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, tbl, signalsTable(L, signals)); err != nil {
			return nil, err
		}
		ret := L.Get(-1)
		L.Pop(1)

		switch v := ret.(type) {
		case *lua.LTable:
			return tableRow(v), nil
		default:
			if ret == lua.LNil {
				// Mutated in place.
				return tableRow(tbl), nil
			}
			return nil, fmt.Errorf("row transformer returned %s, want table", ret.Type())
		}
	}
}

func (s *luaState) fieldProcessor(fn *lua.LFunction) FieldProcessor {
	return func(field string, value string, row map[string]string) (string, error) {
		s.mu.Lock()
		defer s.mu.Unlock()

		L := s.l
		err := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true},
			lua.LString(field), lua.LString(value), rowTable(L, row))
		if err != nil {
			return "", err
		}
		ret := L.Get(-1)
		L.Pop(1)

		if ret == lua.LNil {
			return value, nil
		}
		return lua.LVAsString(ret), nil
	}
}

func (s *luaState) personLookup(fn *lua.LFunction) PersonLookup {
	return func(ctx context.Context, query *PersonQuery, people PeopleDirectory, fallback DefaultLookup) (string, bool, string) {
		s.mu.Lock()
		defer s.mu.Unlock()

		L := s.l
		q := queryTable(L, query)

		directory := L.NewTable()
		L.SetField(directory, "by_email", L.NewFunction(func(L *lua.LState) int {
			id, err := people.PersonIDByEmail(ctx, L.CheckString(1))
			if err != nil {
				L.Push(lua.LNil)
				L.Push(lua.LString(err.Error()))
				return 2
			}
			L.Push(lua.LString(id))
			L.Push(lua.LString("Success"))
			return 2
		}))
		L.SetField(directory, "by_external_id", L.NewFunction(func(L *lua.LState) int {
			id, email, err := people.PersonIDByExternalID(ctx, L.CheckString(1))
			if err != nil {
				L.Push(lua.LNil)
				L.Push(lua.LNil)
				L.Push(lua.LString(err.Error()))
				return 3
			}
			L.Push(lua.LString(id))
			L.Push(lua.LString(email))
			L.Push(lua.LString("Success"))
			return 3
		}))

		defaultLookup := L.NewFunction(func(L *lua.LState) int {
			query.Email = lua.LVAsString(L.GetField(q, "email"))
			id, found, msg := fallback(ctx, query)
			L.Push(lua.LString(id))
			L.Push(lua.LBool(found))
			L.Push(lua.LString(msg))
			return 3
		})

		if err := L.CallByParam(lua.P{Fn: fn, NRet: 3, Protect: true}, q, directory, defaultLookup); err != nil {
			return "", false, fmt.Sprintf("person lookup plugin failed: %s", err)
		}
		id, found, msg := L.Get(-3), L.Get(-2), L.Get(-1)
		L.Pop(3)

		query.Email = lua.LVAsString(L.GetField(q, "email"))
		return lua.LVAsString(id), lua.LVAsBool(found), lua.LVAsString(msg)
	}
}

func rowTable(L *lua.LState, row map[string]string) *lua.LTable {
	tbl := L.CreateTable(0, len(row))
	for k, v := range row {
		tbl.RawSetString(k, lua.LString(v))
	}
	return tbl
}

func tableRow(tbl *lua.LTable) map[string]string {
	row := make(map[string]string)
	tbl.ForEach(func(k lua.LValue, v lua.LValue) {
		key, ok := k.(lua.LString)
		if !ok || v == lua.LNil {
			return
		}
		row[string(key)] = v.String()
	})
	return row
}

func signalsTable(L *lua.LState, signals *Signals) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "skip", L.NewFunction(func(L *lua.LState) int {
		signals.Skip(L.OptString(1, ""))
		return 0
	}))
	L.SetField(tbl, "set_check_number", L.NewFunction(func(L *lua.LState) int {
		signals.SetCheckNumber(L.CheckString(1))
		return 0
	}))
	L.SetField(tbl, "set_payment_type", L.NewFunction(func(L *lua.LState) int {
		signals.SetPaymentType(L.CheckString(1))
		return 0
	}))
	L.SetField(tbl, "set_tracking_code", L.NewFunction(func(L *lua.LState) int {
		signals.SetTrackingCode(L.CheckString(1))
		return 0
	}))
	L.SetField(tbl, "set_membership", L.NewFunction(func(L *lua.LState) int {
		signals.SetMembership(L.CheckString(1), L.OptInt(2, 0))
		return 0
	}))
	return tbl
}

func queryTable(L *lua.LState, query *PersonQuery) *lua.LTable {
	tbl := L.NewTable()
	L.SetField(tbl, "check_number", lua.LString(query.CheckNumber))
	L.SetField(tbl, "email", lua.LString(query.Email))
	L.SetField(tbl, "first_name", lua.LString(query.FirstName))
	L.SetField(tbl, "last_name", lua.LString(query.LastName))
	L.SetField(tbl, "fields", rowTable(L, query.Fields))
	return tbl
}
