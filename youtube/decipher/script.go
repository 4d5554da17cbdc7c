package decipher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dop251/goja"
	"github.com/robertkrimen/otto"

	"github.com/ytget/ytstream/internal/logger"
)

// Names reported for the in-process script back ends.
const (
	GojaName = "goja_script"
	OttoName = "otto_script"
)

// entryPoint is the function a decipher script must define:
//
//	function decipher(playerResponse, playerJsUrl, videoId) { return {url: info, ...}; }
const entryPoint = "decipher"

const evalExpr = "JSON.stringify(" + entryPoint + "(JSON.parse(__playerResponse), __playerJsUrl, __videoId))"

var errScriptTimeout = errors.New("script timed out")

// ScriptConfig configures the in-process engines.
type ScriptConfig struct {
	Script  string
	Timeout time.Duration
}

func (c ScriptConfig) withDefaults() ScriptConfig {
	if c.Script == "" {
		c.Script = defaultScript
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}

func (c ScriptConfig) load() (string, error) {
	src, err := os.ReadFile(c.Script)
	if err != nil {
		return "", unavailable("read script", err)
	}
	return string(src), nil
}

// Goja runs the decipher script inside a goja runtime.
type Goja struct {
	cfg ScriptConfig
}

// NewGoja creates the goja back end.
func NewGoja(cfg ScriptConfig) *Goja {
	return &Goja{cfg: cfg.withDefaults()}
}

func (g *Goja) Name() string { return GojaName }

// Decipher evaluates the script in a fresh runtime, interrupted on timeout or
// context cancellation.
func (g *Goja) Decipher(ctx context.Context, req Request) (Map, error) {
	if req.PlayerResponse == nil {
		return nil, unavailable("no player response", nil)
	}
	src, err := g.cfg.load()
	if err != nil {
		return nil, err
	}

	vm := goja.New()
	_ = vm.Set("console", map[string]any{"log": func(...any) {}})
	_ = vm.Set("__playerResponse", string(req.PlayerResponse.Raw))
	_ = vm.Set("__playerJsUrl", req.PlayerJSURL)
	_ = vm.Set("__videoId", req.VideoID)

	stop := watch(ctx, g.cfg.Timeout, func(reason error) { vm.Interrupt(reason) })
	defer stop()

	if _, err := vm.RunScript(g.cfg.Script, src); err != nil {
		return nil, unavailable("run script", scriptError(err))
	}
	if _, ok := goja.AssertFunction(vm.Get(entryPoint)); !ok {
		return nil, unavailable(entryPoint+" function not found in script", nil)
	}
	res, err := vm.RunString(evalExpr)
	if err != nil {
		return nil, unavailable(entryPoint+" error", scriptError(err))
	}
	if goja.IsUndefined(res) || goja.IsNull(res) {
		return nil, unavailable(entryPoint+" returned undefined/null", nil)
	}
	return parseScriptResult(GojaName, req.VideoID, res.String())
}

// Otto runs the decipher script inside an otto runtime.
type Otto struct {
	cfg ScriptConfig
}

// NewOtto creates the otto back end.
func NewOtto(cfg ScriptConfig) *Otto {
	return &Otto{cfg: cfg.withDefaults()}
}

func (o *Otto) Name() string { return OttoName }

// Decipher evaluates the script in a fresh runtime. otto aborts through a
// panic raised from its interrupt channel, which is recovered here.
func (o *Otto) Decipher(ctx context.Context, req Request) (m Map, err error) {
	if req.PlayerResponse == nil {
		return nil, unavailable("no player response", nil)
	}
	src, err := o.cfg.load()
	if err != nil {
		return nil, err
	}

	vm := otto.New()
	vm.Interrupt = make(chan func(), 1)
	if err := vm.Set("__playerResponse", string(req.PlayerResponse.Raw)); err != nil {
		return nil, unavailable("set input", err)
	}
	_ = vm.Set("__playerJsUrl", req.PlayerJSURL)
	_ = vm.Set("__videoId", req.VideoID)

	defer func() {
		if r := recover(); r != nil {
			reason, ok := r.(error)
			if !ok {
				panic(r)
			}
			m, err = nil, unavailable("run script", reason)
		}
	}()
	stop := watch(ctx, o.cfg.Timeout, func(reason error) {
		select {
		case vm.Interrupt <- func() { panic(reason) }:
		default:
		}
	})
	defer stop()

	if _, err := vm.Run(src); err != nil {
		return nil, unavailable("run script", err)
	}
	fn, err := vm.Get(entryPoint)
	if err != nil || !fn.IsFunction() {
		return nil, unavailable(entryPoint+" function not found in script", err)
	}
	value, err := vm.Run(evalExpr)
	if err != nil {
		return nil, unavailable(entryPoint+" error", err)
	}
	if value.IsUndefined() || value.IsNull() {
		return nil, unavailable(entryPoint+" returned undefined/null", nil)
	}
	out, err := value.ToString()
	if err != nil {
		return nil, unavailable(entryPoint+" did not return a string", err)
	}
	return parseScriptResult(OttoName, req.VideoID, out)
}

// watch calls interrupt once when ctx ends or timeout elapses, whichever is
// first. The returned func stops watching.
func watch(ctx context.Context, timeout time.Duration, interrupt func(reason error)) func() {
	done := make(chan struct{})
	go func() {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-ctx.Done():
			interrupt(ctx.Err())
		case <-timer.C:
			interrupt(fmt.Errorf("%w after %s", errScriptTimeout, timeout))
		}
	}()
	return func() { close(done) }
}

func scriptError(err error) error {
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if reason, ok := interrupted.Value().(error); ok {
			return reason
		}
	}
	return err
}

func parseScriptResult(engine, videoID, out string) (Map, error) {
	m, err := ParseMap([]byte(out))
	if err != nil {
		return nil, unavailable("parse script result", err)
	}
	logger.WithComponent(logger.ComponentBridge).Info("decipher script finished", map[string]interface{}{
		"engine":   engine,
		"video_id": videoID,
		"entries":  len(m),
	})
	return m, nil
}
