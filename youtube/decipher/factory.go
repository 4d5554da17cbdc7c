package decipher

import (
	"fmt"
	"net/http"
	"time"
)

// Method names accepted by New.
const (
	MethodExternal = "external"
	MethodGoja     = "goja"
	MethodOtto     = "otto"
	MethodYtdlp    = "ytdlp"
	MethodKkdai    = "kkdai"
)

// Options selects and configures a back end.
type Options struct {
	Method   string
	External ExternalConfig
	Ytdlp    YtdlpConfig
	// HTTPClient is used by back ends that talk to YouTube themselves.
	HTTPClient *http.Client
	// CacheTTL enables result memoization when positive.
	CacheTTL time.Duration
}

// New builds the Decipherer named by o.Method. The goja and otto engines
// take their script path and timeout from o.External.
func New(o Options) (Decipherer, error) {
	var d Decipherer
	script := ScriptConfig{Script: o.External.Script, Timeout: o.External.Timeout}
	switch o.Method {
	case MethodExternal, "":
		d = NewExternal(o.External)
	case MethodGoja:
		d = NewGoja(script)
	case MethodOtto:
		d = NewOtto(script)
	case MethodYtdlp:
		cfg := o.Ytdlp
		if cfg.Timeout <= 0 {
			cfg.Timeout = o.External.Timeout
		}
		d = NewYtdlp(cfg)
	case MethodKkdai:
		d = NewKkdai(o.HTTPClient, o.External.Timeout)
	default:
		return nil, fmt.Errorf("unknown decipher method %q", o.Method)
	}
	return NewCached(d, o.CacheTTL), nil
}
