// Package decipher defines the pluggable capability that turns a player
// response into a map of playable stream URLs, and its back ends.
//
// Every failure of a back end is reported as an error wrapping ErrUnavailable.
// Callers treat that as "no decipher available" and fall back to the raw
// formats; it is never surfaced to API clients.
package decipher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ytget/ytstream/types"
)

// ErrUnavailable signals that no deciphered map could be produced.
var ErrUnavailable = errors.New("decipher unavailable")

// Request is the input of a decipher call.
type Request struct {
	VideoID        string
	PlayerResponse *types.PlayerResponse
	PlayerJSURL    string
}

// Map associates a playable URL with its format info.
type Map map[string]map[string]any

// Decipherer produces a Map for a player response.
type Decipherer interface {
	// Name identifies the back end in responses, e.g. "external_node_script".
	Name() string
	Decipher(ctx context.Context, req Request) (Map, error)
}

// HandOff is implemented by decipherers that exchange data through files.
type HandOff interface {
	// Files reports the input and output paths used for videoID.
	Files(videoID string) (input, output string)
}

// unavailable wraps cause so that errors.Is(err, ErrUnavailable) holds.
func unavailable(reason string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrUnavailable, reason)
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, reason, cause)
}

// ParseMap decodes a url -> info object. Entries whose value is not an
// object are dropped; anything but a top-level object is an error.
func ParseMap(data []byte) (Map, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var root map[string]any
	if err := dec.Decode(&root); err != nil {
		return nil, err
	}
	if root == nil {
		return nil, errors.New("deciphered output is not an object")
	}
	out := make(Map, len(root))
	for u, v := range root {
		if info, ok := v.(map[string]any); ok && u != "" {
			out[u] = info
		}
	}
	return out, nil
}
