package decipher

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/ytstream/types"
)

func playerResponse(t *testing.T, raw string) *types.PlayerResponse {
	t.Helper()
	pr, err := types.ParsePlayerResponse([]byte(raw))
	require.NoError(t, err)
	return pr
}

func TestParseMap(t *testing.T) {
	m, err := ParseMap([]byte(`{"https://a":{"itag":18},"https://b":"junk","":{"itag":1}}`))
	require.NoError(t, err)
	require.Len(t, m, 1)
	assert.Contains(t, m, "https://a")

	for _, in := range []string{`[]`, `null`, `{`, `"x"`} {
		_, err := ParseMap([]byte(in))
		assert.Error(t, err, in)
	}
}

func TestUnavailableWrapping(t *testing.T) {
	cause := errors.New("boom")
	err := unavailable("run script", cause)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, unavailable("no script", nil), ErrUnavailable)
}

type stubDecipherer struct {
	calls int
	m     Map
	err   error
}

func (s *stubDecipherer) Name() string { return "stub" }

func (s *stubDecipherer) Decipher(context.Context, Request) (Map, error) {
	s.calls++
	return s.m, s.err
}

func TestCached(t *testing.T) {
	stub := &stubDecipherer{m: Map{"https://a": {"itag": 18}}}
	d := NewCached(stub, time.Minute)
	c := d.(*Cached)
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	req := Request{VideoID: "v", PlayerJSURL: "p"}
	for i := 0; i < 3; i++ {
		m, err := d.Decipher(context.Background(), req)
		require.NoError(t, err)
		assert.Len(t, m, 1)
	}
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, "stub", d.Name())

	now = now.Add(2 * time.Minute)
	_, err := d.Decipher(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, stub.calls)
}

func TestCachedSkipsFailures(t *testing.T) {
	stub := &stubDecipherer{err: unavailable("nope", nil)}
	d := NewCached(stub, time.Minute)
	for i := 0; i < 2; i++ {
		_, err := d.Decipher(context.Background(), Request{VideoID: "v"})
		assert.ErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, 2, stub.calls)
}

func TestNewCachedDisabled(t *testing.T) {
	stub := &stubDecipherer{}
	assert.Same(t, stub, NewCached(stub, 0))
}

func TestNewFactory(t *testing.T) {
	tests := []struct {
		method string
		name   string
	}{
		{"", ExternalName},
		{MethodExternal, ExternalName},
		{MethodGoja, GojaName},
		{MethodOtto, OttoName},
		{MethodYtdlp, YtdlpName},
		{MethodKkdai, KkdaiName},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			d, err := New(Options{Method: tt.method})
			require.NoError(t, err)
			assert.Equal(t, tt.name, d.Name())
		})
	}

	_, err := New(Options{Method: "python"})
	assert.Error(t, err)

	d, err := New(Options{Method: MethodExternal, CacheTTL: time.Minute})
	require.NoError(t, err)
	_, ok := d.(*Cached)
	assert.True(t, ok)
	in, out := d.(HandOff).Files("abc")
	assert.Equal(t, filepath.Join("old", "res.json"), in)
	assert.Equal(t, filepath.Join("old", "de.json"), out)
}

func TestYtdlpInstallRetriesAfterFailure(t *testing.T) {
	y := NewYtdlp(YtdlpConfig{Install: true})
	var calls int
	y.install = func(ctx context.Context) error {
		calls++
		if err := ctx.Err(); err != nil {
			return err
		}
		if calls == 1 {
			return errors.New("download interrupted")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, y.ensureInstalled(ctx))
	// A canceled caller does not cancel the download itself.
	require.NoError(t, y.ensureInstalled(ctx))
	require.NoError(t, y.ensureInstalled(context.Background()))
	assert.Equal(t, 2, calls)
}

func TestMapFromYtdlpInfo(t *testing.T) {
	m, err := mapFromYtdlpInfo([]byte(`{"formats":[
		{"format_id":"18","url":"https://a","ext":"mp4","vcodec":"avc1.42001E","acodec":"mp4a.40.2","width":640,"height":360,"fps":30,"tbr":500.5,"filesize":1234,"format_note":"360p"},
		{"format_id":"251-drc","url":"https://b","ext":"webm","vcodec":"none","acodec":"opus","audio_channels":2},
		{"format_id":"sb0","url":"https://c","protocol":"mhtml"},
		{"format_id":"x"}
	]}`))
	require.NoError(t, err)
	require.Len(t, m, 2)

	a := m["https://a"]
	assert.Equal(t, 18, a["itag"])
	assert.Equal(t, `video/mp4; codecs="avc1.42001E, mp4a.40.2"`, a["mimeType"])
	assert.Equal(t, "360p", a["qualityLabel"])
	assert.Equal(t, 500500, a["bitrate"])
	assert.Equal(t, 640, a["width"])
	assert.Equal(t, 360, a["height"])
	assert.Equal(t, 30, a["fps"])
	assert.Equal(t, "1234", a["contentLength"])

	b := m["https://b"]
	assert.Equal(t, 251, b["itag"])
	assert.Equal(t, `audio/webm; codecs="opus"`, b["mimeType"])
	assert.Equal(t, 2, b["audioChannels"])
	assert.NotContains(t, b, "width")
}

func TestPlayerResponseRequired(t *testing.T) {
	for _, d := range []Decipherer{NewExternal(ExternalConfig{}), NewGoja(ScriptConfig{}), NewOtto(ScriptConfig{})} {
		_, err := d.Decipher(context.Background(), Request{VideoID: "v"})
		assert.ErrorIs(t, err, ErrUnavailable, d.Name())
	}
}
