package ytstream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/ytstream/client"
	"github.com/ytget/ytstream/cookies"
	"github.com/ytget/ytstream/errs"
	"github.com/ytget/ytstream/types"
	"github.com/ytget/ytstream/youtube/decipher"
	"github.com/ytget/ytstream/youtube/formats"
	"github.com/ytget/ytstream/youtube/page"
)

const watchPage = `<!DOCTYPE html><html><head>
<script>var ytInitialPlayerResponse = {"videoDetails":{"videoId":"abc","title":"Title };","lengthSeconds":"212","author":"Someone","viewCount":"1000"},
"streamingData":{"formats":[{"itag":18,"url":"https://r.example/18","mimeType":"video/mp4","height":360}],
"adaptiveFormats":[{"itag":140,"signatureCipher":"s=abc&url=https%3A%2F%2Fr.example%2F140","mimeType":"audio/mp4"}]}};</script>
<script>ytcfg.set({"PLAYER_JS_URL":"\/s\/player\/deadbeef\/player_ias.vflset\/en_US\/base.js"});</script>
</head><body></body></html>`

const noDetailsPage = `<script>var ytInitialPlayerResponse = {"playabilityStatus":{"status":"ERROR"}};</script>`

type stubDecipherer struct {
	m     decipher.Map
	err   error
	calls atomic.Int32
	last  decipher.Request
}

func (s *stubDecipherer) Name() string { return "stub" }

func (s *stubDecipherer) Decipher(_ context.Context, req decipher.Request) (decipher.Map, error) {
	s.calls.Add(1)
	s.last = req
	return s.m, s.err
}

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func pageServer(t *testing.T, body string) (*httptest.Server, *atomic.Int32) {
	var hits atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, body)
	})
	return srv, &hits
}

func newExtractor(baseURL string, d decipher.Decipherer) *Extractor {
	jar := cookies.New([]cookies.Cookie{{Name: "SID", Value: "1"}})
	return New().
		WithFetcher(page.NewFetcher(client.New(), jar, baseURL)).
		WithDecipherer(d)
}

func TestResolveDeciphered(t *testing.T) {
	srv, _ := pageServer(t, watchPage)
	stub := &stubDecipherer{m: decipher.Map{
		"https://d.example/140": {"itag": 140},
		"https://d.example/18":  {"itag": 18},
	}}

	res, err := newExtractor(srv.URL, stub).Resolve(context.Background(), " abc ")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "abc", res.VideoID)
	assert.Equal(t, "Title };", res.Title)
	assert.Equal(t, "212", res.Duration)
	assert.Equal(t, "Someone", res.Author)
	assert.Equal(t, "1000", res.ViewCount)
	assert.Equal(t, "https://www.youtube.com/s/player/deadbeef/player_ias.vflset/en_US/base.js", res.PlayerJSURL)
	assert.Equal(t, "stub", res.DecipherMethod)
	assert.Nil(t, res.FilesSaved)
	assert.Equal(t, 2, res.TotalStreams)
	assert.Equal(t, 2, res.DecipheredStreams)
	assert.Equal(t, 0, res.NeedsDecipherCount)
	assert.Equal(t, "https://d.example/140", res.Streams[0].URL())

	assert.Equal(t, "abc", stub.last.VideoID)
	assert.Equal(t, res.PlayerJSURL, stub.last.PlayerJSURL)
	require.NotNil(t, stub.last.PlayerResponse)
}

func TestResolveFallback(t *testing.T) {
	srv, _ := pageServer(t, watchPage)
	stub := &stubDecipherer{err: fmt.Errorf("%w: script not found", decipher.ErrUnavailable)}

	res, err := newExtractor(srv.URL, stub).Resolve(context.Background(), "abc")
	require.NoError(t, err)
	require.Len(t, res.Streams, 2)
	assert.Equal(t, "https://r.example/18", res.Streams[0].URL())
	assert.True(t, res.Streams[1].NeedsDecipher())
	assert.Equal(t, 2, res.TotalStreams)
	assert.Equal(t, 0, res.DecipheredStreams)
	assert.Equal(t, 1, res.NeedsDecipherCount)
}

func TestResolveExternalBridgeMissingScript(t *testing.T) {
	srv, _ := pageServer(t, watchPage)
	work := filepath.Join(t.TempDir(), "old")
	bridge := decipher.NewExternal(decipher.ExternalConfig{WorkDir: work, Script: filepath.Join(work, "yt.js")})

	res, err := newExtractor(srv.URL, bridge).Resolve(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, decipher.ExternalName, res.DecipherMethod)
	assert.Equal(t, 0, res.DecipheredStreams)
	require.NotNil(t, res.FilesSaved)
	assert.Equal(t, filepath.Join(work, "res.json"), res.FilesSaved.ResJSON)
	assert.Equal(t, filepath.Join(work, "de.json"), res.FilesSaved.ExpectedOutput)

	for _, p := range []string{res.FilesSaved.ResJSON, res.FilesSaved.ExpectedOutput} {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), p)
	}
}

func TestResolveVideoNotFound(t *testing.T) {
	srv, _ := pageServer(t, noDetailsPage)
	stub := &stubDecipherer{}

	_, err := newExtractor(srv.URL, stub).Resolve(context.Background(), "abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrVideoNotFound)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
	assert.Equal(t, http.StatusNotFound, errs.HTTPStatus(err))
	assert.Zero(t, stub.calls.Load())
}

func TestResolveErrors(t *testing.T) {
	t.Run("empty id", func(t *testing.T) {
		_, err := New().Resolve(context.Background(), "  ")
		assert.ErrorIs(t, err, errs.ErrEmptyVideoID)
		assert.Equal(t, errs.KindValidation, errs.KindOf(err))
	})

	t.Run("upstream status", func(t *testing.T) {
		srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "gone", http.StatusGone)
		})
		_, err := newExtractor(srv.URL, &stubDecipherer{}).Resolve(context.Background(), "abc")
		assert.ErrorIs(t, err, errs.ErrUpstreamStatus)
		assert.Equal(t, errs.KindUpstream, errs.KindOf(err))
	})

	t.Run("no player response", func(t *testing.T) {
		srv, _ := pageServer(t, "<html>nothing here</html>")
		_, err := newExtractor(srv.URL, &stubDecipherer{}).Resolve(context.Background(), "abc")
		assert.ErrorIs(t, err, errs.ErrPlayerResponseNotFound)
		assert.Equal(t, errs.KindExtraction, errs.KindOf(err))
	})

	t.Run("malformed player response", func(t *testing.T) {
		srv, _ := pageServer(t, `<script>var ytInitialPlayerResponse = {"a":;</script>`)
		_, err := newExtractor(srv.URL, &stubDecipherer{}).Resolve(context.Background(), "abc")
		require.Error(t, err)
		assert.Equal(t, errs.KindExtraction, errs.KindOf(err))
	})
}

func TestResolveSharesInFlightCalls(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = fmt.Fprint(w, watchPage)
	})
	e := newExtractor(srv.URL, &stubDecipherer{err: decipher.ErrUnavailable})

	var wg sync.WaitGroup
	results := make(chan error, 2)
	resolve := func() {
		defer wg.Done()
		_, err := e.Resolve(context.Background(), "abc")
		results <- err
	}
	wg.Add(1)
	go resolve()
	require.Eventually(t, func() bool { return hits.Load() == 1 }, 5*time.Second, 10*time.Millisecond)
	wg.Add(1)
	go resolve()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for err := range results {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestResolveSharedRunSurvivesCanceledCaller(t *testing.T) {
	release := make(chan struct{})
	var hits atomic.Int32
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = fmt.Fprint(w, watchPage)
	})
	e := newExtractor(srv.URL, &stubDecipherer{err: decipher.ErrUnavailable})

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := e.Resolve(ctx, "abc")
		first <- err
	}()
	require.Eventually(t, func() bool { return hits.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	second := make(chan error, 1)
	var res *types.Result
	go func() {
		var err error
		res, err = e.Resolve(context.Background(), "abc")
		second <- err
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-first:
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("canceled caller did not return")
	}

	close(release)
	select {
	case err := <-second:
		require.NoError(t, err)
		assert.Equal(t, "abc", res.VideoID)
	case <-time.After(5 * time.Second):
		t.Fatal("second caller did not return")
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestSelect(t *testing.T) {
	srv, _ := pageServer(t, watchPage)
	res, err := newExtractor(srv.URL, &stubDecipherer{err: decipher.ErrUnavailable}).Resolve(context.Background(), "abc")
	require.NoError(t, err)

	sel, err := formats.ParseSelector("itag=140", "")
	require.NoError(t, err)
	picked := Select(res, sel)
	assert.Equal(t, 1, picked.TotalStreams)
	assert.Equal(t, 1, picked.NeedsDecipherCount)
	assert.Equal(t, 2, res.TotalStreams)

	same := Select(res, formats.Selector{})
	assert.Equal(t, res.Streams, same.Streams)
}

func TestExtractVideoID(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"abc123", "abc123"},
		{"https://www.youtube.com/watch?v=abc123", "abc123"},
		{"https://m.youtube.com/watch?v=abc123&t=10s", "abc123"},
		{"https://youtu.be/xyz789", "xyz789"},
		{"https://www.youtube.com/shorts/brZCOVlyPPo", "brZCOVlyPPo"},
		{"https://youtube.com/shorts/abc123", "abc123"},
		{"https://www.youtube.com/shorts/xyz789?si=3E6i4QoYvnJjqS_b", "xyz789"},
		{"https://youtube.com/watch?app=desktop&v=def456&feature=youtu.be", "def456"},
		{"https://youtu.be/ghi789?si=token", "ghi789"},
		{"https://www.youtube.com/embed/emb1", "emb1"},
	}
	for _, tc := range cases {
		got, err := ExtractVideoID(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestExtractVideoIDInvalid(t *testing.T) {
	for _, in := range []string{
		"",
		"https://www.youtube.com/watch?foo=bar",
		"https://example.com/",
		"https://www.youtube.com/playlist?list=PLxxxx",
		"https://www.youtube.com/channel/UCxxxx",
	} {
		got, err := ExtractVideoID(in)
		assert.Empty(t, got, in)
		require.Error(t, err, in)
		assert.Equal(t, errs.KindValidation, errs.KindOf(err), in)
	}
}
