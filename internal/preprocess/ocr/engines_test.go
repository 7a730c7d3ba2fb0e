package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/adintel/internal/modelcache"
)

const sampleTSV = "level\tpage_num\tblock_num\tpar_num\tline_num\tword_num\tleft\ttop\twidth\theight\tconf\ttext\n" +
	"1\t1\t0\t0\t0\t0\t0\t0\t100\t40\t-1\t\n" +
	"5\t1\t1\t1\t1\t1\t2\t2\t30\t10\t90\tSummer\n" +
	"5\t1\t1\t1\t1\t2\t34\t2\t20\t10\t80\tSale\n" +
	"5\t1\t1\t1\t2\t1\t2\t20\t20\t10\t70\t50%\n" +
	"5\t1\t1\t1\t2\t2\t24\t20\t20\t10\t-1\t \n"

// TestTesseractRecognize parses the TSV output.
func TestTesseractRecognize(t *testing.T) {
	t.Parallel()

	var gotName string
	var gotArgs []string
	var gotStdin []byte
	run := func(_ context.Context, name string, args []string, stdin []byte) ([]byte, error) {
		gotName, gotArgs, gotStdin = name, args, stdin
		return []byte(sampleTSV), nil
	}
	tess := NewTesseract(TesseractConfig{Bin: "/usr/bin/tesseract"}, run)

	res := tess.Recognize(context.Background(), whiteImage())
	require.True(t, res.Success)
	require.Equal(t, "Summer Sale\n50%", res.Text)
	require.InDelta(t, 0.8, res.Confidence, 1e-9)
	require.Equal(t, TesseractName, res.Engine)

	require.Equal(t, "/usr/bin/tesseract", gotName)
	require.Equal(t, []string{"stdin", "stdout", "--oem", "3", "--psm", "6", "-l", "eng", "tsv"}, gotArgs)
	_, err := png.Decode(bytes.NewReader(gotStdin))
	require.NoError(t, err)
}

// TestTesseractFailures reports unsuccessful results and treats a blank image
// as a successful empty read.
func TestTesseractFailures(t *testing.T) {
	t.Parallel()

	missing := NewTesseract(TesseractConfig{}, func(context.Context, string, []string, []byte) ([]byte, error) {
		return nil, ErrEngineUnavailable
	})
	res := missing.Recognize(context.Background(), whiteImage())
	require.False(t, res.Success)
	require.Contains(t, res.Error, ErrEngineUnavailable.Error())

	empty := NewTesseract(TesseractConfig{}, func(context.Context, string, []string, []byte) ([]byte, error) {
		return []byte(strings.SplitN(sampleTSV, "\n", 2)[0] + "\n"), nil
	})
	res = empty.Recognize(context.Background(), whiteImage())
	require.True(t, res.Success)
	require.Empty(t, res.Text)
	require.Zero(t, res.Confidence)
	require.Empty(t, res.Error)

	garbage := NewTesseract(TesseractConfig{}, func(context.Context, string, []string, []byte) ([]byte, error) {
		return []byte("Error opening data file"), nil
	})
	require.False(t, garbage.Recognize(context.Background(), whiteImage()).Success)
}

type inferenceServer struct {
	creates  atomic.Int32
	reads    atomic.Int32
	releases atomic.Int32
	results  string
}

func (s *inferenceServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/readers", func(w http.ResponseWriter, r *http.Request) {
		s.creates.Add(1)
		var req struct {
			Languages []string `json:"languages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Languages) == 0 {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, `{"reader_id":"r1"}`)
	})
	mux.HandleFunc("POST /v1/readers/r1/readtext", func(w http.ResponseWriter, r *http.Request) {
		s.reads.Add(1)
		if r.Header.Get("Content-Type") != "image/png" {
			http.Error(w, "want png", http.StatusUnsupportedMediaType)
			return
		}
		_, _ = io.WriteString(w, s.results)
	})
	mux.HandleFunc("DELETE /v1/readers/r1", func(w http.ResponseWriter, _ *http.Request) {
		s.releases.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

// TestDeepRecognizeLoadsReaderOnce reuses the cached reader across calls.
func TestDeepRecognizeLoadsReaderOnce(t *testing.T) {
	t.Parallel()

	srv := &inferenceServer{results: `{"results":[{"text":"BIG","confidence":0.9},{"text":"SALE","confidence":0.7},{"text":" ","confidence":0.1}]}`}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()

	models := modelcache.New[*Reader](zap.NewNop())
	deep := NewDeep(DeepConfig{Endpoint: ts.URL + "/"}, ts.Client(), models, zap.NewNop())

	for range 3 {
		res := deep.Recognize(context.Background(), whiteImage())
		require.True(t, res.Success, res.Error)
		require.Equal(t, "BIG SALE", res.Text)
		require.InDelta(t, 0.8, res.Confidence, 1e-9)
		require.Equal(t, DeepName, res.Engine)
	}
	require.Equal(t, int32(1), srv.creates.Load())
	require.Equal(t, int32(3), srv.reads.Load())

	require.NoError(t, models.Close())
	require.Equal(t, int32(1), srv.releases.Load())
}

// TestDeepRecognizeFailures covers a missing endpoint; empty results are a
// successful read.
func TestDeepRecognizeFailures(t *testing.T) {
	t.Parallel()

	unconfigured := NewDeep(DeepConfig{}, nil, nil, nil)
	res := unconfigured.Recognize(context.Background(), whiteImage())
	require.False(t, res.Success)
	require.Contains(t, res.Error, ErrEngineUnavailable.Error())

	srv := &inferenceServer{results: `{"results":[]}`}
	ts := httptest.NewServer(srv.handler())
	defer ts.Close()
	deep := NewDeep(DeepConfig{Endpoint: ts.URL}, ts.Client(), nil, nil)
	res = deep.Recognize(context.Background(), whiteImage())
	require.True(t, res.Success)
	require.Empty(t, res.Text)
	require.Zero(t, res.Confidence)
}

// TestHTTPSourceFetch decodes served images and rejects bad responses.
func TestHTTPSourceFetch(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, whiteImage()))
	mux := http.NewServeMux()
	mux.HandleFunc("/ok.png", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(buf.Bytes())
	})
	mux.HandleFunc("/text", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "not an image")
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	source := NewHTTPSource(ts.Client(), 0)
	img, err := source.Fetch(context.Background(), ts.URL+"/ok.png")
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())

	_, err = source.Fetch(context.Background(), ts.URL+"/missing.png")
	require.Error(t, err)

	_, err = source.Fetch(context.Background(), ts.URL+"/text")
	require.Error(t, err)

	small := NewHTTPSource(ts.Client(), 8)
	_, err = small.Fetch(context.Background(), ts.URL+"/ok.png")
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrImageFetch))
}
