package largefile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/tinode/tinodesdk/logs"
	"github.com/tinode/tinodesdk/model"
)

const (
	testAPIKey = "AQEAAAABAAD_rAp4DJh05a1HAwFT3A6K"
	testToken  = "eXr0Zx6w9SqsHUXX4Il6BgABAAEA"
)

func TestMain(m *testing.M) {
	logs.Init(io.Discard, "")
	os.Exit(m.Run())
}

func writeCtrl(w http.ResponseWriter, code int, params map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(&model.ServerComMessage{Ctrl: &model.MsgServerCtrl{
		Code:      code,
		Text:      http.StatusText(code),
		Params:    params,
		Timestamp: time.Now().UTC().Round(time.Millisecond),
	}})
}

// fileServer accepts uploads at the upload path and serves them back under /v0/file/s/.
type fileServer struct {
	*httptest.Server
	mu    sync.Mutex
	files map[string][]byte
	mime  map[string]string
}

func newFileServer(t *testing.T) *fileServer {
	fs := &fileServer{files: map[string][]byte{}, mime: map[string]string{}}
	mux := http.NewServeMux()
	mux.HandleFunc(uploadPath, func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("X-Tinode-APIKey") != testAPIKey {
			writeCtrl(w, http.StatusForbidden, nil)
			return
		}
		if req.Header.Get("X-Tinode-Auth") != "Token "+testToken {
			writeCtrl(w, http.StatusUnauthorized, nil)
			return
		}
		if req.Method != http.MethodPost {
			writeCtrl(w, http.StatusMethodNotAllowed, nil)
			return
		}
		file, hdr, err := req.FormFile("file")
		if err != nil {
			writeCtrl(w, http.StatusBadRequest, nil)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		fs.mu.Lock()
		fs.files[hdr.Filename] = data
		fs.mime[hdr.Filename] = hdr.Header.Get("Content-Type")
		fs.mu.Unlock()
		writeCtrl(w, http.StatusOK, map[string]any{"url": "/v0/file/s/" + hdr.Filename})
	})
	mux.HandleFunc("/v0/file/s/", func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("X-Tinode-APIKey") != testAPIKey {
			writeCtrl(w, http.StatusForbidden, nil)
			return
		}
		data, ok := fs.file(strings.TrimPrefix(req.URL.Path, "/v0/file/s/"))
		if !ok {
			writeCtrl(w, http.StatusNotFound, nil)
			return
		}
		w.Write(data)
	})
	fs.Server = httptest.NewServer(mux)
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fileServer) file(name string) ([]byte, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	data, ok := fs.files[name]
	return data, ok
}

func newTestHelper(t *testing.T, fs *fileServer, token string) *Helper {
	t.Helper()
	h, err := New(Config{
		BaseURL:    fs.URL,
		APIKey:     testAPIKey,
		AuthToken:  token,
		UserAgent:  "tn-test/1.0",
		HTTPClient: fs.Client(),
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(h.Close)
	return h
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestUploadDownload(t *testing.T) {
	fs := newFileServer(t)
	h := newTestHelper(t, fs, testToken)

	data := bytes.Repeat([]byte("0123456789abcdef"), 10000)
	var reported []int64
	ctrl, err := h.Upload(testContext(t), bytes.NewReader(data), "report.pdf", "application/pdf",
		int64(len(data)), func(done, total int64) {
			if total != int64(len(data)) {
				t.Errorf("total = %d", total)
			}
			reported = append(reported, done)
		})
	if err != nil {
		t.Fatal(err)
	}
	if ctrl.Code != http.StatusOK {
		t.Errorf("code = %d", ctrl.Code)
	}
	if got, _ := fs.file("report.pdf"); !bytes.Equal(got, data) {
		t.Errorf("uploaded %d bytes, want %d", len(got), len(data))
	}
	fs.mu.Lock()
	mime := fs.mime["report.pdf"]
	fs.mu.Unlock()
	if mime != "application/pdf" {
		t.Errorf("mime = %q", mime)
	}
	if diff := cmp.Diff([]int64{65536, 131072, 160000}, reported); diff != "" {
		t.Errorf("progress (-want +got):\n%s", diff)
	}

	var out bytes.Buffer
	n, err := h.Download(testContext(t), ctrl.StringParam("url", ""), &out, nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(len(data)) || !bytes.Equal(out.Bytes(), data) {
		t.Errorf("downloaded %d bytes", n)
	}
}

func TestUploadRejected(t *testing.T) {
	fs := newFileServer(t)
	h := newTestHelper(t, fs, "")

	_, err := h.Upload(testContext(t), strings.NewReader("hello"), "a.txt", "", 5, nil)
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Fatalf("err = %v, want 401", err)
	}
}

func TestUploadCancel(t *testing.T) {
	fs := newFileServer(t)
	h := newTestHelper(t, fs, testToken)

	data := make([]byte, 4*chunkSize)
	chunks := 0
	_, err := h.Upload(testContext(t), bytes.NewReader(data), "big.bin", "", int64(len(data)),
		func(done, total int64) {
			chunks++
			h.Cancel()
		})
	if !errors.Is(err, ErrCanceled) {
		t.Fatalf("err = %v, want ErrCanceled", err)
	}
	if chunks != 1 {
		t.Errorf("chunks after cancel = %d", chunks)
	}
	if _, ok := fs.file("big.bin"); ok {
		t.Error("canceled upload was stored")
	}

	// The flag does not leak into the next transfer.
	if _, err := h.Upload(testContext(t), bytes.NewReader(data), "big.bin", "", int64(len(data)), nil); err != nil {
		t.Fatal(err)
	}
}

func TestDownloadRefusesForeignHost(t *testing.T) {
	fs := newFileServer(t)
	h := newTestHelper(t, fs, testToken)

	testCases := []struct {
		url  string
		want error
	}{
		{url: "https://evil.example.com/v0/file/s/x", want: ErrForeignHost},
		{url: "//evil.example.com/x", want: ErrForeignHost},
		{url: "/v0/file/s/missing"},
	}
	for _, tc := range testCases {
		_, err := h.Download(testContext(t), tc.url, io.Discard, nil)
		if tc.want != nil {
			if !errors.Is(err, tc.want) {
				t.Errorf("%s: err = %v, want %v", tc.url, err, tc.want)
			}
			continue
		}
		var se *StatusError
		if !errors.As(err, &se) || se.Code != http.StatusNotFound {
			t.Errorf("%s: err = %v, want 404", tc.url, err)
		}
	}
}

func TestAsync(t *testing.T) {
	fs := newFileServer(t)
	h := newTestHelper(t, fs, testToken)

	up := h.UploadAsync(testContext(t), strings.NewReader("hello"), "hello.txt", "text/plain", 5, nil)
	ctrl, err := up.Wait(testContext(t))
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	down := h.DownloadAsync(testContext(t), fs.URL+ctrl.StringParam("url", ""), &out, nil)
	n, err := down.Wait(testContext(t))
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 || out.String() != "hello" {
		t.Errorf("downloaded %d %q", n, out.String())
	}

	h.Close()
	if _, err := h.DownloadAsync(testContext(t), "/x", io.Discard, nil).Wait(testContext(t)); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestBusyHelperHonorsContext(t *testing.T) {
	fs := newFileServer(t)
	h := newTestHelper(t, fs, testToken)

	h.busy.Lock()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := h.Download(ctx, "/v0/file/s/x", io.Discard, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	h.busy.Unlock()
}

func TestNewInvalidURL(t *testing.T) {
	for _, base := range []string{"", "ftp://host", "api.tinode.co", "http://"} {
		if _, err := New(Config{BaseURL: base}); err == nil {
			t.Errorf("New(%q) must fail", base)
		}
	}
}
