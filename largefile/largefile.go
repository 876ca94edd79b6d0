/******************************************************************************
 *
 *  Description :
 *
 *    Out-of-band transfers of large files. Uploads are sent as multipart
 *    forms to the server's file endpoint, downloads are fetched from the same
 *    host only. Transfers can be canceled between chunks.
 *
 *****************************************************************************/

package largefile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/tinode/tinodesdk/concurrency"
	"github.com/tinode/tinodesdk/logs"
	"github.com/tinode/tinodesdk/model"
	"github.com/tinode/tinodesdk/promise"
)

const (
	// Transfers are copied and checked for cancellation in chunks of this size.
	chunkSize = 65536

	uploadPath = "/v0/file/u/"

	defaultWorkers = 4
)

var (
	// ErrCanceled is returned when the transfer was stopped by Cancel.
	ErrCanceled = errors.New("transfer canceled")
	// ErrForeignHost is returned when asked to download from a host other than the server.
	ErrForeignHost = errors.New("refusing to download from a foreign host")
	// ErrClosed is returned by async transfers after Close.
	ErrClosed = errors.New("helper is closed")
	// ErrMalformedResponse is returned when the server response is not a {ctrl} message.
	ErrMalformedResponse = errors.New("malformed server response")
)

// StatusError is the error response of the file endpoint.
type StatusError struct {
	Code int
	Text string
}

func (e *StatusError) Error() string {
	return "transfer failed: " + strconv.Itoa(e.Code) + " " + e.Text
}

// Progress reports the number of bytes transferred so far and the expected total.
// Total is -1 if unknown.
type Progress func(done, total int64)

// Config describes the server and the credentials of the helper.
type Config struct {
	// Scheme and host of the server, like "https://api.tinode.co".
	BaseURL   string
	APIKey    string
	AuthToken string
	UserAgent string
	// Defaults to http.DefaultClient.
	HTTPClient *http.Client
	// Number of concurrent async transfers.
	Workers int
}

// Helper uploads and downloads files. Transfers of one helper run one at a time so that
// Cancel always applies to the current one.
type Helper struct {
	base      *url.URL
	apiKey    string
	authToken string
	userAgent string
	client    *http.Client

	pool   *concurrency.GoRoutinePool
	busy   concurrency.SimpleMutex
	cancel atomic.Bool
}

// New creates a helper for the server at cfg.BaseURL.
func New(cfg Config) (*Helper, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("largefile: invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" || base.Host == "" {
		return nil, fmt.Errorf("largefile: invalid base URL %q", cfg.BaseURL)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Helper{
		base:      base,
		apiKey:    cfg.APIKey,
		authToken: cfg.AuthToken,
		userAgent: cfg.UserAgent,
		client:    client,
		pool:      concurrency.NewGoRoutinePool(workers),
		busy:      concurrency.NewSimpleMutex(),
	}, nil
}

// Cancel stops the ongoing transfer at the next chunk boundary.
func (h *Helper) Cancel() {
	h.cancel.Store(true)
}

// Close stops the pool of async transfers. Transfers already running are not interrupted.
func (h *Helper) Close() {
	h.pool.Stop()
}

// Headers returns the headers which authenticate requests to the server.
func (h *Helper) Headers() http.Header {
	hdr := http.Header{}
	hdr.Set("X-Tinode-APIKey", h.apiKey)
	if h.authToken != "" {
		hdr.Set("X-Tinode-Auth", "Token "+h.authToken)
	}
	if h.userAgent != "" {
		hdr.Set("User-Agent", h.userAgent)
	}
	return hdr
}

// Upload sends the content of r to the server. The returned {ctrl} carries the URL of the
// uploaded file in the "url" param.
func (h *Helper) Upload(ctx context.Context, r io.Reader, name, mimeType string, size int64,
	progress Progress) (*model.MsgServerCtrl, error) {

	if err := h.busy.LockContext(ctx); err != nil {
		return nil, err
	}
	defer h.busy.Unlock()
	h.cancel.Store(false)

	logs.Info.Println("largefile: starting upload", name, size)

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	werr := make(chan error, 1)
	go func() {
		err := h.writeForm(form, r, name, mimeType, size, progress)
		pw.CloseWithError(err)
		werr <- err
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.base.JoinPath(uploadPath).String(), pr)
	if err != nil {
		pr.Close()
		<-werr
		return nil, err
	}
	req.Header = h.Headers()
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := h.client.Do(req)
	// Unblocks the writer if the server has responded early.
	pr.Close()
	if errors.Is(<-werr, ErrCanceled) {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, ErrCanceled
	}
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	ctrl, err := readCtrl(resp)
	if err != nil {
		logs.Warn.Println("largefile: upload failed", name, err)
		return nil, err
	}
	return ctrl, nil
}

func (h *Helper) writeForm(form *multipart.Writer, r io.Reader, name, mimeType string, size int64,
	progress Progress) error {

	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", mime.FormatMediaType("form-data",
		map[string]string{"name": "file", "filename": name}))
	hdr.Set("Content-Type", mimeType)
	part, err := form.CreatePart(hdr)
	if err != nil {
		return err
	}
	if _, err := h.copyChunks(part, r, size, progress); err != nil {
		return err
	}
	return form.Close()
}

// UploadAsync runs Upload on the pool.
func (h *Helper) UploadAsync(ctx context.Context, r io.Reader, name, mimeType string, size int64,
	progress Progress) *promise.PromisedReply[*model.MsgServerCtrl] {

	result := promise.New[*model.MsgServerCtrl]()
	if !h.pool.Schedule(func() {
		ctrl, err := h.Upload(ctx, r, name, mimeType, size, progress)
		if err != nil {
			result.Reject(err)
		} else {
			result.Resolve(ctrl)
		}
	}) {
		result.Reject(ErrClosed)
	}
	return result
}

// Download writes the file at the given URL into w and returns the number of bytes written.
// Relative URLs are resolved against the server address. Other hosts are refused.
func (h *Helper) Download(ctx context.Context, from string, w io.Writer, progress Progress) (int64, error) {
	ref, err := url.Parse(from)
	if err != nil {
		return 0, err
	}
	target := h.base.ResolveReference(ref)
	if !strings.EqualFold(target.Host, h.base.Host) {
		return 0, ErrForeignHost
	}

	if err := h.busy.LockContext(ctx); err != nil {
		return 0, err
	}
	defer h.busy.Unlock()
	h.cancel.Store(false)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return 0, err
	}
	req.Header = h.Headers()

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if _, err := readCtrl(resp); err != nil {
			return 0, err
		}
		return 0, &StatusError{Code: resp.StatusCode, Text: http.StatusText(resp.StatusCode)}
	}
	return h.copyChunks(w, resp.Body, resp.ContentLength, progress)
}

// DownloadAsync runs Download on the pool.
func (h *Helper) DownloadAsync(ctx context.Context, from string, w io.Writer,
	progress Progress) *promise.PromisedReply[int64] {

	result := promise.New[int64]()
	if !h.pool.Schedule(func() {
		n, err := h.Download(ctx, from, w, progress)
		if err != nil {
			result.Reject(err)
		} else {
			result.Resolve(n)
		}
	}) {
		result.Reject(ErrClosed)
	}
	return result
}

// copyChunks copies src to dst, reporting progress and checking the cancel flag after every chunk.
func (h *Helper) copyChunks(dst io.Writer, src io.Reader, total int64, progress Progress) (int64, error) {
	buf := make([]byte, chunkSize)
	var done int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return done, werr
			}
			done += int64(n)
			if progress != nil {
				progress(done, total)
			}
			if h.cancel.CompareAndSwap(true, false) {
				return done, ErrCanceled
			}
		}
		if err == io.EOF {
			return done, nil
		}
		if err != nil {
			return done, err
		}
	}
}

// readCtrl parses the {ctrl} response of the file endpoint. Error codes are returned as *StatusError.
func readCtrl(resp *http.Response) (*model.MsgServerCtrl, error) {
	var msg model.ServerComMessage
	if err := json.NewDecoder(io.LimitReader(resp.Body, chunkSize)).Decode(&msg); err != nil || msg.Ctrl == nil {
		if resp.StatusCode >= http.StatusMultipleChoices {
			return nil, &StatusError{Code: resp.StatusCode, Text: http.StatusText(resp.StatusCode)}
		}
		return nil, ErrMalformedResponse
	}
	if msg.Ctrl.Code >= http.StatusMultipleChoices {
		return nil, &StatusError{Code: msg.Ctrl.Code, Text: msg.Ctrl.Text}
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{Code: resp.StatusCode, Text: http.StatusText(resp.StatusCode)}
	}
	return msg.Ctrl, nil
}
