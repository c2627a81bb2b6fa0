package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/UnendingLoop/ClearCut/internal/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/ginext"
)

func wrap(fn func(*ginext.Context)) gin.HandlerFunc {
	return func(c *gin.Context) { fn((*ginext.Context)(c)) }
}

func TestImageHandler_Ping(t *testing.T) {
	r := gin.New()
	h := NewImageHandler(nil)
	r.GET("/ping", wrap(h.SimplePinger))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	require.Equal(t, 200, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "pong", body["message"])
}

type upload struct {
	name  string
	ctype string
	data  []byte
}

func newMultipartRequest(t *testing.T, field string, files []upload) *http.Request {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range files {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+f.name+`"`)
		hdr.Set("Content-Type", f.ctype)
		fw, err := w.CreatePart(hdr)
		require.NoError(t, err)
		_, err = fw.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/images/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestImageHandler_Upload(t *testing.T) {
	twoFiles := []upload{
		{name: "cat.png", ctype: model.PNG, data: []byte("png")},
		{name: "notes.txt", ctype: "text/plain", data: []byte("txt")},
	}

	tests := []struct {
		name       string
		req        *http.Request
		mock       *mockImageService
		wantStatus int
	}{
		{
			name: "success",
			req:  newMultipartRequest(t, uploadField, twoFiles),
			mock: &mockImageService{
				addItemsFn: func(ctx context.Context, files []model.UploadFile) ([]model.WorkItem, error) {
					require.Len(t, files, 2)
					require.Equal(t, "cat.png", files[0].Name)
					require.Equal(t, model.PNG, files[0].MimeType)
					require.Equal(t, []byte("png"), files[0].Data)
					return []model.WorkItem{{ID: uuid.NewString(), Name: "cat.png", Status: model.StatusIdle}}, nil
				},
			},
			wantStatus: 201,
		},
		{
			name:       "wrong field",
			req:        newMultipartRequest(t, "image", twoFiles),
			mock:       &mockImageService{},
			wantStatus: 400,
		},
		{
			name:       "not multipart",
			req:        httptest.NewRequest(http.MethodPost, "/images/upload", strings.NewReader("{}")),
			mock:       &mockImageService{},
			wantStatus: 400,
		},
		{
			name: "nothing usable",
			req:  newMultipartRequest(t, uploadField, twoFiles[1:]),
			mock: &mockImageService{
				addItemsFn: func(ctx context.Context, files []model.UploadFile) ([]model.WorkItem, error) {
					return []model.WorkItem{}, nil
				},
			},
			wantStatus: 400,
		},
		{
			name: "storage failure",
			req:  newMultipartRequest(t, uploadField, twoFiles),
			mock: &mockImageService{
				addItemsFn: func(ctx context.Context, files []model.UploadFile) ([]model.WorkItem, error) {
					return nil, model.ErrCommon500
				},
			},
			wantStatus: 500,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			h := NewImageHandler(tt.mock)
			r.POST("/images/upload", wrap(h.Upload))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, tt.req)

			require.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestImageHandler_ListAndStats(t *testing.T) {
	snap := model.Snapshot{
		Version: 7,
		Items:   []model.WorkItem{{ID: "a", Name: "a.png", Status: model.StatusCompleted, ResultSize: 6, SourcePreview: "src/secret.png"}},
		Stats:   model.Stats{Total: 1, Completed: 1},
	}
	mock := &mockImageService{
		snapshotFn: func() model.Snapshot { return snap },
		statsFn:    func() model.Stats { return snap.Stats },
	}

	r := gin.New()
	h := NewImageHandler(mock)
	r.GET("/images", wrap(h.GetAllImages))
	r.GET("/images/stats", wrap(h.GetStats))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/images", nil))
	require.Equal(t, 200, w.Code)
	require.NotContains(t, w.Body.String(), "secret")

	var got model.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Equal(t, uint64(7), got.Version)
	require.Equal(t, model.StatusCompleted, got.Items[0].Status)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/images/stats", nil))
	require.Equal(t, 200, w.Code)
	require.JSONEq(t, `{"total":1,"completed":1,"failed":0,"processing":0}`, w.Body.String())
}

func TestImageHandler_Delete(t *testing.T) {
	id := uuid.NewString()
	var removed string
	mock := &mockImageService{
		removeItemFn: func(ctx context.Context, got string) { removed = got },
		clearAllFn:   func(ctx context.Context) { removed = "all" },
	}

	r := gin.New()
	h := NewImageHandler(mock)
	r.DELETE("/images/:id", wrap(h.Delete))
	r.DELETE("/images", wrap(h.Clear))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/images/"+id, nil))
	require.Equal(t, 204, w.Code)
	require.Equal(t, id, removed)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/images/not-a-uuid", nil))
	require.Equal(t, 400, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/images", nil))
	require.Equal(t, 204, w.Code)
	require.Equal(t, "all", removed)
}

func TestImageHandler_Process(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		mock       *mockImageService
		wantStatus int
	}{
		{
			name: "batch started",
			path: "/images/process",
			mock: &mockImageService{startBatchFn: func(ctx context.Context) (<-chan model.BatchReport, error) {
				return make(chan model.BatchReport, 1), nil
			}},
			wantStatus: 202,
		},
		{
			name: "batch already running",
			path: "/images/process",
			mock: &mockImageService{startBatchFn: func(ctx context.Context) (<-chan model.BatchReport, error) {
				return nil, model.ErrBatchInProgress
			}},
			wantStatus: 409,
		},
		{
			name: "single item started",
			path: "/images/" + uuid.NewString() + "/process",
			mock: &mockImageService{startOneFn: func(ctx context.Context, id string) error {
				return nil
			}},
			wantStatus: 202,
		},
		{
			name: "single item unknown",
			path: "/images/" + uuid.NewString() + "/process",
			mock: &mockImageService{startOneFn: func(ctx context.Context, id string) error {
				return model.ErrItemNotFound
			}},
			wantStatus: 404,
		},
		{
			name:       "single item bad id",
			path:       "/images/xyz/process",
			mock:       &mockImageService{},
			wantStatus: 400,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			h := NewImageHandler(tt.mock)
			r.POST("/images/process", wrap(h.ProcessAll))
			r.POST("/images/:id/process", wrap(h.ProcessOne))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, tt.path, nil))

			require.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestImageHandler_LoadResult(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"ok", nil, 200},
		{"not ready", model.ErrResultNotReady, 404},
		{"unknown", model.ErrItemNotFound, 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockImageService{
				resultFn: func(id string) (string, []byte, error) {
					if tt.err != nil {
						return "", nil, tt.err
					}
					return "clearcut_cat.png", []byte("png-bytes"), nil
				},
			}

			r := gin.New()
			h := NewImageHandler(mock)
			r.GET("/images/:id/result", wrap(h.LoadResult))

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/images/abc/result", nil))

			require.Equal(t, tt.wantStatus, w.Code)
			if tt.err == nil {
				require.Equal(t, "png-bytes", w.Body.String())
				require.Equal(t, model.PNG, w.Header().Get("Content-Type"))
				require.Contains(t, w.Header().Get("Content-Disposition"), `filename="clearcut_cat.png"`)
			}
		})
	}
}

func TestImageHandler_LoadPreview(t *testing.T) {
	var gotKind model.PreviewKind
	mock := &mockImageService{
		previewFn: func(ctx context.Context, id string, kind model.PreviewKind) (io.ReadCloser, string, error) {
			gotKind = kind
			if kind == "bogus" {
				return nil, "", model.ErrIncorrectKind
			}
			return io.NopCloser(bytes.NewReader([]byte("jpeg-bytes"))), model.JPEG, nil
		},
	}

	r := gin.New()
	h := NewImageHandler(mock)
	r.GET("/images/:id/preview", wrap(h.LoadPreview))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/images/abc/preview", nil))
	require.Equal(t, 200, w.Code)
	require.Equal(t, model.PreviewSource, gotKind)
	require.Equal(t, model.JPEG, w.Header().Get("Content-Type"))
	require.Equal(t, "jpeg-bytes", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/images/abc/preview?kind=bogus", nil))
	require.Equal(t, 400, w.Code)
}

func TestImageHandler_Downloads(t *testing.T) {
	mock := &mockImageService{
		downloadOneFn: func(ctx context.Context, id string) error {
			if id == "err-item" {
				return model.ErrResultNotReady
			}
			return nil
		},
		downloadAllFn: func(ctx context.Context) int { return 2 },
	}

	r := gin.New()
	h := NewImageHandler(mock)
	r.POST("/images/:id/download", wrap(h.DownloadOne))
	r.POST("/images/download", wrap(h.DownloadAll))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/images/ok-item/download", nil))
	require.Equal(t, 204, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/images/err-item/download", nil))
	require.Equal(t, 404, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/images/download", nil))
	require.Equal(t, 202, w.Code)
	require.JSONEq(t, `{"queued":2}`, w.Body.String())
}

func TestImageHandler_Events(t *testing.T) {
	unsubscribed := make(chan struct{})
	mock := &mockImageService{
		snapshotFn: func() model.Snapshot { return model.Snapshot{Version: 3} },
		subscribeFn: func(fn func(model.Snapshot)) func() {
			go fn(model.Snapshot{Version: 4, Processing: true})
			return func() { close(unsubscribed) }
		},
	}

	r := gin.New()
	h := NewImageHandler(mock)
	r.GET("/images/events", wrap(h.Events))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/images/events", nil).WithContext(ctx)
	w := &streamRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool)}
	r.ServeHTTP(w, req)

	select {
	case <-unsubscribed:
	case <-time.After(time.Second):
		t.Fatal("subscription was not released")
	}
	require.Contains(t, w.Body.String(), "event:snapshot")
	require.Contains(t, w.Body.String(), `"version":`)
}

// gin Stream требует CloseNotifier, которого нет у httptest.ResponseRecorder
type streamRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *streamRecorder) CloseNotify() <-chan bool {
	return r.closed
}

func TestSnapshotSlot_KeepsNewest(t *testing.T) {
	s := newSnapshotSlot()
	s.offer(model.Snapshot{Version: 2})
	s.offer(model.Snapshot{Version: 5})
	s.offer(model.Snapshot{Version: 4})

	require.Equal(t, uint64(5), (<-s.ch).Version)
	require.Empty(t, s.ch)
}

func TestErrorCodeDefiner(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.ErrItemNotFound, 404},
		{model.ErrResultNotReady, 404},
		{model.ErrBatchInProgress, 409},
		{model.ErrIncorrectID, 400},
		{model.ErrNoFiles, 400},
		{model.ErrFileTooLarge, 413},
		{model.ErrCommon500, 500},
		{errors.New("unknown"), 500},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, errorCodeDefiner(tt.err), tt.err.Error())
	}
}
