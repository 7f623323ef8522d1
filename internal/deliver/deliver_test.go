package deliver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mib = 1 << 20

type fakeUploader struct {
	videos, docs int
	err          error
}

func (f *fakeUploader) SendVideo(ctx context.Context, chatID int64, path, caption string) error {
	f.videos++
	return f.err
}

func (f *fakeUploader) SendDocument(ctx context.Context, chatID int64, path, caption string) error {
	f.docs++
	return f.err
}

func TestPick(t *testing.T) {
	d := New(&fakeUploader{}, nil, Options{InlineLimit: 50 * mib, LinkAbove: 10})
	assert.Equal(t, RouteInline, d.Pick(1))
	assert.Equal(t, RouteInline, d.Pick(50*mib), "boundary stays inline")
	assert.Equal(t, RouteAttachment, d.Pick(50*mib+1))

	linked := New(&fakeUploader{}, &Filebin{}, Options{InlineLimit: 50 * mib, LinkAbove: 49 * mib})
	assert.Equal(t, RouteInline, linked.Pick(49*mib))
	assert.Equal(t, RouteLink, linked.Pick(49*mib+1))
}

func TestDeliver(t *testing.T) {
	up := &fakeUploader{}
	d := New(up, nil, Options{InlineLimit: 50 * mib})

	res, err := d.Deliver(context.Background(), 1, "/x.mp4", "x.mp4", 3*mib, "")
	require.NoError(t, err)
	assert.Equal(t, RouteInline, res.Route)

	res, err = d.Deliver(context.Background(), 1, "/x.mp4", "x.mp4", 60*mib, "")
	require.NoError(t, err)
	assert.Equal(t, RouteAttachment, res.Route)
	assert.Equal(t, 1, up.videos)
	assert.Equal(t, 1, up.docs)
}

func TestDeliverFailureIsTypedAndNotRetried(t *testing.T) {
	up := &fakeUploader{err: errors.New("Request Entity Too Large")}
	d := New(up, nil, Options{InlineLimit: 50 * mib})
	_, err := d.Deliver(context.Background(), 1, "/x.mp4", "x.mp4", 60*mib, "")
	var derr *Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, RouteAttachment, derr.Route)
	assert.Equal(t, 1, up.docs)
}

func TestFilebinUpload(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	p := filepath.Join(t.TempDir(), "out.mp4")
	require.NoError(t, os.WriteFile(p, []byte("video"), 0o644))

	fb := &Filebin{Base: srv.URL + "/", Prefix: "bnr", Client: srv.Client()}
	d := New(&fakeUploader{}, fb, Options{InlineLimit: 50 * mib, LinkAbove: 1})
	res, err := d.Deliver(context.Background(), 1, p, "out.mp4", 5, "")
	require.NoError(t, err)
	assert.Equal(t, RouteLink, res.Route)
	assert.True(t, strings.HasPrefix(res.URL, srv.URL+"/bnr-"))
	assert.True(t, strings.HasSuffix(gotPath, "/out.mp4"))
	assert.Equal(t, "video", gotBody)
}

func TestFilebinRejectsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	p := filepath.Join(t.TempDir(), "out.mp4")
	require.NoError(t, os.WriteFile(p, []byte("v"), 0o644))

	_, err := (&Filebin{Base: srv.URL}).Upload(context.Background(), p, "out.mp4")
	assert.ErrorContains(t, err, "403")
}
