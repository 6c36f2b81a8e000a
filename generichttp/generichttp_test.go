package generichttp_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/nasa-jpl/golaborate-awg/generichttp"
)

func TestSubMuxSanitize(t *testing.T) {
	tbl := []struct {
		in, out string
	}{
		{"awg", "/awg"},
		{"/awg", "/awg"},
		{"/lab/awg/", "/lab/awg"},
		{"", "/"},
	}
	for _, tt := range tbl {
		if got := generichttp.SubMuxSanitize(tt.in); got != tt.out {
			t.Errorf("SubMuxSanitize(%q) = %q, expected %q", tt.in, got, tt.out)
		}
	}
}

func TestEndpointsSorted(t *testing.T) {
	noop := func(w http.ResponseWriter, r *http.Request) {}
	rt := generichttp.RouteTable{
		{Method: http.MethodPost, Path: "/reset"}: noop,
		{Method: http.MethodGet, Path: "/idn"}:    noop,
		{Method: http.MethodGet, Path: "/clock"}:  noop,
	}
	got := strings.Join(rt.Endpoints(), ",")
	if got != "GET /clock,GET /idn,POST /reset" {
		t.Errorf("got %s", got)
	}
}

type teapot struct{}

func (teapot) Error() string   { return "short and stout" }
func (teapot) HTTPStatus() int { return http.StatusTeapot }

func TestErrorStatus(t *testing.T) {
	tbl := []struct {
		name string
		err  error
		code int
	}{
		{"plain", errors.New("boom"), http.StatusInternalServerError},
		{"status", teapot{}, http.StatusTeapot},
		{"wrapped status", errors.Wrap(teapot{}, "brewing"), http.StatusTeapot},
	}
	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			generichttp.Error(w, tt.err)
			if w.Code != tt.code {
				t.Errorf("expected %d got %d", tt.code, w.Code)
			}
		})
	}
}

func TestSetStringBadBody(t *testing.T) {
	called := false
	h := generichttp.SetString(func(string) error { called = true; return nil })
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{")))
	if w.Code != http.StatusBadRequest || called {
		t.Errorf("malformed body gave %d, called=%v", w.Code, called)
	}
}
