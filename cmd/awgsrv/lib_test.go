package main

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/providers/structs"

	"github.com/nasa-jpl/golaborate-awg/rigol"
)

func mockMux(t *testing.T) http.Handler {
	c := DefaultConfig()
	c.Mock = true
	mux, _, err := BuildMux(c)
	if err != nil {
		t.Fatal(err)
	}
	return mux
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func readAll(t *testing.T, w *httptest.ResponseRecorder) string {
	b, err := io.ReadAll(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestBuildMuxServesGenerator(t *testing.T) {
	mux := mockMux(t)
	w := do(mux, http.MethodPost, "/awg/ch/1/apply", `{"waveform":"square","frequency":1000,"amplitude":2,"offset":0}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", w.Code, w.Body.String())
	}
	w = do(mux, http.MethodGet, "/endpoints", "")
	body := readAll(t, w)
	if !strings.Contains(body, "/awg") || !strings.Contains(body, "POST /ch/{ch}/apply") {
		t.Errorf("endpoint listing incomplete: %s", body)
	}
}

func TestMetricsCountCommands(t *testing.T) {
	mux := mockMux(t)
	do(mux, http.MethodPost, "/awg/ch/2/output", `{"bool":true}`)
	w := do(mux, http.MethodGet, "/metrics", "")
	body := readAll(t, w)
	if !strings.Contains(body, `awg_commands_total{kind="send"} 1`) {
		t.Errorf("send not counted:\n%s", body)
	}
}

func TestLockRefusesWrites(t *testing.T) {
	mux := mockMux(t)
	w := do(mux, http.MethodPost, "/awg/lock", `{"bool":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("lock returned %d", w.Code)
	}
	w = do(mux, http.MethodPost, "/awg/ch/1/vpp", `{"value":1}`)
	if w.Code != http.StatusLocked {
		t.Errorf("expected 423 while locked, got %d", w.Code)
	}
	w = do(mux, http.MethodGet, "/awg/ch/1/state", "")
	if w.Code != http.StatusOK {
		t.Errorf("reads should pass the lock, got %d", w.Code)
	}
	do(mux, http.MethodPost, "/awg/lock", `{"bool":false}`)
	w = do(mux, http.MethodPost, "/awg/ch/1/vpp", `{"value":1}`)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 after unlocking, got %d %s", w.Code, w.Body.String())
	}
}

func TestDefaultConfigRoundTripsLimits(t *testing.T) {
	lim, err := DefaultConfig().RigolLimits()
	if err != nil {
		t.Fatal(err)
	}
	def := rigol.DefaultLimits()
	if lim.MinFrequency != def.MinFrequency {
		t.Errorf("min frequency %v, expected %v", lim.MinFrequency, def.MinFrequency)
	}
	for w, f := range def.MaxFrequency {
		if lim.MaxFrequency[w] != f {
			t.Errorf("%s max frequency %v, expected %v", w, lim.MaxFrequency[w], f)
		}
	}
	r, verified := lim.Harmonics.Lookup(rigol.HighZ)
	if !verified || r.MaxOrder != 16 {
		t.Errorf("high impedance harmonic range %+v verified=%v", r, verified)
	}
}

func TestRigolLimitsRejectsUnknownNames(t *testing.T) {
	tbl := []struct {
		name string
		mod  func(*Config)
	}{
		{"waveform", func(c *Config) { c.Limits.MaxFrequency["triangle"] = 1e6 }},
		{"impedance", func(c *Config) { c.HarmonicTable = append(c.HarmonicTable, HarmonicEntry{Impedance: "lots"}) }},
	}
	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mod(&c)
			if _, err := c.RigolLimits(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestMakerConnectionTypes(t *testing.T) {
	tbl := []struct {
		typ string
		ok  bool
	}{
		{"tcp", true},
		{"LAN", true},
		{"serial", true},
		{"usb", true},
		{"gpib", false},
	}
	for _, tt := range tbl {
		t.Run(tt.typ, func(t *testing.T) {
			_, err := maker(Connection{Type: tt.typ})
			if (err == nil) != tt.ok {
				t.Errorf("maker(%s) err=%v", tt.typ, err)
			}
		})
	}
}

func TestEnvKey(t *testing.T) {
	kk := koanf.New(".")
	if err := kk.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		t.Fatal(err)
	}
	f := envKey(kk)
	tbl := []struct {
		in, out string
	}{
		{"AWGSRV_CONNECTION_ADDR", "Connection.Addr"},
		{"AWGSRV_MOCK", "Mock"},
		{"AWGSRV_RATELIMIT", "RateLimit"},
		{"AWGSRV_NOT_A_KEY", "NOT.A.KEY"},
	}
	for _, tt := range tbl {
		if got := f(tt.in); got != tt.out {
			t.Errorf("envKey(%s) = %s, expected %s", tt.in, got, tt.out)
		}
	}
}
