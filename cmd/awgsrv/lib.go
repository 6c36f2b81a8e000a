package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tarm/serial"
	"golang.org/x/time/rate"

	"github.com/nasa-jpl/golaborate-awg/comm"
	"github.com/nasa-jpl/golaborate-awg/generichttp"
	"github.com/nasa-jpl/golaborate-awg/rigol"
	"github.com/nasa-jpl/golaborate-awg/scpi"
	"github.com/nasa-jpl/golaborate-awg/server/middleware/locker"
	"github.com/nasa-jpl/golaborate-awg/usbtmc"
	"github.com/nasa-jpl/golaborate-awg/util"
)

// Connection describes the link to the generator
type Connection struct {
	// Type is one of tcp, serial, usb
	Type string `yaml:"Type" koanf:"Type"`

	// Addr is host:port for tcp (the DG4000 listens on 5555) or the
	// device path for serial, e.g. /dev/ttyUSB0 or COM3
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Baud is the serial baud rate
	Baud int `yaml:"Baud" koanf:"Baud"`

	// VID and PID select the USB device
	VID int `yaml:"VID" koanf:"VID"`
	PID int `yaml:"PID" koanf:"PID"`

	// Timeout is the I/O deadline of each exchange, in seconds
	Timeout float64 `yaml:"Timeout" koanf:"Timeout"`
}

// HarmonicEntry is one row of the harmonic order table.  Impedance is ohms,
// or INF for high impedance; "fallback" sets the range used for loads
// missing from the table.
type HarmonicEntry struct {
	Impedance string  `yaml:"Impedance" koanf:"Impedance"`
	MinOrder  int     `yaml:"MinOrder" koanf:"MinOrder"`
	MaxOrder  int     `yaml:"MaxOrder" koanf:"MaxOrder"`
	Bandwidth float64 `yaml:"Bandwidth" koanf:"Bandwidth"`
}

// Limits overrides the instrument limits, for models other than the DG4162
type Limits struct {
	MinFrequency float64 `yaml:"MinFrequency" koanf:"MinFrequency"`

	// MaxFrequency is keyed by waveform name, sine, square, ...
	MaxFrequency map[string]float64 `yaml:"MaxFrequency" koanf:"MaxFrequency"`
}

// Config is a struct that holds the initialization parameters of the server.
// It is populated by koanf from defaults, the config file, and the environment.
type Config struct {
	// Addr is the address to listen at
	Addr string `yaml:"Addr" koanf:"Addr"`

	// Endpoint is the URL the generator's routes are served under,
	// "awg" produces /awg/ch/1/apply and so on
	Endpoint string `yaml:"Endpoint" koanf:"Endpoint"`

	// Mock replaces the generator with an in-memory one
	Mock bool `yaml:"Mock" koanf:"Mock"`

	Connection Connection `yaml:"Connection" koanf:"Connection"`

	// Handshaking appends an error query to every command so instrument
	// errors are reported to the caller
	Handshaking bool `yaml:"Handshaking" koanf:"Handshaking"`

	// RateLimit is the most commands per second sent to the instrument, 0 for no limit
	RateLimit float64 `yaml:"RateLimit" koanf:"RateLimit"`

	// PoolSize is the number of connections kept to the instrument
	PoolSize int `yaml:"PoolSize" koanf:"PoolSize"`

	// LogFile, if not empty, sends the log to a rotated file instead of stderr
	LogFile       string `yaml:"LogFile" koanf:"LogFile"`
	LogMaxSizeMB  int    `yaml:"LogMaxSizeMB" koanf:"LogMaxSizeMB"`
	LogMaxBackups int    `yaml:"LogMaxBackups" koanf:"LogMaxBackups"`

	Limits Limits `yaml:"Limits" koanf:"Limits"`

	HarmonicTable []HarmonicEntry `yaml:"HarmonicTable" koanf:"HarmonicTable"`
}

// DefaultConfig is the configuration used when no file is present
func DefaultConfig() Config {
	lim := rigol.DefaultLimits()
	maxf := make(map[string]float64, len(lim.MaxFrequency))
	for w, f := range lim.MaxFrequency {
		maxf[w.String()] = f
	}
	var table []HarmonicEntry
	for z, r := range lim.Harmonics.ByImpedance {
		table = append(table, HarmonicEntry{Impedance: z.String(), MinOrder: r.MinOrder, MaxOrder: r.MaxOrder, Bandwidth: r.Bandwidth})
	}
	sort.Slice(table, func(i, j int) bool { return table[i].Impedance < table[j].Impedance })
	fb := lim.Harmonics.Fallback
	table = append(table, HarmonicEntry{Impedance: "fallback", MinOrder: fb.MinOrder, MaxOrder: fb.MaxOrder, Bandwidth: fb.Bandwidth})
	return Config{
		Addr:     ":8000",
		Endpoint: "awg",
		Connection: Connection{
			Type:    "tcp",
			Addr:    "192.168.100.20:5555",
			Baud:    9600,
			VID:     int(usbtmc.RigolVID),
			PID:     int(usbtmc.DG4000PID),
			Timeout: 3,
		},
		PoolSize:      1,
		LogMaxSizeMB:  10,
		LogMaxBackups: 3,
		Limits:        Limits{MinFrequency: lim.MinFrequency, MaxFrequency: maxf},
		HarmonicTable: table,
	}
}

// RigolLimits converts the configured limits to the form the controller uses
func (c Config) RigolLimits() (rigol.Limits, error) {
	lim := rigol.Limits{
		MinFrequency: c.Limits.MinFrequency,
		MaxFrequency: make(map[rigol.Waveform]float64, len(c.Limits.MaxFrequency)),
		Harmonics:    rigol.HarmonicTable{ByImpedance: map[rigol.Impedance]rigol.HarmonicRange{}},
	}
	for name, f := range c.Limits.MaxFrequency {
		w, err := rigol.ParseWaveform(name)
		if err != nil {
			return lim, errors.Wrap(err, "Limits.MaxFrequency")
		}
		lim.MaxFrequency[w] = f
	}
	fallback := false
	for _, e := range c.HarmonicTable {
		r := rigol.HarmonicRange{MinOrder: e.MinOrder, MaxOrder: e.MaxOrder, Bandwidth: e.Bandwidth}
		if strings.EqualFold(e.Impedance, "fallback") {
			lim.Harmonics.Fallback = r
			fallback = true
			continue
		}
		z, err := rigol.ParseImpedance(e.Impedance)
		if err != nil {
			return lim, errors.Wrap(err, "HarmonicTable")
		}
		lim.Harmonics.ByImpedance[z] = r
	}
	if !fallback {
		lim.Harmonics.Fallback = rigol.DefaultHarmonicTable().Fallback
	}
	return lim, nil
}

func (c Connection) timeout() time.Duration {
	return util.SecsToDuration(c.Timeout)
}

// maker returns the connection factory for the configured link
func maker(c Connection) (comm.CreationFunc, error) {
	switch strings.ToLower(c.Type) {
	case "tcp", "lan", "":
		return comm.BackoffTCPMaker(c.Addr, c.timeout()), nil
	case "serial", "rs232":
		return comm.SerialMaker(&serial.Config{Name: c.Addr, Baud: c.Baud, ReadTimeout: c.timeout()}), nil
	case "usb", "usbtmc":
		return usbtmc.Maker(uint16(c.VID), uint16(c.PID)), nil
	default:
		return nil, errors.Errorf("connection type %q not understood, use tcp, serial, or usb", c.Type)
	}
}

// link is what the server needs of the instrument connection
type link interface {
	rigol.Transport
	rigol.RawCommunicator
}

// dial builds the link described by c.  The pool is nil in mock mode.
func dial(c Config) (link, *comm.Pool, error) {
	if c.Mock {
		return rigol.NewMockTransport(), nil, nil
	}
	mk, err := maker(c.Connection)
	if err != nil {
		return nil, nil, err
	}
	size := c.PoolSize
	if size < 1 {
		size = 1
	}
	pool := comm.NewPool(size, time.Minute, mk)
	s := scpi.New(pool, c.Handshaking)
	s.Timeout = c.Connection.timeout()
	if c.RateLimit > 0 {
		s.Limiter = rate.NewLimiter(rate.Limit(c.RateLimit), 1)
	}
	return s, pool, nil
}

// metrics counts the traffic to the instrument
type metrics struct {
	commands *prometheus.CounterVec
	failures *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer, pool *comm.Pool) *metrics {
	m := &metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "awg",
			Name:      "commands_total",
			Help:      "Commands sent to the waveform generator, by kind (send, query, raw).",
		}, []string{"kind"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Subsystem: "awg",
			Name:      "command_failures_total",
			Help:      "Commands the transport failed to deliver, by kind.",
		}, []string{"kind"}),
	}
	reg.MustRegister(m.commands, m.failures)
	if pool != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Subsystem: "awg",
			Name:      "connections_active",
			Help:      "Connections to the waveform generator currently leased from the pool.",
		}, func() float64 { return float64(pool.Active()) }))
	}
	return m
}

func (m *metrics) observe(kind string, err error) {
	m.commands.WithLabelValues(kind).Inc()
	if err != nil {
		m.failures.WithLabelValues(kind).Inc()
	}
}

// meteredLink counts every command passing through to the instrument
type meteredLink struct {
	link
	m *metrics
}

func (l meteredLink) Send(cmd string) error {
	err := l.link.Send(cmd)
	l.m.observe("send", err)
	return err
}

func (l meteredLink) Query(cmd string) (string, error) {
	s, err := l.link.Query(cmd)
	l.m.observe("query", err)
	return s, err
}

func (l meteredLink) Raw(cmd string) (string, error) {
	s, err := l.link.Raw(cmd)
	l.m.observe("raw", err)
	return s, err
}

// BuildMux constructs the router: the generator's routes under c.Endpoint
// with a lock, /endpoints listing every route, and /metrics
func BuildMux(c Config) (chi.Router, *rigol.DG4000, error) {
	lim, err := c.RigolLimits()
	if err != nil {
		return nil, nil, err
	}
	l, pool, err := dial(c)
	if err != nil {
		return nil, nil, err
	}
	reg := prometheus.NewRegistry()
	ml := meteredLink{link: l, m: newMetrics(reg, pool)}

	awg := rigol.NewDG4000(ml, lim)
	httper := rigol.NewHTTPWrapper(awg, ml)

	root := chi.NewRouter()
	root.Use(middleware.Logger)
	supergraph := map[string][]string{}

	hndlS := generichttp.SubMuxSanitize(c.Endpoint)
	lock := locker.New()
	locker.Inject(httper, lock)
	supergraph[hndlS] = httper.RT().Endpoints()

	r := chi.NewRouter()
	r.Use(lock.Check)
	httper.RT().Bind(r)
	root.Mount(hndlS, r)

	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
	root.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if c.Mock {
		log.Println("mock mode, no instrument is connected")
	}
	return root, awg, nil
}
