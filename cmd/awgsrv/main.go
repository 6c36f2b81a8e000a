package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"gopkg.in/natefinch/lumberjack.v2"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "awgsrv.yml"

	// EnvPrefix marks the environment variables which override the config file,
	// e.g. AWGSRV_CONNECTION_ADDR=10.0.0.5:5555
	EnvPrefix = "AWGSRV_"

	k = koanf.New(".")
)

// envKey maps AWGSRV_CONNECTION_ADDR to the existing key Connection.Addr.
// Variables which name no known key are kept with their upper case path.
func envKey(k *koanf.Koanf) func(string) string {
	return func(s string) string {
		key := strings.Replace(strings.TrimPrefix(s, EnvPrefix), "_", ".", -1)
		for _, known := range k.Keys() {
			if strings.EqualFold(known, key) {
				return known
			}
		}
		return key
	}
}

func setupconfig() {
	k.Load(structs.Provider(DefaultConfig(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey(k)), nil); err != nil {
		log.Fatalf("error loading environment: %v", err)
	}
}

func root() {
	str := `awgsrv controls a Rigol DG4000 series arbitrary waveform generator and exposes an HTTP interface to it
This enables a server-client architecture, and the clients can leverage the
excellent HTTP libraries for any programming language.

Usage:
	awgsrv <command>

Commands:
	run
	probe
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `awgsrv is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

mkconf writes the default configuration to awgsrv.yml; conf prints the
configuration in effect.  Any key may be overridden from the environment with
the AWGSRV_ prefix and _ in place of ., e.g. AWGSRV_CONNECTION_TYPE=usb.

Connection types:
- tcp     LAN, Addr is host:port, the DG4000 listens on port 5555
- serial  RS232, Addr is the device, e.g. /dev/ttyUSB0 or COM3, Baud is the baud rate
- usb     USBTMC, VID and PID select the device (Rigol is 0x1AB1, the DG4000 0x0641)

Mock: true serves an in-memory generator, no hardware required.

The routes are served under Endpoint, e.g. "awg":
	POST /awg/ch/1/apply {"waveform":"sine","frequency":1000,"amplitude":5,"offset":0}
GET /endpoints lists every route; GET /metrics serves prometheus metrics.

probe connects to the configured instrument, prints its identification and
drains its error queue.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("awgsrv version %v\n", Version)
}

// setuplog routes the log to a rotated file when one is configured
func setuplog(c Config) {
	if c.LogFile == "" {
		return
	}
	log.SetOutput(&lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    c.LogMaxSizeMB,
		MaxBackups: c.LogMaxBackups,
	})
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	setuplog(c)
	mux, _, err := BuildMux(c)
	if err != nil {
		log.Fatal(err)
	}
	log.Println("now listening for requests at ", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "probe":
		probe()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
