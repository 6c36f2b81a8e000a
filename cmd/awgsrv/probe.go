package main

import (
	"fmt"
	"log"
	"time"

	"github.com/theckman/yacspin"

	"github.com/nasa-jpl/golaborate-awg/rigol"
	"github.com/nasa-jpl/golaborate-awg/scpi"
)

// errorDrainer is satisfied by links which can read the instrument error queue
type errorDrainer interface {
	AllErrorsString() (string, error)
}

// probe connects to the configured generator and reports who answered
func probe() {
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		log.Fatal(err)
	}
	l, _, err := dial(c)
	if err != nil {
		log.Fatal(err)
	}
	lim, err := c.RigolLimits()
	if err != nil {
		log.Fatal(err)
	}
	awg := rigol.NewDG4000(l, lim)
	defer awg.Close()

	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[11],
		Suffix:            " " + describe(c),
		SuffixAutoColon:   true,
		Message:           "connecting",
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
	})
	if err != nil {
		log.Fatal(err)
	}
	spinner.Start()
	idn, err := awg.Identify()
	if err != nil {
		spinner.StopFailMessage(err.Error())
		spinner.StopFail()
		return
	}
	spinner.StopMessage(idn)
	spinner.Stop()

	if d, ok := l.(errorDrainer); ok {
		errs, err := d.AllErrorsString()
		if err != nil {
			log.Println(err)
			return
		}
		if errs == "" {
			errs = "empty"
		}
		fmt.Println("error queue:", errs)
	}
}

func describe(c Config) string {
	if c.Mock {
		return "mock"
	}
	if c.Connection.Type == "usb" {
		return fmt.Sprintf("usb %04X:%04X", c.Connection.VID, c.Connection.PID)
	}
	return c.Connection.Type + " " + c.Connection.Addr
}

var _ errorDrainer = (*scpi.SCPI)(nil)
