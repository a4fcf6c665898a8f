package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ezzatron/fake-geolocation-demo/internal/clock"
	"github.com/ezzatron/fake-geolocation-demo/internal/journey"
	"github.com/ezzatron/fake-geolocation-demo/internal/player"
)

func exportFile(j *journey.Journey, tick time.Duration, path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := export(j, tick, time.UnixMilli(j.StartTime()), f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// export plays j from start to finish on a manual clock that reads start
// when playback begins, writing one JSON line per POSITION event.
func export(j *journey.Journey, tick time.Duration, start time.Time, w io.Writer) (int, error) {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	c := clock.NewManual(start)
	p := player.New(j, player.Options{TickDuration: tick, Clock: c})
	defer p.Close()

	var (
		n       int
		written error
	)
	p.Subscribe(func(ev player.Event) {
		if ev.Type != player.EventPosition || written != nil {
			return
		}
		if written = enc.Encode(ev); written == nil {
			n++
		}
	})

	p.Play()
	if err := c.RunAll(); err != nil {
		return n, err
	}
	if written != nil {
		return n, fmt.Errorf("write position: %w", written)
	}
	return n, bw.Flush()
}
