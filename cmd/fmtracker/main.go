// Command fmtracker loads or synthesizes a song and either streams it live or
// renders it to a WAV file.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/mudtracker/fmengine/pkg/audio"
	"github.com/mudtracker/fmengine/pkg/format"
	"github.com/mudtracker/fmengine/pkg/synth"
	"github.com/mudtracker/fmengine/pkg/tracker"
)

func main() {
	sampleRate := flag.Int("rate", 44100, "output sample rate")
	wavOut := flag.String("wav", "", "render to this WAV file instead of playing live")
	duration := flag.Float64("duration", 0, "seconds to render/play (0 = whole song)")
	flag.Parse()

	var song *tracker.Song

	if flag.NArg() > 0 {
		filename := flag.Arg(0)
		f, err := os.Open(filename)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error opening file: %v\n", err)
			os.Exit(1)
		}
		song, err = format.LoadSong(f)
		f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error loading file: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("loaded: %s by %s\n", song.Name, song.Author)
	} else {
		song = demoSong()
	}

	engine := synth.NewEngine(song, *sampleRate)

	secs := *duration
	if secs <= 0 {
		secs = engine.SongLength()
		if secs <= 0 {
			secs = 10
		}
	}

	if *wavOut != "" {
		out, err := os.Create(*wavOut)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error creating %s: %v\n", *wavOut, err)
			os.Exit(1)
		}
		defer out.Close()
		if err := audio.ExportWAV(engine, out, *sampleRate, secs); err != nil {
			fmt.Fprintf(os.Stderr, "error rendering WAV: %v\n", err)
			os.Exit(1)
		}
		return
	}

	rt, err := audio.NewRealtimeOutput(engine, *sampleRate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening audio device: %v\n", err)
		os.Exit(1)
	}
	defer rt.Close()

	engine.Play()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	select {
	case <-time.After(time.Duration(secs * float64(time.Second))):
	case <-sigCh:
	}
}

// demoSong builds a short song exercising a handful of channels, for running
// without an input file.
func demoSong() *tracker.Song {
	song := tracker.NewSong()
	song.Name = "demo"

	pat := song.Patterns[0]
	pat.Rows[0][0] = tracker.Cell{Note: 60, Instr: 0, Vol: 99, Fx: tracker.Empty}
	pat.Rows[16][0] = tracker.Cell{Note: 64, Instr: 0, Vol: 99, Fx: tracker.Empty}
	pat.Rows[32][0] = tracker.Cell{Note: 67, Instr: 0, Vol: 99, Fx: tracker.Empty}
	pat.Rows[48][0] = tracker.Cell{Note: tracker.NoteOff, Fx: tracker.Empty}

	pat.Rows[0][1] = tracker.Cell{Note: 48, Instr: 0, Vol: 80, Fx: tracker.Empty}
	pat.Rows[32][1] = tracker.Cell{Note: tracker.NoteOff, Fx: tracker.Empty}

	return song
}
