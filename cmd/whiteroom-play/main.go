package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
	"gopkg.in/yaml.v3"

	whiteroom "github.com/bretbouchard/white-room-pedalboard-sub008"
	"github.com/bretbouchard/white-room-pedalboard-sub008/oto"
	"github.com/bretbouchard/white-room-pedalboard-sub008/playback"
	"github.com/bretbouchard/white-room-pedalboard-sub008/playback/gomidi"
	"github.com/bretbouchard/white-room-pedalboard-sub008/synth"
	"github.com/bretbouchard/white-room-pedalboard-sub008/version"
)

func main() {
	stdout := flag.Bool("s", false, "Do not write files; write to standard output instead.")
	help := flag.Bool("h", false, "Show help.")
	directory := flag.String("o", "", "Directory where to output all files. Created if needed. Defaults to the working directory.")
	play := flag.Bool("p", false, "Play the input songs (default behaviour when no other output is defined).")
	rawOut := flag.Bool("r", false, "Output the rendered song as a .raw float32 file.")
	wavOut := flag.Bool("w", false, "Output the rendered song as a .wav file.")
	pcm := flag.Bool("c", false, "Convert audio to 16-bit signed PCM when outputting.")
	live := flag.Bool("l", false, "Live mode: play MIDI input through the song's voice pool instead of rendering the notes.")
	midiPrefix := flag.String("midi", "", "In live mode, open the first MIDI input whose name starts with this prefix; empty takes the first device.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if flag.NArg() == 0 || *help {
		flag.Usage()
		os.Exit(0)
	}
	if !*rawOut && !*wavOut && !*live {
		*play = true
	}
	process := func(filename string) error {
		inputBytes, err := os.ReadFile(filename)
		if err != nil {
			return fmt.Errorf("could not read file %v: %v", filename, err)
		}
		song := whiteroom.NewSong()
		if err := yaml.Unmarshal(inputBytes, &song); err != nil {
			return fmt.Errorf("the song could not be parsed as .yml: %v", err)
		}
		if err := song.Validate(); err != nil {
			return fmt.Errorf("invalid song %v: %v", filename, err)
		}
		if *live {
			return runLive(&song, *midiPrefix)
		}
		buffer, err := synth.RenderSong(&song, 512)
		if err != nil {
			return fmt.Errorf("rendering failed: %v", err)
		}
		if *play {
			audioContext, err := oto.NewContext(song.SampleRate)
			if err != nil {
				return fmt.Errorf("could not acquire audio context: %v", err)
			}
			defer audioContext.Close()
			waiter := audioContext.Play(buffer.Source())
			waiter.Wait()
			waiter.Close()
		}
		if *rawOut {
			raw, err := buffer.Raw(*pcm)
			if err != nil {
				return fmt.Errorf("could not generate .raw file: %v", err)
			}
			if err := output(filename, *directory, *stdout, ".raw", raw); err != nil {
				return err
			}
		}
		if *wavOut {
			if err := writeWav(filename, *directory, *stdout, &song, buffer, *pcm); err != nil {
				return err
			}
		}
		return nil
	}
	retCode := 0
	for _, param := range flag.Args() {
		if err := process(param); err != nil {
			fmt.Fprintf(os.Stderr, "error processing %v: %v\n", param, err)
			retCode = 1
		}
	}
	os.Exit(retCode)
}

// runLive plays MIDI input through the song's pool, printing the monitor
// snapshots the engine publishes.
func runLive(song *whiteroom.Song, midiPrefix string) error {
	broker := playback.NewBroker()
	engine, _, err := synth.NewEngine(song, broker, 512)
	if err != nil {
		return err
	}
	sched := engine.Scheduler()
	if song.Loop.Enabled {
		sched.SetLoopPoints(song.Loop.Start, song.Loop.End)
	}
	midiContext := gomidi.NewContext()
	defer midiContext.Close()
	if err := midiContext.TryToOpenBy(midiPrefix, midiPrefix == ""); err != nil {
		return err
	}
	audioContext, err := oto.NewContext(song.SampleRate)
	if err != nil {
		return fmt.Errorf("could not acquire audio context: %v", err)
	}
	defer audioContext.Close()

	sched.Play()
	waiter := audioContext.Play(engine.Source(512))
	defer waiter.Close()

	latency := int64(song.SampleRate / 10)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	fmt.Fprintln(os.Stderr, "playing; press ctrl-c to quit")
	for range ticker.C {
		midiContext.Pump(sched, latency)
		for {
			msg, ok := playback.TimeoutReceive(broker.ToMonitor, time.Millisecond)
			if !ok {
				break
			}
			if msg.Sounding > 0 {
				fmt.Fprintf(os.Stderr, "\r%d.%d.%03d %d voices (%.0f%%)   ",
					msg.Position.Bar, msg.Position.Beat, msg.Position.Tick,
					msg.Sounding, msg.PolyphonyUsage*100)
			}
		}
	}
	return nil
}

func output(filename, directory string, stdout bool, extension string, contents []byte) error {
	if stdout {
		os.Stdout.Write(contents)
		return nil
	}
	f, err := outputFile(filename, directory, extension)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(contents); err != nil {
		return fmt.Errorf("could not write file: %v", err)
	}
	return nil
}

// writeWav saves the buffer as .wav: 16-bit PCM through go-audio when -c is
// given, 32-bit float with the engine's own header writer otherwise.
func writeWav(filename, directory string, stdout bool, song *whiteroom.Song, buffer whiteroom.AudioBuffer, pcm16 bool) error {
	if !pcm16 || stdout {
		contents, err := buffer.Wav(song.SampleRate, pcm16)
		if err != nil {
			return fmt.Errorf("could not generate .wav file: %v", err)
		}
		return output(filename, directory, stdout, ".wav", contents)
	}
	f, err := outputFile(filename, directory, ".wav")
	if err != nil {
		return err
	}
	defer f.Close()
	enc := gowav.NewEncoder(f, song.SampleRate, 16, 2, 1)
	data := make([]int, len(buffer)*2)
	for i, frame := range buffer {
		data[i*2] = clamp16(frame[0])
		data[i*2+1] = clamp16(frame[1])
	}
	intBuf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 2, SampleRate: song.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(intBuf); err != nil {
		return fmt.Errorf("could not write .wav data: %v", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("could not finalize .wav file: %v", err)
	}
	return nil
}

func clamp16(v float32) int {
	s := int(v * 32767)
	if s > 32767 {
		return 32767
	}
	if s < -32768 {
		return -32768
	}
	return s
}

func outputFile(filename, directory, extension string) (*os.File, error) {
	_, name := filepath.Split(filename)
	dir := directory
	if dir == "" {
		var err error
		dir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("could not get working directory, specify the output directory explicitly: %v", err)
		}
	}
	name = strings.TrimSuffix(name, filepath.Ext(name)) + extension
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, fmt.Errorf("could not create output directory %v: %v", dir, err)
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("could not create file: %v", err)
	}
	return f, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] songfile.yml [songfile2.yml ...]\n", os.Args[0])
	flag.PrintDefaults()
}
