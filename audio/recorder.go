package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"

	"murmur/log"
)

const DefaultMaxDuration = 5 * time.Minute

// normalizeCapture converts a finished capture; tests replace it to force
// the raw fallback.
var normalizeCapture = normalize

var (
	ErrCaptureActive = errors.New("a capture is already active")
	ErrNotRecording  = errors.New("no capture active and nothing recorded yet")
)

type RecorderConfig struct {
	// Dir holds temporary audio files. Defaults to <os temp>/murmur.
	Dir string
	// MaxDuration stops a capture on its own. Defaults to DefaultMaxDuration.
	MaxDuration time.Duration
	// SilenceStop stops a capture after this much quiet following speech.
	// Zero disables it.
	SilenceStop time.Duration
}

// Recorder owns the single capture slot of a device. Each capture is
// written as WAV in the device's format and normalized to 16 kHz mono on
// Stop.
type Recorder struct {
	device CaptureDevice
	cfg    RecorderConfig

	mu      sync.Mutex
	active  *recording
	last    string
	tracked []string
	closed  bool
}

type recording struct {
	id      string
	rawPath string
	outPath string
	started time.Time
	format  CaptureConfig

	file *os.File
	enc  *wav.Encoder

	sendMu   sync.Mutex
	sendDone bool
	blocks   chan []byte
	dropped  atomic.Int64

	writeDone chan struct{}
	writeErr  error
	frames    int

	timer         *time.Timer
	deviceStopped bool
	autoStop      chan struct{}
	autoOnce      sync.Once
}

func NewRecorder(device CaptureDevice, cfg RecorderConfig) *Recorder {
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(os.TempDir(), "murmur")
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultMaxDuration
	}
	return &Recorder{device: device, cfg: cfg}
}

// Start opens a new capture. The returned channel is closed if the capture
// stops on its own (duration ceiling or silence); the caller still calls
// Stop to collect the file.
func (r *Recorder) Start() (<-chan struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, errors.New("recorder closed")
	}
	if r.active != nil {
		return nil, ErrCaptureActive
	}
	if err := os.MkdirAll(r.cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}

	id := uuid.NewString()[:8]
	rec := &recording{
		id:        id,
		rawPath:   filepath.Join(r.cfg.Dir, id+"_raw.wav"),
		outPath:   filepath.Join(r.cfg.Dir, id+".wav"),
		format:    r.device.Config(),
		blocks:    make(chan []byte, 1024),
		writeDone: make(chan struct{}),
		autoStop:  make(chan struct{}),
	}
	if rec.format.Channels == 0 {
		rec.format.Channels = Channels
	}
	if rec.format.SampleRate == 0 {
		rec.format.SampleRate = SampleRate
	}

	f, err := os.Create(rec.rawPath)
	if err != nil {
		return nil, fmt.Errorf("creating capture file: %w", err)
	}
	r.tracked = append(existing(r.tracked), rec.rawPath, rec.outPath)
	rec.file = f
	rec.enc = wav.NewEncoder(f, int(rec.format.SampleRate), BitsPerSample, int(rec.format.Channels), 1)
	// header first, so an empty capture is still a valid file
	if err := rec.enc.Write(rec.buffer(nil)); err != nil {
		f.Close()
		removeQuiet(rec.rawPath)
		return nil, fmt.Errorf("writing wav header: %w", err)
	}

	var monitor *silenceMonitor
	if r.cfg.SilenceStop > 0 {
		monitor = newSilenceMonitor(r.cfg.SilenceStop, int(rec.format.SampleRate))
	}
	go rec.writeLoop(monitor, func() { r.autoStopCapture(rec, "silence") })

	r.device.SetCallback(func(data []byte, _ uint32) {
		buf := make([]byte, len(data))
		copy(buf, data)
		rec.send(buf)
	})
	if err := r.device.Start(); err != nil {
		r.device.ClearCallback()
		rec.closeBlocks()
		<-rec.writeDone
		f.Close()
		removeQuiet(rec.rawPath)
		return nil, fmt.Errorf("starting capture on %s: %w", r.device.DeviceName(), err)
	}

	rec.started = time.Now()
	rec.timer = time.AfterFunc(r.cfg.MaxDuration, func() { r.autoStopCapture(rec, "max_duration") })
	r.active = rec
	log.Infof("capture_start id=%s device=%q rate=%d ch=%d", id, r.device.DeviceName(), rec.format.SampleRate, rec.format.Channels)
	return rec.autoStop, nil
}

// Stop ends the active capture and returns the normalized file. With no
// capture active it returns the last finalized file, or ErrNotRecording.
func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()
	rec := r.active
	if rec == nil {
		last := r.last
		r.mu.Unlock()
		if last == "" {
			return "", ErrNotRecording
		}
		return last, nil
	}
	r.stopDeviceLocked(rec)
	r.active = nil
	r.mu.Unlock()

	path, err := r.finalize(rec)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.last = path
	r.mu.Unlock()
	return path, nil
}

// Discard ends the active capture and deletes its file without
// normalizing. It is a no-op when nothing is recording.
func (r *Recorder) Discard() {
	r.mu.Lock()
	rec := r.active
	if rec == nil {
		r.mu.Unlock()
		return
	}
	r.stopDeviceLocked(rec)
	r.active = nil
	r.mu.Unlock()

	<-rec.writeDone
	rec.enc.Close()
	rec.file.Close()
	removeQuiet(rec.rawPath)
	r.untrack(rec.rawPath, rec.outPath)
	log.Infof("capture_discard id=%s", rec.id)
}

// Active reports whether a capture is running or awaiting Stop.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Close stops any active capture and deletes every file this recorder
// created. It may be called more than once.
func (r *Recorder) Close() {
	if r.Active() {
		r.Stop()
	}
	r.mu.Lock()
	files := r.tracked
	r.tracked = nil
	r.last = ""
	r.closed = true
	r.mu.Unlock()

	for _, f := range files {
		removeQuiet(f)
	}
}

func (r *Recorder) untrack(paths ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.tracked[:0]
	for _, t := range r.tracked {
		if !slices.Contains(paths, t) {
			kept = append(kept, t)
		}
	}
	r.tracked = kept
}

// existing drops paths whose files are already gone, usually deleted by
// the caller after upload.
func existing(paths []string) []string {
	kept := paths[:0]
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			kept = append(kept, p)
		}
	}
	return kept
}

func (r *Recorder) autoStopCapture(rec *recording, reason string) {
	r.mu.Lock()
	if r.active != rec || rec.deviceStopped {
		r.mu.Unlock()
		return
	}
	r.stopDeviceLocked(rec)
	r.mu.Unlock()

	log.Infof("capture_autostop id=%s reason=%s after=%s", rec.id, reason, time.Since(rec.started).Round(time.Millisecond))
	rec.autoOnce.Do(func() { close(rec.autoStop) })
}

func (r *Recorder) stopDeviceLocked(rec *recording) {
	if rec.deviceStopped {
		return
	}
	rec.deviceStopped = true
	if rec.timer != nil {
		rec.timer.Stop()
	}
	r.device.Stop()
	r.device.ClearCallback()
	rec.closeBlocks()
}

func (r *Recorder) finalize(rec *recording) (string, error) {
	<-rec.writeDone
	err := rec.writeErr
	if cerr := rec.enc.Close(); err == nil {
		err = cerr
	}
	if cerr := rec.file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		removeQuiet(rec.rawPath)
		return "", fmt.Errorf("writing capture %s: %w", rec.id, err)
	}
	if n := rec.dropped.Load(); n > 0 {
		log.Warnf("capture %s dropped %d blocks", rec.id, n)
	}

	if err := normalizeCapture(rec.rawPath, rec.outPath); err != nil {
		log.Warnf("normalizing capture %s failed, using raw audio: %v", rec.id, err)
		if err := copyFile(rec.rawPath, rec.outPath); err != nil {
			return rec.rawPath, nil
		}
		return rec.outPath, nil
	}
	removeQuiet(rec.rawPath)
	r.untrack(rec.rawPath)
	log.Infof("capture_done id=%s frames=%d audio_s=%.2f", rec.id, rec.frames, float64(rec.frames)/float64(rec.format.SampleRate))
	return rec.outPath, nil
}

func (rec *recording) buffer(data []int) *goaudio.IntBuffer {
	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: int(rec.format.Channels), SampleRate: int(rec.format.SampleRate)},
		Data:           data,
		SourceBitDepth: BitsPerSample,
	}
}

func (rec *recording) send(block []byte) {
	rec.sendMu.Lock()
	defer rec.sendMu.Unlock()
	if rec.sendDone {
		return
	}
	select {
	case rec.blocks <- block:
	default:
		rec.dropped.Add(1)
	}
}

func (rec *recording) closeBlocks() {
	rec.sendMu.Lock()
	defer rec.sendMu.Unlock()
	if !rec.sendDone {
		rec.sendDone = true
		close(rec.blocks)
	}
}

func (rec *recording) writeLoop(monitor *silenceMonitor, onSilence func()) {
	defer close(rec.writeDone)
	channels := int(rec.format.Channels)
	fired := false
	var samples []int
	for block := range rec.blocks {
		n := len(block) / 2
		n -= n % channels
		samples = samples[:0]
		for i := range n {
			samples = append(samples, int(int16(binary.LittleEndian.Uint16(block[i*2:]))))
		}
		if rec.writeErr == nil {
			rec.writeErr = rec.enc.Write(rec.buffer(samples))
		}
		rec.frames += n / channels

		if monitor != nil && !fired && monitor.Feed(samples, channels) {
			fired = true
			go onSilence()
		}
	}
}

func removeQuiet(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warnf("removing %s: %v", path, err)
	}
}
