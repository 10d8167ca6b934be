// Package voice gates the voice worker lane so the assistant never listens
// to its own speech or overlaps two spoken queries.
package voice

import (
	"errors"
	"sync/atomic"
)

// ErrBusy is returned when a voice query is already being processed.
var ErrBusy = errors.New("voice query already in progress")

// Lane holds the speaking and processing flags.
type Lane struct {
	speaking   atomic.Bool
	processing atomic.Bool
}

func NewLane() *Lane { return &Lane{} }

// TryBegin claims the processing flag. The returned func releases it.
func (l *Lane) TryBegin() (func(), error) {
	if !l.processing.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			l.processing.Store(false)
		}
	}, nil
}

// SetSpeaking marks reply playback as started or finished.
func (l *Lane) SetSpeaking(v bool) { l.speaking.Store(v) }

func (l *Lane) Speaking() bool   { return l.speaking.Load() }
func (l *Lane) Processing() bool { return l.processing.Load() }

// CanListen reports whether the microphone may be opened.
func (l *Lane) CanListen() bool {
	return !l.speaking.Load() && !l.processing.Load()
}
