// Package engine drives the recurring environment-analysis cycle:
// classify → fuse → track → coordinate, strictly sequential within a tick,
// single-flight across ticks. External capture collaborators (window
// introspection, OCR, audio classification) push their latest observation
// into the inbox; the engine consumes whatever is fresh at tick time.
package engine

import (
	"sync"
	"time"

	"github.com/Fayeq-qamar/velvet-app-sub002/internal/signal"
)

// Inbox is a latest-value mailbox per signal source. Writers never block and
// later writes simply replace earlier ones; the analysis tick reads a
// consistent snapshot.
type Inbox struct {
	mu sync.Mutex

	window   signal.WindowInfo
	windowAt time.Time

	screen   signal.ScreenText
	screenAt time.Time

	audio   signal.AudioContext
	audioAt time.Time
}

// NewInbox creates an empty inbox.
func NewInbox() *Inbox {
	return &Inbox{}
}

// SetWindow records the latest window observation.
func (in *Inbox) SetWindow(w signal.WindowInfo, at time.Time) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.window = w
	in.windowAt = at
}

// SetScreenText records the latest OCR capture.
func (in *Inbox) SetScreenText(t signal.ScreenText, at time.Time) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.screen = t
	in.screenAt = at
}

// SetAudio records the latest audio classification.
func (in *Inbox) SetAudio(a signal.AudioContext, at time.Time) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.audio = a
	in.audioAt = at
}

// Snapshot returns the observations fresher than maxAge as of now. Stale
// sources are reported absent so they don't vote on an environment the user
// already left.
func (in *Inbox) Snapshot(now time.Time, maxAge time.Duration) ObservationSet {
	in.mu.Lock()
	defer in.mu.Unlock()

	var obs ObservationSet
	if !in.windowAt.IsZero() && now.Sub(in.windowAt) <= maxAge {
		obs.Window = in.window
		obs.HasWindow = true
	}
	if !in.screenAt.IsZero() && now.Sub(in.screenAt) <= maxAge {
		obs.Screen = in.screen
		obs.HasScreen = true
	}
	if !in.audioAt.IsZero() && now.Sub(in.audioAt) <= maxAge {
		obs.Audio = in.audio
		obs.HasAudio = true
	}
	return obs
}

// ObservationSet is one tick's view of the signal sources.
type ObservationSet struct {
	Window    signal.WindowInfo
	HasWindow bool
	Screen    signal.ScreenText
	HasScreen bool
	Audio     signal.AudioContext
	HasAudio  bool
}

// Kinds lists the signal kinds present in the set.
func (o ObservationSet) Kinds() []signal.Kind {
	kinds := make([]signal.Kind, 0, 3)
	if o.HasWindow {
		kinds = append(kinds, signal.KindWindow)
	}
	if o.HasScreen {
		kinds = append(kinds, signal.KindScreenText)
	}
	if o.HasAudio {
		kinds = append(kinds, signal.KindAudio)
	}
	return kinds
}
