package whail

import (
	"fmt"
	"time"

	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/go-units"
)

// PullProgress accumulates what a pull stream reported, for the summary line
// logged once the stream reaches its terminal event.
type PullProgress struct {
	Layers   map[string]int64 // layer ID -> largest total seen
	Messages int
	Status   string // last status line, e.g. "Status: Downloaded newer image for ..."
	started  time.Time
	Elapsed  time.Duration
}

func newPullProgress() *PullProgress {
	return &PullProgress{Layers: make(map[string]int64), started: time.Now()}
}

func (p *PullProgress) observe(msg jsonmessage.JSONMessage) {
	p.Messages++
	if msg.ID != "" && msg.Progress != nil && msg.Progress.Total > p.Layers[msg.ID] {
		p.Layers[msg.ID] = msg.Progress.Total
	}
	if msg.ID == "" && msg.Status != "" {
		p.Status = msg.Status
	}
}

func (p *PullProgress) finish() {
	p.Elapsed = time.Since(p.started)
}

// TotalBytes is the sum of the largest reported size of every layer.
func (p *PullProgress) TotalBytes() int64 {
	var n int64
	for _, size := range p.Layers {
		n += size
	}
	return n
}

// Summary renders a compact one-line description of the pull.
func (p *PullProgress) Summary() string {
	return fmt.Sprintf("%d layers, %s in %s",
		len(p.Layers), units.HumanSize(float64(p.TotalBytes())), FormatDuration(p.Elapsed))
}

// FormatDuration returns a compact duration string with sub-second precision.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := d.Seconds()
	switch {
	case secs < 60:
		return fmt.Sprintf("%.1fs", secs)
	case secs < 3600:
		return fmt.Sprintf("%dm %ds", int(secs)/60, int(secs)%60)
	default:
		return fmt.Sprintf("%dh %dm", int(secs)/3600, (int(secs)%3600)/60)
	}
}
