package client

import (
	"strconv"
	"sync"

	"github.com/gosuri/uiprogress"
)

type progress struct {
	ui  *uiprogress.Progress
	bar *uiprogress.Bar

	mu   sync.Mutex
	peer string
}

func startProgress(numPieces int) *progress {
	p := &progress{ui: uiprogress.New()}
	p.ui.Start()
	p.bar = p.ui.AddBar(numPieces)
	p.bar.AppendCompleted()
	p.bar.AppendFunc(func(b *uiprogress.Bar) string {
		return "pieces: " + strconv.Itoa(b.Current()) + "/" + strconv.Itoa(numPieces)
	})
	p.bar.AppendFunc(func(b *uiprogress.Bar) string {
		p.mu.Lock()
		defer p.mu.Unlock()
		return "peer: " + p.peer
	})
	p.bar.AppendElapsed()
	return p
}

func (p *progress) setPeer(addr string) {
	p.mu.Lock()
	p.peer = addr
	p.mu.Unlock()
}

// reset rewinds the bar when a new peer starts over from the first piece.
func (p *progress) reset() {
	p.bar.Set(0)
}

func (p *progress) incr() {
	p.bar.Incr()
}

func (p *progress) stop() {
	p.ui.Stop()
}
