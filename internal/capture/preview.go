package capture

import (
	"sync"

	"gocv.io/x/gocv"
)

// PreviewWindow shows frames in a native OpenCV window.
type PreviewWindow struct {
	mu     sync.Mutex
	window *gocv.Window
}

// NewPreviewWindow opens a native window titled name.
func NewPreviewWindow(name string) *PreviewWindow {
	return &PreviewWindow{window: gocv.NewWindow(name)}
}

// Show draws frame and pumps the window event loop.
func (p *PreviewWindow) Show(frame *gocv.Mat) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.window == nil || frame == nil || frame.Empty() {
		return nil
	}
	p.window.IMShow(*frame)
	p.window.WaitKey(1)
	return nil
}

// Close destroys the native window.
func (p *PreviewWindow) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.window == nil {
		return nil
	}
	err := p.window.Close()
	p.window = nil
	return err
}
