// Package devicetest provides an in-memory device.Surface for tests.
package devicetest

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/v0xg/stepdroid/internal/device"
)

// Node is a fake view-tree node that counts acquisitions and releases
type Node struct {
	Name       string
	IsEditable bool
	Children   []*Node
	// Unavailable children are reported by ChildCount but cannot be acquired.
	Unavailable map[int]bool

	acquired int
	released int
}

func (n *Node) Editable() bool  { return n.IsEditable }
func (n *Node) ChildCount() int { return len(n.Children) }

func (n *Node) Child(i int) device.Node {
	if i < 0 || i >= len(n.Children) || n.Unavailable[i] {
		return nil
	}
	c := n.Children[i]
	c.acquired++
	return c
}

func (n *Node) Release() { n.released++ }

// Balance returns an error naming the first node in the subtree whose
// acquisitions and releases differ.
func (n *Node) Balance() error {
	if n.acquired != n.released {
		return fmt.Errorf("node %s acquired %d released %d", n.Name, n.acquired, n.released)
	}
	for _, c := range n.Children {
		if err := c.Balance(); err != nil {
			return err
		}
	}
	return nil
}

// Acquired reports how many times the node was handed out.
func (n *Node) Acquired() int { return n.acquired }

// Surface records every call and answers from its fields
type Surface struct {
	mu sync.Mutex

	Width, Height int
	Screen        image.Image
	ScreenErr     error

	Root      *Node
	TextNodes map[string]*Node
	ClickOK   bool
	SetTextOK bool
	Typed     []string

	Installed map[string]bool

	Elements   map[string]string
	Visible    string
	Foreground string
	Online     bool
	ProbeErr   error

	// OnAction runs after every gesture, e.g. to swap Screen.
	OnAction func(op string)

	calls []string
}

// New returns a 1080x2400 surface that accepts clicks and text input.
func New() *Surface {
	return &Surface{
		Width:     1080,
		Height:    2400,
		ClickOK:   true,
		SetTextOK: true,
		TextNodes: map[string]*Node{},
		Installed: map[string]bool{},
		Elements:  map[string]string{},
		Online:    true,
	}
}

// Calls returns the recorded call log.
func (s *Surface) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *Surface) record(format string, args ...any) {
	op := fmt.Sprintf(format, args...)
	s.mu.Lock()
	s.calls = append(s.calls, op)
	hook := s.OnAction
	s.mu.Unlock()
	if hook != nil {
		hook(strings.Fields(op)[0])
	}
}

func (s *Surface) Tap(_ context.Context, x, y float64) error {
	s.record("tap %.0f,%.0f", x, y)
	return nil
}

func (s *Surface) Swipe(_ context.Context, x1, y1, x2, y2 float64) error {
	s.record("swipe %.0f,%.0f->%.0f,%.0f", x1, y1, x2, y2)
	return nil
}

func (s *Surface) LongPress(_ context.Context, x, y float64) error {
	s.record("longpress %.0f,%.0f", x, y)
	return nil
}

func (s *Surface) Back(context.Context) error {
	s.record("back")
	return nil
}

func (s *Surface) Home(context.Context) error {
	s.record("home")
	return nil
}

func (s *Surface) Launch(_ context.Context, id string) (bool, error) {
	if !s.Installed[id] {
		return false, nil
	}
	s.record("launch %s", id)
	s.mu.Lock()
	s.Foreground = id
	s.mu.Unlock()
	return true, nil
}

func (s *Surface) Screenshot(context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Screen, s.ScreenErr
}

func (s *Surface) Size(context.Context) (int, int, error) {
	return s.Width, s.Height, nil
}

func (s *Surface) FindNodeByText(_ context.Context, text string) (device.Node, error) {
	n, ok := s.TextNodes[text]
	if !ok {
		return nil, nil
	}
	n.acquired++
	return n, nil
}

func (s *Surface) RootNode(context.Context) (device.Node, error) {
	if s.Root == nil {
		return nil, nil
	}
	s.Root.acquired++
	return s.Root, nil
}

func (s *Surface) PerformClick(_ context.Context, n device.Node) (bool, error) {
	s.record("click %s", n.(*Node).Name)
	return s.ClickOK, nil
}

func (s *Surface) SetText(_ context.Context, n device.Node, text string) (bool, error) {
	s.record("settext %s", n.(*Node).Name)
	s.mu.Lock()
	s.Typed = append(s.Typed, text)
	s.mu.Unlock()
	return s.SetTextOK, nil
}

func (s *Surface) ElementText(_ context.Context, target string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ProbeErr != nil {
		return "", false, s.ProbeErr
	}
	text, ok := s.Elements[target]
	return text, ok, nil
}

func (s *Surface) VisibleText(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Visible, s.ProbeErr
}

func (s *Surface) ForegroundApp(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Foreground, s.ProbeErr
}

func (s *Surface) NetworkConnected(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Online, s.ProbeErr
}

// SetVisible replaces the visible text; safe while a run is in progress.
func (s *Surface) SetVisible(text string) {
	s.mu.Lock()
	s.Visible = text
	s.mu.Unlock()
}

// SetScreen replaces the current frame.
func (s *Surface) SetScreen(img image.Image) {
	s.mu.Lock()
	s.Screen = img
	s.mu.Unlock()
}

var _ device.Surface = (*Surface)(nil)
