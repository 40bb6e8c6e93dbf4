// Package device defines the automation surface the engine drives.
// Concrete surfaces live elsewhere (see internal/browser).
package device

import (
	"context"
	"image"
)

// Node is a borrowed handle into the surface's view tree.
// Whoever acquires a Node must Release it exactly once.
type Node interface {
	Editable() bool
	// ChildCount and Child expose children left to right. Child returns
	// nil when the child cannot be acquired.
	ChildCount() int
	Child(i int) Node
	Release()
}

// Actuator performs input gestures. Coordinates are absolute pixels.
type Actuator interface {
	Tap(ctx context.Context, x, y float64) error
	Swipe(ctx context.Context, x1, y1, x2, y2 float64) error
	LongPress(ctx context.Context, x, y float64) error
	Back(ctx context.Context) error
	Home(ctx context.Context) error
	Launch(ctx context.Context, identifier string) (bool, error)
}

// Inspector exposes what is on screen.
type Inspector interface {
	// Screenshot returns nil, nil when capture is unavailable.
	Screenshot(ctx context.Context) (image.Image, error)
	Size(ctx context.Context) (width, height int, err error)
	// FindNodeByText returns nil, nil when nothing matches.
	FindNodeByText(ctx context.Context, text string) (Node, error)
	RootNode(ctx context.Context) (Node, error)
	PerformClick(ctx context.Context, n Node) (bool, error)
	SetText(ctx context.Context, n Node, text string) (bool, error)
}

// Prober answers workflow condition queries.
type Prober interface {
	// ElementText reports whether an element described by target exists and
	// its visible text.
	ElementText(ctx context.Context, target string) (text string, found bool, err error)
	VisibleText(ctx context.Context) (string, error)
	ForegroundApp(ctx context.Context) (string, error)
	NetworkConnected(ctx context.Context) (bool, error)
}

// Surface is a complete device automation surface.
type Surface interface {
	Actuator
	Inspector
	Prober
}

// Element is one interactive element with its centre in normalized
// [0,1000] coordinates, as shown to the planner.
type Element struct {
	Label string `json:"label"`
	Kind  string `json:"kind"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
}

// Describer is implemented by surfaces that can summarise their elements.
type Describer interface {
	Describe(ctx context.Context) ([]Element, error)
}
