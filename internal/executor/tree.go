package executor

import "github.com/v0xg/stepdroid/internal/device"

// FindEditable walks the tree under root depth-first, children left to
// right, and returns the first editable node. The result is either root
// itself or a descendant the caller must release. Every other node the
// search acquires is released before returning.
func FindEditable(root device.Node) device.Node {
	if root == nil {
		return nil
	}
	if root.Editable() {
		return root
	}
	for i := 0; i < root.ChildCount(); i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		found := FindEditable(child)
		if found == nil {
			child.Release()
			continue
		}
		if found != child {
			child.Release()
		}
		return found
	}
	return nil
}
