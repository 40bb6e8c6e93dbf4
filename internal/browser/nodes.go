package browser

import (
	"context"
	"fmt"
	"math"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/v0xg/stepdroid/internal/device"
)

// node is a DOM element handle. Children are fetched once; the ones never
// handed out are released together with their parent.
type node struct {
	el       *rod.Element
	kids     rod.Elements
	fetched  bool
	taken    map[int]bool
	released bool
}

func newNode(el *rod.Element) *node { return &node{el: el, taken: map[int]bool{}} }

func (n *node) Editable() bool {
	res, err := n.el.Eval(`() => {
		if (this.isContentEditable) return true;
		const tag = this.tagName;
		if (tag === 'TEXTAREA') return !this.disabled && !this.readOnly;
		if (tag !== 'INPUT') return false;
		const t = (this.type || 'text').toLowerCase();
		const textual = ['text', 'search', 'email', 'url', 'tel', 'password', 'number'];
		return textual.includes(t) && !this.disabled && !this.readOnly;
	}`)
	return err == nil && res.Value.Bool()
}

func (n *node) children() rod.Elements {
	if !n.fetched {
		n.fetched = true
		kids, err := n.el.Elements(":scope > *")
		if err == nil {
			n.kids = kids
		}
	}
	return n.kids
}

func (n *node) ChildCount() int { return len(n.children()) }

func (n *node) Child(i int) device.Node {
	kids := n.children()
	if i < 0 || i >= len(kids) || n.taken[i] {
		return nil
	}
	n.taken[i] = true
	return newNode(kids[i])
}

func (n *node) Release() {
	if n.released {
		return
	}
	n.released = true
	for i, k := range n.kids {
		if !n.taken[i] {
			k.Release()
		}
	}
	n.el.Release()
}

// element evaluates js (which must return an element or null) to a handle.
func (s *Surface) element(ctx context.Context, js string, args ...interface{}) (*rod.Element, error) {
	p := s.p(ctx)
	obj, err := p.Evaluate(rod.Eval(js, args...).ByObject())
	if err != nil {
		return nil, err
	}
	if obj.ObjectID == "" || obj.Subtype == proto.RuntimeRemoteObjectSubtypeNull {
		return nil, nil
	}
	return p.ElementFromObject(obj)
}

// findByText picks the innermost visible element whose own label matches.
const findByText = `(text) => {
	const want = text.trim().toLowerCase();
	const label = el => (el.getAttribute('aria-label') || el.innerText || el.value || el.placeholder || el.title || el.alt || '').trim().toLowerCase();
	let best = null;
	for (const el of document.querySelectorAll('body *')) {
		if (!el.offsetParent && el.tagName !== 'BODY') continue;
		const l = label(el);
		if (l === want || (l.includes(want) && l.length < want.length * 4)) best = el;
	}
	return best;
}`

func (s *Surface) FindNodeByText(ctx context.Context, text string) (device.Node, error) {
	el, err := s.element(ctx, findByText, text)
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", text, err)
	}
	if el == nil {
		return nil, nil
	}
	return newNode(el), nil
}

func (s *Surface) RootNode(ctx context.Context) (device.Node, error) {
	el, err := s.element(ctx, `() => document.body`)
	if err != nil {
		return nil, fmt.Errorf("document body: %w", err)
	}
	if el == nil {
		return nil, nil
	}
	return newNode(el), nil
}

func (s *Surface) PerformClick(ctx context.Context, n device.Node) (bool, error) {
	bn, ok := n.(*node)
	if !ok {
		return false, fmt.Errorf("foreign node %T", n)
	}
	if err := bn.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false, nil
	}
	s.settle(ctx)
	return true, nil
}

func (s *Surface) SetText(ctx context.Context, n device.Node, text string) (bool, error) {
	bn, ok := n.(*node)
	if !ok {
		return false, fmt.Errorf("foreign node %T", n)
	}
	el := bn.el.Context(ctx)
	if err := el.Focus(); err != nil {
		return false, nil
	}
	if err := el.SelectAllText(); err != nil {
		return false, nil
	}
	if err := el.Input(text); err != nil {
		return false, nil
	}
	return true, nil
}

// ElementText looks an element up by its label and reports its text.
func (s *Surface) ElementText(ctx context.Context, target string) (string, bool, error) {
	res, err := s.p(ctx).Eval(`(text) => {
		const find = `+findByText+`;
		const el = find(text);
		if (!el) return null;
		return (el.innerText || el.value || el.getAttribute('aria-label') || '').trim();
	}`, target)
	if err != nil {
		return "", false, err
	}
	if res.Value.Nil() {
		return "", false, nil
	}
	return res.Value.Str(), true, nil
}

// Describe lists visible interactive elements with normalized centres.
func (s *Surface) Describe(ctx context.Context) ([]device.Element, error) {
	res, err := s.p(ctx).Eval(`() => {
		const out = [];
		const seen = new Set();
		const w = window.innerWidth || 1, h = window.innerHeight || 1;
		const add = (el, kind, label) => {
			if (!el.offsetParent || seen.has(el)) return;
			seen.add(el);
			const r = el.getBoundingClientRect();
			if (r.width === 0 || r.height === 0) return;
			out.push({
				label: (label || '').trim().slice(0, 50),
				kind: kind,
				cx: (r.left + r.width / 2) / w,
				cy: (r.top + r.height / 2) / h,
			});
		};
		document.querySelectorAll('button, [role="button"], input[type="submit"], input[type="button"]').forEach(el =>
			add(el, 'button', el.getAttribute('aria-label') || el.textContent || el.value));
		document.querySelectorAll('input:not([type="hidden"]):not([type="submit"]):not([type="button"]), textarea').forEach(el =>
			add(el, el.type || 'text', el.getAttribute('aria-label') || el.placeholder || el.name));
		document.querySelectorAll('a[href]').forEach(el => add(el, 'link', el.textContent));
		document.querySelectorAll('select').forEach(el => add(el, 'select', el.getAttribute('aria-label') || el.name));
		return out;
	}`)
	if err != nil {
		return nil, err
	}

	var elements []device.Element
	for _, v := range res.Value.Arr() {
		elements = append(elements, device.Element{
			Label: v.Get("label").Str(),
			Kind:  v.Get("kind").Str(),
			X:     normalize(v.Get("cx").Num()),
			Y:     normalize(v.Get("cy").Num()),
		})
	}
	return elements, nil
}

// normalize maps a [0,1] fraction of the viewport to [0,1000].
func normalize(f float64) int {
	return int(math.Round(f * 1000))
}
