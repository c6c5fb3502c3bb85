// ABOUTME: Decides when unseen messages qualify to be marked seen.
// ABOUTME: Combines page visibility and widget-open state into the seen-worthy rule.

package visibility

import "github.com/driftchat/widgetsync/internal/model"

// Gate tracks the two presentation flags the seen-state rule depends on:
// whether the host page is visible and whether the widget is open.
type Gate struct {
	pageVisible bool
	widgetOpen  bool
}

// NewGate creates a gate. Pages start visible; the widget starts closed.
func NewGate() *Gate {
	return &Gate{pageVisible: true}
}

// SetPageVisible records a page-visibility change and reports whether this
// was a hidden-to-visible transition.
func (g *Gate) SetPageVisible(visible bool) (becameVisible bool) {
	becameVisible = visible && !g.pageVisible
	g.pageVisible = visible
	return becameVisible
}

// SetWidgetOpen records the widget's open/closed state.
func (g *Gate) SetWidgetOpen(open bool) {
	g.widgetOpen = open
}

// PageVisible reports the current page visibility.
func (g *Gate) PageVisible() bool { return g.pageVisible }

// WidgetOpen reports whether the widget is open.
func (g *Gate) WidgetOpen() bool { return g.widgetOpen }

// SeenWorthy reports whether msg currently qualifies to be marked seen:
// not already seen, sent by an agent, page visible, widget open.
func (g *Gate) SeenWorthy(msg model.Message) bool {
	return msg.IsUnseen() &&
		msg.IsFromAgent() &&
		g.pageVisible &&
		g.widgetOpen
}

// AnySeenWorthy reports whether any message in the timeline qualifies.
func (g *Gate) AnySeenWorthy(msgs []model.Message) bool {
	for _, m := range msgs {
		if g.SeenWorthy(m) {
			return true
		}
	}
	return false
}
