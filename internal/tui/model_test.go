package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shopassist/internal/domain"
	"shopassist/internal/intent"
	"shopassist/internal/notify"
	"shopassist/internal/service"
)

type fakePort struct {
	queries []string
	cart    []domain.CartItem
	err     error
}

func (f *fakePort) Query(_ context.Context, text string) (service.QueryResponse, error) {
	f.queries = append(f.queries, text)
	if f.err != nil {
		return service.QueryResponse{}, f.err
	}
	f.cart = []domain.CartItem{{ID: "1", Description: "pink t-shirt", Price: 100, Quantity: 1}}
	return service.QueryResponse{
		Response: "Added the pink t-shirt. Anything else?",
		Images:   []domain.SearchResult{{ID: "1", Filename: "shirt.jpg", Description: "pink t-shirt", Price: 100}},
		Action:   intent.ResultAddedToCart,
	}, nil
}

func (f *fakePort) Cart(context.Context) ([]domain.CartItem, error) { return f.cart, nil }

func step(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func TestEnterSendsQueryAndRefreshesCart(t *testing.T) {
	port := &fakePort{}
	m, _ := step(t, New(port, nil), tea.WindowSizeMsg{Width: 120, Height: 40})
	m.input.SetValue("add to cart")

	m, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.True(t, m.pending)
	assert.Equal(t, "", m.input.Value())

	reply := cmd()
	require.IsType(t, replyMsg{}, reply)
	assert.Equal(t, []string{"add to cart"}, port.queries)

	m, cmd = step(t, m, reply)
	assert.False(t, m.pending)
	assert.Equal(t, "Last action: added_to_cart", m.status)
	require.NotNil(t, cmd)

	m, _ = step(t, m, cmd())
	require.Len(t, m.cart, 1)
	assert.Contains(t, m.View(), "pink t-shirt")
	assert.Contains(t, m.View(), "Total: Rs 100.00")
}

func TestEnterIgnoredWhilePending(t *testing.T) {
	m := New(&fakePort{}, nil)
	m.pending = true
	m.input.SetValue("hello")
	_, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
}

func TestQueryErrorShownInStatus(t *testing.T) {
	m := New(&fakePort{err: errors.New("boom")}, nil)
	m, _ = step(t, m, replyMsg{query: "x", err: errors.New("boom")})
	assert.Equal(t, "Error: boom", m.status)
}

func TestEventTriggersCartRefresh(t *testing.T) {
	events := make(chan notify.Notification, 1)
	m := New(&fakePort{}, events)
	m, cmd := step(t, m, eventMsg{n: notify.CheckedOut("https://pay"), ok: true})
	assert.Equal(t, "Checkout started: https://pay", m.status)
	assert.NotNil(t, cmd)

	m, _ = step(t, m, eventMsg{})
	assert.Equal(t, "Notification stream closed.", m.status)
}

func TestDescribeDiscount(t *testing.T) {
	assert.Equal(t, "Discount 12%, final amount Rs 88.00", describeEvent(notify.Discounted(12, 88)))
}

func TestRenderCartEmpty(t *testing.T) {
	assert.True(t, strings.HasSuffix(renderCart(nil), "Empty."))
}

func TestHighlightBestSentenceKeepsText(t *testing.T) {
	out := highlightBestSentence("We have shirts. Jeans are on sale.", "cheap jeans")
	assert.Contains(t, out, "We have shirts.")
	assert.Contains(t, out, "Jeans are on sale.")
}
