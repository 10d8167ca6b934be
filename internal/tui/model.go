package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"shopassist/internal/domain"
	"shopassist/internal/notify"
	"shopassist/internal/service"
)

// AssistantPort is the TUI-facing subset of the assistant API.
type AssistantPort interface {
	Query(ctx context.Context, text string) (service.QueryResponse, error)
	Cart(ctx context.Context) ([]domain.CartItem, error)
}

const cartWidth = 34

// Model is the Bubble Tea model for the chat client.
type Model struct {
	port       AssistantPort
	events     <-chan notify.Notification
	input      textinput.Model
	viewport   viewport.Model
	transcript []string
	cart       []domain.CartItem
	status     string
	ready      bool
	pending    bool
}

type replyMsg struct {
	query string
	resp  service.QueryResponse
	err   error
}

type cartMsg struct {
	items []domain.CartItem
	err   error
}

type eventMsg struct {
	n  notify.Notification
	ok bool
}

// New creates a chat model. events may be nil when no notification stream
// is available.
func New(port AssistantPort, events <-chan notify.Notification) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about products, add to cart, bargain, check out"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{port: port, events: events, input: ti, viewport: vp, status: "Connected. Say hello."}
}

// Init starts the cursor blink, loads the cart and listens for notifications.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.fetchCart(), m.waitForEvent())
}

// Update handles key, window and background events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		fw, fh := chatBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, input line
		m.viewport.Width = max(20, msg.Width-cartWidth-fw)
		m.viewport.Height = max(3, msg.Height-reserved-fh)
		m.refresh()
		return m, nil
	case replyMsg:
		m.pending = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.refresh()
			return m, nil
		}
		m.transcript = append(m.transcript, renderReply(msg.query, msg.resp)...)
		m.status = "Last action: " + string(msg.resp.Action)
		m.refresh()
		return m, m.fetchCart()
	case cartMsg:
		if msg.err != nil {
			m.status = "Cart unavailable: " + msg.err.Error()
			return m, nil
		}
		m.cart = msg.items
		return m, nil
	case eventMsg:
		if !msg.ok {
			m.status = "Notification stream closed."
			return m, nil
		}
		m.status = describeEvent(msg.n)
		return m, tea.Batch(m.fetchCart(), m.waitForEvent())
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.pending = true
			m.status = "Thinking..."
			m.transcript = append(m.transcript, userStyle.Render("You: ")+q)
			m.input.SetValue("")
			m.refresh()
			return m, m.query(q)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the transcript, the cart panel, the input and the status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Shopping Assistant")
	chat := chatBoxStyle.Render(m.viewport.View())
	cart := cartBoxStyle.Width(cartWidth - 2).Height(m.viewport.Height).Render(renderCart(m.cart))
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	return header + "\n" + lipgloss.JoinHorizontal(lipgloss.Top, chat, cart) + "\n" + input + "\n" + status
}

func (m *Model) refresh() {
	if len(m.transcript) == 0 {
		m.viewport.SetContent("No messages yet.")
		return
	}
	m.viewport.SetContent(strings.Join(m.transcript, "\n"))
	m.viewport.GotoBottom()
}

func (m Model) query(q string) tea.Cmd {
	port := m.port
	return func() tea.Msg {
		resp, err := port.Query(context.Background(), q)
		return replyMsg{query: q, resp: resp, err: err}
	}
}

func (m Model) fetchCart() tea.Cmd {
	port := m.port
	return func() tea.Msg {
		items, err := port.Cart(context.Background())
		return cartMsg{items: items, err: err}
	}
}

func (m Model) waitForEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	ch := m.events
	return func() tea.Msg {
		n, ok := <-ch
		return eventMsg{n: n, ok: ok}
	}
}

func renderReply(query string, resp service.QueryResponse) []string {
	lines := []string{assistantStyle.Render("Assistant: ") + highlightBestSentence(resp.Response, query)}
	for _, img := range resp.Images {
		lines = append(lines, fmt.Sprintf("  - %s (Rs %.2f) [%s]", img.Description, img.Price, img.Filename))
	}
	if resp.PaymentURL != nil {
		lines = append(lines, "  Pay here: "+*resp.PaymentURL)
	}
	return append(lines, "")
}

func renderCart(items []domain.CartItem) string {
	title := lipgloss.NewStyle().Bold(true).Render("Cart")
	if len(items) == 0 {
		return title + "\n\nEmpty."
	}
	var b strings.Builder
	b.WriteString(title + "\n\n")
	total := 0.0
	for _, it := range items {
		line := float64(it.Quantity) * it.Price
		total += line
		fmt.Fprintf(&b, "%d x %s\n   Rs %.2f\n", it.Quantity, it.Description, line)
	}
	fmt.Fprintf(&b, "\nTotal: Rs %.2f", total)
	return b.String()
}

func describeEvent(n notify.Notification) string {
	switch n.Action {
	case notify.ActionCheckout:
		return "Checkout started: " + n.URL
	case notify.ActionDiscount:
		if n.Discount != nil && n.FinalAmount != nil {
			return fmt.Sprintf("Discount %d%%, final amount Rs %.2f", *n.Discount, *n.FinalAmount)
		}
		return "Discount updated"
	default:
		return "Cart " + n.Action + " received"
	}
}

var (
	chatBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	cartBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	userStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRe     = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
)

// highlightBestSentence emphasises the reply sentence sharing the most words
// with the query.
func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		sentences = []string{strings.TrimSpace(text)}
	}
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := 0
	for i, s := range sentences {
		if score := tokenOverlapScore(qTokens, s); score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx && bestScore > 0 {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
