package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/lexdrum/lexdrum/internal/chat"
)

type focusArea int

const (
	focusList focusArea = iota
	focusComposer
	focusIngest
)

const sidebarWidth = 32

type chatModel struct {
	cursor   int // 0 = new chat, 1..n = registry items
	focus    focusArea
	composer textinput.Model
	ingest   textinput.Model
	vp       viewport.Model

	selected *int64
	notice   string
	width    int
	height   int
}

func newChatModel() chatModel {
	c := textinput.New()
	c.Placeholder = "type your question…"
	c.CharLimit = 2000

	ing := textinput.New()
	ing.Placeholder = "https://… legislation url"
	ing.CharLimit = 500

	return chatModel{
		composer: c,
		ingest:   ing,
		vp:       viewport.New(80, 20),
	}
}

func (m chatModel) init() tea.Cmd {
	return textinput.Blink
}

func (m *chatModel) resize(width, height int) {
	m.width = width
	m.height = height
	w := width - sidebarWidth - 4
	if w < 20 {
		w = 20
	}
	h := height - 7
	if h < 5 {
		h = 5
	}
	m.vp.Width = w
	m.vp.Height = h
	m.composer.Width = w - 4
}

func (a *App) updateChat(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.chatKey(msg)

	case refreshDoneMsg:
		return a, nil

	case repaintMsg:
		a.refreshTranscript()
		return a, nil

	case selectDoneMsg:
		if errors.Is(msg.err, chat.ErrSuperseded) {
			return a, nil
		}
		a.chat.selected = &msg.id
		a.refreshTranscript()
		return a, nil

	case sendDoneMsg:
		var cmds []tea.Cmd
		// Adoption handshake: a first send minted a conversation id; take
		// it over and mark the registry stale.
		select {
		case id := <-a.created:
			a.chat.selected = &id
			a.chat.cursor = 0
			cmds = append(cmds, a.refreshCmd())
		default:
		}
		if errors.Is(msg.err, chat.ErrSendInFlight) {
			a.chat.notice = "still sending, hold on"
		} else if errors.Is(msg.err, chat.ErrFetchInFlight) {
			a.chat.notice = "conversation still loading, hold on"
		}
		a.refreshTranscript()
		if len(cmds) > 0 {
			return a, tea.Batch(cmds...)
		}
		return a, nil

	case ingestDoneMsg:
		if msg.err != nil {
			a.chat.notice = "ingest failed: " + msg.err.Error()
		} else {
			a.chat.notice = fmt.Sprintf("ingested %d chunks", msg.chunks)
		}
		return a, nil
	}

	var cmd tea.Cmd
	switch a.chat.focus {
	case focusComposer:
		a.chat.composer, cmd = a.chat.composer.Update(msg)
	case focusIngest:
		a.chat.ingest, cmd = a.chat.ingest.Update(msg)
	default:
		a.chat.vp, cmd = a.chat.vp.Update(msg)
	}
	return a, cmd
}

func (a *App) chatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m := &a.chat

	// Keys handled regardless of focus.
	switch msg.Type {
	case tea.KeyTab:
		if m.focus == focusComposer {
			m.focus = focusList
			m.composer.Blur()
			return a, nil
		}
		m.focus = focusComposer
		m.ingest.Blur()
		return a, m.composer.Focus()

	case tea.KeyCtrlO:
		a.deps.Sessions.Logout()
		a.toLogin("Signed out.")
		return a, nil

	case tea.KeyCtrlG:
		if a.deps.Sessions.Current().IsAdmin {
			m.focus = focusIngest
			m.composer.Blur()
			return a, m.ingest.Focus()
		}
		return a, nil
	}

	switch m.focus {
	case focusList:
		return a.listKey(msg)
	case focusComposer:
		if msg.Type == tea.KeyEnter {
			if v := a.conv.View(); v.Sending || v.Loading {
				if v.Loading {
					m.notice = "conversation still loading, hold on"
				} else {
					m.notice = "still sending, hold on"
				}
				return a, nil
			}
			text := m.composer.Value()
			if strings.TrimSpace(text) == "" {
				return a, nil
			}
			m.composer.SetValue("")
			m.notice = ""
			// Optimistic append happens synchronously inside Send; the
			// command resolves when the reply (or failure) arrives.
			cmd := a.sendCmd(text)
			return a, tea.Batch(cmd, a.pollTranscript())
		}
		var cmd tea.Cmd
		m.composer, cmd = m.composer.Update(msg)
		return a, cmd

	case focusIngest:
		switch msg.Type {
		case tea.KeyEnter:
			url := strings.TrimSpace(m.ingest.Value())
			m.ingest.SetValue("")
			m.focus = focusComposer
			m.ingest.Blur()
			if url == "" {
				return a, m.composer.Focus()
			}
			m.notice = "ingesting…"
			return a, tea.Batch(a.ingestCmd(url), m.composer.Focus())
		case tea.KeyEsc:
			m.focus = focusComposer
			m.ingest.Blur()
			return a, m.composer.Focus()
		}
		var cmd tea.Cmd
		m.ingest, cmd = m.ingest.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) listKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m := &a.chat
	items := a.deps.Registry.Items()

	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(items) {
			m.cursor++
		}
	case "r":
		return a, a.refreshCmd()
	case "n":
		m.cursor = 0
		m.selected = nil
		a.conv.Reset()
		a.refreshTranscript()
		m.focus = focusComposer
		return a, m.composer.Focus()
	case "enter":
		if m.cursor == 0 {
			m.selected = nil
			a.conv.Reset()
			a.refreshTranscript()
			m.focus = focusComposer
			return a, m.composer.Focus()
		}
		if m.cursor > len(items) {
			m.cursor = len(items)
			return a, nil
		}
		id := items[m.cursor-1].ConversationID
		m.selected = &id
		m.focus = focusComposer
		return a, tea.Batch(a.selectCmd(id), m.composer.Focus())
	}
	return a, nil
}

type repaintMsg struct{}

// pollTranscript repaints shortly after a send starts so the optimistic
// user entry shows up before the network round trip resolves.
func (a *App) pollTranscript() tea.Cmd {
	return tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
		return repaintMsg{}
	})
}

func (a *App) refreshTranscript() {
	a.chat.vp.SetContent(a.renderTranscript())
	a.chat.vp.GotoBottom()
}

func (a *App) renderTranscript() string {
	v := a.conv.View()
	if v.Loading {
		return statusStyle.Render("loading conversation…")
	}

	var b strings.Builder
	if len(v.Transcript) == 0 {
		if v.ConversationID == nil {
			b.WriteString(timestampStyle.Render("Start a new conversation!"))
		} else {
			b.WriteString(timestampStyle.Render("No messages in this conversation yet."))
		}
	}
	for _, msg := range v.Transcript {
		ts := timestampStyle.Render(msg.CreatedAt.Format("15:04"))
		if msg.Role == chat.RoleUser {
			b.WriteString(userMsgStyle.Render("you ") + ts + "\n")
		} else {
			b.WriteString(assistantMsgStyle.Render("lexdrum ") + ts + "\n")
		}
		b.WriteString(msg.Content + "\n\n")
	}
	if v.Sending {
		b.WriteString(statusStyle.Render("sending…") + "\n")
	}
	if v.Err != nil {
		b.WriteString(errorStyle.Render("error: "+v.Err.Error()) + "\n")
	}
	return b.String()
}

func (a *App) renderSidebar() string {
	m := &a.chat
	items := a.deps.Registry.Items()

	var b strings.Builder
	b.WriteString(titleStyle.Render("Conversations") + "\n")

	line := "  + new chat"
	if m.cursor == 0 {
		line = selectedItemStyle.Render("> + new chat")
	}
	b.WriteString(line + "\n")

	for i, it := range items {
		label := it.Summary
		if label == "" {
			label = fmt.Sprintf("conversation #%d", it.ConversationID)
		}
		label = truncateLabel(label, sidebarWidth-4)
		if m.cursor == i+1 {
			b.WriteString(selectedItemStyle.Render("> "+label) + "\n")
		} else {
			b.WriteString(listItemStyle.Render("  "+label) + "\n")
		}
	}
	if err := a.deps.Registry.Err(); err != nil {
		b.WriteString("\n" + errorStyle.Render("list refresh failed") + "\n")
	}
	return b.String()
}

// truncateLabel cuts on runes so a multi-byte summary never renders as
// broken UTF-8 in the sidebar.
func truncateLabel(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func (m chatModel) view(a *App) string {
	cur := a.deps.Sessions.Current()

	header := titleStyle.Render("LexDrum")
	who := statusStyle.Render(cur.Username)
	if cur.IsAdmin {
		who += " " + adminBadgeStyle.Render("admin")
	}
	top := lipgloss.JoinHorizontal(lipgloss.Top, header, " ", who)

	sidebar := sidebarStyle.Width(sidebarWidth).Render(a.renderSidebar())
	main := m.vp.View()
	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, " ", main)

	var input string
	if m.focus == focusIngest {
		input = inputBorderStyle.Render("ingest url: " + m.ingest.View())
	} else {
		input = inputBorderStyle.Render(m.composer.View())
	}

	help := "tab: list/composer • enter: send/select • n: new chat • r: refresh • ctrl+o: sign out • ctrl+c: quit"
	if cur.IsAdmin {
		help += " • ctrl+g: ingest"
	}
	footer := statusStyle.Render(help)
	if m.notice != "" {
		footer = noticeStyle.Render(m.notice) + "  " + footer
	}

	return top + "\n" + body + "\n" + input + "\n" + footer
}
