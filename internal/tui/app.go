// Package tui is the terminal front-end: a login form, the conversation
// list and the chat area. All session and conversation logic lives in the
// session and chat packages; this layer only issues their operations from
// tea commands and renders snapshots.
package tui

import (
	"context"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/lexdrum/lexdrum/internal/api"
	"github.com/lexdrum/lexdrum/internal/chat"
	"github.com/lexdrum/lexdrum/internal/session"
)

type view int

const (
	viewLogin view = iota
	viewChat
)

// Deps is everything the front-end borrows from the wiring in main.
type Deps struct {
	Sessions *session.Manager
	Client   *api.Client
	Registry *chat.Registry
	Log      *slog.Logger
}

type App struct {
	deps Deps
	conv *chat.Conversation
	// created receives server-minted conversation ids from the adoption
	// handshake; Update drains it and refreshes the registry.
	created chan int64

	view   view
	login  loginModel
	chat   chatModel
	width  int
	height int
}

func New(deps Deps) *App {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	a := &App{
		deps:    deps,
		created: make(chan int64, 4),
		login:   newLoginModel(),
	}
	a.conv = chat.NewConversation(deps.Client, func(id int64) {
		select {
		case a.created <- id:
		default:
		}
	}, deps.Log)
	a.chat = newChatModel()

	if deps.Sessions.Current().SignedIn {
		a.view = viewChat
	}
	return a
}

func (a *App) Init() tea.Cmd {
	if a.view == viewChat {
		return a.refreshCmd()
	}
	return a.login.init()
}

// Messages produced by commands. Each one means "a core operation
// resolved"; state itself is read back from the owning component.

type loginDoneMsg struct {
	isAdmin bool
	err     error
}

type registerDoneMsg struct{ err error }

type refreshDoneMsg struct{ err error }

type selectDoneMsg struct {
	id  int64
	err error
}

type sendDoneMsg struct{ err error }

type ingestDoneMsg struct {
	chunks int
	err    error
}

func (a *App) loginCmd(username, password string) tea.Cmd {
	return func() tea.Msg {
		isAdmin, err := a.deps.Sessions.Login(context.Background(), username, password)
		return loginDoneMsg{isAdmin: isAdmin, err: err}
	}
}

func (a *App) registerCmd(username, password string) tea.Cmd {
	return func() tea.Msg {
		_, err := a.deps.Client.Register(context.Background(), username, password)
		return registerDoneMsg{err: err}
	}
}

func (a *App) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		return refreshDoneMsg{err: a.deps.Registry.Refresh(context.Background())}
	}
}

func (a *App) selectCmd(id int64) tea.Cmd {
	return func() tea.Msg {
		return selectDoneMsg{id: id, err: a.conv.Select(context.Background(), id)}
	}
}

func (a *App) sendCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return sendDoneMsg{err: a.conv.Send(context.Background(), text)}
	}
}

func (a *App) ingestCmd(url string) tea.Cmd {
	return func() tea.Msg {
		n, err := a.deps.Client.Ingest(context.Background(), url)
		return ingestDoneMsg{chunks: n, err: err}
	}
}

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.chat.resize(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return a, tea.Quit
		}
	}

	// A 401 on any authenticated call forces a logout through the central
	// hook; when that happens, fall back to the login form.
	if a.view == viewChat && !a.deps.Sessions.Current().SignedIn {
		a.toLogin("Session expired, please sign in again.")
		if _, isKey := msg.(tea.KeyMsg); isKey {
			return a, nil
		}
	}

	switch a.view {
	case viewLogin:
		return a.updateLogin(msg)
	default:
		return a.updateChat(msg)
	}
}

func (a *App) toLogin(notice string) {
	a.view = viewLogin
	a.login = newLoginModel()
	a.login.notice = notice
	a.conv.Reset()
}

func (a *App) toChat() tea.Cmd {
	a.view = viewChat
	a.chat = newChatModel()
	a.chat.resize(a.width, a.height)
	a.conv.Reset()
	return tea.Batch(a.chat.init(), a.refreshCmd())
}

func (a *App) View() string {
	switch a.view {
	case viewLogin:
		return a.login.view()
	default:
		return a.chat.view(a)
	}
}
