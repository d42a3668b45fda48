package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type loginModel struct {
	username textinput.Model
	password textinput.Model
	focus    int // 0 username, 1 password

	registering bool
	busy        bool
	errText     string
	notice      string
}

func newLoginModel() loginModel {
	u := textinput.New()
	u.Placeholder = "username"
	u.CharLimit = 64
	u.Focus()

	p := textinput.New()
	p.Placeholder = "password"
	p.CharLimit = 128
	p.EchoMode = textinput.EchoPassword
	p.EchoCharacter = '•'

	return loginModel{username: u, password: p}
}

func (m loginModel) init() tea.Cmd {
	return textinput.Blink
}

func (a *App) updateLogin(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if a.login.busy {
			return a, nil
		}
		switch msg.Type {
		case tea.KeyTab, tea.KeyShiftTab, tea.KeyUp, tea.KeyDown:
			a.login.focus = 1 - a.login.focus
			if a.login.focus == 0 {
				a.login.password.Blur()
				return a, a.login.username.Focus()
			}
			a.login.username.Blur()
			return a, a.login.password.Focus()

		case tea.KeyEnter:
			username := strings.TrimSpace(a.login.username.Value())
			password := a.login.password.Value()
			if username == "" || password == "" {
				a.login.errText = "username and password are required"
				return a, nil
			}
			a.login.busy = true
			a.login.errText = ""
			if a.login.registering {
				return a, a.registerCmd(username, password)
			}
			return a, a.loginCmd(username, password)

		case tea.KeyCtrlR:
			a.login.registering = !a.login.registering
			a.login.errText = ""
			return a, nil
		}

	case loginDoneMsg:
		a.login.busy = false
		if msg.err != nil {
			a.login.errText = msg.err.Error()
			return a, nil
		}
		return a, a.toChat()

	case registerDoneMsg:
		a.login.busy = false
		if msg.err != nil {
			a.login.errText = msg.err.Error()
			return a, nil
		}
		a.login.registering = false
		a.login.notice = "Account created, sign in to continue."
		return a, nil
	}

	var cmd tea.Cmd
	if a.login.focus == 0 {
		a.login.username, cmd = a.login.username.Update(msg)
	} else {
		a.login.password, cmd = a.login.password.Update(msg)
	}
	return a, cmd
}

func (m loginModel) view() string {
	var b strings.Builder

	title := "LexDrum — sign in"
	if m.registering {
		title = "LexDrum — register"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")
	b.WriteString("  " + m.username.View() + "\n")
	b.WriteString("  " + m.password.View() + "\n\n")

	switch {
	case m.busy:
		b.WriteString("  " + statusStyle.Render("contacting service…") + "\n")
	case m.errText != "":
		b.WriteString("  " + errorStyle.Render(m.errText) + "\n")
	case m.notice != "":
		b.WriteString("  " + noticeStyle.Render(m.notice) + "\n")
	}

	b.WriteString("\n" + statusStyle.Render("enter: submit • tab: switch field • ctrl+r: toggle register • ctrl+c: quit"))
	return b.String()
}
