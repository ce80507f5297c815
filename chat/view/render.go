package view

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/gosuda/portal-chat/chat/api"
	"github.com/gosuda/portal-chat/chat/room"
)

const timeLayout = "03:04 PM"

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	ownStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	peerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	typingStyle  = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("8"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	sidebarStyle = lipgloss.NewStyle().
			Width(sidebarWidth).
			PaddingLeft(1).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(lipgloss.Color("8"))
)

const helpText = `Commands:
  /join <room-id> [name]  select a room
  /leave                  leave the current room
  /help                   toggle this help
  /quit                   exit
Enter sends, Alt+Enter inserts a newline, PgUp/PgDn scroll.`

func (m Model) View() string {
	main := lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.viewport.View(),
		m.renderNotice(),
		dimStyle.Render(strings.Repeat("─", max(m.viewport.Width, 1))),
		m.input.View(),
	)
	return lipgloss.JoinHorizontal(lipgloss.Top, main, m.renderSidebar())
}

func (m Model) renderHeader() string {
	r := m.snap.Room
	if r == nil {
		return headerStyle.Render("portal-chat") + dimStyle.Render("  no room selected")
	}
	title := headerStyle.Render("# " + SanitizeName(r.Name))
	if r.Description != "" {
		title += dimStyle.Render("  " + SanitizeText(r.Description))
	}
	if m.snap.State == room.StateLoading {
		title += dimStyle.Render("  loading...")
	}
	return title
}

func (m Model) renderMessages() string {
	if m.showHelp {
		return helpText
	}
	if m.snap.Room == nil {
		return "\n" + headerStyle.Render("Welcome to the Chat") + "\n" +
			dimStyle.Render("Select a room with /join <room-id> [name] to start chatting.")
	}

	var b strings.Builder
	for i, msg := range m.snap.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(m.renderMessage(msg))
	}
	for _, name := range m.snap.Typing {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(typingStyle.Render(m.typingLine(name)))
	}
	return b.String()
}

func (m Model) renderMessage(msg api.Message) string {
	stamp := msg.CreatedAt.Local().Format(timeLayout)
	var label string
	if msg.Sender.ID == m.user.ID {
		label = ownStyle.Render("You") + dimStyle.Render(" • "+stamp)
	} else {
		label = peerStyle.Render(SanitizeName(msg.Sender.Username)) + dimStyle.Render(" • "+stamp)
	}
	body := SanitizeText(msg.Content)
	lines := strings.Split(body, "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return label + "\n" + strings.Join(lines, "\n")
}

func (m Model) typingLine(name string) string {
	if name == m.user.Username {
		return "You are typing..."
	}
	return fmt.Sprintf("%s is typing...", SanitizeName(name))
}

func (m Model) renderNotice() string {
	if len(m.notes) == 0 {
		return ""
	}
	parts := make([]string, 0, len(m.notes))
	for _, n := range m.notes {
		text := n.Title
		if n.Message != "" {
			text += ": " + SanitizeText(n.Message)
		}
		if n.Level == room.LevelError {
			parts = append(parts, errorStyle.Render(text))
		} else {
			parts = append(parts, infoStyle.Render(text))
		}
	}
	return strings.Join(parts, dimStyle.Render(" | "))
}

func (m Model) renderSidebar() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Members (%d)", len(m.snap.Members))))
	for _, u := range m.snap.Members {
		name := SanitizeName(u.Username)
		if u.ID == m.user.ID {
			name += dimStyle.Render(" (you)")
		}
		b.WriteString("\n" + name)
	}
	return sidebarStyle.Height(max(m.height-1, 1)).Render(b.String())
}
