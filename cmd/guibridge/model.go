package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/germanamz/guibridge/pkg/connection"
	"github.com/germanamz/guibridge/pkg/delegates"
	"github.com/germanamz/guibridge/pkg/dispatch"
	"github.com/germanamz/guibridge/pkg/engine"
	"github.com/germanamz/guibridge/pkg/sessiondata"
)

const (
	cardWidth       = 34
	maxCardRows     = 8
	maxTranscript   = 500
	headerHeight    = 1
	inputHeight     = 3
	defaultWidth    = 100
	defaultHeight   = 30
	minTranscriptHt = 3
)

// bridgeEngine is the part of the engine the TUI drives.
type bridgeEngine interface {
	SendText(text string) error
	TriggerEvent(actionID string, parameters map[string]any) error
	Reconnect()
	Status() connection.Status
	IsListening() bool
	IsSpeaking() bool
	ActiveSkills() []string
	CurrentSkill() string
	SessionData(skill string) (*sessiondata.Bag, bool)
	Delegates(skill string) []delegates.Handle
	Events() *engine.EventBus
}

// appModel is the root bubbletea model: status line, one card per active
// skill, the transcript and the input line.
type appModel struct {
	ctx     context.Context
	eng     bridgeEngine
	verbose bool

	input      textinput.Model
	transcript viewport.Model
	spinner    spinner.Model
	lines      []string

	status       connection.Status
	listening    bool
	speaking     bool
	currentSkill string
	skills       []string

	cancelBridge context.CancelFunc
	width        int
	height       int
}

func newAppModel(ctx context.Context, eng bridgeEngine, verbose bool) appModel {
	ti := textinput.New()
	ti.Placeholder = "Say something... (/help for commands)"
	ti.Prompt = "› "
	ti.CharLimit = 0
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = statusWaitStyle

	m := appModel{
		ctx:        ctx,
		eng:        eng,
		verbose:    verbose,
		input:      ti,
		transcript: viewport.New(defaultWidth, defaultHeight),
		spinner:    sp,
		status:     eng.Status(),
		skills:     eng.ActiveSkills(),
		width:      defaultWidth,
		height:     defaultHeight,
	}
	m.recalcLayout()
	return m
}

func (m appModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		initMarkdownRenderer(m.width - 4)
		m.recalcLayout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case programReadyMsg:
		m.syncFromEngine()
		m.cancelBridge = startBridge(m.ctx, msg.program, m.eng.Events(), msg.sub)
		return m, nil

	case engineEventMsg:
		m.applyEvent(msg.event)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.transcript, cmd = m.transcript.Update(msg)
	return m, cmd
}

func (m appModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m.quit()

	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		if text == "" {
			return m, nil
		}
		return m.submit(text)

	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m appModel) quit() (tea.Model, tea.Cmd) {
	if m.cancelBridge != nil {
		m.cancelBridge()
	}
	return m, tea.Quit
}

// submit handles one line of input: a slash command or an utterance.
func (m appModel) submit(text string) (tea.Model, tea.Cmd) {
	cmd, args, _ := strings.Cut(text, " ")

	switch cmd {
	case "/quit", "/exit":
		return m.quit()

	case "/help":
		m.appendLine(dimStyle.Render(helpText()))

	case "/reconnect":
		m.eng.Reconnect()
		m.appendLine(dimStyle.Render("reconnecting…"))

	case "/event":
		id, params, err := parseEventCommand(args)
		if err != nil {
			m.appendLine(errorStyle.Render(err.Error()))
			break
		}
		if err := m.eng.TriggerEvent(id, params); err != nil {
			m.appendLine(errorStyle.Render("error: " + err.Error()))
			break
		}
		m.appendLine(dimStyle.Render("triggered " + id))

	default:
		m.appendLine(userPrefixStyle.Render("you › ") + text)
		if err := m.eng.SendText(text); err != nil {
			m.appendLine(errorStyle.Render("error: " + err.Error()))
		}
	}

	return m, nil
}

func helpText() string {
	return strings.Join([]string{
		"/reconnect            drop the connection and reconnect",
		"/event <id> [json]    trigger a skill action",
		"/quit                 exit",
		"anything else is sent to the core as an utterance",
	}, "\n")
}

// syncFromEngine replaces the displayed state with the engine's current
// state. Events still queued for the model are applied on top, in order.
func (m *appModel) syncFromEngine() {
	m.status = m.eng.Status()
	m.listening = m.eng.IsListening()
	m.speaking = m.eng.IsSpeaking()
	m.currentSkill = m.eng.CurrentSkill()
	m.skills = m.eng.ActiveSkills()
	m.recalcLayout()
}

// applyEvent folds one engine event into the model.
func (m *appModel) applyEvent(ev engine.Event) {
	switch ev.Kind {
	case engine.EventConnectionStateChanged:
		if s, ok := ev.Data.(connection.Status); ok {
			m.status = s
		}

	case engine.EventListeningChanged:
		m.listening, _ = ev.Data.(bool)

	case engine.EventSpeakingChanged:
		m.speaking, _ = ev.Data.(bool)

	case engine.EventCurrentSkillChanged:
		m.currentSkill, _ = ev.Data.(string)

	case engine.EventActiveSkillsChanged:
		if d, ok := ev.Data.(dispatch.ActiveSkills); ok {
			m.skills = d.Skills
		}
		m.recalcLayout()

	case engine.EventSessionChanged, engine.EventDelegateCreated:
		// Cards grow with their properties and delegate urls.
		m.recalcLayout()

	case engine.EventFallbackText:
		if d, ok := ev.Data.(dispatch.FallbackText); ok && d.Utterance != "" {
			name := ev.Skill
			if name == "" {
				name = "core"
			}
			m.appendLine(skillPrefixStyle.Render(name+" › ") + renderMarkdown(d.Utterance))
		}

	case engine.EventNotUnderstood:
		m.appendLine(dimStyle.Render("(not understood)"))

	case engine.EventStopped:
		m.appendLine(dimStyle.Render("(stopped)"))

	case engine.EventTriggered:
		if d, ok := ev.Data.(dispatch.Triggered); ok {
			m.appendLine(dimStyle.Render(fmt.Sprintf("event %s %v", d.EventID, d.Parameters)))
		}

	case engine.EventError:
		if err, ok := ev.Data.(error); ok {
			m.appendLine(errorStyle.Render("error: " + err.Error()))
		}

	case engine.EventIntentReceived:
		if m.verbose {
			if d, ok := ev.Data.(dispatch.Intent); ok {
				m.appendLine(dimStyle.Render("· " + d.Type))
			}
		}
	}
}

func (m *appModel) appendLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxTranscript {
		m.lines = m.lines[len(m.lines)-maxTranscript:]
	}
	m.transcript.SetContent(strings.Join(m.lines, "\n"))
	m.transcript.GotoBottom()
}

// recalcLayout sizes the transcript to whatever the cards leave free.
func (m *appModel) recalcLayout() {
	cardsHeight := lipgloss.Height(m.renderCards())
	h := m.height - headerHeight - cardsHeight - inputHeight
	if h < minTranscriptHt {
		h = minTranscriptHt
	}
	m.transcript.Width = m.width
	m.transcript.Height = h
	m.input.Width = m.width - 6
}

func (m appModel) View() string {
	sections := []string{m.renderHeader()}
	if cards := m.renderCards(); cards != "" {
		sections = append(sections, cards)
	}
	sections = append(sections,
		m.transcript.View(),
		inputBorder.Width(m.width-2).Render(m.input.View()),
	)
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m appModel) renderHeader() string {
	var status string
	switch m.status {
	case connection.StatusOpen:
		status = statusOpenStyle.Render("● connected")
	case connection.StatusConnecting:
		status = m.spinner.View() + statusWaitStyle.Render(" connecting")
	case connection.StatusClosing:
		status = statusWaitStyle.Render("○ closing")
	default:
		status = statusDownStyle.Render("○ disconnected")
	}

	parts := []string{titleStyle.Render("guibridge"), status}
	if m.listening {
		parts = append(parts, flagOnStyle.Render("listening"))
	}
	if m.speaking {
		parts = append(parts, flagOnStyle.Render("speaking"))
	}
	if m.currentSkill != "" {
		parts = append(parts, dimStyle.Render("skill: "+m.currentSkill))
	}

	return lipgloss.NewStyle().MaxWidth(max(m.width, 1)).Render(strings.Join(parts, "  "))
}

// renderCards lays out one card per active skill, wrapping rows to the width.
func (m appModel) renderCards() string {
	if len(m.skills) == 0 {
		return ""
	}

	perRow := max(m.width/(cardWidth+2), 1)

	var rows []string
	for i := 0; i < len(m.skills); i += perRow {
		end := min(i+perRow, len(m.skills))
		cards := make([]string, 0, end-i)
		for _, skill := range m.skills[i:end] {
			cards = append(cards, m.renderCard(skill))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m appModel) renderCard(skill string) string {
	inner := cardWidth - 4

	title := skill
	style := cardStyle
	if skill == m.currentSkill {
		title = "▶ " + title
		style = currentCardStyle
	}
	lines := []string{cardTitleStyle.Render(truncate(title, inner))}

	for _, h := range m.eng.Delegates(skill) {
		if c, ok := h.(*delegateCard); ok && !c.isDisposed() {
			lines = append(lines, urlStyle.Render(truncate(c.url, inner)))
		}
	}

	if bag, ok := m.eng.SessionData(skill); ok {
		lines = append(lines, propertyLines(bag, inner)...)
	}

	return style.Width(cardWidth).Render(strings.Join(lines, "\n"))
}

// propertyLines renders up to maxCardRows "key: value" lines of bag.
func propertyLines(bag *sessiondata.Bag, width int) []string {
	keys := bag.Keys()

	var lines []string
	for i, k := range keys {
		if i == maxCardRows {
			lines = append(lines, keyStyle.Render(fmt.Sprintf("+%d more", len(keys)-maxCardRows)))
			break
		}
		v, _ := bag.Get(k)
		label := truncate(k, width/2)
		value := truncate(v.Text(), width-runewidth.StringWidth(label)-2)
		lines = append(lines, keyStyle.Render(label+":")+" "+value)
	}
	return lines
}
