// Package setup provides the interactive setup wizard for companion.
package setup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Config holds the setup configuration
type Config struct {
	SessionDir   string
	HeartbeatDir string
	StatePath    string

	// Capabilities
	NetworkEnabled  bool
	SafetyEnabled   bool
	ConsentRequired bool

	// Credentials (one named key to seed the store with)
	KeyName  string
	KeyValue string

	// Alerts
	NATSURL string

	Telemetry bool
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginBottom(1)

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("170")).
			Bold(true)

	normalStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("82"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39"))
)

// Step represents a setup wizard step
type Step int

const (
	StepWelcome Step = iota
	StepSessionDir
	StepHeartbeatDir
	StepCapabilities
	StepKeyName
	StepKeyValue
	StepNATS
	StepConfirm
	StepWriteFiles
	StepComplete
)

// Model is the bubbletea model for the setup wizard
type Model struct {
	step      Step
	config    Config
	cursor    int
	textInput textinput.Model
	err       error

	// For multi-select
	selected map[int]bool

	// Edit mode - true if loading from existing config
	editMode     bool
	existingFile string

	// Results
	filesWritten []string
}

// New creates a new setup model
func New() Model {
	ti := textinput.New()
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 50

	m := Model{
		step:      StepWelcome,
		textInput: ti,
		config: Config{
			SessionDir:     "~/.local/companion/sessions",
			HeartbeatDir:   "heartbeats",
			StatePath:      "~/.local/companion/heartbeat-state.json",
			NetworkEnabled: true,
			SafetyEnabled:  true,
		},
		selected: make(map[int]bool),
	}

	if err := m.loadExistingConfig(); err == nil {
		m.editMode = true
	}

	return m
}

// existingConfig mirrors the structure in internal/config for loading
type existingConfig struct {
	Session struct {
		Dir            string `toml:"dir"`
		NetworkEnabled bool   `toml:"network_enabled"`
		SafetyEnabled  bool   `toml:"safety_enabled"`
	} `toml:"session"`
	Policy struct {
		ConsentRequired bool `toml:"consent_required"`
	} `toml:"policy"`
	Heartbeat struct {
		Dir       string `toml:"dir"`
		StatePath string `toml:"state_path"`
	} `toml:"heartbeat"`
	Events struct {
		NATSURL string `toml:"nats_url"`
	} `toml:"events"`
	Telemetry struct {
		Enabled bool `toml:"enabled"`
	} `toml:"telemetry"`
}

func (m *Model) loadExistingConfig() error {
	if _, err := os.Stat("companion.toml"); os.IsNotExist(err) {
		return err
	}

	m.existingFile = "companion.toml"

	var cfg existingConfig
	if _, err := toml.DecodeFile("companion.toml", &cfg); err != nil {
		return err
	}

	if cfg.Session.Dir != "" {
		m.config.SessionDir = cfg.Session.Dir
	}
	m.config.NetworkEnabled = cfg.Session.NetworkEnabled
	m.config.SafetyEnabled = cfg.Session.SafetyEnabled
	m.config.ConsentRequired = cfg.Policy.ConsentRequired
	if cfg.Heartbeat.Dir != "" {
		m.config.HeartbeatDir = cfg.Heartbeat.Dir
	}
	if cfg.Heartbeat.StatePath != "" {
		m.config.StatePath = cfg.Heartbeat.StatePath
	}
	m.config.NATSURL = cfg.Events.NATSURL
	m.config.Telemetry = cfg.Telemetry.Enabled

	return nil
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Messages
type filesWrittenMsg struct {
	files []string
}

type errMsg struct {
	error error
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case filesWrittenMsg:
		m.filesWritten = msg.files
		m.step = StepComplete
		return m, nil
	case errMsg:
		m.err = msg.error
		m.step = StepComplete
		return m, nil

	case tea.KeyMsg:
		if m.isTextInputStep() {
			switch msg.String() {
			case "ctrl+c":
				return m, tea.Quit
			case "enter":
				return m.handleEnter()
			default:
				var cmd tea.Cmd
				m.textInput, cmd = m.textInput.Update(msg)
				return m, cmd
			}
		}

		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if m.step == StepComplete || m.step == StepWelcome {
				return m, tea.Quit
			}
			if m.step > StepWelcome {
				m.step--
				m.cursor = 0
			}
			return m, nil

		case "enter":
			return m.handleEnter()

		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil

		case "down", "j":
			if m.cursor < m.maxCursorForStep() {
				m.cursor++
			}
			return m, nil

		case " ":
			if m.step == StepCapabilities {
				m.selected[m.cursor] = !m.selected[m.cursor]
			}
			return m, nil
		}
	}

	return m, nil
}

func (m Model) maxCursorForStep() int {
	switch m.step {
	case StepCapabilities:
		return 2 // network, safety, consent
	case StepConfirm:
		return 1 // confirm, cancel
	default:
		return 0
	}
}

func (m Model) isTextInputStep() bool {
	switch m.step {
	case StepSessionDir, StepHeartbeatDir, StepKeyName, StepKeyValue, StepNATS:
		return true
	}
	return false
}

func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	switch m.step {
	case StepWelcome:
		m.step = StepSessionDir
		m.textInput.SetValue(m.config.SessionDir)
		m.textInput.Placeholder = "~/.local/companion/sessions"
		m.textInput.EchoMode = textinput.EchoNormal
		m.textInput.Focus()

	case StepSessionDir:
		if v := strings.TrimSpace(m.textInput.Value()); v != "" {
			m.config.SessionDir = v
		}
		m.step = StepHeartbeatDir
		m.textInput.SetValue(m.config.HeartbeatDir)
		m.textInput.Placeholder = "heartbeats"

	case StepHeartbeatDir:
		if v := strings.TrimSpace(m.textInput.Value()); v != "" {
			m.config.HeartbeatDir = v
		}
		m.step = StepCapabilities
		m.cursor = 0
		m.selected = map[int]bool{
			0: m.config.NetworkEnabled,
			1: m.config.SafetyEnabled,
			2: m.config.ConsentRequired,
		}

	case StepCapabilities:
		m.config.NetworkEnabled = m.selected[0]
		m.config.SafetyEnabled = m.selected[1]
		m.config.ConsentRequired = m.selected[2]
		m.step = StepKeyName
		m.textInput.SetValue(m.config.KeyName)
		m.textInput.Placeholder = "e.g., weather_api_key (leave empty to skip)"

	case StepKeyName:
		m.config.KeyName = strings.TrimSpace(m.textInput.Value())
		if m.config.KeyName == "" {
			m.step = StepNATS
			m.textInput.SetValue(m.config.NATSURL)
			m.textInput.Placeholder = "nats://localhost:4222 (leave empty to disable)"
		} else {
			m.step = StepKeyValue
			m.textInput.SetValue("")
			m.textInput.Placeholder = "key value"
			m.textInput.EchoMode = textinput.EchoPassword
		}

	case StepKeyValue:
		m.config.KeyValue = m.textInput.Value()
		m.textInput.EchoMode = textinput.EchoNormal
		m.step = StepNATS
		m.textInput.SetValue(m.config.NATSURL)
		m.textInput.Placeholder = "nats://localhost:4222 (leave empty to disable)"

	case StepNATS:
		m.config.NATSURL = strings.TrimSpace(m.textInput.Value())
		m.step = StepConfirm
		m.cursor = 0

	case StepConfirm:
		if m.cursor == 0 {
			m.step = StepWriteFiles
			return m, m.writeFiles()
		}
		m.step = StepSessionDir
		m.textInput.SetValue(m.config.SessionDir)
		m.cursor = 0

	case StepComplete:
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) writeFiles() tea.Cmd {
	return func() tea.Msg {
		var files []string

		if err := os.WriteFile("companion.toml", []byte(m.generateTOML()), 0644); err != nil {
			return errMsg{err}
		}
		files = append(files, "companion.toml")

		if m.config.KeyName != "" && m.config.KeyValue != "" {
			path, err := m.writeCredentials()
			if err != nil {
				return errMsg{err}
			}
			files = append(files, path)
		}

		if err := os.MkdirAll(m.config.HeartbeatDir, 0755); err != nil {
			return errMsg{err}
		}
		examplePath := filepath.Join(m.config.HeartbeatDir, "example.json")
		if _, err := os.Stat(examplePath); os.IsNotExist(err) {
			if err := os.WriteFile(examplePath, []byte(exampleSiteJSON(m.config.KeyName)), 0644); err != nil {
				return errMsg{err}
			}
			files = append(files, examplePath)
		}

		return filesWrittenMsg{files}
	}
}

func (m Model) generateTOML() string {
	var sb strings.Builder

	sb.WriteString("# Companion Configuration\n")
	sb.WriteString("# Generated by: companion setup\n\n")

	sb.WriteString("[session]\n")
	sb.WriteString(fmt.Sprintf("dir = %q\n", m.config.SessionDir))
	sb.WriteString(fmt.Sprintf("network_enabled = %t\n", m.config.NetworkEnabled))
	sb.WriteString(fmt.Sprintf("safety_enabled = %t\n\n", m.config.SafetyEnabled))

	sb.WriteString("[policy]\n")
	sb.WriteString(fmt.Sprintf("consent_required = %t\n", m.config.ConsentRequired))
	sb.WriteString("# extra_patterns = []\n")
	sb.WriteString("# protected_paths = []\n\n")

	sb.WriteString("[heartbeat]\n")
	sb.WriteString(fmt.Sprintf("dir = %q\n", m.config.HeartbeatDir))
	sb.WriteString(fmt.Sprintf("state_path = %q\n\n", m.config.StatePath))

	sb.WriteString("[events]\n")
	if m.config.NATSURL != "" {
		sb.WriteString(fmt.Sprintf("nats_url = %q\n", m.config.NATSURL))
	} else {
		sb.WriteString("# nats_url = \"nats://localhost:4222\"\n")
	}
	sb.WriteString("subject = \"companion.violations\"\n\n")

	if m.config.Telemetry {
		sb.WriteString("[telemetry]\n")
		sb.WriteString("enabled = true\n")
		sb.WriteString("# endpoint = \"localhost:4317\"\n")
	}

	return sb.String()
}

func (m Model) writeCredentials() (string, error) {
	dir := credentialsDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "credentials.toml")

	var sb strings.Builder
	sb.WriteString("[keys]\n")
	sb.WriteString(fmt.Sprintf("%s = %q\n", m.config.KeyName, m.config.KeyValue))

	if err := os.WriteFile(path, []byte(sb.String()), 0600); err != nil {
		return "", err
	}
	return path, nil
}

func credentialsDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "companion")
	}
	return "."
}

func exampleSiteJSON(keyName string) string {
	var sb strings.Builder
	sb.WriteString("{\n")
	sb.WriteString("  \"site_id\": \"example\",\n")
	sb.WriteString("  \"display_name\": \"Example Site\",\n")
	sb.WriteString("  \"interval_hours\": 4,\n")
	sb.WriteString("  \"enabled\": false,\n")
	if keyName != "" {
		sb.WriteString(fmt.Sprintf("  \"api_key_name\": %q,\n", keyName))
	}
	sb.WriteString("  \"tasks\": [\n")
	sb.WriteString("    {\"action\": \"log_activity\", \"params\": {\"message\": \"heartbeat\"}}\n")
	sb.WriteString("  ]\n")
	sb.WriteString("}\n")
	return sb.String()
}

// View renders the current step
func (m Model) View() string {
	switch m.step {
	case StepWelcome:
		return m.viewWelcome()
	case StepSessionDir:
		return m.viewTextStep("Session Directory", "Where should session logs be stored?")
	case StepHeartbeatDir:
		return m.viewTextStep("Heartbeat Directory", "Where are per-site task configs kept?")
	case StepCapabilities:
		return m.viewCapabilities()
	case StepKeyName:
		return m.viewTextStep("API Key Name", "Name one credential for heartbeat sites to use")
	case StepKeyValue:
		return m.viewKeyValue()
	case StepNATS:
		return m.viewTextStep("Alert Broker", "NATS URL for violation alerts")
	case StepConfirm:
		return m.viewConfirm()
	case StepWriteFiles:
		return infoStyle.Render("Writing configuration...")
	case StepComplete:
		return m.viewComplete()
	}
	return ""
}

func (m Model) viewWelcome() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Companion Setup"))
	s.WriteString("\n\n")
	if m.editMode {
		s.WriteString(infoStyle.Render("Found existing configuration: " + m.existingFile))
		s.WriteString("\n\n")
		s.WriteString(normalStyle.Render("Current values will be pre-filled."))
		s.WriteString("\n\n")
	} else {
		s.WriteString(normalStyle.Render("This wizard will configure the directive engine."))
		s.WriteString("\n\n")
	}
	s.WriteString(dimStyle.Render("Press Enter to continue, q to quit"))
	return s.String()
}

func (m Model) viewTextStep(title, subtitle string) string {
	var s strings.Builder
	s.WriteString(titleStyle.Render(title) + "\n")
	s.WriteString(subtitleStyle.Render(subtitle) + "\n\n")
	s.WriteString(m.textInput.View() + "\n\n")
	s.WriteString(dimStyle.Render("Enter to continue"))
	return s.String()
}

func (m Model) viewKeyValue() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("API Key Value") + "\n")
	s.WriteString(subtitleStyle.Render("Value for "+m.config.KeyName) + "\n\n")
	s.WriteString(m.textInput.View() + "\n\n")
	s.WriteString(dimStyle.Render("Stored in credentials.toml (mode 0600)"))
	return s.String()
}

func (m Model) viewCapabilities() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Capabilities") + "\n")
	s.WriteString(subtitleStyle.Render("Default gates for new sessions") + "\n\n")

	options := []struct {
		name string
		desc string
	}{
		{"Network", "Allow network-reaching directives"},
		{"Safety", "Keep the command safety gate on"},
		{"Consent", "Prompt before each directive dispatch"},
	}

	for i, opt := range options {
		cursor := "  "
		style := normalStyle
		if i == m.cursor {
			cursor = "> "
			style = selectedStyle
		}
		check := "[ ]"
		if m.selected[i] {
			check = "[x]"
		}
		s.WriteString(cursor + check + " " + style.Render(opt.name) + " - " + dimStyle.Render(opt.desc) + "\n")
	}

	s.WriteString("\n" + dimStyle.Render("space to toggle, Enter to continue"))
	return s.String()
}

func (m Model) viewConfirm() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("Confirm") + "\n\n")
	s.WriteString(normalStyle.Render("Session dir:   ") + dimStyle.Render(m.config.SessionDir) + "\n")
	s.WriteString(normalStyle.Render("Heartbeat dir: ") + dimStyle.Render(m.config.HeartbeatDir) + "\n")
	s.WriteString(normalStyle.Render("Network:       ") + dimStyle.Render(fmt.Sprintf("%t", m.config.NetworkEnabled)) + "\n")
	s.WriteString(normalStyle.Render("Safety:        ") + dimStyle.Render(fmt.Sprintf("%t", m.config.SafetyEnabled)) + "\n")
	s.WriteString(normalStyle.Render("Consent:       ") + dimStyle.Render(fmt.Sprintf("%t", m.config.ConsentRequired)) + "\n")
	if m.config.KeyName != "" {
		s.WriteString(normalStyle.Render("API key:       ") + dimStyle.Render(m.config.KeyName) + "\n")
	}
	if m.config.NATSURL != "" {
		s.WriteString(normalStyle.Render("Alerts:        ") + dimStyle.Render(m.config.NATSURL) + "\n")
	}
	s.WriteString("\n")

	options := []string{"Write configuration", "Start over"}
	for i, opt := range options {
		cursor := "  "
		style := normalStyle
		if i == m.cursor {
			cursor = "> "
			style = selectedStyle
		}
		s.WriteString(cursor + style.Render(opt) + "\n")
	}
	return s.String()
}

func (m Model) viewComplete() string {
	var s strings.Builder
	if m.err != nil {
		s.WriteString(errorStyle.Render("Setup failed: "+m.err.Error()) + "\n\n")
		s.WriteString(dimStyle.Render("Press Enter to exit"))
		return s.String()
	}

	s.WriteString(successStyle.Render("Setup complete") + "\n\n")
	for _, f := range m.filesWritten {
		s.WriteString(normalStyle.Render("  wrote " + f + "\n"))
	}
	s.WriteString("\n")
	s.WriteString(dimStyle.Render("Try: companion process \"hello [ACTION:list|.]\""))
	s.WriteString("\n")
	s.WriteString(dimStyle.Render("Press Enter to exit"))
	return s.String()
}

// Run launches the wizard and blocks until it exits.
func Run() error {
	p := tea.NewProgram(New())
	_, err := p.Run()
	return err
}
