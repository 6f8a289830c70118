package keys

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/andrei-cloud/go_atalla/pkg/akb"
)

const (
	fieldTypeRadio = iota
	fieldTypeNumeric
)

type option struct {
	value       string
	description string
}

type fieldConfig struct {
	name         string
	description  string
	fieldType    int
	options      []option // For radio fields.
	selected     int      // For radio fields.
	numericValue string   // For numeric fields.
	minValue     int      // For numeric fields.
	maxValue     int      // For numeric fields.
	digits       int      // For numeric fields (zero-padding).
}

type headerModel struct {
	header       akb.Header
	currentField int
	fields       []fieldConfig
	done         bool
	cancelled    bool
}

// newHeaderModel creates a TUI model for building an AKB header. It starts
// from 1PDNE000.
func newHeaderModel() headerModel {
	fields := []fieldConfig{
		{
			name:        "Version",
			description: "Key Block Version",
			fieldType:   fieldTypeRadio,
			options:     optionsFor(versionMeanings),
			selected:    0,
		},
		{
			name:        "KeyUsage",
			description: "Key Usage",
			fieldType:   fieldTypeRadio,
			options:     optionsFor(usageMeanings),
			selected:    indexOf(usageMeanings, "P"),
		},
		{
			name:        "Algorithm",
			description: "Cryptographic Algorithm",
			fieldType:   fieldTypeRadio,
			options:     optionsFor(algorithmMeanings),
			selected:    indexOf(algorithmMeanings, "D"),
		},
		{
			name:        "ModeOfUse",
			description: "Mode of Use",
			fieldType:   fieldTypeRadio,
			options:     optionsFor(modeMeanings),
			selected:    indexOf(modeMeanings, "N"),
		},
		{
			name:        "Exportability",
			description: "Key Exportability",
			fieldType:   fieldTypeRadio,
			options:     optionsFor(exportMeanings),
			selected:    indexOf(exportMeanings, "E"),
		},
		{
			name:         "Reserved",
			description:  "Reserved digits (000-999)",
			fieldType:    fieldTypeNumeric,
			numericValue: "000",
			minValue:     0,
			maxValue:     999,
			digits:       3,
		},
	}

	m := headerModel{
		currentField: 0,
		fields:       fields,
	}
	m.updateHeaderFromSelection()

	return m
}

func optionsFor(meanings []meaning) []option {
	out := make([]option, 0, len(meanings))
	for _, m := range meanings {
		out = append(out, option{value: m.code, description: m.text})
	}

	return out
}

func indexOf(meanings []meaning, code string) int {
	for i, m := range meanings {
		if m.code == code {
			return i
		}
	}

	return 0
}

// Init initializes the model.
func (m headerModel) Init() tea.Cmd {
	return nil
}

// Update handles key presses.
func (m headerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	currentField := &m.fields[m.currentField]

	switch keyMsg.String() {
	case "ctrl+c", "q":
		m.cancelled = true

		return m, tea.Quit
	case "enter":
		m.updateHeaderFromSelection()
		if m.currentField >= len(m.fields)-1 {
			m.done = true

			return m, tea.Quit
		}
		m.currentField++
	case "tab":
		if m.currentField < len(m.fields)-1 {
			m.currentField++
		}
	case "shift+tab":
		if m.currentField > 0 {
			m.currentField--
		}
	case "up", "k":
		switch currentField.fieldType {
		case fieldTypeRadio:
			if currentField.selected > 0 {
				currentField.selected--
			}
		case fieldTypeNumeric:
			m.stepNumericValue(1)
		}
	case "down", "j":
		switch currentField.fieldType {
		case fieldTypeRadio:
			if currentField.selected < len(currentField.options)-1 {
				currentField.selected++
			}
		case fieldTypeNumeric:
			m.stepNumericValue(-1)
		}
	case "backspace":
		m.handleBackspace()
	default:
		if s := keyMsg.String(); len(s) == 1 && s[0] >= '0' && s[0] <= '9' {
			m.handleNumericInput(s[0])
		}
	}

	return m, nil
}

// stepNumericValue moves the current numeric field by delta within its range.
func (m *headerModel) stepNumericValue(delta int) {
	f := &m.fields[m.currentField]
	if f.fieldType != fieldTypeNumeric {
		return
	}

	next := parseNumeric(f.numericValue) + delta
	if next >= f.minValue && next <= f.maxValue {
		f.numericValue = fmt.Sprintf("%0*d", f.digits, next)
	}
}

// handleNumericInput appends a typed digit when the result stays in range.
func (m *headerModel) handleNumericInput(char byte) {
	f := &m.fields[m.currentField]
	if f.fieldType != fieldTypeNumeric {
		return
	}

	next := parseNumeric(strings.TrimLeft(f.numericValue, "0") + string(char))
	if next >= f.minValue && next <= f.maxValue {
		f.numericValue = fmt.Sprintf("%0*d", f.digits, next)
	}
}

// handleBackspace drops the last significant digit.
func (m *headerModel) handleBackspace() {
	f := &m.fields[m.currentField]
	if f.fieldType != fieldTypeNumeric {
		return
	}

	trimmed := strings.TrimLeft(f.numericValue, "0")
	if len(trimmed) <= 1 {
		f.numericValue = fmt.Sprintf("%0*d", f.digits, 0)

		return
	}
	f.numericValue = fmt.Sprintf("%0*d", f.digits, parseNumeric(trimmed[:len(trimmed)-1]))
}

func parseNumeric(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}

	return n
}

// updateHeaderFromSelection copies every field selection into the header.
func (m *headerModel) updateHeaderFromSelection() {
	for _, f := range m.fields {
		var v string
		if f.fieldType == fieldTypeRadio {
			v = f.options[f.selected].value
		} else {
			v = f.numericValue
		}

		switch f.name {
		case "Version":
			m.header.Version = v[0]
		case "KeyUsage":
			m.header.KeyUsage = v[0]
		case "Algorithm":
			m.header.Algorithm = v[0]
		case "ModeOfUse":
			m.header.ModeOfUse = v[0]
		case "Exportability":
			m.header.Exportability = v[0]
		case "Reserved":
			m.header.Reserved = v
		}
	}
}

// View renders the current field, the completed ones and the key help.
func (m headerModel) View() string {
	if m.done {
		return "AKB header configured: " + m.header.String() + "\n"
	}
	if m.cancelled {
		return "Operation cancelled.\n"
	}

	var b strings.Builder
	b.WriteString("Configure AKB Header\n")
	b.WriteString(strings.Repeat("=", 50) + "\n\n")
	fmt.Fprintf(&b, "Field %d of %d\n\n", m.currentField+1, len(m.fields))

	current := m.fields[m.currentField]
	fmt.Fprintf(&b, "▶ %s: %s\n\n", current.name, current.description)

	switch current.fieldType {
	case fieldTypeRadio:
		for j, opt := range current.options {
			selector := "  ○ "
			if j == current.selected {
				selector = "  ● "
			}
			fmt.Fprintf(&b, "%s%s - %s\n", selector, opt.value, opt.description)
		}
	case fieldTypeNumeric:
		fmt.Fprintf(&b, "  [ %s ] (Range: %0*d-%d)\n", current.numericValue, current.digits, current.minValue, current.maxValue)
	}
	b.WriteString("\n")

	if m.currentField > 0 {
		b.WriteString("Completed fields:\n")
		for _, f := range m.fields[:m.currentField] {
			if f.fieldType == fieldTypeRadio {
				fmt.Fprintf(&b, "  %s: %s\n", f.name, f.options[f.selected].value)
			} else {
				fmt.Fprintf(&b, "  %s: %s\n", f.name, f.numericValue)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("Navigation:\n")
	b.WriteString("  ↑/↓ or j/k: Select option or increment/decrement value\n")
	b.WriteString("  Tab/Shift+Tab: Next/Previous field\n")
	b.WriteString("  Enter: Confirm and continue\n")
	if current.fieldType == fieldTypeNumeric {
		b.WriteString("  0-9: Direct numeric input, Backspace: Delete digit\n")
	}
	b.WriteString("  q or Ctrl+C: Quit\n")

	return b.String()
}

// runHeaderTUI starts the interactive header builder.
func runHeaderTUI() (akb.Header, bool, error) {
	p := tea.NewProgram(newHeaderModel())
	finalModel, err := p.Run()
	if err != nil {
		return akb.Header{}, false, err
	}

	m, ok := finalModel.(headerModel)
	if !ok {
		return akb.Header{}, false, fmt.Errorf("unexpected model type %T", finalModel)
	}
	m.updateHeaderFromSelection()

	return m.header, m.done && !m.cancelled, nil
}
