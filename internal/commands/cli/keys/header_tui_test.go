package keys

import (
	"bytes"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrei-cloud/go_atalla/pkg/akb"
)

func press(t *testing.T, m headerModel, keys ...tea.KeyMsg) headerModel {
	t.Helper()

	for _, k := range keys {
		next, _ := m.Update(k)
		var ok bool
		m, ok = next.(headerModel)
		require.True(t, ok)
	}

	return m
}

var (
	keyDown  = tea.KeyMsg{Type: tea.KeyDown}
	keyUp    = tea.KeyMsg{Type: tea.KeyUp}
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keyBack  = tea.KeyMsg{Type: tea.KeyBackspace}
)

func digit(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestHeaderModelDefaults(t *testing.T) {
	t.Parallel()

	m := newHeaderModel()
	assert.Equal(t, "1PDNE000", m.header.String())
	assert.Len(t, m.fields, 6)
	assert.Equal(t, fieldTypeNumeric, m.fields[5].fieldType)
}

func TestHeaderModelSelectUsage(t *testing.T) {
	t.Parallel()

	m := newHeaderModel()
	// Version, then one down from P lands on V.
	m = press(t, m, keyEnter, keyDown, keyEnter)
	assert.Equal(t, byte('V'), m.header.KeyUsage)
	assert.Equal(t, 2, m.currentField)

	m = press(t, m, keyUp)
	assert.Equal(t, "D", m.fields[2].options[m.fields[2].selected].value, "single option stays put")
}

func TestHeaderModelNumericField(t *testing.T) {
	t.Parallel()

	m := newHeaderModel()
	m.currentField = 5

	m = press(t, m, keyUp)
	assert.Equal(t, "001", m.fields[5].numericValue)

	m = press(t, m, keyDown, keyDown)
	assert.Equal(t, "000", m.fields[5].numericValue, "cannot go below zero")

	m = press(t, m, digit('4'), digit('2'))
	assert.Equal(t, "042", m.fields[5].numericValue)

	m = press(t, m, digit('7'), digit('1'))
	assert.Equal(t, "427", m.fields[5].numericValue, "digits past the maximum are ignored")

	m = press(t, m, keyBack)
	assert.Equal(t, "042", m.fields[5].numericValue)

	m = press(t, m, keyEnter)
	assert.True(t, m.done)
	assert.Equal(t, "1PDNE042", m.header.String())
	assert.Contains(t, m.View(), "1PDNE042")
}

func TestHeaderModelCancel(t *testing.T) {
	t.Parallel()

	m := press(t, newHeaderModel(), digit('q'))
	assert.True(t, m.cancelled)
	assert.Equal(t, "Operation cancelled.\n", m.View())
}

func TestHeaderModelView(t *testing.T) {
	t.Parallel()

	m := press(t, newHeaderModel(), keyEnter)
	view := m.View()
	assert.Contains(t, view, "Field 2 of 6")
	assert.Contains(t, view, "● P - PIN encryption key")
	assert.Contains(t, view, "Version: 1")
}

func TestDescribeHeader(t *testing.T) {
	t.Parallel()

	h, err := akb.ParseHeader("1EDNS000")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, describeHeader(&buf, h))
	assert.Contains(t, buf.String(), "EMV issuer master key")
	assert.Contains(t, buf.String(), "Sensitive")

	h.KeyUsage = 'Z'
	buf.Reset()
	require.NoError(t, describeHeader(&buf, h))
	assert.Contains(t, buf.String(), "Unknown")
}
