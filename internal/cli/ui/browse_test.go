package ui

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wippyai/clrmeta/intern"
	"github.com/wippyai/clrmeta/internal/cli/clitest"
	"github.com/wippyai/clrmeta/metadata"
)

func loadDemo(t *testing.T) *metadata.Module {
	t.Helper()
	img, err := clitest.Demo().BuildImage()
	require.NoError(t, err)
	h := metadata.NewHost(metadata.Options{Logger: zaptest.NewLogger(t), Intern: intern.New()})
	m, err := h.LoadImage(img)
	require.NoError(t, err)
	return m
}

func newLoadedModel(t *testing.T) *BrowseModel {
	t.Helper()
	mod := loadDemo(t)
	m := NewBrowseModel("Demo.dll", func() (*metadata.Module, error) { return mod, nil })
	assert.Contains(t, m.View(), "Loading Demo.dll")
	m.Update(m.Init()())
	return m
}

func press(m *BrowseModel, keys ...tea.KeyMsg) {
	for _, k := range keys {
		m.Update(k)
	}
}

var (
	keyDown  = tea.KeyMsg{Type: tea.KeyDown}
	keyEnter = tea.KeyMsg{Type: tea.KeyEnter}
	keyEsc   = tea.KeyMsg{Type: tea.KeyEsc}
)

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func labels(m *BrowseModel) []string {
	var out []string
	lv := m.current()
	for _, i := range m.visible() {
		out = append(out, lv.entries[i].label)
	}
	return out
}

func TestBrowseNavigation(t *testing.T) {
	m := newLoadedModel(t)
	assert.Equal(t, []string{"(global)", "Demo", "Demo.Util"}, labels(m))

	press(m, keyDown, keyEnter)
	assert.Equal(t, []string{"public class Demo.Widget : Lib.Base", "public struct Demo.Point"}, labels(m))
	assert.Contains(t, m.View(), "Demo.dll › Demo")

	press(m, keyEnter)
	members := labels(m)
	require.Len(t, members, 2)
	assert.Equal(t, "field    public static Limit : System.Int32 = 3", members[0])
	assert.Equal(t, "method   public static Run(System.String) : System.Void", members[1])

	press(m, keyDown, keyEnter)
	assert.Equal(t, []string{
		".maxstack 8",
		`IL_0000: ldstr "hello"`,
		"IL_0005: pop",
		"IL_0006: ret",
	}, labels(m))
	assert.Contains(t, m.View(), "Demo.dll › Demo › Widget › Run")

	// Leaves do not open.
	press(m, keyEnter)
	assert.Len(t, m.stack, 4)

	press(m, keyEsc, keyEsc)
	assert.Len(t, m.stack, 2)
	press(m, tea.KeyMsg{Type: tea.KeyLeft}, keyEsc)
	assert.Len(t, m.stack, 1, "the namespace list is the bottom of the stack")
}

func TestBrowseFilter(t *testing.T) {
	m := newLoadedModel(t)

	press(m, runes("/"))
	require.True(t, m.filter.Focused())
	press(m, runes("UTIL"))
	assert.Equal(t, []string{"Demo.Util"}, labels(m))
	assert.Contains(t, m.View(), "/UTIL")

	press(m, keyEnter)
	assert.False(t, m.filter.Focused())
	press(m, keyEnter)
	assert.Equal(t, []string{"assembly class Demo.Util.Helper : System.Object"}, labels(m))
	assert.Empty(t, m.filter.Value(), "opening a level clears the filter")

	press(m, keyEsc, runes("/"), runes("zzz"))
	assert.Empty(t, labels(m))
	assert.Contains(t, m.View(), "(empty)")
	press(m, keyEsc)
	assert.Len(t, labels(m), 3)
}

func TestBrowseQuitAndErrors(t *testing.T) {
	m := newLoadedModel(t)
	_, cmd := m.Update(runes("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.QuitMsg{}, cmd())

	failed := NewBrowseModel("Broken.dll", func() (*metadata.Module, error) { return nil, errors.New("no metadata") })
	failed.Update(failed.Init()())
	assert.Contains(t, failed.View(), "no metadata")
	press(failed, keyDown, keyEnter, keyEsc)
	assert.Nil(t, failed.current())
}

func TestBrowseWindow(t *testing.T) {
	tests := []struct {
		cursor, n, rows int
		first, last     int
	}{
		{0, 5, 10, 0, 5},
		{0, 50, 10, 0, 10},
		{25, 50, 10, 20, 30},
		{49, 50, 10, 40, 50},
		{3, 50, 0, 3, 4},
	}
	for _, tt := range tests {
		first, last := window(tt.cursor, tt.n, tt.rows)
		assert.Equal(t, tt.first, first, "%+v", tt)
		assert.Equal(t, tt.last, last, "%+v", tt)
	}

	m := newLoadedModel(t)
	m.Update(tea.WindowSizeMsg{Width: 80, Height: 7})
	view := m.View()
	assert.Contains(t, view, "(global)")
	assert.False(t, strings.Contains(view, "Demo.Util"), "one row fits")
}
