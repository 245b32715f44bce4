package ui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/wippyai/clrmeta/metadata"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	namespaceStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD700"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	memberStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	codeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#D3D3D3"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// entry is one line of a level. Entries with an open func lead to a child level.
type entry struct {
	label string
	style lipgloss.Style
	open  func() *level
}

type level struct {
	title   string
	entries []entry
	cursor  int
}

// BrowseModel is the bubbletea model behind mdview browse: namespaces, then
// the types of a namespace, then members, then method bodies.
type BrowseModel struct {
	err    error
	module *metadata.Module
	load   func() (*metadata.Module, error)
	name   string
	stack  []*level
	filter textinput.Model
	height int
}

type loadedMsg struct {
	err    error
	module *metadata.Module
}

// NewBrowseModel returns a model that loads its module with load on Init.
func NewBrowseModel(name string, load func() (*metadata.Module, error)) *BrowseModel {
	ti := textinput.New()
	ti.Prompt = "/"
	ti.Placeholder = "filter"
	ti.Width = 40
	return &BrowseModel{name: name, load: load, filter: ti, height: 24}
}

func (m *BrowseModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *BrowseModel) loadModule() tea.Msg {
	mod, err := m.load()
	return loadedMsg{module: mod, err: err}
}

func (m *BrowseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.module = msg.module
		m.stack = []*level{namespaceLevel(msg.module)}
		return m, nil

	case tea.WindowSizeMsg:
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if m.filter.Focused() {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "up", "k":
			if lv := m.current(); lv != nil && lv.cursor > 0 {
				lv.cursor--
			}
		case "down", "j":
			if lv := m.current(); lv != nil && lv.cursor < len(m.visible())-1 {
				lv.cursor++
			}
		case "enter", "right", "l":
			m.openSelected()
		case "esc", "left", "h", "backspace":
			m.back()
		case "/":
			if m.current() != nil {
				m.filter.Focus()
				return m, textinput.Blink
			}
		}
	}
	return m, nil
}

func (m *BrowseModel) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "esc":
		m.filter.Blur()
		m.filter.SetValue("")
		m.current().cursor = 0
		return m, nil
	case "enter":
		m.filter.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.current().cursor = 0
	return m, cmd
}

func (m *BrowseModel) current() *level {
	if len(m.stack) == 0 {
		return nil
	}
	return m.stack[len(m.stack)-1]
}

// visible returns the indices of the current level's entries that match the filter.
func (m *BrowseModel) visible() []int {
	lv := m.current()
	if lv == nil {
		return nil
	}
	q := strings.ToLower(m.filter.Value())
	out := make([]int, 0, len(lv.entries))
	for i, e := range lv.entries {
		if q == "" || strings.Contains(strings.ToLower(e.label), q) {
			out = append(out, i)
		}
	}
	return out
}

func (m *BrowseModel) openSelected() {
	lv := m.current()
	vis := m.visible()
	if lv == nil || lv.cursor >= len(vis) {
		return
	}
	e := lv.entries[vis[lv.cursor]]
	if e.open == nil {
		return
	}
	m.filter.SetValue("")
	m.stack = append(m.stack, e.open())
}

func (m *BrowseModel) back() {
	if m.filter.Value() != "" {
		m.filter.SetValue("")
		m.current().cursor = 0
		return
	}
	if len(m.stack) > 1 {
		m.stack = m.stack[:len(m.stack)-1]
	}
}

func (m *BrowseModel) View() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	lv := m.current()
	if lv == nil {
		return "Loading " + m.name + "..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("mdview"))
	b.WriteString(" ")
	titles := make([]string, len(m.stack))
	for i, l := range m.stack {
		titles[i] = l.title
	}
	b.WriteString(strings.Join(titles, " › "))
	b.WriteString("\n\n")

	if m.filter.Focused() || m.filter.Value() != "" {
		b.WriteString(m.filter.View())
		b.WriteString("\n\n")
	}

	vis := m.visible()
	if len(vis) == 0 {
		b.WriteString(helpStyle.Render("(empty)"))
		b.WriteString("\n")
	}
	first, last := window(lv.cursor, len(vis), m.height-6)
	for i := first; i < last; i++ {
		e := lv.entries[vis[i]]
		marker := "  "
		if e.open != nil {
			marker = "▸ "
		}
		if i == lv.cursor {
			b.WriteString(selectedStyle.Render("> " + e.label))
		} else {
			b.WriteString(marker + e.style.Render(e.label))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("↑/↓ select • enter open • esc back • / filter • q quit"))
	return b.String()
}

// window returns the range of rows to draw so that cursor stays visible.
func window(cursor, n, rows int) (int, int) {
	if rows < 1 {
		rows = 1
	}
	if n <= rows {
		return 0, n
	}
	first := cursor - rows/2
	if first < 0 {
		first = 0
	}
	if first+rows > n {
		first = n - rows
	}
	return first, first + rows
}

func namespaceLevel(mod *metadata.Module) *level {
	lv := &level{title: mod.Name()}
	var visit func(ns metadata.NamespaceDefinition)
	visit = func(ns metadata.NamespaceDefinition) {
		var members []metadata.NamespaceMember
		for _, mem := range ns.Members() {
			if child, ok := mem.(*metadata.NestedNamespace); ok {
				visit(child)
				continue
			}
			members = append(members, mem)
		}
		if len(members) == 0 {
			return
		}
		name := ns.FullName()
		if name == "" {
			name = "(global)"
		}
		lv.entries = append(lv.entries, entry{
			label: name,
			style: namespaceStyle,
			open:  func() *level { return typesLevel(name, members) },
		})
	}
	visit(mod.NamespaceRoot())
	sort.Slice(lv.entries, func(i, j int) bool { return lv.entries[i].label < lv.entries[j].label })
	return lv
}

func typesLevel(title string, members []metadata.NamespaceMember) *level {
	lv := &level{title: title}
	for _, mem := range members {
		switch v := mem.(type) {
		case *metadata.TypeDefinition:
			lv.entries = append(lv.entries, entry{label: TypeLabel(v), style: typeStyle, open: func() *level { return typeLevel(v) }})
		case *metadata.NamespaceAliasForType:
			e := entry{label: aliasLabel(v), style: typeStyle}
			if def := v.ResolveAlias(); !metadata.IsDummy(def) {
				e.open = func() *level { return typeLevel(def) }
			}
			lv.entries = append(lv.entries, e)
		}
	}
	return lv
}

func aliasLabel(a *metadata.NamespaceAliasForType) string {
	kind := "exported"
	if a.IsForwarder() {
		kind = "forwarded"
	}
	name := a.Name()
	if a.Namespace() != "" {
		name = a.Namespace() + "." + name
	}
	return kind + " " + name
}

func typeLevel(t *metadata.TypeDefinition) *level {
	lv := &level{title: t.Name()}
	for _, n := range t.NestedTypes() {
		lv.entries = append(lv.entries, entry{label: "nested   " + TypeLabel(n), style: typeStyle, open: func() *level { return typeLevel(n) }})
	}
	for _, f := range t.Fields() {
		lv.entries = append(lv.entries, entry{label: "field    " + FieldLabel(f), style: memberStyle})
	}
	for _, d := range t.Methods() {
		e := entry{label: "method   " + MethodLabel(d), style: memberStyle}
		if d.HasBody() {
			e.open = func() *level { return bodyLevel(d) }
		}
		lv.entries = append(lv.entries, e)
	}
	for _, p := range t.Properties() {
		lv.entries = append(lv.entries, entry{label: "property " + PropertyLabel(p), style: memberStyle})
	}
	for _, e := range t.Events() {
		lv.entries = append(lv.entries, entry{label: "event    " + EventLabel(e), style: memberStyle})
	}
	return lv
}

func bodyLevel(d *metadata.MethodDefinition) *level {
	lv := &level{title: d.Name()}
	body, err := d.Body()
	if err != nil {
		lv.entries = append(lv.entries, entry{label: err.Error(), style: errorStyle})
		return lv
	}
	lv.entries = append(lv.entries, entry{label: fmt.Sprintf(".maxstack %d", body.MaxStack), style: codeStyle})
	for _, l := range body.Locals() {
		lv.entries = append(lv.entries, entry{label: fmt.Sprintf(".local [%d] %s", l.Index, typeName(l.Type)), style: codeStyle})
	}
	for _, h := range body.ExceptionHandlers {
		s := fmt.Sprintf(".try IL_%04x-IL_%04x %s IL_%04x-IL_%04x", h.TryOffset, h.TryOffset+h.TryLength, h.Kind, h.HandlerOffset, h.HandlerOffset+h.HandlerLength)
		if c := h.CatchType(); c != nil {
			s += " " + c.FullName()
		}
		lv.entries = append(lv.entries, entry{label: s, style: codeStyle})
	}
	ops, err := body.Operations()
	for _, op := range ops {
		lv.entries = append(lv.entries, entry{label: op.String(), style: codeStyle})
	}
	if err != nil {
		lv.entries = append(lv.entries, entry{label: err.Error(), style: errorStyle})
	}
	return lv
}

// RunBrowser starts the interactive browser on the alternate screen.
func RunBrowser(model *BrowseModel) error {
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
