package cmd

import (
	"context"
	"fmt"
	"io"
	pathpkg "path/filepath"
	"slices"
	"strings"
	"unicode"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"

	"traverse/internal/analysis"
	"traverse/internal/disasm"
	"traverse/internal/traverse/styles"
)

type viewMode int

const (
	viewListing viewMode = iota
	viewSymbols
	viewReport
)

type symbolItem struct {
	sym        analysis.FuncSymbol
	filterTerm string
}

func (i symbolItem) Title() string       { return fmt.Sprintf("%x  %s", i.sym.VA, i.sym.Label()) }
func (i symbolItem) Description() string { return "" }
func (i symbolItem) FilterValue() string { return i.filterTerm }

// itemDelegate renders one symbol per line.
type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(symbolItem)
	if !ok {
		return
	}

	indicator, addrStyle := " ", styles.Address
	if index == m.Index() {
		indicator, addrStyle = ">", styles.Selected
	}
	fmt.Fprintf(w, " %s  %s  %s",
		indicator,
		addrStyle.Render(fmt.Sprintf("%x", i.sym.VA)),
		colorizeCppSignature(i.sym.Label()))
}

var (
	typeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("81"))
	funcStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	nsStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	keywordStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("141"))
)

var (
	cppKeywords = []string{"const", "virtual", "static"}
	cppTypes    = []string{"void", "int", "bool", "char", "float", "double", "unsigned"}
)

// colorizeQualified colors the namespace parts of a::b::c in gray and the
// final name in orange.
func colorizeQualified(name string) string {
	parts := strings.Split(name, "::")
	for i, part := range parts {
		if i < len(parts)-1 {
			parts[i] = nsStyle.Render(part)
		} else {
			parts[i] = funcStyle.Render(part)
		}
	}
	return strings.Join(parts, nsStyle.Render("::"))
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// colorizeWords colors whole C++ keywords and builtin types, leaving
// longer identifiers such as Point or constant untouched.
func colorizeWords(s string) string {
	var b strings.Builder
	for s != "" {
		i := strings.IndexFunc(s, isIdentRune)
		if i < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:i])
		s = s[i:]

		j := strings.IndexFunc(s, func(r rune) bool { return !isIdentRune(r) })
		if j < 0 {
			j = len(s)
		}
		word := s[:j]
		s = s[j:]

		switch {
		case slices.Contains(cppKeywords, word):
			b.WriteString(keywordStyle.Render(word))
		case slices.Contains(cppTypes, word):
			b.WriteString(typeStyle.Render(word))
		default:
			b.WriteString(word)
		}
	}
	return b.String()
}

// colorizeCppSignature applies syntax highlighting to demangled C++
// function signatures.
func colorizeCppSignature(sig string) string {
	parenIdx := strings.Index(sig, "(")
	if parenIdx == -1 {
		return colorizeQualified(sig)
	}

	pre, params := sig[:parenIdx], sig[parenIdx:]
	if lastSpace := strings.LastIndex(pre, " "); lastSpace != -1 {
		pre = colorizeWords(pre[:lastSpace]) + " " + colorizeQualified(pre[lastSpace+1:])
	} else {
		pre = colorizeQualified(pre)
	}
	return pre + colorizeWords(params)
}

type model struct {
	ctx         context.Context
	sess        *session
	viewport    viewport.Model
	report      viewport.Model
	symbolsList list.Model
	spinner     spinner.Model
	mode        viewMode

	req         request
	title       string
	result      *disasm.Disassembly
	err         error
	digest      string
	symbolCount int
	loading     bool
	width       int
	height      int
}

// Message types
type digestMsg struct {
	digest string
}

type symbolsMsg struct {
	symbols []analysis.FuncSymbol
}

type traversalMsg struct {
	req request
	d   *disasm.Disassembly
	err error
}

// Commands
func digestCmd(path string) tea.Cmd {
	return func() tea.Msg {
		digest, err := fileDigest(path)
		if err != nil {
			return digestMsg{digest: fmt.Sprintf("error: %v", err)}
		}
		return digestMsg{digest: digest}
	}
}

func symbolsCmd(s *session) tea.Cmd {
	return func() tea.Msg {
		if s.file.Image == nil {
			return symbolsMsg{}
		}
		syms := analysis.ScanSymbols(s.file.Image)
		if len(syms) > analysis.MaxSymbolList {
			syms = syms[:analysis.MaxSymbolList]
		}
		return symbolsMsg{symbols: syms}
	}
}

// traverseCmd runs req in the background.
func traverseCmd(ctx context.Context, s *session, req request) tea.Cmd {
	return func() tea.Msg {
		d, err := s.run(ctx, req)
		return traversalMsg{req: req, d: d, err: err}
	}
}

// NewModel returns the browser for an opened session.
func NewModel(ctx context.Context, s *session) model {
	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(24)

	rvp := viewport.New()
	rvp.SetWidth(80)
	rvp.SetHeight(24)

	symbolsList := list.New([]list.Item{}, itemDelegate{}, 80, 24)
	symbolsList.SetShowStatusBar(false)
	symbolsList.SetFilteringEnabled(true)
	symbolsList.Title = "Symbols"
	symbolsList.Styles.Title = styles.Title
	symbolsList.SetShowHelp(true)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Selected

	m := model{
		ctx:         ctx,
		sess:        s,
		req:         s.req,
		viewport:    vp,
		report:      rvp,
		symbolsList: symbolsList,
		spinner:     sp,
		mode:        viewListing,
		loading:     true,
		width:       80,
		height:      24,
	}
	m.updateContent()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		traverseCmd(m.ctx, m.sess, m.sess.req),
		digestCmd(m.sess.cfg.File),
		symbolsCmd(m.sess),
		m.spinner.Tick,
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case digestMsg:
		m.digest = msg.digest
		m.updateContent()
		return m, nil

	case symbolsMsg:
		m.setSymbols(msg.symbols)
		return m, nil

	case traversalMsg:
		m.loading = false
		m.req = msg.req
		m.title = msg.req.title()
		m.result = msg.d
		m.err = msg.err
		m.mode = viewListing
		m.updateContent()
		m.viewport.GotoTop()
		return m, nil

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		if m.loading {
			m.updateContent()
			return m, cmd
		}
		return m, nil

	case tea.WindowSizeMsg:
		if msg.Width != m.width || msg.Height != m.height {
			m.width = msg.Width
			m.height = msg.Height
			m.viewport.SetWidth(msg.Width)
			m.viewport.SetHeight(msg.Height - 2)
			m.report.SetWidth(msg.Width)
			m.report.SetHeight(msg.Height - 2)
			m.symbolsList.SetWidth(msg.Width)
			m.symbolsList.SetHeight(msg.Height - 2)
			m.updateContent()
		}

	case tea.KeyMsg:
		key := msg.String()
		// while filtering the list owns every key but quit
		if m.mode == viewSymbols && m.symbolsList.FilterState() == list.Filtering {
			if key == "ctrl+c" {
				return m, tea.Quit
			}
			break
		}
		if next, cmd, handled := m.handleKey(key); handled {
			return next, cmd
		}
	}

	switch m.mode {
	case viewSymbols:
		m.symbolsList, cmd = m.symbolsList.Update(msg)
	case viewReport:
		m.report, cmd = m.report.Update(msg)
	default:
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

// handleKey processes navigation keys outside of list filtering.
func (m model) handleKey(key string) (model, tea.Cmd, bool) {
	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit, true
	case "l":
		m.mode = viewListing
	case "s":
		if m.symbolCount > 0 {
			m.mode = viewSymbols
		}
	case "r":
		m.mode = viewReport
	case "enter":
		if m.mode != viewSymbols || m.loading {
			return m, nil, true
		}
		item, ok := m.symbolsList.SelectedItem().(symbolItem)
		if !ok {
			return m, nil, true
		}
		m.loading = true
		m.mode = viewListing
		m.updateContent()
		return m, tea.Batch(traverseCmd(m.ctx, m.sess, m.sess.symbolRequest(item.sym.Name)), m.spinner.Tick), true
	case "tab":
		m.mode = m.cycle(1)
	case "shift+tab":
		m.mode = m.cycle(-1)
	default:
		return m, nil, false
	}
	return m, nil, true
}

// cycle steps through the views, skipping the symbol list when the file
// has no symbols.
func (m model) cycle(step int) viewMode {
	const n = 3
	mode := m.mode
	for range n {
		mode = viewMode((int(mode) + step + n) % n)
		if mode != viewSymbols || m.symbolCount > 0 {
			return mode
		}
	}
	return m.mode
}

func (m model) View() string {
	var content, menu string
	switch m.mode {
	case viewSymbols:
		content = m.symbolsList.View()
		menu = " Enter: traverse symbol • L: listing • R: report • Tab: cycle • Q: quit "
	case viewReport:
		content = m.report.View()
		menu = " L: listing • S: symbols • Tab: cycle • Q: quit "
	default:
		content = m.viewport.View()
		if m.symbolCount > 0 {
			menu = " S: symbols • R: report • Tab: cycle • Q: quit "
		} else {
			menu = " R: report • Q: quit "
		}
	}
	return content + "\n" + styles.MenuBar.Width(m.width).Render(menu)
}

func (m *model) setSymbols(syms []analysis.FuncSymbol) {
	items := make([]list.Item, 0, len(syms))
	for _, sym := range syms {
		items = append(items, symbolItem{
			sym:        sym,
			filterTerm: fmt.Sprintf("%x %s %s", sym.VA, sym.Name, sym.Label()),
		})
	}
	m.symbolCount = len(items)
	m.symbolsList.SetItems(items)
	m.symbolsList.Title = fmt.Sprintf("Symbols (%d total)", m.symbolCount)
}

// updateContent refreshes the listing and report views.
func (m *model) updateContent() {
	width := m.width
	if width == 0 {
		width = 80
	}

	var listing string
	switch {
	case m.loading:
		listing = fmt.Sprintf("%s Traversing %s...", m.spinner.View(), pathpkg.Base(m.sess.cfg.File))
	case m.err != nil:
		listing = styles.Error.Render(m.err.Error())
		if m.result != nil {
			listing += "\n" + formatListing(m.sess, m.req, m.result, m.sess.cfg.Blocks, analysis.MaxListingInstructions)
		}
	case m.result != nil:
		listing = fmt.Sprintf("; %s\n%s", m.title, formatListing(m.sess, m.req, m.result, m.sess.cfg.Blocks, analysis.MaxListingInstructions))
	}
	m.viewport.SetContent(strings.TrimSuffix(listing, "\n"))

	if m.result == nil {
		m.report.SetContent("")
		return
	}
	rendered := styles.Render(reportMarkdown(m.sess, m.req, m.result, m.digest), width-2)
	m.report.SetContent(strings.TrimSuffix(rendered, "\n"))
}
