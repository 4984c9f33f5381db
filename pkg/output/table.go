package output

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// ServerSummary contains data for the supervised-server status table.
type ServerSummary struct {
	ID        string
	Name      string
	Transport string // stdio, http, container
	Status    string // running, pending, stopped
	Retries   int
	LastError string
	ExitCode  int
	ExitTime  string // human-readable, empty if the server has never exited
}

// ClientSummary contains data for the remote MCP client status table.
type ClientSummary struct {
	ID        string
	Status    string // connecting, connected, disconnecting, disconnected
	Servers   int
	Connected string // human-readable duration since connect, empty if never
}

// RouteSummary contains data for the router's route table.
type RouteSummary struct {
	Source      string
	Destination string
	Method      string // "*" when the route matches every method
}

// Servers prints the supervised-server status table with amber styling.
func (p *Printer) Servers(servers []ServerSummary) {
	if len(servers) == 0 {
		return
	}

	p.Section("SERVERS")

	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(p.tableStyle())

	t.AppendHeader(table.Row{"ID", "Name", "Transport", "Status", "Retries", "Exit Code", "Exit Time", "Last Error"})

	for _, s := range servers {
		status := s.Status
		if p.isTTY {
			status = colorState(s.Status)
		}
		t.AppendRow(table.Row{s.ID, s.Name, s.Transport, status, s.Retries, s.ExitCode, s.ExitTime, s.LastError})
	}

	t.Render()
	p.Println()
}

// colorState applies color to state based on status.
func colorState(state string) string {
	var style lipgloss.Style
	switch state {
	case "running", "connected", "healthy":
		style = lipgloss.NewStyle().Foreground(ColorGreen)
	case "failed", "error", "unhealthy":
		style = lipgloss.NewStyle().Foreground(ColorRed)
	case "pending", "connecting", "degraded":
		style = lipgloss.NewStyle().Foreground(ColorAmber)
	case "stopped", "disconnected", "disconnecting":
		style = lipgloss.NewStyle().Foreground(ColorMuted)
	default:
		style = lipgloss.NewStyle().Foreground(ColorGray)
	}
	return style.Render(state)
}

// Clients prints the remote client status table with amber styling.
func (p *Printer) Clients(clients []ClientSummary) {
	if len(clients) == 0 {
		return
	}

	p.Section("CLIENTS")

	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(p.tableStyle())

	t.AppendHeader(table.Row{"ID", "Status", "Servers", "Connected"})

	for _, c := range clients {
		status := c.Status
		if p.isTTY {
			status = colorState(c.Status)
		}
		t.AppendRow(table.Row{c.ID, status, c.Servers, c.Connected})
	}

	t.Render()
	p.Println()
}

// Routes prints the router's route table with amber styling.
func (p *Printer) Routes(routes []RouteSummary) {
	if len(routes) == 0 {
		return
	}

	p.Section("ROUTES")

	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	t.SetStyle(p.tableStyle())

	t.AppendHeader(table.Row{"Source", "Destination", "Method"})

	for _, r := range routes {
		t.AppendRow(table.Row{r.Source, r.Destination, r.Method})
	}

	t.Render()
	p.Println()
}

// tableStyle returns the standard amber-themed table style.
func (p *Printer) tableStyle() table.Style {
	style := table.StyleRounded
	if p.isTTY {
		style.Color.Header = text.Colors{text.FgHiYellow, text.Bold}
		style.Color.Border = text.Colors{text.FgHiBlack}
	}
	style.Options.SeparateRows = false
	return style
}

// Section prints a section header.
func (p *Printer) Section(title string) {
	if p.isTTY {
		style := lipgloss.NewStyle().Foreground(ColorAmber).Bold(true)
		p.Println(style.Render(title))
	} else {
		p.Println(title)
	}
}
