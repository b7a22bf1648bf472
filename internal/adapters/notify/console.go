package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/marketkeeper/internal/domain"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
	quiet bool // no imprime pasadas sin mercados expirados
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table, quiet bool) *Console {
	return &Console{out: os.Stdout, table: table, quiet: quiet}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify imprime el resultado de la pasada en el modo configurado.
func (c *Console) Notify(_ context.Context, report domain.PassReport) error {
	if len(report.Results) == 0 {
		if !c.quiet {
			fmt.Fprintf(c.out, "[%s] %s pass: %d markets, none expired\n",
				clock(report.FinishedAt), report.Trigger, report.Scanned)
		}
		return nil
	}

	if c.table {
		c.printFull(report)
	} else {
		c.printCompact(report)
	}
	return nil
}

// printCompact imprime un resumen y una línea por mercado.
func (c *Console) printCompact(report domain.PassReport) {
	resolved, postponed, failed := report.Counts()

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s pass %d mkts → ok:%d later:%d fail:%d (%s)",
		clock(report.FinishedAt), report.Trigger, report.Scanned,
		resolved, postponed, failed, report.Duration().Round(time.Millisecond))

	for _, r := range report.Results {
		fmt.Fprintf(&sb, "\n  %s %s", statusIcon(r.Status), r.UserMessage())
	}

	fmt.Fprintln(c.out, sb.String())
}

// printFull imprime la tabla de resultados de la pasada.
func (c *Console) printFull(report domain.PassReport) {
	resolved, postponed, failed := report.Counts()

	fmt.Fprintf(c.out, "\n[%s] %s pass %s: %d markets scanned, %d expired (resolved:%d postponed:%d failed:%d)\n",
		clock(report.FinishedAt), report.Trigger, shortID(report.ID.String()),
		report.Scanned, len(report.Results), resolved, postponed, failed)

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Market", "Status", "Winner", "Price", "Winners", "Retries", "Message")

	for i, r := range report.Results {
		table.Append(
			fmt.Sprintf("%d", i+1),
			domain.TruncateTitle(r.Title, r.MarketID, 30),
			string(r.Status),
			sideLabel(r.WinningSide),
			priceLabel(r.FinalPrice),
			winnersLabel(r),
			fmt.Sprintf("%d", r.RetryCount),
			domain.Truncate(r.UserMessage(), 60),
		)
	}
	table.Render()
}

// PrintHistory imprime los resultados persistidos, más recientes primero.
func (c *Console) PrintHistory(records []domain.ResolutionRecord) {
	if len(records) == 0 {
		fmt.Fprintln(c.out, "\n  No resolution history yet. Run the keeper first.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("When", "Pass", "Trigger", "Market", "Status", "Winner", "Price", "Retries", "Error")

	var resolved, postponed, failed int
	for _, rec := range records {
		r := rec.Result
		switch r.Status {
		case domain.StatusResolved:
			resolved++
		case domain.StatusPostponed:
			postponed++
		case domain.StatusFailed:
			failed++
		}

		table.Append(
			rec.RecordedAt.Local().Format("01-02 15:04:05"),
			shortID(rec.PassID.String()),
			string(rec.Trigger),
			domain.TruncateTitle(r.Title, r.MarketID, 30),
			string(r.Status),
			sideLabel(r.WinningSide),
			priceLabel(r.FinalPrice),
			fmt.Sprintf("%d", r.RetryCount),
			domain.Truncate(r.Error, 40),
		)
	}
	table.Render()

	fmt.Fprintf(c.out, "\n  Total: %d  resolved:%d  postponed:%d  failed:%d\n\n",
		len(records), resolved, postponed, failed)
}

// PrintResolvedMarkets imprime los mercados que el contrato ya tiene resueltos.
func (c *Console) PrintResolvedMarkets(markets []domain.Market) {
	if len(markets) == 0 {
		fmt.Fprintln(c.out, "\n  No resolved markets on-chain.")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Market", "Token", "Ended", "Winner", "Final price", "Winners")

	for _, m := range markets {
		winners := "-"
		if m.WinningSide != nil {
			winners = fmt.Sprintf("%d", m.WinnerCount(*m.WinningSide))
		}
		table.Append(
			m.ID.String(),
			domain.TruncateTitle(m.Title, m.ID, 30),
			m.Token,
			m.EndTime.Local().Format("2006-01-02 15:04"),
			sideLabel(m.WinningSide),
			priceLabel(m.FinalPrice),
			winners,
		)
	}
	table.Render()
	fmt.Fprintln(c.out)
}

// --- helpers ---

func statusIcon(s domain.ResolutionStatus) string {
	switch s {
	case domain.StatusResolved:
		return "OK"
	case domain.StatusPostponed:
		return ".."
	default:
		return "!!"
	}
}

func sideLabel(s *domain.Side) string {
	if s == nil {
		return "-"
	}
	return s.String()
}

func priceLabel(p *domain.Price) string {
	if p == nil {
		return "-"
	}
	return p.String()
}

func winnersLabel(r domain.MarketResolutionResult) string {
	if r.WinningSide == nil {
		return "-"
	}
	return fmt.Sprintf("%d", r.WinnerCount)
}

func clock(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.Local().Format("15:04:05")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

