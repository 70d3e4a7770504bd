package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/lmsrkeeper/internal/domain"
)

// Console implementa ports.Reporter.
type Console struct {
	out     io.Writer
	verbose bool // una fila por intento en cada tick
}

// NewConsole crea un reporter que escribe a stdout.
func NewConsole(verbose bool) *Console {
	return &Console{out: os.Stdout, verbose: verbose}
}

// NewConsoleWriter crea un reporter para tests.
func NewConsoleWriter(w io.Writer, verbose bool) *Console {
	return &Console{out: w, verbose: verbose}
}

// ReportTick imprime el resumen de un tick en una línea, más la tabla de
// intentos en modo verbose.
func (c *Console) ReportTick(_ context.Context, tick *domain.TickResult) error {
	now := tick.StartedAt.Format("15:04:05")
	if tick.Paused {
		fmt.Fprintf(c.out, "[%s] keeper paused (circuit breaker)\n", now)
		return nil
	}
	if tick.Fetched == 0 {
		fmt.Fprintf(c.out, "[%s] no pending orders\n", now)
		return nil
	}

	fmt.Fprintf(c.out, "[%s] %d orders / %d mkts → exec:%d partial:%d skip:%d fail:%d rej:%d (%s)\n",
		now, tick.Fetched, tick.Markets,
		tick.Executed, tick.Partial, tick.Skipped, tick.Failed, tick.Rejected,
		tick.Duration.Truncate(time.Millisecond))

	if c.verbose && len(tick.Attempts) > 0 {
		c.printAttempts(tick.Attempts)
	}
	return nil
}

func (c *Console) printAttempts(attempts []domain.ExecutionAttempt) {
	table := tablewriter.NewWriter(c.out)
	table.Header("Order", "User", "Trade", "Status", "Path", "Req", "Filled", "Price", "Tx / Reason")
	for _, a := range attempts {
		detail := a.Reason
		if a.TxSignature != "" {
			detail = shortSig(a.TxSignature)
		}
		table.Append(
			truncate(a.OrderID, 12),
			shortKey(a.User),
			fmt.Sprintf("%s %s", a.Action, a.Side),
			string(a.Status),
			a.Path.String(),
			domain.FormatFixed(a.RequestedShares, 6),
			domain.FormatFixed(a.FilledShares, 6),
			domain.FormatFixed(a.ExecutionPrice, 6),
			truncate(detail, 48),
		)
	}
	table.Render()
}

// ReportSettlement imprime el informe de reconciliación con la tabla de pagos.
// Los importes mostrados son los on-chain; la columna Display es la vista
// prorrateada a W.
func (c *Console) ReportSettlement(_ context.Context, r *domain.SettlementReport) error {
	d := r.Decimals
	fmt.Fprintf(c.out, "\n╔══════════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(c.out, "║                    SETTLEMENT REPORT                         ║\n")
	fmt.Fprintf(c.out, "╚══════════════════════════════════════════════════════════════╝\n\n")

	fmt.Fprintf(c.out, "  Run:          %s\n", r.RunID)
	fmt.Fprintf(c.out, "  Market:       %s\n", r.Market)
	fmt.Fprintf(c.out, "  Winner:       %s\n", r.Winner)
	fmt.Fprintf(c.out, "  Vault before: %s\n", domain.FormatFixed(r.VaultBefore, d))
	fmt.Fprintf(c.out, "  Vault after:  %s\n", domain.FormatFixed(r.VaultAfter, d))
	fmt.Fprintf(c.out, "  Vault drop:   %s\n", domain.FormatFixed(r.VaultDrop(), d))
	fmt.Fprintf(c.out, "  W:            %s\n", domain.FormatFixed(r.WinningTotal, d))
	fmt.Fprintf(c.out, "  pps:          %s\n", domain.FormatFixed(r.Pps, d))
	fmt.Fprintf(c.out, "  Fees:         %s\n", domain.FormatFixed(r.Fees, d))

	fmt.Fprintf(c.out, "\n── PAYOUTS (%d holders) ──\n", len(r.Rows))
	if len(r.Rows) > 0 {
		table := tablewriter.NewWriter(c.out)
		table.Header("#", "User", "Winning shares", "Payout", "Display shares", "Display payout", "%")
		for i, row := range r.Rows {
			table.Append(
				fmt.Sprintf("%d", i+1),
				row.User.String(),
				domain.FormatFixed(row.WinningSharesRaw, d),
				domain.FormatFixed(row.OnChainPayout, d),
				domain.FormatFixed(row.DisplayWinningShares, d),
				domain.FormatFixed(row.DisplayPayout, d),
				row.DisplayPercent.StringFixed(4),
			)
		}
		table.Render()
	} else {
		fmt.Fprintln(c.out, "  (none)")
	}

	fmt.Fprintf(c.out, "\n── SUMMARY ──\n")
	fmt.Fprintf(c.out, "  Total payout:  %s\n", domain.FormatFixed(r.TotalPayout, d))
	fmt.Fprintf(c.out, "  Redeem txs:    %d\n", len(r.RedeemTxs))
	if r.Status == domain.SettlementFailed {
		fmt.Fprintf(c.out, "  Status:        FAILED (%s)\n", r.Error)
	} else {
		fmt.Fprintf(c.out, "  Status:        %s\n", r.Status)
	}
	if !r.FinishedAt.IsZero() {
		fmt.Fprintf(c.out, "  Duration:      %s\n", r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond))
	}
	fmt.Fprintln(c.out)
	return nil
}

// ReportInput agrupa lo que imprime `keeper report`.
type ReportInput struct {
	KeeperID       string
	Stats          domain.KeeperStats
	CircuitBreaker domain.CircuitBreaker
	Recent         []domain.ExecutionAttempt
	Users          []domain.UserTotals
}

// PrintReport imprime el informe del journal.
func (c *Console) PrintReport(in ReportInput) {
	fmt.Fprintf(c.out, "\n╔══════════════════════════════════════════════════════════════╗\n")
	fmt.Fprintf(c.out, "║                    KEEPER REPORT                             ║\n")
	fmt.Fprintf(c.out, "╚══════════════════════════════════════════════════════════════╝\n\n")

	st := in.Stats
	fmt.Fprintf(c.out, "  Keeper:        %s\n", in.KeeperID)
	fmt.Fprintf(c.out, "  Attempts:      %d (exec %d | partial %d | skip %d | fail %d | rej %d)\n",
		st.TotalAttempts, st.Executed, st.Partial, st.Skipped, st.Failed, st.Rejected)
	fmt.Fprintf(c.out, "  Shares filled: %s\n", domain.FormatFixed(st.SharesFilled, 6))
	fmt.Fprintf(c.out, "  Active claims: %d\n", st.ActiveClaims)
	fmt.Fprintf(c.out, "  Settlements:   %d\n", st.Settlements)
	if st.LastAttemptAt != nil {
		fmt.Fprintf(c.out, "  Last attempt:  %s\n", st.LastAttemptAt.Format(time.RFC3339))
	}

	fmt.Fprintf(c.out, "  Circuit breaker: ")
	cb := in.CircuitBreaker
	switch {
	case cb.Triggered:
		fmt.Fprintf(c.out, "TRIGGERED (reason: %s)\n", cb.TriggeredReason)
	case time.Now().Before(cb.CooldownUntil):
		fmt.Fprintf(c.out, "COOLDOWN until %s\n", cb.CooldownUntil.Format("15:04:05"))
	default:
		fmt.Fprintf(c.out, "OK (%d total failures)\n", cb.TotalFailures)
	}

	if len(in.Users) > 0 {
		fmt.Fprintf(c.out, "\n── USERS (this process) ──\n")
		table := tablewriter.NewWriter(c.out)
		table.Header("User", "Buys", "Sells", "Bought", "Sold", "Paid", "Received")
		for _, u := range in.Users {
			table.Append(
				shortKey(u.User),
				fmt.Sprintf("%d", u.BuyCount),
				fmt.Sprintf("%d", u.SellCount),
				domain.FormatFixed(u.SharesBought, 6),
				domain.FormatFixed(u.SharesSold, 6),
				domain.FormatFixed(u.CollateralIn, 6),
				domain.FormatFixed(u.CollateralOut, 6),
			)
		}
		table.Render()
	}

	fmt.Fprintf(c.out, "\n── RECENT ATTEMPTS (%d) ──\n", len(in.Recent))
	if len(in.Recent) > 0 {
		c.printAttempts(in.Recent)
	} else {
		fmt.Fprintln(c.out, "  (none)")
	}
	fmt.Fprintln(c.out)
}

// --- helpers ---

func shortKey(k solana.PublicKey) string {
	s := k.String()
	if len(s) <= 11 {
		return s
	}
	return s[:4] + "…" + s[len(s)-4:]
}

func shortSig(s string) string {
	if len(s) <= 16 {
		return s
	}
	return s[:8] + "…" + s[len(s)-8:]
}

func truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
