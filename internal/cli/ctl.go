package cli

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"commissions/internal/core"
	apphttp "commissions/internal/http"
	"commissions/internal/store"
)

// EntryCommands is what the admin CLI needs from the entry service.
type EntryCommands interface {
	ListEntries(ctx context.Context, year *int, months []int) ([]core.Entry, error)
	CreateEntry(ctx context.Context, e core.NewEntry) (core.Entry, error)
	DeleteEntry(ctx context.Context, id string) error
	SetEntryTime(ctx context.Context, id, value string) (core.Entry, error)
	Dashboard(ctx context.Context, sel core.Selection) (core.Dashboard, error)
}

// AdminCommand is the commissionsctl command tree.
type AdminCommand struct {
	cmd     *cobra.Command
	entries EntryCommands
	allow   store.AllowListAdmin
	timeout time.Duration
}

// NewAdminCommand builds the command tree over the given collaborators.
func NewAdminCommand(entries EntryCommands, allow store.AllowListAdmin) *AdminCommand {
	a := &AdminCommand{
		entries: entries,
		allow:   allow,
		timeout: 30 * time.Second,
	}
	a.cmd = &cobra.Command{
		Use:   "commissionsctl",
		Short: "Administer the commission ledger",
		Long: `commissionsctl manages ledger entries and the dynamic allow-list directly
against the configured backend (DATA_BACKEND).

EXAMPLES:
  commissionsctl entries list --year 2024 --months 0,1
  commissionsctl entries add --name "Logo" --price 120 --date 2024-05-02 --time 2:30
  commissionsctl entries set-time ID 0          # clear the worked time
  commissionsctl report --period week --metric wagePerHour
  commissionsctl allow add someone@example.com`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	a.cmd.AddCommand(a.entriesCommand(), a.reportCommand(), a.allowCommand())
	return a
}

// Command exposes the root for tests and shell completion.
func (a *AdminCommand) Command() *cobra.Command { return a.cmd }

// Execute runs the command tree with args.
func (a *AdminCommand) Execute(ctx context.Context, args []string) error {
	a.cmd.SetArgs(args)
	return a.cmd.ExecuteContext(ctx)
}

func (a *AdminCommand) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, a.timeout)
}

// selectionFlags registers the filter flags shared by list and report.
type selectionFlags struct {
	year    int
	months  string
	period  string
	groupBy string
	metric  string
	policy  string
}

func (f *selectionFlags) register(cmd *cobra.Command, withEnums bool) {
	cmd.Flags().IntVar(&f.year, "year", 0, "only entries of this year (0 = all years)")
	cmd.Flags().StringVar(&f.months, "months", "", "zero-based months, comma separated (0 = January)")
	if withEnums {
		cmd.Flags().StringVar(&f.period, "period", "", "bucket period: year, month, week or day")
		cmd.Flags().StringVar(&f.groupBy, "group-by", "", "series axis: date or type")
		cmd.Flags().StringVar(&f.metric, "metric", "", "series metric: price or wagePerHour")
		cmd.Flags().StringVar(&f.policy, "policy", "", "wage policy: weighted or mean")
	}
}

// selection reuses the query parser of the HTTP API so both surfaces accept
// the same values.
func (f *selectionFlags) selection() (core.Selection, error) {
	q := url.Values{}
	if f.year != 0 {
		q.Set("year", strconv.Itoa(f.year))
	}
	set := func(key, value string) {
		if value != "" {
			q.Set(key, value)
		}
	}
	set("months", f.months)
	set("period", f.period)
	set("groupBy", f.groupBy)
	set("metric", f.metric)
	set("policy", f.policy)
	return apphttp.ParseSelection(q)
}

func (a *AdminCommand) entriesCommand() *cobra.Command {
	entries := &cobra.Command{
		Use:   "entries",
		Short: "List, add, delete and time ledger entries",
	}

	var listFlags selectionFlags
	list := &cobra.Command{
		Use:   "list",
		Short: "List entries, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := listFlags.selection()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			got, err := a.entries.ListEntries(ctx, sel.Year, sel.Months)
			if err != nil {
				return err
			}
			printEntries(cmd.OutOrStdout(), got)
			return nil
		},
	}
	listFlags.register(list, false)

	var n core.NewEntry
	add := &cobra.Command{
		Use:   "add",
		Short: "Create an entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			e, err := a.entries.CreateEntry(ctx, n)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created entry %s\n", e.ID)
			return nil
		},
	}
	add.Flags().StringVar(&n.Name, "name", "", "client or job name")
	add.Flags().StringVar(&n.Price, "price", "", "amount, dot or comma decimals")
	add.Flags().StringVar(&n.Date, "date", time.Now().Format("2006-01-02"), "date as YYYY-MM-DD")
	add.Flags().StringVar(&n.Type, "type", "", "category")
	add.Flags().StringSliceVar(&n.Extras, "extras", nil, "extra tags, comma separated")
	add.Flags().StringVar(&n.Time, "time", "", "worked time as H:MM")
	_ = add.MarkFlagRequired("name")
	_ = add.MarkFlagRequired("price")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			if err := a.entries.DeleteEntry(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted entry %s\n", args[0])
			return nil
		},
	}

	setTime := &cobra.Command{
		Use:   "set-time ID VALUE",
		Short: "Set the worked time of an entry; 0 clears it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			e, err := a.entries.SetEntryTime(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if e.Time == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared time of entry %s\n", e.ID)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Entry %s time set to %s\n", e.ID, e.Time)
			}
			return nil
		},
	}

	entries.AddCommand(list, add, del, setTime)
	return entries
}

func (a *AdminCommand) reportCommand() *cobra.Command {
	var flags selectionFlags
	report := &cobra.Command{
		Use:   "report",
		Short: "Print KPIs and the aggregated series",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sel, err := flags.selection()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			d, err := a.entries.Dashboard(ctx, sel)
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), d)
			return nil
		},
	}
	flags.register(report, true)
	return report
}

func (a *AdminCommand) allowCommand() *cobra.Command {
	allow := &cobra.Command{
		Use:   "allow",
		Short: "Manage the dynamic allow-list",
	}
	allow.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Show authorized emails",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				ctx, cancel := a.context(cmd)
				defer cancel()
				emails, err := a.allow.AuthorizedEmails(ctx)
				if err != nil {
					return err
				}
				for _, e := range emails {
					fmt.Fprintln(cmd.OutOrStdout(), e)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "add EMAIL",
			Short: "Authorize an email",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				email := store.NormalizeEmail(args[0])
				if !strings.Contains(email, "@") {
					return fmt.Errorf("invalid email %q", args[0])
				}
				ctx, cancel := a.context(cmd)
				defer cancel()
				if err := a.allow.AddAuthorized(ctx, email); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Authorized %s\n", email)
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove EMAIL",
			Short: "Revoke an email",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, cancel := a.context(cmd)
				defer cancel()
				if err := a.allow.RemoveAuthorized(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Revoked %s\n", store.NormalizeEmail(args[0]))
				return nil
			},
		},
	)
	return allow
}

func printEntries(out io.Writer, entries []core.Entry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tNAME\tTYPE\tPRICE\tTIME\tID")
	for _, e := range entries {
		if e.Malformed != nil {
			raw := e.Raw()
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s (malformed: %v)\n",
				raw.Date, raw.Name, raw.Type, raw.Price, raw.Time, raw.ID, e.Malformed)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Date, e.Name, e.Type, e.Price.Text(), e.Time, e.ID)
	}
	w.Flush()
}

func printReport(out io.Writer, d core.Dashboard) {
	fmt.Fprintf(out, "Entries:        %d\n", d.KPI.Count)
	fmt.Fprintf(out, "Total:          %s\n", d.KPI.TotalPriceText)
	fmt.Fprintf(out, "Time worked:    %s\n", d.KPI.TotalTime)
	fmt.Fprintf(out, "Wage per hour:  %s (mean %s)\n", formatRate(d.KPI.WagePerHour), formatRate(d.KPI.WagePerHourMean))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "BUCKET\tCOUNT\tTOTAL\tWAGE/H")
	for _, b := range d.Series {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", b.Key, b.Count, b.TotalPrice.Text(), formatRate(b.WagePerHour))
	}
	w.Flush()
	if d.Average != nil {
		fmt.Fprintf(out, "\nAverage (%s): %.2f\n", d.Selection.Metric, *d.Average)
	}
}

func formatRate(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}
