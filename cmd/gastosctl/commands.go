package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"gastos/internal/auth"
	"gastos/internal/backend"
	"gastos/internal/calculator"
	"gastos/internal/cli"
	"gastos/internal/config"
	"gastos/internal/core"
	"gastos/internal/export"
	applog "gastos/internal/log"
	"gastos/internal/services"
	"gastos/internal/storage"
	"gastos/internal/store"
)

type app struct {
	cfg    *config.Config
	logger *applog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "gastosctl",
		Short:         "Administer a gastos deployment",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cli.LoadEnvFile()
			if path, _ := cmd.Flags().GetString("config-file"); path != "" {
				os.Setenv("CONFIG_FILE", path)
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = cli.SetupLogger(cfg, applog.ComponentCLI)
			return nil
		},
	}
	root.PersistentFlags().StringP("config-file", "C", "", "Path to a YAML or TOML configuration file")

	root.AddCommand(
		a.tokenCmd(),
		a.splitCmd(),
		a.summaryCmd(),
		a.personCmd(),
		a.exportCmd(),
		a.migrateCmd(),
	)
	return root
}

func (a *app) tokenCmd() *cobra.Command {
	var (
		user core.User
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(a.cfg.JWTSecret) < 16 {
				return errors.New("JWT_SECRET must be at least 16 characters")
			}
			if ttl <= 0 {
				ttl = a.cfg.TokenTTL
			}
			token, err := auth.NewJWTManager(a.cfg.JWTSecret, ttl).Generate(user)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user.ID, "user-id", "", "User id (required)")
	cmd.Flags().StringVar(&user.Email, "email", "", "User email")
	cmd.Flags().StringVar(&user.Name, "name", "", "Display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default TOKEN_TTL)")
	_ = cmd.MarkFlagRequired("user-id")
	return cmd
}

func (a *app) splitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "split SALARY1 SALARY2",
		Short: "Suggest a shared expense split from two salaries",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s1, err := core.ParseSalary(args[0])
			if err != nil {
				return fmt.Errorf("salary 1: %w", err)
			}
			s2, err := core.ParseSalary(args[1])
			if err != nil {
				return fmt.Errorf("salary 2: %w", err)
			}
			p1, p2 := calculator.SplitPercentage(s1, s2)
			return pterm.DefaultTable.WithHasHeader().WithWriter(cmd.OutOrStdout()).WithData(pterm.TableData{
				{"", "Salario", "Porcentaje"},
				{"Persona 1", s1.StringFixed(2), fmt.Sprintf("%d%%", p1)},
				{"Persona 2", s2.StringFixed(2), fmt.Sprintf("%d%%", p2)},
			}).Render()
		},
	}
}

// userFlags are shared by the commands that read a user's expenses.
type userFlags struct {
	user  core.User
	month string
}

func (f *userFlags) register(cmd *cobra.Command) {
	registerUser(cmd, &f.user)
	cmd.Flags().StringVar(&f.month, "month", "", "Only include this month (Enero..Diciembre)")
}

func registerUser(cmd *cobra.Command, user *core.User) {
	cmd.Flags().StringVar(&user.ID, "user-id", "", "User id (required)")
	cmd.Flags().StringVar(&user.Email, "email", "", "User email, to include expenses shared with them")
	_ = cmd.MarkFlagRequired("user-id")
}

// openBackend connects to the configured data backend.
func (a *app) openBackend(ctx context.Context) (backend.Backend, func(), error) {
	bc, err := backend.FromAppConfig(a.cfg)
	if err != nil {
		return nil, nil, err
	}
	res, err := backend.NewFactory(a.logger.Logger).CreateBackend(ctx, bc)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if res.Cleanup != nil {
			_ = res.Cleanup()
		}
	}
	return res.Backend, cleanup, nil
}

// loadStore opens the configured backend and loads the user's expenses.
func (a *app) loadStore(ctx context.Context, f userFlags) (*store.Store, core.Month, func(), error) {
	var month core.Month
	if f.month != "" {
		m, err := core.ParseMonth(f.month)
		if err != nil {
			return nil, "", nil, err
		}
		month = m
	}

	be, cleanup, err := a.openBackend(ctx)
	if err != nil {
		return nil, "", nil, err
	}

	spinner, _ := pterm.DefaultSpinner.Start("Loading expenses...")
	st := store.New(f.user, be, nil, nil)
	if err := st.Load(ctx); err != nil {
		spinner.Fail("Load failed")
		cleanup()
		return nil, "", nil, err
	}
	spinner.Success(fmt.Sprintf("Loaded %d expenses", len(st.Expenses())))
	return st, month, cleanup, nil
}

func (a *app) summaryCmd() *cobra.Command {
	var f userFlags
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print totals by month and by person",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, month, cleanup, err := a.loadStore(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer cleanup()

			expenses := st.Expenses()
			if month != "" {
				expenses = calculator.FilterMonth(expenses, month)
			}
			if len(expenses) == 0 {
				pterm.Warning.Println("No expenses found")
				return nil
			}
			names := make(map[string]string)
			for _, p := range st.People() {
				names[p.ID] = p.Name
			}
			renderSummary(cmd, store.ComputeTotals(expenses), names)
			renderBalances(cmd, calculator.SharedBalances(expenses, f.user.ID, f.user.Email))
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func (a *app) personCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "person",
		Short: "Manage the people a user books expenses under",
	}
	cmd.AddCommand(a.personListCmd(), a.personAddCmd(), a.personInitCmd())
	return cmd
}

func (a *app) personListCmd() *cobra.Command {
	var f userFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a user's people",
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, _, cleanup, err := a.loadStore(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer cleanup()
			return renderPeople(cmd, st.People())
		},
	}
	registerUser(cmd, &f.user)
	return cmd
}

func (a *app) personAddCmd() *cobra.Command {
	var (
		f      userFlags
		person core.Person
		salary string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a person to a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			amount, err := core.ParseSalary(salary)
			if err != nil {
				return fmt.Errorf("salary: %w", err)
			}
			person.Salary = amount

			st, _, cleanup, err := a.loadStore(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer cleanup()

			saved, err := st.AddPerson(cmd.Context(), person)
			if err != nil {
				return err
			}
			return renderPeople(cmd, []core.Person{saved})
		},
	}
	registerUser(cmd, &f.user)
	cmd.Flags().StringVar(&person.Name, "name", "", "Display name (required)")
	cmd.Flags().StringVar(&salary, "salary", "0", "Monthly salary")
	cmd.Flags().StringVar(&person.Email, "person-email", "", "Account email of the person, if any")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func (a *app) personInitCmd() *cobra.Command {
	var user core.User
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the default people of a user that has none",
		RunE: func(cmd *cobra.Command, _ []string) error {
			be, cleanup, err := a.openBackend(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			created, err := services.EnsurePeople(cmd.Context(), be, user)
			if err != nil {
				return err
			}
			if len(created) == 0 {
				pterm.Info.Println("User already has people")
				return nil
			}
			return renderPeople(cmd, created)
		},
	}
	registerUser(cmd, &user)
	cmd.Flags().StringVar(&user.Name, "name", "", "User display name")
	return cmd
}

func renderPeople(cmd *cobra.Command, people []core.Person) error {
	data := pterm.TableData{{"ID", "Nombre", "Salario", "Email"}}
	for _, p := range people {
		data = append(data, []string{p.ID, p.Name, p.Salary.StringFixed(2), p.Email})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(cmd.OutOrStdout()).WithData(data).Render()
}

func renderSummary(cmd *cobra.Command, t store.Totals, names map[string]string) {
	out := cmd.OutOrStdout()
	byMonth := pterm.TableData{{"Mes", "Total", "%"}}
	for _, mt := range t.Months {
		byMonth = append(byMonth, []string{string(mt.Month), mt.Total.StringFixed(2), fmt.Sprintf("%.1f", t.MonthPct[mt.Month])})
	}
	byMonth = append(byMonth, []string{pterm.Bold.Sprint("Total"), pterm.Bold.Sprint(t.Total.StringFixed(2)), ""})
	fmt.Fprintln(out, pterm.Bold.Sprint("Por mes"))
	_ = pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(byMonth).Render()

	byPerson := pterm.TableData{{"Persona", "Total", "%"}}
	for _, kt := range t.PeopleOrder {
		label := kt.Key
		if n, ok := names[kt.Key]; ok {
			label = n
		}
		byPerson = append(byPerson, []string{label, kt.Total.StringFixed(2), fmt.Sprintf("%.1f", t.PersonPct[kt.Key])})
	}
	fmt.Fprintln(out, pterm.Bold.Sprint("Por persona"))
	_ = pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(byPerson).Render()
}

func renderBalances(cmd *cobra.Command, balances []calculator.Balance) {
	if len(balances) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	data := pterm.TableData{{"Contraparte", "Te deben", "Debes", "Neto"}}
	for _, b := range balances {
		net := b.Net.StringFixed(2)
		switch {
		case b.Net.IsPositive():
			net = pterm.FgGreen.Sprint(net)
		case b.Net.IsNegative():
			net = pterm.FgRed.Sprint(net)
		}
		data = append(data, []string{b.Counterparty, b.TheyOwe.StringFixed(2), b.YouOwe.StringFixed(2), net})
	}
	fmt.Fprintln(out, pterm.Bold.Sprint("Compartidos"))
	_ = pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(data).Render()
}

func (a *app) exportCmd() *cobra.Command {
	var (
		f      userFlags
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a user's expenses as csv, json or xlsx",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ft, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			st, month, cleanup, err := a.loadStore(cmd.Context(), f)
			if err != nil {
				return err
			}
			defer cleanup()

			expenses := st.Expenses()
			if month != "" {
				expenses = calculator.FilterMonth(expenses, month)
			}
			names := make(map[string]string)
			for _, p := range st.People() {
				names[p.ID] = p.Name
			}

			if output == "" {
				output = ft.Filename()
			}
			file, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create %s: %w", output, err)
			}
			if err := export.Write(file, ft, expenses, names); err != nil {
				file.Close()
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			pterm.Success.Printfln("Wrote %d expenses to %s", len(expenses), output)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().StringVarP(&format, "format", "f", "csv", "Export format: csv, json or xlsx")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default gastos.<format>)")
	return cmd
}

func (a *app) migrateCmd() *cobra.Command {
	var status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQLite migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := a.cfg.SQLiteDBPath
			if !status {
				if err := storage.RunMigrations(path); err != nil {
					return err
				}
			}
			version, dirty, err := storage.MigrationVersion(path)
			if err != nil {
				return err
			}
			if dirty {
				pterm.Warning.Printfln("%s is at version %d (dirty)", path, version)
				return nil
			}
			pterm.Success.Printfln("%s is at version %d", path, version)
			return nil
		},
	}
	cmd.Flags().BoolVar(&status, "status", false, "Only print the current version")
	return cmd
}
