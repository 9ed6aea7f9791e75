package command

import (
	"context"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/yndnr/metalgate/internal/cli/output"
	"github.com/yndnr/metalgate/internal/core/domain"
)

// StatsCommand returns the stats command.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show API key usage statistics",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "keys",
				Usage: "Break usage down per key",
			},
		},
		Action: func(c *cli.Context) error {
			rt, err := GetRuntime(c)
			if err != nil {
				return err
			}
			if _, err := rt.Authenticate(c.Context); err != nil {
				return err
			}

			stats, err := rt.Stats.FetchStats(c.Context)
			if err != nil {
				return err
			}
			var keys []*domain.APIKey
			if c.Bool("keys") {
				if keys, err = rt.Keys.List(c.Context); err != nil {
					return err
				}
			}
			return rt.Print(output.NewUsageReport(stats, keys))
		},
	}
}

func commodityFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "commodities",
		Usage: "Comma-separated commodities (gold, silver, platinum, palladium, copper)",
	}
}

// requestedCommodities merges arguments, --commodities and the configured
// default. Empty means all.
func requestedCommodities(c *cli.Context, rt *Runtime) ([]domain.Commodity, error) {
	raw := strings.Join(c.Args().Slice(), ",")
	if raw == "" {
		raw = c.String("commodities")
	}
	if raw == "" {
		raw = rt.Config.Commodities
	}
	cs, err := domain.ParseCommodities(raw)
	if err != nil {
		return nil, err
	}
	return cs, nil
}

// PricesCommand returns the prices command.
func PricesCommand() *cli.Command {
	return &cli.Command{
		Name:      "prices",
		Usage:     "Show live commodity quotes",
		ArgsUsage: "[COMMODITY...]",
		Flags:     []cli.Flag{commodityFlag()},
		Action: func(c *cli.Context) error {
			rt, err := GetRuntime(c)
			if err != nil {
				return err
			}
			cs, err := requestedCommodities(c, rt)
			if err != nil {
				return err
			}
			if _, err := rt.Authenticate(c.Context); err != nil {
				return err
			}

			res := fetchQuotes(c.Context, rt, cs)
			if err := rt.Print(output.NewQuoteReport(res, cs)); err != nil {
				return err
			}
			if res.Failure() != nil {
				return res.Failure()
			}
			return nil
		},
	}
}

func fetchQuotes(ctx context.Context, rt *Runtime, cs []domain.Commodity) *domain.AggregateResult {
	if !rt.Interactive() {
		return rt.Prices.FetchAll(ctx, cs)
	}
	sp := output.NewSpinner(rt.Err, "Fetching quotes...")
	sp.Start()
	res := rt.Prices.FetchAll(ctx, cs)
	sp.Stop()
	return res
}

// DashboardCommand returns the dashboard command: usage and prices fetched
// concurrently, each shown even when the other fails.
func DashboardCommand() *cli.Command {
	return &cli.Command{
		Name:      "dashboard",
		Usage:     "Show usage statistics and live quotes together",
		ArgsUsage: "[COMMODITY...]",
		Flags:     []cli.Flag{commodityFlag()},
		Action: func(c *cli.Context) error {
			rt, err := GetRuntime(c)
			if err != nil {
				return err
			}
			cs, err := requestedCommodities(c, rt)
			if err != nil {
				return err
			}
			if _, err := rt.Authenticate(c.Context); err != nil {
				return err
			}

			var (
				dash    output.Dashboard
				quotes  *domain.AggregateResult
				g, gctx = errgroup.WithContext(c.Context)
			)
			g.Go(func() error {
				stats, err := rt.Stats.FetchStats(gctx)
				if err != nil {
					dash.UsageError = FormatError(err)
					return nil
				}
				report := output.NewUsageReport(stats, nil)
				dash.Usage = &report
				return nil
			})
			g.Go(func() error {
				quotes = rt.Prices.FetchAll(gctx, cs)
				return nil
			})
			_ = g.Wait()

			dash.Quotes = output.NewQuoteReport(quotes, cs)
			if err := rt.Print(dash); err != nil {
				return err
			}
			if dash.Usage == nil && quotes.Failure() != nil {
				return quotes.Failure()
			}
			return nil
		},
	}
}
