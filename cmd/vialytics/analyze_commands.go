package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/brojonat/vialytics/service/analytics"
	"github.com/brojonat/vialytics/service/cache"
	"github.com/brojonat/vialytics/service/config"
	"github.com/brojonat/vialytics/service/labels"
	"github.com/brojonat/vialytics/service/prices"
	"github.com/brojonat/vialytics/service/solana"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
)

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Compute analytics for a wallet",
		ArgsUsage: "ADDRESS",
		Description: `Reads the wallet's records from Postgres (default), an indexer wallet.db
(--sqlite), or the API (--remote) and prints the nine analytics sections.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "sqlite",
				Usage: "Read records from an indexer SQLite file instead of Postgres",
			},
			&cli.BoolFlag{
				Name:  "remote",
				Usage: "Fetch analytics from the API instead of computing locally",
			},
			&cli.BoolFlag{
				Name:  "refresh",
				Usage: "With --remote, force the server to recompute",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write output to a file instead of stdout",
			},
			&cli.StringFlag{
				Name:  "jq",
				Usage: "jq filter applied to the JSON result",
			},
			&cli.StringFlag{
				Name:  "format",
				Usage: "Output format: json or human",
				Value: "json",
			},
			&cli.StringFlag{
				Name:    "price-source",
				Usage:   "Price oracle for local computation: static or coingecko",
				EnvVars: []string{"PRICE_SOURCE"},
				Value:   "static",
			},
			&cli.StringFlag{
				Name:    "rpc-url",
				Usage:   "Solana RPC URLs (comma-separated) for on-chain token decimals",
				EnvVars: []string{"SOLANA_RPC_URL"},
			},
		},
		Action: func(c *cli.Context) error {
			address := c.Args().First()
			if err := solana.ValidateAddress(address); err != nil {
				return err
			}
			format := c.String("format")
			if format != "json" && format != "human" {
				return fmt.Errorf("unknown format %q: must be json or human", format)
			}

			doc, err := loadAnalytics(c, address)
			if err != nil {
				return err
			}

			w := c.App.Writer
			if path := c.String("output"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				w = f
			}

			if filter := c.String("jq"); filter != "" {
				values, err := runJQ(c.Context, filter, doc)
				if err != nil {
					return err
				}
				return writeJQ(w, values)
			}

			if format == "human" {
				var res analytics.Result
				if err := json.Unmarshal(doc, &res); err != nil {
					return fmt.Errorf("failed to decode analytics: %w", err)
				}
				renderHuman(w, address, &res)
				return nil
			}

			var v any
			if err := json.Unmarshal(doc, &v); err != nil {
				return fmt.Errorf("failed to decode analytics: %w", err)
			}
			return outputJSON(w, v)
		},
	}
}

// loadAnalytics returns the analytics JSON document for address.
func loadAnalytics(c *cli.Context, address string) ([]byte, error) {
	if c.Bool("remote") {
		api, err := newAPIClient(c)
		if err != nil {
			return nil, err
		}
		return api.Analytics(c.Context, address, c.Bool("refresh"))
	}

	src, closer, err := openRecords(c)
	if err != nil {
		return nil, err
	}
	defer closer()

	logger := newLogger(c)
	var oracle prices.Oracle
	switch c.String("price-source") {
	case "static":
		oracle = prices.NewStatic()
	case "coingecko":
		oracle = prices.NewCoinGecko(prices.DefaultCoinGeckoURL, cache.NewMemory(), prices.DefaultCacheTTL, nil, logger)
	default:
		return nil, fmt.Errorf("unknown price source %q", c.String("price-source"))
	}

	var registry *solana.Registry
	if endpoints := config.SplitList(c.String("rpc-url")); len(endpoints) > 0 {
		rpcClient, _, err := solana.NewRandomRPCClient(endpoints)
		if err != nil {
			return nil, err
		}
		registry = solana.NewRegistry(rpcClient, nil, logger)
	} else {
		registry = solana.NewRegistry(nil, nil, logger)
	}

	result, err := analytics.New(oracle, labels.New(), registry, nil, logger).Analyze(c.Context, src, address)
	if err != nil {
		return nil, err
	}
	return json.Marshal(result)
}

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetHeader(header)
	t.SetAutoWrapText(false)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	return t
}

func usd(v float64) string {
	return prices.FormatUSD(v)
}

func amount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// renderHuman prints the analytics sections as tables.
func renderHuman(w io.Writer, address string, res *analytics.Result) {
	po := res.PortfolioOverview
	fmt.Fprintf(w, "Wallet:          %s\n", address)
	fmt.Fprintf(w, "Total balance:   %s\n\n", usd(po.TotalBalanceUSD))

	if len(po.TopTokens) > 0 {
		fmt.Fprintln(w, "Top tokens")
		t := newTable(w, "Token", "Amount", "Value", "Share")
		for _, tok := range po.TopTokens {
			t.Append([]string{tok.Symbol, amount(tok.Amount), usd(tok.ValueUSD), fmt.Sprintf("%.2f%%", tok.SharePercent)})
		}
		t.Render()
		fmt.Fprintln(w)
	}

	es := res.EarningsSpending
	fmt.Fprintln(w, "Earnings & spending")
	t := newTable(w, "Metric", "Value")
	t.AppendBulk([][]string{
		{"Received", usd(es.TotalReceivedUSD)},
		{"Sent", usd(es.TotalSentUSD)},
		{"Net flow", usd(es.NetFlow)},
		{"Average transfer", usd(es.AverageTransactionSize)},
		{"Biggest incoming", fmt.Sprintf("%s (%s)", usd(es.BiggestIncoming.Value), es.BiggestIncoming.Label)},
		{"Biggest outgoing", fmt.Sprintf("%s (%s)", usd(es.BiggestOutgoing.Value), es.BiggestOutgoing.Label)},
	})
	t.Render()
	fmt.Fprintln(w)

	if len(res.TokenInsights) > 0 {
		fmt.Fprintln(w, "Tokens")
		t := newTable(w, "Token", "Holdings", "Received", "Sent")
		for _, ti := range res.TokenInsights {
			t.Append([]string{ti.Token, amount(ti.CurrentHoldings), amount(ti.TotalReceived), amount(ti.TotalSent)})
		}
		t.Render()
		fmt.Fprintln(w)
	}

	if ai := res.ActivityInsights; !ai.IsEmpty() {
		fmt.Fprintln(w, "Activity")
		t := newTable(w, "Metric", "Value")
		t.AppendBulk([][]string{
			{"Transactions", strconv.Itoa(ai.TotalTransactions)},
			{"First activity", ai.FirstActivity},
			{"Last activity", ai.LastActivity},
			{"Active days", strconv.Itoa(ai.ActiveDaysCount)},
		})
		t.Render()
		fmt.Fprintln(w)
	}

	if src := res.IncomeStreams.TopIncomeSources; len(src) > 0 {
		fmt.Fprintln(w, "Income sources")
		t := newTable(w, "Source", "Value")
		for _, s := range src {
			t.Append([]string{s.Source, usd(s.ValueUSD)})
		}
		t.Render()
		fmt.Fprintln(w)
	}

	for _, sc := range res.SpendingCategories.TopSpendingCategories {
		fmt.Fprintf(w, "%s: %s\n", sc.Category, usd(sc.ValueUSD))
	}

	if apps := res.Interactions.TopAppsPlatforms; len(apps) > 0 {
		fmt.Fprintln(w, "\nTop apps & platforms")
		t := newTable(w, "Name", "Count")
		for _, a := range apps {
			t.Append([]string{a.Name, strconv.Itoa(a.Count)})
		}
		t.Render()
	}

	fmt.Fprintf(w, "\nSecurity:        %s (%d failed)\n", res.Security.SecurityScore, res.Security.FailedTransactionsCount)
	fmt.Fprintf(w, "Personality:     %s\n", res.Highlights.WalletPersonality)
	fmt.Fprintf(w, "Top moment:      %s\n", res.Highlights.TopMoment)
}
