package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/brojonat/vialytics/service/analytics"
	"github.com/brojonat/vialytics/service/db"
	"github.com/brojonat/vialytics/service/solana"
	"github.com/urfave/cli/v2"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply the database schema",
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			if err := store.Migrate(c.Context); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(c.App.Writer, "✓ Schema applied")
			return nil
		},
	}
}

// openRecords opens the --sqlite file when set, else Postgres.
func openRecords(c *cli.Context) (analytics.RecordSource, func(), error) {
	if path := c.String("sqlite"); path != "" {
		src, err := db.OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return src, func() { src.Close() }, nil
	}
	store, closer, err := getStore(c)
	if err != nil {
		return nil, nil, err
	}
	return store, closer, nil
}

func listTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "list-transactions",
		Usage:     "List a wallet's stored transactions",
		ArgsUsage: "ADDRESS",
		Aliases:   []string{"txs"},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sqlite", Usage: "Read from an indexer SQLite file"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Show at most N rows (0 for all)", Value: 50},
		},
		Action: func(c *cli.Context) error {
			address := c.Args().First()
			if err := solana.ValidateAddress(address); err != nil {
				return err
			}

			src, closer, err := openRecords(c)
			if err != nil {
				return err
			}
			defer closer()

			txs, err := src.ListTransactions(c.Context, address)
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}
			total := len(txs)
			if n := c.Int("limit"); n > 0 && n < total {
				txs = txs[:n]
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, txs)
			}

			t := newTable(c.App.Writer, "Signature", "Block Time", "Status", "Fee (lamports)")
			for _, tx := range txs {
				status := "Success"
				if !tx.Status {
					status = "Failed"
				}
				t.Append([]string{tx.Signature, formatBlockTime(tx.BlockTime), status, strconv.FormatInt(tx.Fee, 10)})
			}
			t.Render()
			fmt.Fprintf(c.App.ErrWriter, "\nShowing %d of %d transactions\n", len(txs), total)
			return nil
		},
	}
}

func listMovementsCommand() *cli.Command {
	return &cli.Command{
		Name:      "list-movements",
		Usage:     "List a wallet's stored token movements",
		ArgsUsage: "ADDRESS",
		Aliases:   []string{"movs"},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "sqlite", Usage: "Read from an indexer SQLite file"},
			&cli.StringFlag{Name: "mint", Usage: "Only show movements of this mint"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Show at most N rows (0 for all)", Value: 50},
		},
		Action: func(c *cli.Context) error {
			address := c.Args().First()
			if err := solana.ValidateAddress(address); err != nil {
				return err
			}

			src, closer, err := openRecords(c)
			if err != nil {
				return err
			}
			defer closer()

			movs, err := src.ListTokenMovements(c.Context, address)
			if err != nil {
				return fmt.Errorf("failed to list token movements: %w", err)
			}

			if mint := c.String("mint"); mint != "" {
				filtered := movs[:0]
				for _, m := range movs {
					if m.Mint == mint {
						filtered = append(filtered, m)
					}
				}
				movs = filtered
			}
			total := len(movs)
			if n := c.Int("limit"); n > 0 && n < total {
				movs = movs[:n]
			}

			if c.Bool("json") {
				return outputJSON(c.App.Writer, movs)
			}

			t := newTable(c.App.Writer, "Signature", "Block Time", "Mint", "Amount (raw)", "Decimals", "Source", "Destination")
			for _, m := range movs {
				decimals := "-"
				if m.Decimals != nil {
					decimals = strconv.Itoa(int(*m.Decimals))
				}
				t.Append([]string{
					m.Signature,
					formatBlockTime(m.BlockTime),
					m.Mint,
					strconv.FormatInt(m.Amount, 10),
					decimals,
					m.Source,
					m.Destination,
				})
			}
			t.Render()
			fmt.Fprintf(c.App.ErrWriter, "\nShowing %d of %d movements\n", len(movs), total)
			return nil
		},
	}
}

func formatBlockTime(ts int64) string {
	if ts <= 0 {
		return "(unknown)"
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}
