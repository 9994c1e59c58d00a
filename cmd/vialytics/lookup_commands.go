package main

import (
	"fmt"

	"github.com/brojonat/vialytics/service/solana"
	"github.com/urfave/cli/v2"
)

func priceCommand() *cli.Command {
	return &cli.Command{
		Name:      "price",
		Usage:     "Look up a token's price",
		ArgsUsage: "MINT",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "currency", Usage: "Quote currency", Value: "USD"},
		},
		Action: func(c *cli.Context) error {
			mint := c.Args().First()
			if err := solana.ValidateAddress(mint); err != nil {
				return err
			}
			api, err := newAPIClient(c)
			if err != nil {
				return err
			}
			p, err := api.Price(c.Context, mint, c.String("currency"))
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, p)
			}
			if p.Price == 0 {
				fmt.Fprintf(c.App.Writer, "%s: no price available\n", mint)
				return nil
			}
			fmt.Fprintf(c.App.Writer, "%s: %s\n", mint, p.Formatted)
			return nil
		},
	}
}

func labelCommand() *cli.Command {
	return &cli.Command{
		Name:      "label",
		Usage:     "Show the display label for an address",
		ArgsUsage: "ADDRESS",
		Action: func(c *cli.Context) error {
			address := c.Args().First()
			if err := solana.ValidateAddress(address); err != nil {
				return err
			}
			api, err := newAPIClient(c)
			if err != nil {
				return err
			}
			l, err := api.Label(c.Context, address)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, l)
			}
			known := ""
			if l.Known {
				known = " (known)"
			}
			fmt.Fprintf(c.App.Writer, "%s%s\n", l.Label, known)
			return nil
		},
	}
}
