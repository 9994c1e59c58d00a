package main

import (
	"fmt"
	"strings"

	"github.com/brojonat/vialytics/client"
	"github.com/brojonat/vialytics/service/solana"
	"github.com/charmbracelet/glamour"
	"github.com/urfave/cli/v2"
)

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "Ask a question about a wallet",
		ArgsUsage: "ADDRESS MESSAGE...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "style",
				Usage: "Rendering style: auto, dark, light, notty",
				Value: "auto",
			},
		},
		Action: func(c *cli.Context) error {
			address := c.Args().First()
			if err := solana.ValidateAddress(address); err != nil {
				return err
			}
			message := strings.Join(c.Args().Tail(), " ")
			if strings.TrimSpace(message) == "" {
				return fmt.Errorf("message is required")
			}

			api, err := newAPIClient(c)
			if err != nil {
				return err
			}
			resp, err := api.Chat(c.Context, address, message)
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return outputJSON(c.App.Writer, resp)
			}

			out, err := renderChat(resp, c.String("style"))
			if err != nil {
				return err
			}
			fmt.Fprint(c.App.Writer, out)
			return nil
		},
	}
}

// chatMarkdown lays a reply out as markdown, visualization rows as a table.
func chatMarkdown(resp *client.ChatResponse) string {
	var b strings.Builder
	b.WriteString(resp.Text)
	b.WriteString("\n")

	v := resp.Visualization
	if v == nil || len(v.Data) == 0 {
		return b.String()
	}
	fmt.Fprintf(&b, "\n### %s\n\n", v.Title)
	b.WriteString("| Item | When |\n|---|---|\n")
	for _, item := range v.Data {
		when := item.Time
		if when == "" {
			when = "-"
		}
		fmt.Fprintf(&b, "| %s | %s |\n", strings.ReplaceAll(item.Description, "|", `\|`), when)
	}
	return b.String()
}

func renderChat(resp *client.ChatResponse, style string) (string, error) {
	opt := glamour.WithStandardStyle(style)
	if style == "" || style == "auto" {
		opt = glamour.WithAutoStyle()
	}
	r, err := glamour.NewTermRenderer(opt, glamour.WithWordWrap(100))
	if err != nil {
		return "", fmt.Errorf("failed to create renderer: %w", err)
	}
	out, err := r.Render(chatMarkdown(resp))
	if err != nil {
		return "", fmt.Errorf("failed to render reply: %w", err)
	}
	return out, nil
}
