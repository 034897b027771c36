// Command tychectl drives a running Tyche server from the shell.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"gopkg.in/urfave/cli.v1"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "✗", err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "tychectl"
	app.Usage = "inspect and operate Tyche raffles"
	app.Version = "1.0.0"
	app.Writer = out

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "url",
			Value:  "http://localhost:8080",
			Usage:  "Tyche API base URL",
			EnvVar: "TYCHE_URL",
		},
		cli.StringFlag{
			Name:   "token",
			Usage:  "bearer token for fulfillment callbacks",
			EnvVar: "TYCHE_VRF_API_KEY",
		},
		cli.DurationFlag{
			Name:  "timeout",
			Value: 10 * time.Second,
		},
	}

	app.Commands = []cli.Command{
		{
			Name:  "list",
			Usage: "list every raffle",
			Action: func(c *cli.Context) error {
				return run(c, func(ctx context.Context, api *apiClient) (json.RawMessage, error) {
					return api.listRaffles(ctx)
				})
			},
		},
		{
			Name:      "show",
			Usage:     "show a raffle's state",
			ArgsUsage: "RAFFLE",
			Action: func(c *cli.Context) error {
				name, err := requireArgs(c, 1)
				if err != nil {
					return err
				}
				return run(c, func(ctx context.Context, api *apiClient) (json.RawMessage, error) {
					return api.showRaffle(ctx, name[0])
				})
			},
		},
		{
			Name:      "enter",
			Usage:     "enter a participant",
			ArgsUsage: "RAFFLE PARTICIPANT",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "amount", Usage: "stake; defaults to the entrance fee"},
			},
			Action: func(c *cli.Context) error {
				args, err := requireArgs(c, 2)
				if err != nil {
					return err
				}
				return run(c, func(ctx context.Context, api *apiClient) (json.RawMessage, error) {
					amount := c.String("amount")
					if amount == "" {
						fee, err := entranceFee(ctx, api, args[0])
						if err != nil {
							return nil, err
						}
						amount = fee
					}
					return api.enter(ctx, args[0], args[1], amount)
				})
			},
		},
		{
			Name:      "check",
			Usage:     "evaluate upkeep eligibility",
			ArgsUsage: "RAFFLE",
			Action: func(c *cli.Context) error {
				args, err := requireArgs(c, 1)
				if err != nil {
					return err
				}
				return run(c, func(ctx context.Context, api *apiClient) (json.RawMessage, error) {
					return api.checkUpkeep(ctx, args[0])
				})
			},
		},
		{
			Name:      "perform",
			Usage:     "perform upkeep and request a winner",
			ArgsUsage: "RAFFLE",
			Action: func(c *cli.Context) error {
				args, err := requireArgs(c, 1)
				if err != nil {
					return err
				}
				return run(c, func(ctx context.Context, api *apiClient) (json.RawMessage, error) {
					return api.performUpkeep(ctx, args[0])
				})
			},
		},
		{
			Name:      "fulfill",
			Usage:     "deliver random words for a pending request",
			ArgsUsage: "RAFFLE REQUEST_ID WORD [WORD...]",
			Action: func(c *cli.Context) error {
				args, err := requireArgs(c, 3)
				if err != nil {
					return err
				}
				requestID, err := strconv.ParseUint(args[1], 10, 64)
				if err != nil {
					return fmt.Errorf("invalid request id %q", args[1])
				}
				return run(c, func(ctx context.Context, api *apiClient) (json.RawMessage, error) {
					return api.fulfill(ctx, args[0], requestID, args[2:])
				})
			},
		},
		{
			Name:      "winners",
			Usage:     "list recent winners",
			ArgsUsage: "RAFFLE",
			Flags: []cli.Flag{
				cli.IntFlag{Name: "limit", Value: 10},
			},
			Action: func(c *cli.Context) error {
				args, err := requireArgs(c, 1)
				if err != nil {
					return err
				}
				return run(c, func(ctx context.Context, api *apiClient) (json.RawMessage, error) {
					return api.winners(ctx, args[0], c.Int("limit"))
				})
			},
		},
	}

	return app
}

func requireArgs(c *cli.Context, n int) ([]string, error) {
	if c.NArg() < n {
		return nil, fmt.Errorf("usage: %s %s %s", c.App.Name, c.Command.Name, c.Command.ArgsUsage)
	}
	return c.Args(), nil
}

func run(c *cli.Context, call func(context.Context, *apiClient) (json.RawMessage, error)) error {
	timeout := c.GlobalDuration("timeout")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	api := newAPIClient(c.GlobalString("url"), c.GlobalString("token"), timeout)
	data, err := call(ctx, api)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, data, "", "  "); err != nil {
		_, err = c.App.Writer.Write(data)
		return err
	}
	pretty.WriteByte('\n')
	_, err = pretty.WriteTo(c.App.Writer)
	return err
}

func entranceFee(ctx context.Context, api *apiClient, name string) (string, error) {
	data, err := api.showRaffle(ctx, name)
	if err != nil {
		return "", err
	}
	var view struct {
		EntranceFee string `json:"entrance_fee"`
	}
	if err := json.Unmarshal(data, &view); err != nil {
		return "", fmt.Errorf("decode raffle: %w", err)
	}
	return view.EntranceFee, nil
}
