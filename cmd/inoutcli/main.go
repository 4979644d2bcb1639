// inoutcli は yamato サーバーを操作する入出庫伝票のコマンドラインクライアントです。
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"yamato/apiclient"
	"yamato/logging"
	"yamato/model"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:  "inoutcli",
		Usage: "入出庫伝票の入力・照会",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Aliases: []string{"s"},
				Value:   "http://127.0.0.1:8080",
				EnvVars: []string{"YAMATO_SERVER"},
				Usage:   "yamato サーバーの URL",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Value: 10 * time.Second,
				Usage: "1リクエストのタイムアウト",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				EnvVars: []string{"LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			logging.SetupWriter(c.App.ErrWriter, c.String("log-level"), "console")
			return nil
		},
		Writer:    out,
		ErrWriter: os.Stderr,
		Commands: []*cli.Command{
			{
				Name:  "units",
				Usage: "単位マスタを表示します",
				Action: func(c *cli.Context) error {
					m, err := api(c).UnitMap(c.Context)
					if err != nil {
						return err
					}
					codes := make([]string, 0, len(m))
					for code := range m {
						codes = append(codes, code)
					}
					sort.Strings(codes)
					tw := newTable(c.App.Writer, "CODE", "NAME")
					for _, code := range codes {
						fmt.Fprintf(tw, "%s\t%s\n", code, m[code])
					}
					return tw.Flush()
				},
			},
			{
				Name:  "clients",
				Usage: "得意先の一覧と登録",
				Subcommands: []*cli.Command{
					{
						Name:  "list",
						Usage: "得意先一覧",
						Action: func(c *cli.Context) error {
							clients, err := api(c).ListClients(c.Context)
							if err != nil {
								return err
							}
							printClients(c.App.Writer, clients)
							return nil
						},
					},
					{
						Name:  "add",
						Usage: "得意先を登録します",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "name", Required: true},
							&cli.StringFlag{Name: "vendor", Usage: "卸コード (9桁)"},
						},
						Action: func(c *cli.Context) error {
							cl, err := api(c).RegisterClient(c.Context, model.ClientInput{
								Name:       c.String("name"),
								VendorCode: c.String("vendor"),
							})
							if err != nil {
								return err
							}
							printClients(c.App.Writer, []model.Client{cl})
							return nil
						},
					},
				},
			},
			{
				Name:  "search",
				Usage: "品目を検索します",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}},
					&cli.StringFlag{Name: "spec"},
				},
				Action: func(c *cli.Context) error {
					found, err := api(c).SearchDrugs(c.Context, c.String("name"), c.String("spec"))
					if err != nil {
						return err
					}
					tw := newTable(c.App.Writer, "JAN", "NAME", "SPEC", "PRICE", "PACK", "UNIT")
					for _, d := range found {
						fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%v\t%s\n",
							d.JanCode, d.Name, d.Spec, float64(d.UnitPrice), float64(d.PackQuantityNumber), d.UnitName)
					}
					return tw.Flush()
				},
			},
			{
				Name:      "slip",
				Usage:     "JSON の伝票ファイルを計算し、--submit で保存します",
				ArgsUsage: "<file.json>",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "submit", Usage: "計算後に保存する"},
				},
				Action: func(c *cli.Context) error {
					path := c.Args().First()
					if path == "" {
						return cli.Exit("伝票ファイルを指定してください", 2)
					}
					f, err := os.Open(path)
					if err != nil {
						return err
					}
					defer f.Close()
					sf, err := ReadSlipFile(f)
					if err != nil {
						return err
					}
					return RunSlip(c.Context, api(c), sf, c.Bool("submit"), c.App.Writer, log.Logger)
				},
			},
			{
				Name:  "receipts",
				Usage: "日付の伝票番号一覧",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "date", Required: true, Usage: "YYYYMMDD"},
					&cli.StringFlag{Name: "vendor"},
				},
				Action: func(c *cli.Context) error {
					numbers, err := api(c).Receipts(c.Context, c.String("date"), c.String("vendor"))
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, strings.Join(numbers, "\n"))
					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "伝票の明細を表示します",
				ArgsUsage: "<slip number>",
				Action: func(c *cli.Context) error {
					records, err := api(c).Slip(c.Context, c.Args().First())
					if err != nil {
						return err
					}
					printRecords(c.App.Writer, records)
					return nil
				},
			},
			{
				Name:      "delete",
				Usage:     "伝票を削除します",
				ArgsUsage: "<slip number>",
				Action: func(c *cli.Context) error {
					number := c.Args().First()
					if err := api(c).DeleteSlip(c.Context, number); err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "deleted %s\n", number)
					return nil
				},
			},
		},
	}
}

func api(c *cli.Context) *apiclient.Client {
	return apiclient.New(c.String("server"), apiclient.WithTimeout(c.Duration("timeout")))
}

func newTable(w io.Writer, headers ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	return tw
}

func printClients(w io.Writer, clients []model.Client) {
	tw := newTable(w, "CODE", "NAME", "VENDOR")
	for _, cl := range clients {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", cl.ClientCode, cl.ClientName, cl.VendorCode)
	}
	tw.Flush()
}

func printRecords(w io.Writer, records []model.InOutRecord) {
	tw := newTable(w, "LINE", "JAN", "NAME", "PACKAGING", "QTY", "REAL", "UNIT", "PRICE", "AMOUNT", "TAX")
	var sub, tax int64
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%v\t%v\t%s\t%v\t%d\t%d\n",
			r.LineNumber, r.JanCode, r.ProductName, r.Packaging, r.JanQuantity, r.Quantity, r.UnitName, r.UnitPrice, r.Subtotal, r.TaxAmount)
		sub += r.Subtotal
		tax += r.TaxAmount
	}
	fmt.Fprintf(tw, "\t\t\t\t\t\t\t合計\t%d\t%d\n", sub, tax)
	tw.Flush()
}
