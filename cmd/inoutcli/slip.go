package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	"yamato/inout"
	"yamato/model"
	"yamato/pricing"
)

// SlipFile は slip コマンドに渡す伝票ファイルです。
//
//	{"header": {"date": "2026-10-19", "transactionType": 11, "vendorCode": "123456789"},
//	 "taxRate": "10",
//	 "lines": [{"name": "アムロジピン", "jan": "4987123456789", "quantity": "2"}]}
type SlipFile struct {
	Header  inout.Header `json:"header"`
	TaxRate string       `json:"taxRate"`
	Lines   []SlipLine   `json:"lines"`
}

// SlipLine は明細1行です。name が空で jan だけの行は JAN で品目を直接引きます。
type SlipLine struct {
	Jan      string `json:"jan"`
	Name     string `json:"name"`
	Spec     string `json:"spec"`
	Quantity string `json:"quantity"`
	Expiry   string `json:"expiry"`
	Lot      string `json:"lot"`
}

func ReadSlipFile(r io.Reader) (SlipFile, error) {
	var sf SlipFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sf); err != nil {
		return SlipFile{}, fmt.Errorf("伝票ファイルを読めません: %w", err)
	}
	if len(sf.Lines) == 0 {
		return SlipFile{}, errors.New("伝票ファイルに明細がありません")
	}
	return sf, nil
}

type slipBackend interface {
	inout.Backend
	NextSlipNumber(ctx context.Context, date string) (string, error)
	DrugByJan(ctx context.Context, jan string) (model.DrugCandidate, error)
}

// RunSlip は伝票ファイルを入力画面と同じ手順で Form に流し込み、計算結果を表示します。
// submit なら保存します。伝票番号が空ならサーバーで採番します。
func RunSlip(ctx context.Context, api slipBackend, sf SlipFile, submit bool, w io.Writer, logger zerolog.Logger) error {
	capacity := pricing.DefaultCapacity
	if len(sf.Lines) > capacity {
		capacity = len(sf.Lines)
	}
	opts := []inout.FormOption{inout.WithCapacity(capacity), inout.WithLogger(logger)}
	if strings.TrimSpace(sf.TaxRate) != "" {
		opts = append(opts, inout.WithTaxRate(sf.TaxRate))
	}
	form := inout.NewForm(api, opts...)

	if err := form.Open(ctx); err != nil {
		var a *inout.Alert
		if !errors.As(err, &a) {
			return err
		}
		fmt.Fprintf(w, "警告: %s\n", a.Message)
	}

	for i, l := range sf.Lines {
		n := i + 1
		c, err := pickCandidate(ctx, api, form, l)
		if err != nil {
			return fmt.Errorf("%d行目: %w", n, err)
		}
		if err := form.BeginLookup(n); err != nil {
			return err
		}
		if _, err := form.Select(c); err != nil {
			return err
		}
		if _, err := form.SetQuantity(n, l.Quantity); err != nil {
			return err
		}
		if err := form.SetExpiry(n, l.Expiry); err != nil {
			return err
		}
		if err := form.SetLot(n, l.Lot); err != nil {
			return err
		}
	}
	printDocument(w, form.Document())

	if !submit {
		return nil
	}

	h := sf.Header
	if h.TransactionType == 0 {
		h.TransactionType = model.FlagInbound
	}
	if strings.TrimSpace(h.SlipNumber) == "" {
		number, err := api.NextSlipNumber(ctx, inout.CompactDate(h.Date))
		if err != nil {
			return fmt.Errorf("伝票番号の採番に失敗しました: %w", err)
		}
		h.SlipNumber = number
	}
	form.SetHeader(h)

	resp, err := form.Submit(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s %s (保存 %d件 / 除外 %d件)\n", resp.Message, inout.CompactSlip(h.SlipNumber), resp.Saved, resp.Skipped)
	return nil
}

// pickCandidate は品名・規格で検索し、JAN が指定されていれば一致する1件を選びます。
// 品名が無く JAN だけの行は JAN で直接引きます。
func pickCandidate(ctx context.Context, api slipBackend, form *inout.Form, l SlipLine) (model.DrugCandidate, error) {
	jan := strings.TrimSpace(l.Jan)
	if strings.TrimSpace(l.Name) == "" && jan != "" {
		c, err := api.DrugByJan(ctx, jan)
		if err != nil {
			return model.DrugCandidate{}, fmt.Errorf("JAN %s: %w", jan, err)
		}
		return c, nil
	}

	found, err := form.Search(ctx, l.Name, l.Spec)
	if err != nil {
		return model.DrugCandidate{}, err
	}
	if jan != "" {
		for _, c := range found {
			if c.JanCode == jan {
				return c, nil
			}
		}
		return model.DrugCandidate{}, fmt.Errorf("JAN %s が見つかりません", jan)
	}
	switch len(found) {
	case 0:
		return model.DrugCandidate{}, fmt.Errorf("%q に該当する品目がありません", l.Name)
	case 1:
		return found[0], nil
	default:
		return model.DrugCandidate{}, fmt.Errorf("%q の候補が %d件あります。jan を指定してください", l.Name, len(found))
	}
}

func printDocument(w io.Writer, doc *pricing.Document) {
	tw := newTable(w, "LINE", "JAN", "NAME", "PACKAGING", "QTY", "REAL", "PRICE", "AMOUNT", "TAX")
	for _, l := range doc.Lines() {
		if l.State() == pricing.LineEmpty {
			continue
		}
		p := l.Packaging
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			l.Number, p.JanCode(), p.Name(), p.Display(), l.Quantity.String(),
			l.Result.RealQuantity.String(), p.BaseUnitPrice().StringFixed(2), l.Result.NetAmount, l.Result.TaxAmount)
	}
	t := doc.Totals()
	fmt.Fprintf(tw, "\t\t\t\t\t\t小計\t%d\t\n", t.Subtotal)
	fmt.Fprintf(tw, "\t\t\t\t\t\t税率 %s%%\t\t%d\n", doc.TaxRate().String(), t.TotalTax)
	fmt.Fprintf(tw, "\t\t\t\t\t\t合計\t%d\t\n", t.GrandTotal)
	tw.Flush()
}
