// Command viewdump prints the views of a journaled scope as JSON without
// contacting the ledger.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/dexview/params"
	"github.com/uhyunpark/dexview/pkg/app/dex"
	"github.com/uhyunpark/dexview/pkg/app/views"
	"github.com/uhyunpark/dexview/pkg/storage"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("viewdump", flag.ContinueOnError)
	dataDir := fs.String("data", "", "data directory (defaults to DATA_DIR)")
	scope := fs.String("scope", "", "chainID:contract to dump; empty lists scopes")
	view := fs.String("view", "orderbook", "orderbook|trades|candles|account-trades|account-orders|status")
	account := fs.String("account", "", "account address for account views")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := params.LoadFromEnv("")
	if *dataDir == "" {
		*dataDir = cfg.Storage.DataDir
	}

	journal, err := storage.NewPebbleStore(filepath.Join(*dataDir, "journal"))
	if err != nil {
		return err
	}
	defer journal.Close()

	if *scope == "" {
		scopes, err := journal.Scopes()
		if err != nil {
			return err
		}
		for _, s := range scopes {
			fmt.Fprintln(stdout, s)
		}
		return nil
	}

	display, candles, err := cfg.Views.Locations()
	if err != nil {
		return err
	}
	app := dex.New(dex.Options{
		Views: views.NewBuilder(views.Options{DisplayLocation: display, BucketLocation: candles}),
	})
	defer app.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	// journal is not passed to the app: the dump never writes back
	if err := app.Connect(ctx, journal.Source(*scope), *scope); err != nil {
		return err
	}
	if err := app.WaitLoaded(ctx); err != nil {
		return err
	}

	out, err := render(app, *view, *account)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func render(app *dex.App, view, account string) (interface{}, error) {
	switch view {
	case "orderbook":
		return app.OrderBook()
	case "trades":
		return app.TradeTape()
	case "candles":
		return app.Candles()
	case "status":
		return app.Status(), nil
	case "account-trades", "account-orders":
		if !common.IsHexAddress(account) {
			return nil, fmt.Errorf("-account %q is not a hex address", account)
		}
		if view == "account-trades" {
			return app.AccountFilled(common.HexToAddress(account))
		}
		return app.AccountOpen(common.HexToAddress(account))
	default:
		return nil, fmt.Errorf("unknown view %q", view)
	}
}
