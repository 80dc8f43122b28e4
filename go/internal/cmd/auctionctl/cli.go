package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/mcdev12/gavel/go/internal/auction/broadcast"
	"github.com/mcdev12/gavel/go/internal/auction/rpc"
	"github.com/mcdev12/gavel/go/internal/auth"
)

const (
	exitOK    = 0
	exitFail  = 1
	exitUsage = 2
)

const usage = `usage: auctionctl [global flags] <command> [flags]

Operator commands:
  start                      begin the auction
  pause [-reason TEXT]       freeze the active timer
  resume                     continue from the paused phase
  end [-reason TEXT]         finish the auction
  force-resolve              resolve the current item now
  skip                       mark the current item unsold
  force-next                 open the next item without waiting
  reset                      return to idle

Queries and bids:
  status                     show the auction state
  item ID                    show one item
  bid -bidder ID -amount N   place a bid

Auth helpers:
  login -name NAME -password PW       exchange operator credentials for a token
  hash-password PW                    print a bcrypt hash for OPERATOR_PASSWORD_HASH
  mint-token -secret S (-operator NAME | -bidder ID [-name NAME])

Global flags:
`

type globals struct {
	server string
	token  string
	format string
	scale  int
	symbol string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("auctionctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	var g globals
	fs.StringVar(&g.server, "server", envOr("AUCTION_URL", "http://localhost:8080"), "auction server base URL")
	fs.StringVar(&g.token, "token", os.Getenv("AUCTION_TOKEN"), "bearer token")
	fs.StringVar(&g.format, "format", "text", "output format: text or json")
	fs.IntVar(&g.scale, "currency-scale", 0, "decimal places of the currency minor unit")
	fs.StringVar(&g.symbol, "currency-symbol", "", "currency symbol for amounts")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitUsage
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	out := &printer{w: stdout, json: g.format == "json", fmt: broadcast.NewFormatter(int32(g.scale), g.symbol)}

	switch cmd {
	case "hash-password":
		return hashPassword(rest, out, stderr)
	case "mint-token":
		return mintToken(rest, out, stderr)
	}

	client := rpc.NewClient(&http.Client{Timeout: 10 * time.Second}, g.server, rpc.WithBearerToken(g.token))
	err := dispatch(ctx, client, cmd, rest, out, stderr)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage):
		return exitUsage
	default:
		reportError(stderr, err)
		return exitFail
	}
}

var errUsage = errors.New("usage")

func dispatch(ctx context.Context, client *rpc.Client, cmd string, args []string, out *printer, stderr io.Writer) error {
	switch cmd {
	case "start":
		return out.phase(client.Start(ctx))
	case "resume":
		return out.phase(client.Resume(ctx))
	case "force-resolve":
		return out.phase(client.ForceResolve(ctx))
	case "skip":
		return out.phase(client.SkipCurrentItem(ctx))
	case "force-next":
		return out.phase(client.ForceNext(ctx))
	case "reset":
		return out.phase(client.Reset(ctx))

	case "pause", "end":
		fs := subFlags(cmd, stderr)
		reason := fs.String("reason", "", "reason shown to bidders")
		if err := fs.Parse(args); err != nil {
			return errUsage
		}
		if cmd == "pause" {
			return out.phase(client.Pause(ctx, *reason))
		}
		return out.phase(client.End(ctx, *reason))

	case "status":
		st, err := client.GetStatus(ctx)
		if err != nil {
			return err
		}
		return out.status(st)

	case "item":
		if len(args) != 1 {
			fmt.Fprintln(stderr, "usage: auctionctl item ID")
			return errUsage
		}
		item, err := client.GetItem(ctx, args[0])
		if err != nil {
			return err
		}
		return out.item(item)

	case "bid":
		fs := subFlags(cmd, stderr)
		bidder := fs.String("bidder", "", "bidder id (defaults to the token subject)")
		amount := fs.Int64("amount", 0, "bid amount in minor units")
		if err := fs.Parse(args); err != nil {
			return errUsage
		}
		bid, err := client.PlaceBid(ctx, *bidder, *amount)
		if err != nil {
			return err
		}
		return out.bid(bid)

	case "login":
		fs := subFlags(cmd, stderr)
		name := fs.String("name", "", "operator name")
		password := fs.String("password", "", "operator password")
		if err := fs.Parse(args); err != nil {
			return errUsage
		}
		token, err := client.Login(ctx, *name, *password)
		if err != nil {
			return err
		}
		return out.line("token", token)
	}

	fmt.Fprintf(stderr, "unknown command %q\n", cmd)
	return errUsage
}

func hashPassword(args []string, out *printer, stderr io.Writer) int {
	if len(args) != 1 {
		fmt.Fprintln(stderr, "usage: auctionctl hash-password PASSWORD")
		return exitUsage
	}
	hash, err := auth.HashPassword(args[0])
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFail
	}
	if err := out.line("hash", hash); err != nil {
		return exitFail
	}
	return exitOK
}

func mintToken(args []string, out *printer, stderr io.Writer) int {
	fs := subFlags("mint-token", stderr)
	secret := fs.String("secret", os.Getenv("JWT_SECRET"), "signing secret")
	operator := fs.String("operator", "", "mint an operator token with this name")
	bidder := fs.String("bidder", "", "mint a bidder token for this bidder id")
	name := fs.String("name", "", "display name for a bidder token")
	ttl := fs.Duration("ttl", 12*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *secret == "" || (*operator == "") == (*bidder == "") {
		fmt.Fprintln(stderr, "usage: auctionctl mint-token -secret S (-operator NAME | -bidder ID [-name NAME])")
		return exitUsage
	}

	manager := auth.NewJWTManager(*secret, *ttl)
	var (
		token string
		err   error
	)
	if *operator != "" {
		token, err = manager.GenerateOperator(*operator)
	} else {
		id, perr := uuid.Parse(*bidder)
		if perr != nil {
			fmt.Fprintf(stderr, "error: invalid bidder id: %v\n", perr)
			return exitUsage
		}
		token, err = manager.GenerateBidder(id, *name)
	}
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitFail
	}
	if err := out.line("token", token); err != nil {
		return exitFail
	}
	return exitOK
}

func reportError(w io.Writer, err error) {
	msg := err.Error()
	var cerr *connect.Error
	if errors.As(err, &cerr) {
		msg = fmt.Sprintf("%s: %s", cerr.Code(), cerr.Message())
	}
	fmt.Fprintf(w, "error: %s\n", msg)
	if phase := rpc.PhaseFromError(err); phase != "" {
		fmt.Fprintf(w, "phase: %s\n", phase)
	}
	if reason := rpc.ReasonFromError(err); reason != "" {
		fmt.Fprintf(w, "reason: %s\n", reason)
	}
}

func subFlags(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

type printer struct {
	w    io.Writer
	json bool
	fmt  broadcast.Formatter
}

func (p *printer) encode(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *printer) line(key, value string) error {
	if p.json {
		return p.encode(map[string]string{key: value})
	}
	_, err := fmt.Fprintln(p.w, value)
	return err
}

func (p *printer) phase(phase string, err error) error {
	if err != nil {
		return err
	}
	return p.line("phase", phase)
}

func (p *printer) status(st *rpc.StatusResponse) error {
	if p.json {
		return p.encode(st)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "phase:     %s\n", st.Phase)
	if st.PausedFrom != "" {
		fmt.Fprintf(&b, "paused:    from %s (%s)\n", st.PausedFrom, st.PauseReason)
	}
	if st.CurrentItem != nil {
		fmt.Fprintf(&b, "item:      %s (%s), base %s\n", st.CurrentItem.Name, st.CurrentItem.Role, p.fmt.Amount(st.CurrentItem.BasePrice))
	}
	if st.HighBidder != nil {
		fmt.Fprintf(&b, "high bid:  %s by %s (%d bids)\n", p.fmt.Amount(st.HighBid), st.HighBidder.Name, st.BidCount)
	}
	if st.ActiveTimer != "" {
		fmt.Fprintf(&b, "timer:     %s, %ds left\n", st.ActiveTimer, st.TimeRemainingSec)
	}
	fmt.Fprintf(&b, "progress:  round %d, %d sold, %d unsold\n", st.Round, st.SoldCount, st.UnsoldCount)
	if st.EndReason != "" {
		fmt.Fprintf(&b, "ended:     %s\n", st.EndReason)
	}
	_, err := io.WriteString(p.w, b.String())
	return err
}

func (p *printer) item(item *rpc.ItemResponse) error {
	if p.json {
		return p.encode(item)
	}
	_, err := fmt.Fprintf(p.w, "%s  %s (%s)  base %s  %s\n", item.ID, item.Name, item.Role, p.fmt.Amount(item.BasePrice), item.Status)
	return err
}

func (p *printer) bid(bid *rpc.PlaceBidResponse) error {
	if p.json {
		return p.encode(bid)
	}
	_, err := fmt.Fprintf(p.w, "accepted %s on item %s (bid %s)\n", p.fmt.Amount(bid.Amount), bid.ItemID, bid.BidID)
	return err
}
