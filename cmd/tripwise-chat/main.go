// Command tripwise-chat runs a planning conversation in the terminal
// against a running tripwise server.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"tripwise-backend/internal/config"
	"tripwise-backend/internal/conversation"
	"tripwise-backend/internal/logger"
	"tripwise-backend/internal/trip"
	"tripwise-backend/internal/types"
	"tripwise-backend/internal/widget"
)

func main() {
	serverURL := flag.String("server", envOr("TRIPWISE_SERVER", "http://localhost:8080"), "base URL of the tripwise server")
	token := flag.String("token", os.Getenv("TRIPWISE_TOKEN"), "bearer token; prompted for when empty on a terminal")
	ask := flag.Bool("login", false, "prompt for a bearer token")
	timeout := flag.Duration("timeout", 2*time.Minute, "per-turn timeout")
	flag.Parse()

	interactive := term.IsTerminal(int(syscall.Stdin))
	if *ask && *token == "" && interactive {
		t, err := promptToken()
		if err != nil {
			fmt.Fprintf(os.Stderr, "read token: %v\n", err)
			os.Exit(1)
		}
		*token = t
	}

	log := logger.NewWithWriter(os.Stderr, config.Logging{Level: envOr("LOG_LEVEL", "warn"), Service: "tripwise-chat"})
	ctx := context.Background()

	// finished plans are saved only for a signed-in caller
	var (
		ownerID   string
		persister conversation.Persister
	)
	if *token != "" {
		me, err := whoami(ctx, *serverURL, *token, *timeout)
		switch {
		case err != nil:
			log.Warn("could not resolve the signed-in user, trips will not be saved", "error", err)
		case !me.Anonymous:
			ownerID = me.ID
			persister = conversation.NewHTTPPersister(*serverURL, *token, *timeout)
		}
	}
	sess := conversation.NewSession("", ownerID, conversation.NewHTTPTurner(*serverURL, *token, *timeout), persister, log)

	c := &chat{sess: sess, out: os.Stdout, interactive: interactive}
	if err := c.loop(ctx, os.Stdin); err != nil {
		fmt.Fprintf(os.Stderr, "tripwise-chat: %v\n", err)
		os.Exit(1)
	}
}

type chat struct {
	sess        *conversation.Session
	out         io.Writer
	interactive bool
	shown       int
	current     widget.Widget
}

func (c *chat) loop(ctx context.Context, in io.Reader) error {
	fmt.Fprintln(c.out, "Where would you like to go? (/reset starts over, /quit exits)")
	sc := bufio.NewScanner(in)
	for {
		if c.interactive {
			fmt.Fprint(c.out, "> ")
		}
		if !sc.Scan() {
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		switch line {
		case "":
			if c.current == nil {
				continue
			}
		case "/quit":
			return nil
		case "/reset":
			c.sess.Reset()
			c.shown, c.current = 0, nil
			fmt.Fprintln(c.out, "Starting over.")
			continue
		}

		text, picked, err := c.resolve(line)
		if err != nil {
			fmt.Fprintln(c.out, err)
			continue
		}
		send := c.sess.Send
		if picked {
			send = c.sess.Choose
		}
		out, err := send(ctx, text)
		if errors.Is(err, conversation.ErrSessionErrored) {
			fmt.Fprintln(c.out, "The conversation hit an error. Type /reset to start again.")
			continue
		}
		if err != nil {
			fmt.Fprintln(c.out, err)
			continue
		}
		c.render(out)
	}
}

// resolve maps input typed while a widget is showing to the widget's
// token. A number picks an option; anything else is sent as typed. picked
// reports whether the text is a widget token.
func (c *chat) resolve(line string) (text string, picked bool, err error) {
	if c.current == nil {
		return line, false, nil
	}
	w := c.current
	if d, ok := w.(*widget.TripDuration); ok {
		switch line {
		case "+":
			d.Inc()
			fmt.Fprintln(c.out, d.Token())
			return "", false, errors.New("press enter to confirm")
		case "-":
			d.Dec()
			fmt.Fprintln(c.out, d.Token())
			return "", false, errors.New("press enter to confirm")
		}
		tok, err := d.Choose(line)
		return tok, err == nil, err
	}
	if n, err := strconv.Atoi(line); err == nil {
		opts := w.Options()
		if n < 1 || n > len(opts) {
			return "", false, fmt.Errorf("pick 1 to %d", len(opts))
		}
		return opts[n-1].Token(), true, nil
	}
	if tok, err := w.Choose(line); err == nil {
		return tok, true, nil
	}
	return line, false, nil
}

func (c *chat) render(out *conversation.Outcome) {
	snap := c.sess.Snapshot()
	for _, m := range snap.Messages[c.shown:] {
		if m.Role == "assistant" {
			fmt.Fprintln(c.out, m.Content)
		}
	}
	c.shown = len(snap.Messages)

	c.current = widget.ForDirective(out.UI)
	switch {
	case c.current != nil:
		c.showWidget(c.current)
	case out.UI == trip.DirectiveLimit:
		fmt.Fprintln(c.out, "You are out of free plans for now.")
	}

	if out.Plan != nil {
		b, err := json.MarshalIndent(out.Plan, "", "  ")
		if err == nil {
			fmt.Fprintln(c.out, string(b))
		}
	}
	switch {
	case out.TripID != "":
		fmt.Fprintf(c.out, "Saved as trip %s.\n", out.TripID)
	case out.SaveError != nil:
		fmt.Fprintf(c.out, "The trip could not be saved: %v\n", out.SaveError)
	}
	if out.Remaining >= 0 {
		fmt.Fprintf(c.out, "(%d credits left)\n", out.Remaining)
	}
}

func (c *chat) showWidget(w widget.Widget) {
	if d, ok := w.(*widget.TripDuration); ok {
		fmt.Fprintf(c.out, "%s  (+/- to adjust, a number to set, enter to confirm)\n", d.Token())
		return
	}
	for i, o := range w.Options() {
		fmt.Fprintf(c.out, "  %d. %s: %s\n", i+1, o.Title, o.Detail)
	}
}

// whoami asks the server who token belongs to.
func whoami(ctx context.Context, baseURL, token string, timeout time.Duration) (types.MeResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/api/me", nil)
	if err != nil {
		return types.MeResponse{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return types.MeResponse{}, fmt.Errorf("get /api/me: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return types.MeResponse{}, fmt.Errorf("get /api/me: status %d", resp.StatusCode)
	}
	var me types.MeResponse
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return types.MeResponse{}, fmt.Errorf("decode /api/me: %w", err)
	}
	return me, nil
}

func promptToken() (string, error) {
	fmt.Fprint(os.Stderr, "Token: ")
	b, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
